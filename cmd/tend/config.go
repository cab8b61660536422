package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tendlist/tend/internal/config"
	"github.com/tendlist/tend/internal/logging"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "extras",
	Short:   "Manage tend configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented config template",
	Long: `Write a commented configuration template to the config path.

Fails if the file already exists; edit it in place instead.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if path == "" {
			dir, err := config.Dir()
			if err != nil {
				fatal("%v", err)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				fatal("%v", err)
			}
			path = filepath.Join(dir, "config.yaml")
		}
		if err := config.WriteTemplate(path); err != nil {
			fatal("%v", err)
		}
		fmt.Printf("Wrote %s\n", path)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the effective configuration after merging the config file and
TEND_* environment variables. Secrets are redacted.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		m, err := config.NewManager(configPath, logging.New("config", os.Stderr))
		if err != nil {
			fatal("%v", err)
		}
		if err := m.Load(); err != nil {
			fatal("%v", err)
		}
		out, err := config.Redacted(m.Current())
		if err != nil {
			fatal("%v", err)
		}
		fmt.Print(out)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the tend version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tend %s (run %s)\n", version, logging.RunID())
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
