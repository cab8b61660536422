package main

import (
	"github.com/spf13/cobra"

	"github.com/tendlist/tend/internal/logging"
	"github.com/tendlist/tend/internal/realtime"
	"github.com/tendlist/tend/internal/ui"
)

var boardCmd = &cobra.Command{
	Use:     "board",
	GroupID: "todos",
	Short:   "Interactive full-screen todo board",
	Long: `Open the interactive board.

Keybindings:
  j/k       Move
  a         Add a todo
  e         Edit the selected title
  space/x   Toggle completed
  d         Delete
  f         Cycle filter (all / active / completed)
  s         Ask the AI for suggestions
  r         Refresh from the service
  q         Quit

With realtime.enabled the board also reacts to edits made from other
devices without pressing r.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		c := a.cfg.Current()
		if c.RealtimeEnabled && a.userID != "" {
			rc := realtime.DefaultConfig()
			rc.ServiceURL = c.ServiceURL
			rc.AnonKey = c.ServiceAnonKey
			rc.UserID = a.userID
			rc.AccessToken = a.session.AccessToken
			rc.Logger = logging.New("realtime", a.logw)

			sub, err := realtime.New(rc, a.store.Invalidate)
			if err != nil {
				fatal("%v", err)
			}
			if err := sub.Start(); err != nil {
				fatal("%v", err)
			}
			defer sub.Stop()
		}

		if err := ui.NewBoard(a.store, a.client, a.suggest).Run(); err != nil {
			fatal("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(boardCmd)
}
