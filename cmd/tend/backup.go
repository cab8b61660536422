package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendlist/tend/internal/backup"
	"github.com/tendlist/tend/internal/cache"
	"github.com/tendlist/tend/internal/todo"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "extras",
	Short:   "Export the list as JSONL",
	Long: `Export the todo list as JSON Lines, one object per item.

Without a file argument the export goes to stdout, so it pipes:

  tend export backup.jsonl
  tend export | gzip > backup.jsonl.gz`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		ctx, cancel := commandContext()
		defer cancel()

		items, err := a.store.Get(ctx)
		if err != nil {
			fatal("%v", err)
		}

		if len(args) == 0 {
			if _, err := backup.Export(os.Stdout, items); err != nil {
				fatal("export failed: %v", err)
			}
			return
		}
		n, err := backup.ExportFile(args[0], items)
		if err != nil {
			fatal("export failed: %v", err)
		}
		fmt.Printf("Exported %d items to %s\n", n, args[0])
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "extras",
	Short:   "Import todos from a JSONL export",
	Long: `Import todos from a JSON Lines file as produced by "tend export".

Every line becomes a new todo; the import never overwrites or dedupes
against existing items. "-" reads from stdin.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var (
			entries []backup.Entry
			err     error
		)
		if args[0] == "-" {
			entries, err = backup.Read(os.Stdin)
		} else {
			entries, err = backup.ReadFile(args[0])
		}
		if err != nil {
			fatal("%v", err)
		}
		if len(entries) == 0 {
			fmt.Println("Nothing to import")
			return
		}

		a, err := newApp(true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		ctx, cancel := commandContext()
		defer cancel()

		imported := 0
		for _, entry := range entries {
			entry := entry
			err := a.store.Mutate(ctx, cache.MutationCreate, func(ctx context.Context) error {
				created, err := a.client.CreateTodo(ctx, entry.Title)
				if err != nil {
					return err
				}
				if entry.Completed {
					done := true
					_, err = a.client.UpdateTodo(ctx, created.ID, todo.Patch{Completed: &done})
				}
				return err
			})
			if err != nil {
				fatal("import failed after %d items: %v", imported, err)
			}
			imported++
		}
		fmt.Printf("Imported %d items\n", imported)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
