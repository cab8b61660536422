package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tendlist/tend/internal/cache"
	"github.com/tendlist/tend/internal/todo"
	"github.com/tendlist/tend/internal/ui"
)

var listFilter string

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	GroupID: "todos",
	Short:   "Show the todo list",
	Long: `Show the todo list, newest first.

The printed index works as a shorthand for the item id in the other
commands, so "tend done 2" completes the second item shown.

Example usage:
  tend list
  tend list --filter active
  tend list --filter completed`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		filter, err := todo.ParseFilter(listFilter)
		if err != nil {
			fatal("%v", err)
		}

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
		fmt.Print(ui.RenderList(filter.Apply(items)))
	},
}

var addCmd = &cobra.Command{
	Use:     "add <title>...",
	GroupID: "todos",
	Short:   "Add a todo",
	Long: `Add a todo with the given title. Multiple arguments are joined
with spaces, so quoting is optional:

  tend add water the plants`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		ctx, cancel := commandContext()
		defer cancel()

		title := strings.Join(args, " ")
		err = a.store.Mutate(ctx, cache.MutationCreate, func(ctx context.Context) error {
			created, err := a.client.CreateTodo(ctx, title)
			if err != nil {
				return err
			}
			fmt.Printf("Added %s %s\n", ui.GlyphOpen, created.Title)
			return nil
		})
		if err != nil {
			fatal("%v", err)
		}
	},
}

var doneCmd = &cobra.Command{
	Use:     "done <id|index>",
	GroupID: "todos",
	Short:   "Mark a todo as completed",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setCompleted(args[0], true)
	},
}

var undoneCmd = &cobra.Command{
	Use:     "undone <id|index>",
	GroupID: "todos",
	Short:   "Mark a todo as not completed",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setCompleted(args[0], false)
	},
}

func setCompleted(arg string, completed bool) {
	a, err := newApp(true)
	if err != nil {
		fatal("%v", err)
	}
	defer a.close()

	ctx, cancel := commandContext()
	defer cancel()

	id, err := a.resolveID(ctx, arg)
	if err != nil {
		fatal("%v", err)
	}

	err = a.store.Mutate(ctx, cache.MutationUpdate, func(ctx context.Context) error {
		updated, err := a.client.UpdateTodo(ctx, id, todo.Patch{Completed: &completed})
		if err != nil {
			return err
		}
		glyph := ui.GlyphOpen
		if updated.Completed {
			glyph = ui.GlyphDone
		}
		fmt.Printf("%s %s\n", glyph, updated.Title)
		return nil
	})
	if err != nil {
		fatal("%v", err)
	}
}

var editCmd = &cobra.Command{
	Use:     "edit <id|index> <title>...",
	GroupID: "todos",
	Short:   "Change a todo's title",
	Args:    cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		ctx, cancel := commandContext()
		defer cancel()

		id, err := a.resolveID(ctx, args[0])
		if err != nil {
			fatal("%v", err)
		}
		title := strings.Join(args[1:], " ")

		err = a.store.Mutate(ctx, cache.MutationUpdate, func(ctx context.Context) error {
			updated, err := a.client.UpdateTodo(ctx, id, todo.Patch{Title: &title})
			if err != nil {
				return err
			}
			fmt.Printf("Updated: %s\n", updated.Title)
			return nil
		})
		if err != nil {
			fatal("%v", err)
		}
	},
}

var rmForce bool

var rmCmd = &cobra.Command{
	Use:     "rm <id|index>",
	Aliases: []string{"delete"},
	GroupID: "todos",
	Short:   "Delete a todo",
	Long: `Delete a todo. Deletion is permanent; there is no trash.

Asks for confirmation on a terminal; scripted use needs --force.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp(true)
		if err != nil {
			fatal("%v", err)
		}
		defer a.close()

		if !rmForce {
			ok, err := ui.Confirm("Delete this todo?")
			if err != nil {
				fatal("%v", err)
			}
			if !ok {
				fmt.Println("Not deleted (use --force to skip the prompt)")
				return
			}
		}

		// The timeout clock starts after the prompt, so a slow answer
		// cannot expire the delete's context.
		ctx, cancel := commandContext()
		defer cancel()

		id, err := a.resolveID(ctx, args[0])
		if err != nil {
			fatal("%v", err)
		}

		err = a.store.Mutate(ctx, cache.MutationDelete, func(ctx context.Context) error {
			return a.client.DeleteTodo(ctx, id)
		})
		if err != nil {
			fatal("%v", err)
		}
		fmt.Println("Deleted")
	},
}

func init() {
	listCmd.Flags().StringVarP(&listFilter, "filter", "f", "all", "Filter: all, active, or completed")
	rmCmd.Flags().BoolVarP(&rmForce, "force", "f", false, "Delete without asking")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(undoneCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(rmCmd)
}
