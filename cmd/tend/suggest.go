package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/tendlist/tend/internal/cache"
	"github.com/tendlist/tend/internal/suggest"
	"github.com/tendlist/tend/internal/ui"
)

var suggestYes bool

var suggestCmd = &cobra.Command{
	Use:     "suggest <prompt>...",
	GroupID: "extras",
	Short:   "Ask the AI to suggest todos",
	Long: `Ask the configured AI provider to suggest todo items for a prompt.

Suggestions are shown for review; pick the ones to add and they are
created like any other todo. Nothing is stored until you accept it.

Requires ai.api_key in the config (or TEND_AI_API_KEY).

Example usage:
  tend suggest plan a four day hiking trip
  tend suggest --yes prepare for the move`,
	Args: cobra.MinimumNArgs(1),
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
		titles := make([]string, len(items))
		for i, item := range items {
			titles[i] = item.Title
		}

		suggestions, err := a.suggest.Generate(ctx, strings.Join(args, " "), titles)
		if err != nil {
			var parseErr *suggest.ParseError
			switch {
			case errors.Is(err, suggest.ErrNotConfigured):
				fatal("%v (see: tend config init)", err)
			case errors.As(err, &parseErr):
				fatal("the model returned something unusable; try again")
			default:
				fatal("%v", err)
			}
		}
		if len(suggestions) == 0 {
			fmt.Print(ui.RenderSuggestions(nil))
			return
		}

		fmt.Print(ui.RenderSuggestions(suggestions))

		accepted := suggestions
		if !suggestYes {
			accepted, err = ui.PickSuggestions(suggestions)
			if err != nil {
				fatal("%v", err)
			}
		}
		if len(accepted) == 0 {
			fmt.Println("Nothing added")
			return
		}

		// Accepted suggestions are independent creates; run them
		// concurrently and report per-item failures.
		var wg sync.WaitGroup
		errs := make([]error, len(accepted))
		for i, item := range accepted {
			wg.Add(1)
			go func(i int, title string) {
				defer wg.Done()
				errs[i] = a.store.Mutate(ctx, cache.MutationCreate, func(ctx context.Context) error {
					_, err := a.client.CreateTodo(ctx, title)
					return err
				})
			}(i, item.Title)
		}
		wg.Wait()

		failed := 0
		for i, err := range errs {
			if err != nil {
				failed++
				fmt.Printf("%s %s: %v\n", ui.RenderFail("✗"), accepted[i].Title, err)
			}
		}
		fmt.Printf("Added %d of %d\n", len(accepted)-failed, len(accepted))
	},
}

func init() {
	suggestCmd.Flags().BoolVarP(&suggestYes, "yes", "y", false, "Add every suggestion without asking")

	rootCmd.AddCommand(suggestCmd)
}
