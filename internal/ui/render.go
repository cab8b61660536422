package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/tendlist/tend/internal/suggest"
	"github.com/tendlist/tend/internal/todo"
)

// RenderList formats a todo list for one-shot commands, with a short
// index the other commands accept in place of the opaque row id.
func RenderList(items []todo.Todo) string {
	if len(items) == 0 {
		return RenderDim("Nothing here. Add something with: tend add <title>") + "\n"
	}

	var b strings.Builder
	for i, item := range items {
		glyph := GlyphOpen
		title := item.Title
		if item.Completed {
			glyph = RenderPass(GlyphDone)
			title = doneStyle.Render(title)
		}
		fmt.Fprintf(&b, "%3d  %s  %s %s\n", i+1, glyph, title, RenderDim(relativeAge(item.CreatedAt)))
	}
	return b.String()
}

// RenderSuggestions formats AI suggestions with their pick numbers.
func RenderSuggestions(items []suggest.Suggestion) string {
	if len(items) == 0 {
		return RenderDim("No suggestions for that prompt.") + "\n"
	}
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%3d  %s\n", i+1, item.Title)
		if item.Reason != "" {
			fmt.Fprintf(&b, "     %s\n", RenderDim(item.Reason))
		}
	}
	return b.String()
}

// relativeAge renders a compact age like "2h" or "3d".
func relativeAge(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
