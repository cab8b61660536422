// Package todo defines the todo item model shared by the remote client,
// the sync cache, and the CLI, along with title validation and the pure
// list filter projections.
package todo

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLen is the longest accepted title, in runes.
// The hosted table has no length constraint; this bound exists so a
// pasted wall of text fails fast on the client instead of round-tripping.
const MaxTitleLen = 500

// Todo is a single todo item as stored by the remote data service.
//
// ID, CreatedAt, and UserID are server-assigned and immutable. Only
// Title and Completed may change after creation, via a partial update.
type Todo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
	UserID    string    `json:"user_id"`
}

// Patch is a partial update for a todo. A nil field is left untouched
// by the server; only non-nil fields are sent on the wire.
type Patch struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// IsZero reports whether the patch carries no changes.
func (p Patch) IsZero() bool {
	return p.Title == nil && p.Completed == nil
}

// ValidationError describes a rejected field value.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ValidateTitle normalizes and validates a todo title.
//
// The title is trimmed of surrounding whitespace. Empty or
// whitespace-only titles are rejected before any network call is made;
// the remote service never sees them.
func ValidateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", &ValidationError{Field: "title", Message: "must not be empty"}
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return "", &ValidationError{Field: "title", Message: fmt.Sprintf("must be at most %d characters", MaxTitleLen)}
	}
	return title, nil
}

// Filter selects a subset of the list by completion state.
type Filter string

const (
	// FilterAll keeps every item; it is the identity projection.
	FilterAll Filter = "all"
	// FilterActive keeps items that are not completed.
	FilterActive Filter = "active"
	// FilterCompleted keeps completed items.
	FilterCompleted Filter = "completed"
)

// ParseFilter converts a user-supplied string into a Filter.
func ParseFilter(s string) (Filter, error) {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case FilterAll, "":
		return FilterAll, nil
	case FilterActive:
		return FilterActive, nil
	case FilterCompleted:
		return FilterCompleted, nil
	default:
		return "", fmt.Errorf("unknown filter %q (want all, active, or completed)", s)
	}
}

// Apply returns the items selected by the filter, preserving order.
//
// Filtering is a pure projection over the cached list; it never touches
// the network or the cache. Applying the same filter twice yields the
// same result as applying it once.
func (f Filter) Apply(items []Todo) []Todo {
	if f == FilterAll || f == "" {
		return items
	}
	want := f == FilterCompleted
	out := make([]Todo, 0, len(items))
	for _, item := range items {
		if item.Completed == want {
			out = append(out, item)
		}
	}
	return out
}

// Next cycles all -> active -> completed -> all. Used by the board's
// filter keybinding.
func (f Filter) Next() Filter {
	switch f {
	case FilterAll:
		return FilterActive
	case FilterActive:
		return FilterCompleted
	default:
		return FilterAll
	}
}
