// Package backup dumps and restores the todo list as JSONL, one todo
// per line. It is a convenience dump/restore, not a sync mechanism:
// import feeds titles back through the normal mutation path, so the
// server assigns fresh ids and timestamps.
package backup

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tendlist/tend/internal/todo"
)

// Export writes the list as JSONL and returns the number of lines
// written.
func Export(w io.Writer, todos []todo.Todo) (int, error) {
	encoder := json.NewEncoder(w)
	for i, item := range todos {
		if err := encoder.Encode(item); err != nil {
			return i, fmt.Errorf("failed to write todo %s: %w", item.ID, err)
		}
	}
	return len(todos), nil
}

// ExportFile writes the list as JSONL to the given path.
func ExportFile(path string, todos []todo.Todo) (int, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	n, err := Export(file, todos)
	if err != nil {
		return n, err
	}
	if err := file.Close(); err != nil {
		return n, fmt.Errorf("failed to flush export file: %w", err)
	}
	return n, nil
}

// Entry is one restorable line from a backup. Only the title matters
// for re-creation; the completed flag is preserved so a restored item
// can be re-completed after insert.
type Entry struct {
	Title     string
	Completed bool
}

// Read parses a JSONL stream into restorable entries.
//
// Each non-blank line must be one complete JSON object with at least a
// title; titles are re-validated with the same rules as interactive
// creation. A malformed line fails the whole read with its physical
// line number, since a partial restore is worse than none.
func Read(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var item todo.Todo
		if err := json.Unmarshal([]byte(text), &item); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", line, err)
		}
		title, err := todo.ValidateTitle(item.Title)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, Entry{Title: title, Completed: item.Completed})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read import stream: %w", err)
	}
	return entries, nil
}

// ReadFile parses a JSONL file into restorable entries.
func ReadFile(path string) ([]Entry, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer file.Close()
	return Read(file)
}
