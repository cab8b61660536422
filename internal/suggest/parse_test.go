package suggest

import (
	"errors"
	"strings"
	"testing"
)

const bareJSON = `{"suggestions":[{"title":"Buy milk","reason":"You mentioned breakfast"},{"title":"Water plants"}]}`

func TestParseSuggestions_Bare(t *testing.T) {
	got, err := parseSuggestions(bareJSON)
	if err != nil {
		t.Fatalf("parseSuggestions() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(got))
	}
	if got[0].Title != "Buy milk" || got[0].Reason != "You mentioned breakfast" {
		t.Errorf("unexpected first suggestion: %+v", got[0])
	}
	if got[1].Reason != "" {
		t.Errorf("reason should be optional, got %q", got[1].Reason)
	}
}

// Prose-wrapped JSON must parse into the same result as the bare object.
func TestParseSuggestions_ProseWrapped(t *testing.T) {
	wrapped := "Sure! Here are some ideas:\n\n" + bareJSON + "\n\nLet me know if you want more."
	want, err := parseSuggestions(bareJSON)
	if err != nil {
		t.Fatalf("bare parse failed: %v", err)
	}
	got, err := parseSuggestions(wrapped)
	if err != nil {
		t.Fatalf("wrapped parse failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d suggestions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("suggestion %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseSuggestions_MarkdownFence(t *testing.T) {
	fenced := "```json\n" + bareJSON + "\n```"
	got, err := parseSuggestions(fenced)
	if err != nil {
		t.Fatalf("fenced parse failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(got))
	}
}

func TestParseSuggestions_Unrecoverable(t *testing.T) {
	for _, text := range []string{"no json here", "{broken", ""} {
		_, err := parseSuggestions(text)
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Errorf("parseSuggestions(%q) error = %v, want *ParseError", text, err)
		}
	}
}

func TestParseSuggestions_EmptyIsValid(t *testing.T) {
	got, err := parseSuggestions(`{"suggestions":[]}`)
	if err != nil {
		t.Fatalf("empty suggestions should not be an error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected 0 suggestions, got %d", len(got))
	}
}

func TestParseSuggestions_Hygiene(t *testing.T) {
	text := `{"suggestions":[{"title":"  padded  "},{"title":"   "},{"title":""}]}`
	got, err := parseSuggestions(text)
	if err != nil {
		t.Fatalf("parseSuggestions() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 suggestion after dropping empties, got %d", len(got))
	}
	if got[0].Title != "padded" {
		t.Errorf("title = %q, want trimmed", got[0].Title)
	}
}

func TestParseSuggestions_CapsAtMax(t *testing.T) {
	var b strings.Builder
	b.WriteString(`{"suggestions":[`)
	for i := 0; i < MaxSuggestions+4; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"title":"item"}`)
	}
	b.WriteString(`]}`)

	got, err := parseSuggestions(b.String())
	if err != nil {
		t.Fatalf("parseSuggestions() failed: %v", err)
	}
	if len(got) != MaxSuggestions {
		t.Errorf("expected cap at %d, got %d", MaxSuggestions, len(got))
	}
}
