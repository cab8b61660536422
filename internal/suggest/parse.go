package suggest

import (
	"encoding/json"
	"strings"
)

// parseSuggestions decodes the completion text into suggestions.
//
// Models occasionally wrap the JSON in prose or markdown fences, so a
// failed direct parse falls back to the substring from the first "{" to
// the last "}" before giving up with a ParseError.
func parseSuggestions(text string) ([]Suggestion, error) {
	var payload struct {
		Suggestions []Suggestion `json:"suggestions"`
	}

	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		extracted, ok := extractObject(trimmed)
		if !ok {
			return nil, &ParseError{Raw: text}
		}
		if err := json.Unmarshal([]byte(extracted), &payload); err != nil {
			return nil, &ParseError{Raw: text}
		}
	}

	// Post-parse hygiene: trim titles, drop empties, enforce the cap.
	out := make([]Suggestion, 0, len(payload.Suggestions))
	for _, sug := range payload.Suggestions {
		sug.Title = strings.TrimSpace(sug.Title)
		sug.Reason = strings.TrimSpace(sug.Reason)
		if sug.Title == "" {
			continue
		}
		out = append(out, sug)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out, nil
}

// extractObject returns the substring spanning the first "{" through
// the last "}", if both exist in order.
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
