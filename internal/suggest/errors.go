package suggest

import (
	"errors"
	"fmt"
)

// ErrNotConfigured means the AI feature was invoked without a
// credential. It is a setup problem, not a transient failure, and no
// network call was attempted.
var ErrNotConfigured = errors.New("ai suggestions are not configured: set ai.api_key")

// RequestError is a non-success status from the suggestion endpoint.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("suggestion request failed: status %d: %s", e.Status, e.Body)
}

// ParseError means the completion text was not valid JSON of the
// expected shape, even after bracket-extraction recovery.
type ParseError struct {
	// Raw is the completion text that could not be parsed.
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse suggestions from model output: %.120s", e.Raw)
}
