package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotAuthenticated is returned when a mutation requires an identity
// and none is resolvable at call time. It is never retried.
var ErrNotAuthenticated = errors.New("not authenticated: sign in first")

// Error is any data-service failure: network, server, or a row-level
// policy denial. Message carries the service's own diagnostic text.
type Error struct {
	// Op is the operation that failed, e.g. "list todos".
	Op string
	// Status is the HTTP status code, or 0 for transport failures.
	Status int
	// Message is the service diagnostic, best-effort extracted from the
	// response body.
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("remote: %s: %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("remote: %s: %s", e.Op, e.Message)
}

// serviceMessage extracts a human-readable diagnostic from an error
// response body. PostgREST uses {"message": ...}, GoTrue uses
// {"error_description": ...} or {"msg": ...}; anything else falls back
// to the raw body text.
func serviceMessage(body []byte) string {
	var payload struct {
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		ErrorText        string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, s := range []string{payload.Message, payload.ErrorDescription, payload.Msg, payload.ErrorText} {
			if s != "" {
				return s
			}
		}
	}
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "request failed"
	}
	return s
}
