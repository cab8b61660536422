// Package remote is the data access layer for the hosted backend.
//
// The backend is a PostgREST-style table API plus a GoTrue-style auth
// API (Supabase-compatible). The client translates four todo intents
// (list, create, update, delete) into REST calls and normalizes every
// failure into the package's error taxonomy. Authorization is enforced
// server-side by a row-level policy comparing the authenticated
// identity to the user_id column; the client never filters by owner
// itself and never bypasses the policy.
//
// Retry policy lives in the sync cache, not here: every method issues
// exactly one request per call.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/tendlist/tend/internal/todo"
)

// TokenSource supplies the authenticated identity for table calls.
// It is implemented by the session manager.
type TokenSource interface {
	// AccessToken returns a valid bearer token for the current user,
	// refreshing it first if it is about to expire.
	AccessToken(ctx context.Context) (string, error)
	// UserID returns the authenticated user's id, or "" when signed out.
	UserID() string
}

// Client performs table operations on the todos table.
type Client struct {
	baseURL string
	anonKey string
	tokens  TokenSource
	http    *http.Client
	logger  *log.Logger
}

// NewClient creates a table client for the service at baseURL.
//
// anonKey is the service's public API key, sent as the apikey header on
// every request. tokens supplies the per-user bearer token; it must not
// be nil. If logger is nil, a default stderr logger is used.
func NewClient(baseURL, anonKey string, tokens TokenSource, logger *log.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("service URL cannot be empty")
	}
	if anonKey == "" {
		return nil, fmt.Errorf("service key cannot be empty")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source cannot be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		tokens:  tokens,
		http:    newHTTPClient(),
		logger:  logger,
	}, nil
}

// ListTodos returns every todo the current identity owns, newest first.
//
// The owner filter is the server's row-level policy, not a query
// parameter: an empty result means the user has no todos, and a policy
// rejection arrives as an error status, never as a silently trimmed
// list.
func (c *Client) ListTodos(ctx context.Context) ([]todo.Todo, error) {
	const op = "list todos"

	query := url.Values{}
	query.Set("select", "*")
	query.Set("order", "created_at.desc")

	body, _, err := c.do(ctx, op, http.MethodGet, "/rest/v1/todos?"+query.Encode(), nil, "")
	if err != nil {
		return nil, err
	}

	var items []todo.Todo
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &Error{Op: op, Message: fmt.Sprintf("invalid response: %v", err)}
	}
	return items, nil
}

// CreateTodo inserts a new todo with the given title and returns the
// row as stored, including the server-assigned id and created_at.
//
// The identity is re-checked at call time rather than trusted from any
// earlier UI guard; with no identity present the call fails with
// ErrNotAuthenticated before touching the network.
func (c *Client) CreateTodo(ctx context.Context, title string) (todo.Todo, error) {
	const op = "create todo"

	title, err := todo.ValidateTitle(title)
	if err != nil {
		return todo.Todo{}, err
	}

	uid := c.tokens.UserID()
	if uid == "" {
		return todo.Todo{}, ErrNotAuthenticated
	}

	payload, err := json.Marshal(map[string]string{
		"title":   title,
		"user_id": uid,
	})
	if err != nil {
		return todo.Todo{}, fmt.Errorf("failed to encode todo: %w", err)
	}

	body, _, err := c.do(ctx, op, http.MethodPost, "/rest/v1/todos", payload, "return=representation")
	if err != nil {
		return todo.Todo{}, err
	}
	return decodeRow(op, body)
}

// UpdateTodo applies a partial update to the todo with the given id and
// returns the updated row. Only the fields present in the patch are
// sent; everything else is left untouched server-side.
//
// A zero-row result (missing row, or a row the policy hides) is an
// *Error, not a silent no-op.
func (c *Client) UpdateTodo(ctx context.Context, id string, patch todo.Patch) (todo.Todo, error) {
	const op = "update todo"

	if id == "" {
		return todo.Todo{}, &Error{Op: op, Message: "id cannot be empty"}
	}
	if patch.IsZero() {
		return todo.Todo{}, &Error{Op: op, Message: "patch carries no fields"}
	}
	if patch.Title != nil {
		title, err := todo.ValidateTitle(*patch.Title)
		if err != nil {
			return todo.Todo{}, err
		}
		patch.Title = &title
	}

	payload, err := json.Marshal(patch)
	if err != nil {
		return todo.Todo{}, fmt.Errorf("failed to encode patch: %w", err)
	}

	path := "/rest/v1/todos?id=eq." + url.QueryEscape(id)
	body, _, err := c.do(ctx, op, http.MethodPatch, path, payload, "return=representation")
	if err != nil {
		return todo.Todo{}, err
	}
	return decodeRow(op, body)
}

// DeleteTodo removes the todo with the given id. Deleting a row that is
// already gone is not an error; only a service failure is.
func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	const op = "delete todo"

	if id == "" {
		return &Error{Op: op, Message: "id cannot be empty"}
	}

	path := "/rest/v1/todos?id=eq." + url.QueryEscape(id)
	_, _, err := c.do(ctx, op, http.MethodDelete, path, nil, "")
	return err
}

// do issues one request against the table API and returns the response
// body. Non-2xx statuses become *Error with the service diagnostic.
func (c *Client) do(ctx context.Context, op, method, path string, payload []byte, prefer string) ([]byte, int, error) {
	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return nil, 0, err
		}
		return nil, 0, &Error{Op: op, Message: err.Error()}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, 0, &Error{Op: op, Message: err.Error()}
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &Error{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &Error{Op: op, Status: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Printf("%s: status %d: %s", op, resp.StatusCode, serviceMessage(body))
		return nil, resp.StatusCode, &Error{Op: op, Status: resp.StatusCode, Message: serviceMessage(body)}
	}
	return body, resp.StatusCode, nil
}

// decodeRow extracts the single affected row from a
// return=representation response. PostgREST answers with a JSON array;
// zero rows on a write means the row-level policy refused the change.
func decodeRow(op string, body []byte) (todo.Todo, error) {
	var rows []todo.Todo
	if err := json.Unmarshal(body, &rows); err != nil {
		return todo.Todo{}, &Error{Op: op, Message: fmt.Sprintf("invalid response: %v", err)}
	}
	if len(rows) == 0 {
		return todo.Todo{}, &Error{Op: op, Message: "no matching row (not found or not permitted)"}
	}
	return rows[0], nil
}
