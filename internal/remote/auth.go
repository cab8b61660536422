package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
)

// AuthUser is the identity record returned by the auth API.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthSession is a token pair plus the identity it belongs to, as
// returned by sign-in, sign-up, and token refresh.
//
// A sign-up that requires email confirmation returns the user but no
// tokens; AccessToken is empty in that case.
type AuthSession struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	RefreshToken string   `json:"refresh_token"`
	User         AuthUser `json:"user"`
}

// AuthClient performs identity operations against the GoTrue-style auth
// API. It needs only the public key, never a user token, so it can run
// before any session exists.
type AuthClient struct {
	baseURL string
	anonKey string
	http    *http.Client
	logger  *log.Logger
}

// NewAuthClient creates an auth client for the service at baseURL.
func NewAuthClient(baseURL, anonKey string, logger *log.Logger) (*AuthClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("service URL cannot be empty")
	}
	if anonKey == "" {
		return nil, fmt.Errorf("service key cannot be empty")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[auth] ", log.LstdFlags)
	}
	return &AuthClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		http:    newHTTPClient(),
		logger:  logger,
	}, nil
}

// SignIn exchanges an email and password for a session.
func (a *AuthClient) SignIn(ctx context.Context, email, password string) (*AuthSession, error) {
	return a.tokenCall(ctx, "sign in", "/auth/v1/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	})
}

// SignUp registers a new account.
//
// Depending on the service's confirmation settings the response may
// carry a ready session, or only the user record with empty tokens when
// email confirmation is still pending. Callers distinguish the two by
// checking AccessToken.
func (a *AuthClient) SignUp(ctx context.Context, email, password string) (*AuthSession, error) {
	return a.tokenCall(ctx, "sign up", "/auth/v1/signup", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Refresh exchanges a refresh token for a fresh session.
func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (*AuthSession, error) {
	return a.tokenCall(ctx, "refresh session", "/auth/v1/token?grant_type=refresh_token", map[string]string{
		"refresh_token": refreshToken,
	})
}

// SignOut revokes the session behind the given access token. Local
// state is the caller's to clear; a revocation failure is reported but
// does not keep the user signed in locally.
func (a *AuthClient) SignOut(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return &Error{Op: "sign out", Message: err.Error()}
	}
	req.Header.Set("apikey", a.anonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.http.Do(req)
	if err != nil {
		return &Error{Op: "sign out", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return &Error{Op: "sign out", Status: resp.StatusCode, Message: serviceMessage(body)}
	}
	return nil
}

// tokenCall posts a JSON payload to the auth API and decodes the
// session response.
func (a *AuthClient) tokenCall(ctx context.Context, op, path string, payload map[string]string) (*AuthSession, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Op: op, Message: err.Error()}
	}
	req.Header.Set("apikey", a.anonKey)
	req.Header.Set("Authorization", "Bearer "+a.anonKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Status: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		a.logger.Printf("%s: status %d: %s", op, resp.StatusCode, serviceMessage(respBody))
		return nil, &Error{Op: op, Status: resp.StatusCode, Message: serviceMessage(respBody)}
	}

	var session AuthSession
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, &Error{Op: op, Message: fmt.Sprintf("invalid response: %v", err)}
	}

	// Some deployments return the bare user object from signup when
	// confirmation is pending. Map it into the same shape.
	if session.User.ID == "" {
		var user AuthUser
		if err := json.Unmarshal(respBody, &user); err == nil && user.ID != "" {
			session.User = user
		}
	}
	return &session, nil
}
