// Package session holds the process-wide authenticated-user state.
//
// A session is a token pair plus the identity it belongs to, restored
// from a file under the user config dir at startup, updated on
// sign-in/out, and handed to the remote client as its token source.
// Access-token expiry is scheduled from the JWT's exp claim; the decode
// is unverified and used only for timing, the service remains the one
// that actually checks the token.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendlist/tend/internal/remote"
)

// refreshMargin is how close to expiry a token may get before it is
// refreshed ahead of use.
const refreshMargin = 30 * time.Second

// Session is the locally persisted authenticated-user state.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Manager owns the current session. All components that need the
// identity read it from here rather than holding their own copy.
type Manager struct {
	auth   *remote.AuthClient
	path   string
	logger *log.Logger

	mu      sync.Mutex
	current *Session
}

// NewManager creates a session manager persisting to the given file.
// Call Load before first use to restore any existing session.
func NewManager(auth *remote.AuthClient, path string, logger *log.Logger) (*Manager, error) {
	if auth == nil {
		return nil, fmt.Errorf("auth client cannot be nil")
	}
	if path == "" {
		return nil, fmt.Errorf("session path cannot be empty")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	return &Manager{auth: auth, path: path, logger: logger}, nil
}

// Load restores a persisted session from disk. A missing file means
// signed out and is not an error; a corrupt file is discarded the same
// way, since the user can always sign in again.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		m.logger.Printf("discarding unreadable session file: %v", err)
		return nil
	}
	if s.AccessToken == "" || s.UserID == "" {
		return nil
	}

	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()
	return nil
}

// Current returns a copy of the active session, or nil when signed out.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// SignIn authenticates with the service and persists the session.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Session, error) {
	authSession, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.install(authSession)
}

// SignUp registers a new account. When the service requires email
// confirmation no session exists yet; SignUp then returns (nil, nil)
// and the caller shows a confirmation hint instead of an error.
func (m *Manager) SignUp(ctx context.Context, email, password string) (*Session, error) {
	authSession, err := m.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if authSession.AccessToken == "" {
		return nil, nil
	}
	return m.install(authSession)
}

// SignOut clears the local session and asks the service to revoke the
// token. Revocation is best-effort: the local state is gone either way.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()

	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	if s != nil {
		if err := m.auth.SignOut(ctx, s.AccessToken); err != nil {
			m.logger.Printf("remote sign-out failed (session cleared locally): %v", err)
		}
	}
	return nil
}

// AccessToken implements remote.TokenSource. A token inside its
// refresh margin is exchanged for a fresh one before being handed out.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return "", remote.ErrNotAuthenticated
	}
	if m.current.ExpiresAt.IsZero() || time.Until(m.current.ExpiresAt) > refreshMargin {
		return m.current.AccessToken, nil
	}

	authSession, err := m.auth.Refresh(ctx, m.current.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh session: %w", err)
	}
	s := fromAuthSession(authSession)
	m.current = s
	if err := m.persist(s); err != nil {
		m.logger.Printf("failed to persist refreshed session: %v", err)
	}
	return s.AccessToken, nil
}

// UserID implements remote.TokenSource.
func (m *Manager) UserID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.UserID
}

// install stores and persists a freshly issued session.
func (m *Manager) install(authSession *remote.AuthSession) (*Session, error) {
	s := fromAuthSession(authSession)

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()

	if err := m.persist(s); err != nil {
		return nil, err
	}
	copied := *s
	return &copied, nil
}

// persist writes the session file with owner-only permissions.
func (m *Manager) persist(s *Session) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// fromAuthSession maps a service auth response into local session state.
func fromAuthSession(authSession *remote.AuthSession) *Session {
	s := &Session{
		AccessToken:  authSession.AccessToken,
		RefreshToken: authSession.RefreshToken,
		UserID:       authSession.User.ID,
		Email:        authSession.User.Email,
	}
	if exp, ok := tokenExpiry(authSession.AccessToken); ok {
		s.ExpiresAt = exp
	} else if authSession.ExpiresIn > 0 {
		s.ExpiresAt = time.Now().Add(time.Duration(authSession.ExpiresIn) * time.Second)
	}
	return s
}

// tokenExpiry reads the exp claim out of a JWT without verifying it.
// Scheduling only; the signature is the service's problem.
func tokenExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
