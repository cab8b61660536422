// Package realtime subscribes to the hosted service's change feed for
// the todos table and turns change events into cache invalidations.
//
// It is an alternative invalidation trigger alongside mutation-driven
// invalidation, feeding the same primitive. The feature is optional and
// degrades silently: a broken or unreachable feed means the list still
// refreshes after every local mutation, just not on remote changes.
//
// The wire protocol is phoenix-framed JSON over a websocket: a join
// message subscribing to postgres_changes for the table filtered to the
// current user, periodic heartbeats, and change events pushed by the
// server. Events are debounced briefly so a burst of changes becomes
// one invalidation.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Config holds subscriber configuration.
type Config struct {
	// ServiceURL is the data service base URL (http or https); the
	// websocket endpoint is derived from it.
	ServiceURL string
	// AnonKey is the service's public API key.
	AnonKey string
	// UserID scopes the subscription to the current user's rows.
	UserID string
	// AccessToken supplies the current bearer token for the join
	// payload; called at (re)connect time so a refreshed token is used.
	AccessToken func(ctx context.Context) (string, error)
	// Debounce is how long to wait after an event before invalidating,
	// batching rapid bursts together.
	Debounce time.Duration
	// HeartbeatInterval is how often to send protocol heartbeats.
	HeartbeatInterval time.Duration
	// Logger for subscriber activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults. ServiceURL, AnonKey, UserID,
// and AccessToken must still be filled in.
func DefaultConfig() *Config {
	return &Config{
		Debounce:          250 * time.Millisecond,
		HeartbeatInterval: 30 * time.Second,
		Logger:            log.New(os.Stderr, "[realtime] ", log.LstdFlags),
	}
}

// frame is one phoenix protocol message in either direction.
type frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// Subscriber maintains the websocket subscription and invokes the
// invalidation callback on debounced change events.
type Subscriber struct {
	config   *Config
	onChange func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	ref     int
	pending *time.Timer
	running bool
}

// New creates a subscriber. onChange is invoked (on a background
// goroutine) after each debounced burst of change events.
func New(config *Config, onChange func()) (*Subscriber, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ServiceURL == "" {
		return nil, fmt.Errorf("service URL cannot be empty")
	}
	if config.AnonKey == "" {
		return nil, fmt.Errorf("service key cannot be empty")
	}
	if config.UserID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange cannot be nil")
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[realtime] ", log.LstdFlags)
	}
	if config.Debounce <= 0 {
		config.Debounce = 250 * time.Millisecond
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Subscriber{
		config:   config,
		onChange: onChange,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins the subscription loop with automatic reconnects.
func (s *Subscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("subscriber already running")
	}
	s.running = true

	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop closes the subscription and waits for goroutines to finish.
func (s *Subscriber) Stop() {
	s.cancel()
	s.mu.Lock()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Reconnect delay bounds.
const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// reconnectDelay picks the wait before the next dial. A session that
// stayed up past the heartbeat interval was healthy, so the ladder
// starts over; consecutive quick failures double up to the cap.
func reconnectDelay(prev, sessionLifetime, heartbeat time.Duration) time.Duration {
	if prev == 0 || sessionLifetime > heartbeat {
		return initialBackoff
	}
	next := prev * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	return next
}

// run reconnects with jittered backoff until the subscriber stops.
func (s *Subscriber) run() {
	defer s.wg.Done()

	var backoff time.Duration
	for {
		if s.ctx.Err() != nil {
			return
		}

		startedAt := time.Now()
		err := s.session()
		if s.ctx.Err() != nil {
			return
		}
		backoff = reconnectDelay(backoff, time.Since(startedAt), s.config.HeartbeatInterval)
		s.config.Logger.Printf("connection lost, reconnecting in %v: %v", backoff.Round(time.Millisecond), err)

		jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
		select {
		case <-time.After(backoff + jitter):
		case <-s.ctx.Done():
			return
		}
	}
}

// session runs one connection: dial, join, heartbeat, read until error.
func (s *Subscriber) session() error {
	endpoint, err := websocketURL(s.config.ServiceURL, s.config.AnonKey)
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, endpoint, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := s.join(conn); err != nil {
		return err
	}
	s.config.Logger.Printf("subscribed to todo changes for current user")

	// Heartbeats keep the phoenix connection alive.
	hbCtx, hbCancel := context.WithCancel(s.ctx)
	defer hbCancel()
	s.wg.Add(1)
	go s.heartbeatLoop(hbCtx, conn)

	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			return err
		}
		var msg frame
		if err := json.Unmarshal(data, &msg); err != nil {
			s.config.Logger.Printf("skipping malformed frame: %v", err)
			continue
		}
		if msg.Event == "postgres_changes" {
			s.queueChange()
		}
	}
}

// join subscribes to postgres_changes for the todos table scoped to the
// current user.
func (s *Subscriber) join(conn *websocket.Conn) error {
	token := ""
	if s.config.AccessToken != nil {
		t, err := s.config.AccessToken(s.ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve access token: %w", err)
		}
		token = t
	}

	payload := map[string]any{
		"config": map[string]any{
			"postgres_changes": []map[string]string{{
				"event":  "*",
				"schema": "public",
				"table":  "todos",
				"filter": "user_id=eq." + s.config.UserID,
			}},
		},
	}
	if token != "" {
		payload["access_token"] = token
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode join payload: %w", err)
	}

	return s.send(conn, frame{
		Topic:   "realtime:todos",
		Event:   "phx_join",
		Payload: raw,
	})
}

// heartbeatLoop sends protocol heartbeats until the session ends.
func (s *Subscriber) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.send(conn, frame{
				Topic:   "phoenix",
				Event:   "heartbeat",
				Payload: json.RawMessage(`{}`),
			})
			if err != nil {
				// The read loop sees the broken connection and reconnects.
				return
			}
		}
	}
}

// send writes one frame with the next message ref.
func (s *Subscriber) send(conn *websocket.Conn, msg frame) error {
	s.mu.Lock()
	s.ref++
	msg.Ref = strconv.Itoa(s.ref)
	s.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// queueChange schedules one invalidation after the debounce window,
// coalescing a burst of change events into a single callback.
func (s *Subscriber) queueChange() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.Reset(s.config.Debounce)
		return
	}
	s.pending = time.AfterFunc(s.config.Debounce, func() {
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
		if s.ctx.Err() != nil {
			return
		}
		s.onChange()
	})
}

// websocketURL derives the realtime websocket endpoint from the
// service base URL.
func websocketURL(serviceURL, anonKey string) (string, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return "", fmt.Errorf("invalid service URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid service URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	q := u.Query()
	q.Set("apikey", anonKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
