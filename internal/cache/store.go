package cache

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/tendlist/tend/internal/todo"
)

// Fetcher loads the authoritative todo list from the remote service.
type Fetcher func(ctx context.Context) ([]todo.Todo, error)

// MutationKind identifies the three write intents the store tracks.
type MutationKind int

const (
	// MutationCreate is an insert of a new todo.
	MutationCreate MutationKind = iota
	// MutationUpdate is a partial update of an existing todo.
	MutationUpdate
	// MutationDelete is a removal of a todo.
	MutationDelete

	mutationKinds
)

// String returns a human-readable representation of the mutation kind.
func (k MutationKind) String() string {
	switch k {
	case MutationCreate:
		return "create"
	case MutationUpdate:
		return "update"
	case MutationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Snapshot is an instantaneous, copy-safe view of the store for the
// view layer to render.
type Snapshot struct {
	// Todos is the last-known list, newest first. Valid whenever
	// HaveData is true, even while a refresh is in flight or after a
	// failed one.
	Todos []todo.Todo
	// HaveData reports whether any fetch has ever succeeded (or the
	// store was primed from a local snapshot).
	HaveData bool
	// Loading reports whether a read is in flight right now.
	Loading bool
	// Err is the most recent read failure, cleared by the next
	// successful fetch.
	Err error
	// LastFetchedAt is when Todos was last replaced by a fetch.
	LastFetchedAt time.Time
}

// call is one shared in-flight read. Everyone who needs the list while
// it is running joins its outcome.
type call struct {
	done  chan struct{}
	todos []todo.Todo
	err   error
}

// Store is the cache entry for the logical key "todos for the current
// user". It is safe for concurrent use.
type Store struct {
	fetch  Fetcher
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	todos         []todo.Todo
	haveData      bool
	stale         bool
	lastErr       error
	lastFetchedAt time.Time
	inflight      *call
	gen           int
	pending       [mutationKinds]int
	watchers      []chan struct{}
	onFetched     func([]todo.Todo, time.Time)
	closed        bool
}

// New creates a store over the given fetcher.
//
// If logger is nil, a default stderr logger is used. The caller must
// call Close when done; background refreshes run on the store's own
// lifetime context, not on any single caller's.
func New(fetch Fetcher, logger *log.Logger) (*Store, error) {
	if fetch == nil {
		return nil, fmt.Errorf("fetcher cannot be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[cache] ", log.LstdFlags)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		fetch:  fetch,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		stale:  true,
	}, nil
}

// OnFetched registers a hook invoked after every successful fetch with
// a copy of the fresh list. Used to persist the local warm-start
// snapshot. Must be set before the store is used.
func (s *Store) OnFetched(fn func(todos []todo.Todo, fetchedAt time.Time)) {
	s.mu.Lock()
	s.onFetched = fn
	s.mu.Unlock()
}

// Prime seeds the store with a previously persisted list. The data is
// served immediately but marked stale, so the first read still triggers
// a background refresh: the stale-while-revalidate experience survives
// a process restart.
func (s *Store) Prime(todos []todo.Todo, fetchedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.haveData || s.inflight != nil {
		return
	}
	s.todos = cloneTodos(todos)
	s.haveData = true
	s.stale = true
	s.lastFetchedAt = fetchedAt
	s.notifyLocked()
}

// Get returns the current list, fetching first if the cache is stale.
//
// If a read is already in flight, Get joins it rather than issuing a
// duplicate call. A failed fetch is retried once automatically before
// the single resulting error is surfaced. Cancelling ctx abandons the
// wait only; the shared read keeps running for the other waiters.
func (s *Store) Get(ctx context.Context) ([]todo.Todo, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("store is closed")
	}
	if s.haveData && !s.stale && s.inflight == nil {
		out := cloneTodos(s.todos)
		s.mu.Unlock()
		return out, nil
	}
	c := s.inflight
	if c == nil {
		c = s.startFetchLocked()
	}
	s.mu.Unlock()

	select {
	case <-c.done:
		if c.err != nil {
			return nil, c.err
		}
		return cloneTodos(c.todos), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate marks the cached list stale and triggers an immediate
// background refresh. If a read is already in flight, a follow-up read
// is scheduled after it completes instead.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.gen++
	s.stale = true
	if s.inflight == nil {
		s.startFetchLocked()
	}
	s.notifyLocked()
}

// Mutate runs one write intent through the store.
//
// The kind is marked pending for the duration (advisory state the view
// layer uses to disable duplicate submission), fn is invoked exactly
// once, and on success the cached list is invalidated so the next read
// reflects the authoritative post-mutation state. Nothing is applied
// optimistically; on failure the cache is left untouched and the error
// goes back to the caller.
func (s *Store) Mutate(ctx context.Context, kind MutationKind, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	s.pending[kind]++
	s.notifyLocked()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pending[kind]--
		s.notifyLocked()
		s.mu.Unlock()
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// Pending reports whether a mutation of the given kind is in flight.
func (s *Store) Pending(kind MutationKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[kind] > 0
}

// Snapshot returns a copy-safe view of the store's current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Todos:         cloneTodos(s.todos),
		HaveData:      s.haveData,
		Loading:       s.inflight != nil,
		Err:           s.lastErr,
		LastFetchedAt: s.lastFetchedAt,
	}
}

// Watch returns a channel that receives a signal whenever the store's
// observable state changes. Signals are coalesced: a slow consumer sees
// at least one pending signal, not a backlog.
func (s *Store) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()
	return ch
}

// Close stops background refreshes and releases watchers. In-flight
// reads are cancelled through the store's context.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	for _, ch := range s.watchers {
		close(ch)
	}
	s.watchers = nil
	s.mu.Unlock()
}

// startFetchLocked begins a new shared read. Caller holds s.mu.
func (s *Store) startFetchLocked() *call {
	c := &call{done: make(chan struct{})}
	s.inflight = c
	gen := s.gen
	s.notifyLocked()
	s.wg.Add(1)
	go s.runFetch(c, gen)
	return c
}

// runFetch executes one shared read with a single automatic retry and
// publishes the outcome.
func (s *Store) runFetch(c *call, gen int) {
	defer s.wg.Done()

	todos, err := s.fetch(s.ctx)
	if err != nil && s.ctx.Err() == nil {
		s.logger.Printf("fetch failed, retrying once: %v", err)
		todos, err = s.fetch(s.ctx)
	}

	var (
		hook      func([]todo.Todo, time.Time)
		fetchedAt time.Time
	)

	s.mu.Lock()
	c.todos, c.err = todos, err
	s.inflight = nil
	if err == nil {
		s.todos = cloneTodos(todos)
		s.haveData = true
		s.lastErr = nil
		s.lastFetchedAt = time.Now()
		fetchedAt = s.lastFetchedAt
		hook = s.onFetched
		// An invalidation that landed mid-flight means this result may
		// already be superseded: stay stale and go again.
		s.stale = s.gen != gen
		if s.stale && !s.closed {
			s.startFetchLocked()
		}
	} else {
		// Keep last-known data; surface the error alongside it. A
		// mid-flight invalidation still owes its caller a fresh read,
		// error or not.
		s.lastErr = err
		if s.gen != gen && !s.closed {
			s.startFetchLocked()
		}
	}
	s.notifyLocked()
	s.mu.Unlock()

	close(c.done)

	if hook != nil {
		hook(cloneTodos(todos), fetchedAt)
	}
}

// notifyLocked signals every watcher without blocking. Caller holds s.mu.
func (s *Store) notifyLocked() {
	if s.closed {
		return
	}
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// cloneTodos copies a list so cached state never aliases caller slices.
func cloneTodos(items []todo.Todo) []todo.Todo {
	if items == nil {
		return nil
	}
	out := make([]todo.Todo, len(items))
	copy(out, items)
	return out
}
