package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tendlist/tend/internal/todo"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(logWriter{t}, "[test] ", 0)
}

type logWriter struct{ t *testing.T }

func (w logWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// listOf builds a list with the given titles, newest first.
func listOf(titles ...string) []todo.Todo {
	now := time.Now().UTC()
	out := make([]todo.Todo, len(titles))
	for i, title := range titles {
		out[i] = todo.Todo{
			ID:        fmt.Sprintf("id-%d", i),
			Title:     title,
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
			UserID:    "user-1",
		}
	}
	return out
}

// countingFetcher counts invocations and serves a fixed list.
type countingFetcher struct {
	calls atomic.Int64
	todos []todo.Todo
}

func (f *countingFetcher) fetch(ctx context.Context) ([]todo.Todo, error) {
	f.calls.Add(1)
	return f.todos, nil
}

// gatedFetcher blocks each fetch until released, so tests can observe
// in-flight state deterministically.
type gatedFetcher struct {
	calls   atomic.Int64
	started chan struct{}
	release chan []todo.Todo
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{
		started: make(chan struct{}, 16),
		release: make(chan []todo.Todo),
	}
}

func (f *gatedFetcher) fetch(ctx context.Context) ([]todo.Todo, error) {
	f.calls.Add(1)
	f.started <- struct{}{}
	select {
	case todos := <-f.release:
		return todos, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fallibleGatedFetcher blocks each fetch until released with an
// outcome: a non-nil error fails the attempt, nil serves the fixed list.
type fallibleGatedFetcher struct {
	calls   atomic.Int64
	started chan struct{}
	release chan error
	todos   []todo.Todo
}

func newFallibleGatedFetcher(todos []todo.Todo) *fallibleGatedFetcher {
	return &fallibleGatedFetcher{
		started: make(chan struct{}, 16),
		release: make(chan error),
		todos:   todos,
	}
}

func (f *fallibleGatedFetcher) fetch(ctx context.Context) ([]todo.Todo, error) {
	f.calls.Add(1)
	f.started <- struct{}{}
	select {
	case err := <-f.release:
		if err != nil {
			return nil, err
		}
		return f.todos, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestStore(t *testing.T, fetch Fetcher) *Store {
	t.Helper()
	s, err := New(fetch, testLogger(t))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestGet_FetchesOnceWhenFresh(t *testing.T) {
	f := &countingFetcher{todos: listOf("Buy milk")}
	s := newTestStore(t, f.fetch)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		items, err := s.Get(ctx)
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if len(items) != 1 || items[0].Title != "Buy milk" {
			t.Fatalf("unexpected list: %+v", items)
		}
	}
	// Staleness comes only from invalidation, never time, so repeated
	// reads of fresh data must not refetch.
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
}

func TestGet_ConcurrentReadersShareOneFlight(t *testing.T) {
	f := newGatedFetcher()
	s := newTestStore(t, f.fetch)
	ctx := context.Background()

	const readers = 5
	results := make(chan int, readers)
	for i := 0; i < readers; i++ {
		go func() {
			items, err := s.Get(ctx)
			if err != nil {
				results <- -1
				return
			}
			results <- len(items)
		}()
	}

	<-f.started
	f.release <- listOf("A", "B")

	for i := 0; i < readers; i++ {
		if got := <-results; got != 2 {
			t.Errorf("reader %d saw %d items, want 2", i, got)
		}
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1 for %d concurrent readers", n, readers)
	}
}

func TestSnapshot_StaleWhileRevalidate(t *testing.T) {
	f := newGatedFetcher()
	s := newTestStore(t, f.fetch)

	old := listOf("Yesterday's list")
	s.Prime(old, time.Now().Add(-time.Hour))

	snap := s.Snapshot()
	if !snap.HaveData || len(snap.Todos) != 1 {
		t.Fatalf("primed data missing: %+v", snap)
	}

	// Kick a read; while it is in flight the old data stays visible.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Get(context.Background())
	}()
	<-f.started

	snap = s.Snapshot()
	if !snap.Loading {
		t.Error("snapshot should be loading during refresh")
	}
	if len(snap.Todos) != 1 || snap.Todos[0].Title != "Yesterday's list" {
		t.Errorf("stale data blanked during refresh: %+v", snap.Todos)
	}

	f.release <- listOf("Fresh A", "Fresh B")
	<-done

	snap = s.Snapshot()
	if snap.Loading {
		t.Error("snapshot should not be loading after refresh")
	}
	if len(snap.Todos) != 2 {
		t.Errorf("fresh data not installed: %+v", snap.Todos)
	}
}

func TestGet_RetryOnceThenSucceed(t *testing.T) {
	var calls atomic.Int64
	fetch := func(ctx context.Context) ([]todo.Todo, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient blip")
		}
		return listOf("Recovered"), nil
	}
	s := newTestStore(t, fetch)

	items, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() should succeed via retry, got %v", err)
	}
	if len(items) != 1 || items[0].Title != "Recovered" {
		t.Fatalf("unexpected list: %+v", items)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("fetch calls = %d, want 2", n)
	}
	if snap := s.Snapshot(); snap.Err != nil {
		t.Errorf("no error should be visible after recovered read, got %v", snap.Err)
	}
}

func TestGet_TwoFailuresSurfaceOneError(t *testing.T) {
	var calls atomic.Int64
	boom := errors.New("service down")
	fetch := func(ctx context.Context) ([]todo.Todo, error) {
		calls.Add(1)
		return nil, boom
	}
	s := newTestStore(t, fetch)
	s.Prime(listOf("Last known"), time.Now().Add(-time.Hour))

	_, err := s.Get(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected the fetch error, got %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("fetch calls = %d, want exactly 2 (one retry)", n)
	}

	// The failed read keeps last-known data and surfaces the error.
	snap := s.Snapshot()
	if len(snap.Todos) != 1 || snap.Todos[0].Title != "Last known" {
		t.Errorf("last-known data lost on failure: %+v", snap.Todos)
	}
	if !errors.Is(snap.Err, boom) {
		t.Errorf("snapshot error = %v, want fetch error", snap.Err)
	}
}

func TestInvalidate_TriggersBackgroundRefetch(t *testing.T) {
	f := &countingFetcher{todos: listOf("One")}
	s := newTestStore(t, f.fetch)
	ctx := context.Background()

	if _, err := s.Get(ctx); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	s.Invalidate()

	// The refetch happens in the background; a follow-up Get either
	// joins it or sees fresh data, but fetch count ends at 2.
	if _, err := s.Get(ctx); err != nil {
		t.Fatalf("Get() after invalidate failed: %v", err)
	}
	waitFor(t, func() bool { return f.calls.Load() == 2 && !s.Snapshot().Loading })
}

func TestInvalidate_DuringFlightSchedulesFollowUp(t *testing.T) {
	f := newGatedFetcher()
	s := newTestStore(t, f.fetch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Get(context.Background())
	}()
	<-f.started

	// The write completes while the read is in flight. The read is not
	// cancelled; another one is scheduled after it.
	s.Invalidate()
	f.release <- listOf("First result")
	<-done

	<-f.started
	f.release <- listOf("Second result")

	waitFor(t, func() bool {
		snap := s.Snapshot()
		return !snap.Loading && len(snap.Todos) == 1 && snap.Todos[0].Title == "Second result"
	})
	if n := f.calls.Load(); n != 2 {
		t.Errorf("fetch calls = %d, want 2", n)
	}
}

func TestInvalidate_DuringFailedFlightSchedulesFollowUp(t *testing.T) {
	f := newFallibleGatedFetcher(listOf("Recovered"))
	s := newTestStore(t, f.fetch)

	done := make(chan error, 1)
	go func() {
		_, err := s.Get(context.Background())
		done <- err
	}()
	<-f.started

	// The write completes while the read is in flight, then the read
	// fails (both the initial attempt and its automatic retry).
	s.Invalidate()
	boom := errors.New("service down")
	f.release <- boom
	<-f.started
	f.release <- boom

	if err := <-done; !errors.Is(err, boom) {
		t.Fatalf("expected the fetch error, got %v", err)
	}

	// The scheduled follow-up read must still happen and heal the cache.
	<-f.started
	f.release <- nil

	waitFor(t, func() bool {
		snap := s.Snapshot()
		return !snap.Loading && snap.Err == nil &&
			len(snap.Todos) == 1 && snap.Todos[0].Title == "Recovered"
	})
	if n := f.calls.Load(); n != 3 {
		t.Errorf("fetch calls = %d, want 3", n)
	}
}

func TestMutate_SuccessInvalidates(t *testing.T) {
	f := &countingFetcher{todos: listOf("One")}
	s := newTestStore(t, f.fetch)
	ctx := context.Background()

	if _, err := s.Get(ctx); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	var mutated bool
	err := s.Mutate(ctx, MutationCreate, func(ctx context.Context) error {
		mutated = true
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate() failed: %v", err)
	}
	if !mutated {
		t.Fatal("mutation function was not invoked")
	}
	waitFor(t, func() bool { return f.calls.Load() == 2 })
}

func TestMutate_FailureLeavesCacheUntouched(t *testing.T) {
	f := &countingFetcher{todos: listOf("One")}
	s := newTestStore(t, f.fetch)
	ctx := context.Background()

	if _, err := s.Get(ctx); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	boom := errors.New("write rejected")
	err := s.Mutate(ctx, MutationUpdate, func(ctx context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutation error, got %v", err)
	}

	// No invalidation, no refetch, data intact.
	time.Sleep(50 * time.Millisecond)
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1 after failed mutation", n)
	}
	if snap := s.Snapshot(); len(snap.Todos) != 1 {
		t.Errorf("cached data changed by failed mutation: %+v", snap.Todos)
	}
}

func TestMutate_PendingFlag(t *testing.T) {
	f := &countingFetcher{todos: listOf("One")}
	s := newTestStore(t, f.fetch)

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Mutate(context.Background(), MutationDelete, func(ctx context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered
	if !s.Pending(MutationDelete) {
		t.Error("delete should be pending while its call runs")
	}
	if s.Pending(MutationCreate) {
		t.Error("create should not be pending")
	}
	close(release)
	waitFor(t, func() bool { return !s.Pending(MutationDelete) })
}

// mutableService is a minimal remote stand-in whose rows gain
// increasing created_at in call-completion order.
type mutableService struct {
	mu   sync.Mutex
	seq  int
	rows []todo.Todo
}

func (m *mutableService) create(title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.rows = append(m.rows, todo.Todo{
		ID:        fmt.Sprintf("id-%d", m.seq),
		Title:     title,
		CreatedAt: time.Unix(int64(m.seq), 0).UTC(),
		UserID:    "user-1",
	})
}

func (m *mutableService) list(ctx context.Context) ([]todo.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]todo.Todo, len(m.rows))
	copy(out, m.rows)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func TestMutate_ConcurrentCreatesConverge(t *testing.T) {
	svc := &mutableService{}
	s := newTestStore(t, svc.list)
	ctx := context.Background()

	titles := []string{"A", "B", "C"}
	var wg sync.WaitGroup
	for _, title := range titles {
		wg.Add(1)
		go func(title string) {
			defer wg.Done()
			err := s.Mutate(ctx, MutationCreate, func(ctx context.Context) error {
				svc.create(title)
				return nil
			})
			if err != nil {
				t.Errorf("Mutate(%q) failed: %v", title, err)
			}
		}(title)
	}
	wg.Wait()

	// Let the superseding refetches settle, then read once.
	waitFor(t, func() bool { return !s.Snapshot().Loading })
	items, err := s.Get(ctx)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	seen := make(map[string]int)
	for _, item := range items {
		seen[item.Title]++
	}
	for _, title := range titles {
		if seen[title] != 1 {
			t.Errorf("title %q present %d times, want exactly once", title, seen[title])
		}
	}
	if len(items) != len(titles) {
		t.Errorf("list has %d items, want %d", len(items), len(titles))
	}
}

func TestWatch_NotifiesOnChange(t *testing.T) {
	f := &countingFetcher{todos: listOf("One")}
	s := newTestStore(t, f.fetch)

	ch := s.Watch()
	s.Invalidate()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no notification after invalidate")
	}
}

func TestGet_AbandonedWaiterDoesNotCancelFlight(t *testing.T) {
	f := newGatedFetcher()
	s := newTestStore(t, f.fetch)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := s.Get(ctx)
		errs <- err
	}()
	<-f.started
	cancel()

	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("abandoned waiter error = %v, want context.Canceled", err)
	}

	// The shared flight is still running on the store's context and its
	// result still lands in the cache.
	f.release <- listOf("Landed anyway")
	waitFor(t, func() bool {
		snap := s.Snapshot()
		return snap.HaveData && len(snap.Todos) == 1
	})
}

// waitFor polls until cond holds or the test times out.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
