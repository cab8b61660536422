package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeCompletions serves an OpenAI-shaped chat-completions endpoint
// that answers every request with the given completion text.
type fakeCompletions struct {
	calls      atomic.Int64
	completion string
	status     int
	body       string // error body when status is non-2xx
	lastSystem string
	lastUser   string
	lastTemp   float64
}

func (f *fakeCompletions) handler(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); !strings.HasPrefix(got, "Bearer ") {
			t.Errorf("missing bearer auth, got %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		f.lastTemp = req.Temperature
		for _, msg := range req.Messages {
			switch msg.Role {
			case "system":
				f.lastSystem = msg.Content
			case "user":
				f.lastUser = msg.Content
			}
		}

		if f.status != 0 && f.status/100 != 2 {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": f.completion}},
			},
		})
	}
}

// newTestService wires a Service against the fake endpoint.
func newTestService(t *testing.T, f *fakeCompletions, apiKey string) *Service {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	s, err := New(func() Options {
		return Options{APIKey: apiKey, BaseURL: srv.URL, Model: "test-model"}
	}, log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s
}

func TestGenerate_NotConfigured_NoNetworkCall(t *testing.T) {
	f := &fakeCompletions{completion: bareJSON}
	s := newTestService(t, f, "")

	_, err := s.Generate(context.Background(), "plan my week", nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if n := f.calls.Load(); n != 0 {
		t.Errorf("network calls = %d, want 0", n)
	}
}

func TestGenerate_EmptyPromptRejected(t *testing.T) {
	f := &fakeCompletions{completion: bareJSON}
	s := newTestService(t, f, "sk-test")

	_, err := s.Generate(context.Background(), "   ", nil)
	if err == nil {
		t.Fatal("empty prompt should be rejected")
	}
	if n := f.calls.Load(); n != 0 {
		t.Errorf("network calls = %d, want 0", n)
	}
}

func TestGenerate_Success(t *testing.T) {
	f := &fakeCompletions{completion: bareJSON}
	s := newTestService(t, f, "sk-test")

	got, err := s.Generate(context.Background(), "help me get the house ready", []string{"Vacuum hallway"})
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(got))
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("network calls = %d, want exactly 1", n)
	}

	// The prompt contract: existing titles and the cap land in the
	// system message, the raw prompt in the user message.
	if !strings.Contains(f.lastSystem, "Vacuum hallway") {
		t.Error("system message should list existing titles")
	}
	if !strings.Contains(f.lastSystem, fmt.Sprintf("at most %d", MaxSuggestions)) {
		t.Error("system message should state the item cap")
	}
	if f.lastUser != "help me get the house ready" {
		t.Errorf("user message = %q, want the raw prompt", f.lastUser)
	}
}

func TestGenerate_ProseWrappedCompletion(t *testing.T) {
	f := &fakeCompletions{completion: "Here you go!\n" + bareJSON + "\nHope that helps."}
	s := newTestService(t, f, "sk-test")

	got, err := s.Generate(context.Background(), "plan my week", nil)
	if err != nil {
		t.Fatalf("Generate() failed on prose-wrapped completion: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 suggestions, got %d", len(got))
	}
}

func TestGenerate_RequestFailed(t *testing.T) {
	f := &fakeCompletions{status: http.StatusTooManyRequests, body: `{"error":{"message":"rate limited"}}`}
	s := newTestService(t, f, "sk-test")

	_, err := s.Generate(context.Background(), "plan my week", nil)
	var rerr *RequestError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected *RequestError, got %v", err)
	}
	if rerr.Status != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", rerr.Status, http.StatusTooManyRequests)
	}
	if !strings.Contains(rerr.Body, "rate limited") {
		t.Errorf("body %q should carry the response text", rerr.Body)
	}
	// Exactly one request, no gateway retries.
	if n := f.calls.Load(); n != 1 {
		t.Errorf("network calls = %d, want 1", n)
	}
}

func TestGenerate_UnparseableCompletion(t *testing.T) {
	f := &fakeCompletions{completion: "I could not produce JSON for that."}
	s := newTestService(t, f, "sk-test")

	_, err := s.Generate(context.Background(), "plan my week", nil)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
}

func TestGenerate_EmptySuggestionsIsNotError(t *testing.T) {
	f := &fakeCompletions{completion: `{"suggestions":[]}`}
	s := newTestService(t, f, "sk-test")

	got, err := s.Generate(context.Background(), "plan my week", nil)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected 0 suggestions, got %d", len(got))
	}
}

func TestGenerate_TemperatureZeroIsHonored(t *testing.T) {
	f := &fakeCompletions{completion: bareJSON}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	zero := 0.0
	s, err := New(func() Options {
		return Options{APIKey: "sk-test", BaseURL: srv.URL, Model: "test-model", Temperature: &zero}
	}, log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := s.Generate(context.Background(), "plan my week", nil); err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	// An explicit zero is deterministic sampling, not "unset": it must
	// reach the wire, not be rewritten to the default.
	if f.lastTemp != 0 {
		t.Errorf("request temperature = %v, want 0", f.lastTemp)
	}
}

func TestGenerate_TemperatureDefaultsWhenUnset(t *testing.T) {
	f := &fakeCompletions{completion: bareJSON}
	s := newTestService(t, f, "sk-test")

	if _, err := s.Generate(context.Background(), "plan my week", nil); err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if f.lastTemp != defaultTemperature {
		t.Errorf("request temperature = %v, want the default %v", f.lastTemp, defaultTemperature)
	}
}

func TestGenerate_UnknownProvider(t *testing.T) {
	s, err := New(func() Options {
		return Options{APIKey: "sk-test", Provider: "palm"}
	}, log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if _, err := s.Generate(context.Background(), "plan my week", nil); err == nil {
		t.Fatal("unknown provider should fail")
	}
}

// Options are re-read per call, so a credential added after startup
// heals the feature without a restart.
func TestGenerate_HotReloadedCredential(t *testing.T) {
	f := &fakeCompletions{completion: bareJSON}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	var key atomic.Value
	key.Store("")
	s, err := New(func() Options {
		return Options{APIKey: key.Load().(string), BaseURL: srv.URL, Model: "test-model"}
	}, log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := s.Generate(context.Background(), "plan my week", nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured before reload, got %v", err)
	}

	key.Store("sk-test")
	if _, err := s.Generate(context.Background(), "plan my week", nil); err != nil {
		t.Fatalf("Generate() after reload failed: %v", err)
	}
}
