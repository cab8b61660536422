// Package suggest is the gateway to the LLM suggestion feature: it
// turns a free-text prompt plus the existing todo titles into a bounded
// set of candidate todo items.
//
// The gateway makes exactly one request per invocation and never
// retries. Two providers speak the same prompt and parse contract: an
// OpenAI-compatible chat-completions endpoint (the default) and the
// Anthropic Messages API via the official SDK. All failures map into a
// single error taxonomy so the caller can tell "not set up" from "try
// again later".
package suggest

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
)

// MaxSuggestions caps how many items one generation may return.
const MaxSuggestions = 8

// Suggestion is one candidate todo item. It lives only in client
// memory between generation and the user's decision to accept or
// discard it.
type Suggestion struct {
	Title  string `json:"title"`
	Reason string `json:"reason,omitempty"`
}

// Options selects the provider and credential for one generation.
// They are read per call so a config hot-reload takes effect without
// restarting a long-running board.
type Options struct {
	// Provider is "openai" (default) or "anthropic".
	Provider string
	// APIKey is the provider credential. Empty means the feature is
	// soft-disabled and Generate fails with ErrNotConfigured.
	APIKey string
	// BaseURL overrides the provider endpoint. Empty uses the
	// provider's standard public endpoint.
	BaseURL string
	// Model is the model identifier. Empty picks a per-provider default.
	Model string
	// Temperature is the sampling temperature. Nil picks the provider
	// default; an explicit zero is honored (deterministic output).
	Temperature *float64
	// MaxTokens caps the response size.
	MaxTokens int
}

// Per-provider defaults applied when Options leaves them unset.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultTemperature    = 0.7
	defaultMaxTokens      = 1024
)

// Service generates suggestions. Options come from a function so the
// live configuration view can change between calls.
type Service struct {
	opts   func() Options
	logger *log.Logger
}

// New creates a suggestion service. opts must not be nil; if logger is
// nil a default stderr logger is used.
func New(opts func() Options, logger *log.Logger) (*Service, error) {
	if opts == nil {
		return nil, fmt.Errorf("options source cannot be nil")
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[suggest] ", log.LstdFlags)
	}
	return &Service{opts: opts, logger: logger}, nil
}

// Generate turns a prompt and the existing titles into suggestions.
//
// With no credential configured it fails immediately with
// ErrNotConfigured and makes no network call. An empty result is a
// valid, non-error outcome; the caller decides how to present it.
func (s *Service) Generate(ctx context.Context, prompt string, existingTitles []string) ([]Suggestion, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	o := s.opts()
	if o.APIKey == "" {
		return nil, ErrNotConfigured
	}
	applyDefaults(&o)

	system := systemPrompt(existingTitles)

	var (
		text string
		err  error
	)
	switch o.Provider {
	case ProviderAnthropic:
		text, err = completeAnthropic(ctx, o, system, prompt)
	case ProviderOpenAI, "":
		text, err = completeOpenAI(ctx, o, system, prompt)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", o.Provider)
	}
	if err != nil {
		return nil, err
	}

	suggestions, err := parseSuggestions(text)
	if err != nil {
		return nil, err
	}
	s.logger.Printf("generated %d suggestions via %s", len(suggestions), o.Provider)
	return suggestions, nil
}

// applyDefaults fills unset options with the provider defaults.
func applyDefaults(o *Options) {
	if o.Provider == "" {
		o.Provider = ProviderOpenAI
	}
	if o.Model == "" {
		if o.Provider == ProviderAnthropic {
			o.Model = defaultAnthropicModel
		} else {
			o.Model = defaultOpenAIModel
		}
	}
	if o.Temperature == nil {
		t := defaultTemperature
		o.Temperature = &t
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = defaultMaxTokens
	}
}

// systemPrompt builds the behavioral contract for the model.
func systemPrompt(existingTitles []string) string {
	var b strings.Builder
	b.WriteString("You suggest todo list items from the user's request.\n")
	b.WriteString("Guidelines:\n")
	b.WriteString("- Prefer small, actionable steps over vague goals.\n")
	fmt.Fprintf(&b, "- Suggest at most %d items.\n", MaxSuggestions)
	b.WriteString("- Do not duplicate any of the user's existing items.\n")
	b.WriteString(`Answer with a single JSON object of the shape {"suggestions":[{"title":"...","reason":"..."}]}. The reason field is optional. No other text.` + "\n")
	if len(existingTitles) > 0 {
		b.WriteString("Existing items:\n")
		for _, title := range existingTitles {
			fmt.Fprintf(&b, "- %s\n", title)
		}
	}
	return b.String()
}
