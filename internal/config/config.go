// Package config loads tend's configuration from flags, environment,
// and the config file, in that precedence order, and keeps a live view
// that follows config-file edits.
//
// The data service URL and key are required for any remote operation
// and their absence is reported before a single call is made. The AI
// credential is optional: without it the suggestion feature is
// soft-disabled and everything else works.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the effective configuration.
type Config struct {
	ServiceURL     string
	ServiceAnonKey string

	AIProvider    string
	AIAPIKey      string
	AIBaseURL     string
	AIModel       string
	AITemperature float64
	AIMaxTokens   int

	RealtimeEnabled bool
	SnapshotEnabled bool

	LogFile  string
	LogLevel string
}

// Manager owns the viper instance and the current effective config.
// Current() is safe to call from any goroutine; the config-file watcher
// swaps the view in place so long-running commands pick up edits.
type Manager struct {
	v      *viper.Viper
	logger *log.Logger

	mu  sync.RWMutex
	cur Config
}

// NewManager creates a manager reading the given config file. An empty
// path uses the default location under the user config dir.
func NewManager(path string, logger *log.Logger) (*Manager, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[config] ", log.LstdFlags)
	}

	v := viper.New()
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "config.yaml")
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("TEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("realtime.enabled", false)
	v.SetDefault("snapshot.enabled", true)
	v.SetDefault("log.level", "info")

	return &Manager{v: v, logger: logger}, nil
}

// Load reads the config file (if present) and environment into the
// current view. A missing file is not an error; a malformed one is.
func (m *Manager) Load() error {
	if err := m.v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	m.mu.Lock()
	m.cur = m.snapshot()
	m.mu.Unlock()
	return nil
}

// Watch follows edits to the config file and reloads the live view, so
// a running board heals from a missing AI credential without a restart.
func (m *Manager) Watch() {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		m.mu.Lock()
		m.cur = m.snapshot()
		m.mu.Unlock()
		m.logger.Printf("config reloaded after %s", e.Op)
	})
	m.v.WatchConfig()
}

// snapshot reads the viper state into a Config.
func (m *Manager) snapshot() Config {
	return Config{
		ServiceURL:      m.v.GetString("service.url"),
		ServiceAnonKey:  m.v.GetString("service.anon_key"),
		AIProvider:      m.v.GetString("ai.provider"),
		AIAPIKey:        m.v.GetString("ai.api_key"),
		AIBaseURL:       m.v.GetString("ai.base_url"),
		AIModel:         m.v.GetString("ai.model"),
		AITemperature:   m.v.GetFloat64("ai.temperature"),
		AIMaxTokens:     m.v.GetInt("ai.max_tokens"),
		RealtimeEnabled: m.v.GetBool("realtime.enabled"),
		SnapshotEnabled: m.v.GetBool("snapshot.enabled"),
		LogFile:         m.v.GetString("log.file"),
		LogLevel:        m.v.GetString("log.level"),
	}
}

// Current returns a copy of the effective configuration.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// RequireService verifies the core service settings are present.
// Their absence is fatal for remote commands: the application cannot
// function at all without them.
func (m *Manager) RequireService() error {
	c := m.Current()
	var missing []string
	if c.ServiceURL == "" {
		missing = append(missing, "service.url")
	}
	if c.ServiceAnonKey == "" {
		missing = append(missing, "service.anon_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s (set in the config file or TEND_* environment)", strings.Join(missing, ", "))
	}
	return nil
}

// Path returns the config file location in use.
func (m *Manager) Path() string {
	return m.v.ConfigFileUsed()
}

// Dir returns tend's directory under the user config dir.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(base, "tend"), nil
}

// SessionPath is where the persisted session lives.
func SessionPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

// SnapshotPath is where the local list snapshot lives.
func SnapshotPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "snapshot.db"), nil
}

// template is the commented starting point written by "tend config init".
const template = `# tend configuration.
# Environment variables override this file: service.url becomes TEND_SERVICE_URL.

service:
  # Both values come from your hosted project's API settings.
  # Required for every remote command.
  url: ""
  anon_key: ""

ai:
  # openai (default) or anthropic. Leave api_key empty to disable
  # AI suggestions; everything else keeps working.
  provider: openai
  api_key: ""
  # base_url overrides the provider endpoint, e.g. for a proxy.
  base_url: ""
  model: ""
  temperature: 0.7
  max_tokens: 1024

realtime:
  # Subscribe to server-side change events as an extra refresh trigger.
  enabled: false

snapshot:
  # Keep a local copy of the last fetched list for instant startup.
  enabled: true

log:
  # Empty file logs to stderr.
  file: ""
  level: info
`

// WriteTemplate writes the commented config template to path, refusing
// to overwrite an existing file.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0600); err != nil {
		return fmt.Errorf("failed to write config template: %w", err)
	}
	return nil
}

// Redacted renders the effective config as YAML with secrets masked,
// for "tend config show".
func Redacted(c Config) (string, error) {
	doc := map[string]any{
		"service": map[string]any{
			"url":      c.ServiceURL,
			"anon_key": redact(c.ServiceAnonKey),
		},
		"ai": map[string]any{
			"provider":    c.AIProvider,
			"api_key":     redact(c.AIAPIKey),
			"base_url":    c.AIBaseURL,
			"model":       c.AIModel,
			"temperature": c.AITemperature,
			"max_tokens":  c.AIMaxTokens,
		},
		"realtime": map[string]any{"enabled": c.RealtimeEnabled},
		"snapshot": map[string]any{"enabled": c.SnapshotEnabled},
		"log":      map[string]any{"file": c.LogFile, "level": c.LogLevel},
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return string(out), nil
}

// redact keeps a short prefix so the user can tell which key is set.
func redact(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "********"
	}
	return secret[:4] + "..." + strings.Repeat("*", 4)
}
