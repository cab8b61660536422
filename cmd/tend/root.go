package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tendlist/tend/internal/cache"
	"github.com/tendlist/tend/internal/config"
	"github.com/tendlist/tend/internal/logging"
	"github.com/tendlist/tend/internal/remote"
	"github.com/tendlist/tend/internal/session"
	"github.com/tendlist/tend/internal/snapshot"
	"github.com/tendlist/tend/internal/suggest"
	"github.com/tendlist/tend/internal/todo"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tend",
	Short: "A todo list that lives in your terminal",
	Long: `tend is a terminal todo list backed by a hosted data service.

Your list is stored remotely and scoped to your account; tend keeps a
local cache so reads are instant and a warm-start snapshot so the list
appears immediately even before the first fetch completes.

Get started:
  tend signup                    # Create an account
  tend login                     # Sign in
  tend add "water the plants"    # Add an item
  tend list                      # Show the list
  tend board                     # Interactive full-screen view`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config dir)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "auth", Title: "Account:"},
		&cobra.Group{ID: "todos", Title: "Todos:"},
		&cobra.Group{ID: "extras", Title: "Extras:"},
	)
}

// fatal prints an error the way every command reports failure and exits.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// app is the wired-up application: config, session, remote client, and
// the sync cache, built once per command invocation.
type app struct {
	cfg     *config.Manager
	logw    io.Writer
	session *session.Manager
	client  *remote.Client
	store   *cache.Store
	suggest *suggest.Service
	snap    *snapshot.Store
	userID  string
}

// newApp wires the application. withService also builds the remote data
// client and the cache; auth-only commands can skip that.
func newApp(withService bool) (*app, error) {
	cfg, err := config.NewManager(configPath, nil)
	if err != nil {
		return nil, err
	}
	if err := cfg.Load(); err != nil {
		return nil, err
	}
	cfg.Watch()

	c := cfg.Current()
	logw := logging.Writer(c.LogFile)

	a := &app{cfg: cfg, logw: logw}

	if err := cfg.RequireService(); err != nil {
		return nil, err
	}

	auth, err := remote.NewAuthClient(c.ServiceURL, c.ServiceAnonKey, logging.New("auth", logw))
	if err != nil {
		return nil, err
	}
	sessionPath, err := config.SessionPath()
	if err != nil {
		return nil, err
	}
	a.session, err = session.NewManager(auth, sessionPath, logging.New("session", logw))
	if err != nil {
		return nil, err
	}
	if err := a.session.Load(); err != nil {
		return nil, err
	}
	a.userID = a.session.UserID()

	if !withService {
		return a, nil
	}

	a.client, err = remote.NewClient(c.ServiceURL, c.ServiceAnonKey, a.session, logging.New("remote", logw))
	if err != nil {
		return nil, err
	}

	a.store, err = cache.New(a.client.ListTodos, logging.New("cache", logw))
	if err != nil {
		return nil, err
	}

	if c.SnapshotEnabled && a.userID != "" {
		a.openSnapshot()
	}

	a.suggest, err = suggest.New(func() suggest.Options {
		c := cfg.Current()
		return suggest.Options{
			Provider:    c.AIProvider,
			APIKey:      c.AIAPIKey,
			BaseURL:     c.AIBaseURL,
			Model:       c.AIModel,
			Temperature: &c.AITemperature,
			MaxTokens:   c.AIMaxTokens,
		}
	}, logging.New("suggest", logw))
	if err != nil {
		return nil, err
	}

	return a, nil
}

// openSnapshot wires the warm-start snapshot: prime the cache from disk
// and persist every successful fetch back. Snapshot failures are logged
// and otherwise ignored; the remote service stays authoritative.
func (a *app) openSnapshot() {
	logger := logging.New("snapshot", a.logw)

	path, err := config.SnapshotPath()
	if err != nil {
		logger.Printf("disabled: %v", err)
		return
	}
	store, err := snapshot.Open(path)
	if err != nil {
		logger.Printf("disabled: %v", err)
		return
	}
	a.snap = store

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	todos, fetchedAt, err := store.Load(ctx, a.userID)
	if err != nil {
		logger.Printf("load failed: %v", err)
	} else if todos != nil {
		a.store.Prime(todos, fetchedAt)
	}

	userID := a.userID
	a.store.OnFetched(func(todos []todo.Todo, fetchedAt time.Time) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Save(ctx, userID, todos, fetchedAt); err != nil {
			logger.Printf("save failed: %v", err)
		}
	})
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
	if a.snap != nil {
		a.snap.Close()
	}
}

// resolveID maps a command argument to a todo id. A small integer is a
// 1-based index into the current list as "tend list" prints it; anything
// else is taken as the row id itself.
func (a *app) resolveID(ctx context.Context, arg string) (string, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		items, err := a.store.Get(ctx)
		if err != nil {
			return "", err
		}
		if n < 1 || n > len(items) {
			return "", fmt.Errorf("no item %d (list has %d)", n, len(items))
		}
		return items[n-1].ID, nil
	}
	return arg, nil
}

// commandContext is the lifetime for one-shot commands.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}
