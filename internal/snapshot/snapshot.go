// Package snapshot persists the last successfully fetched todo list in
// a small embedded SQLite database, so a restarted process can warm the
// sync cache and show the list immediately while the first refresh runs.
//
// The snapshot is a cache warm-start aid, never a source of truth: it
// is written after every successful fetch, loaded once at startup with
// the data marked stale, and cleared on sign-out. Read errors degrade
// to a cold start.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tendlist/tend/internal/todo"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the snapshot database.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the snapshot database at the given path.
// The caller must call Close when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping snapshot database: %w", err)
	}

	s := &Store{conn: conn, path: path}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Close checkpoints and closes the database.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot database: %w", err)
	}
	s.conn = nil
	return nil
}

// initSchema creates the tables if they don't exist. Idempotent.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS todos (
		user_id    TEXT NOT NULL,
		id         TEXT NOT NULL,
		title      TEXT NOT NULL,
		completed  INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		PRIMARY KEY (user_id, id)
	);

	CREATE TABLE IF NOT EXISTS fetches (
		user_id    TEXT PRIMARY KEY,
		fetched_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_todos_user_created
	    ON todos(user_id, created_at);
	`
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}
	return nil
}

// Save replaces the stored list for the user with the given one.
func (s *Store) Save(ctx context.Context, userID string, todos []todo.Todo, fetchedAt time.Time) error {
	if userID == "" {
		return fmt.Errorf("user id cannot be empty")
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM todos WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear previous snapshot: %w", err)
	}

	insert := `INSERT INTO todos (user_id, id, title, completed, created_at) VALUES (?, ?, ?, ?, ?)`
	for _, item := range todos {
		completed := 0
		if item.Completed {
			completed = 1
		}
		_, err := tx.ExecContext(ctx, insert,
			userID,
			item.ID,
			item.Title,
			completed,
			item.CreatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to store todo %s: %w", item.ID, err)
		}
	}

	upsert := `
	INSERT INTO fetches (user_id, fetched_at) VALUES (?, ?)
	ON CONFLICT(user_id) DO UPDATE SET fetched_at = excluded.fetched_at
	`
	if _, err := tx.ExecContext(ctx, upsert, userID, fetchedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to record fetch time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// Load returns the stored list for the user, newest first, plus the
// time it was fetched. A user with no snapshot yields an empty result
// and a zero time, not an error.
func (s *Store) Load(ctx context.Context, userID string) ([]todo.Todo, time.Time, error) {
	var fetchedAtStr string
	err := s.conn.QueryRowContext(ctx,
		`SELECT fetched_at FROM fetches WHERE user_id = ?`, userID).Scan(&fetchedAtStr)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query fetch time: %w", err)
	}
	fetchedAt, err := time.Parse(time.RFC3339Nano, fetchedAtStr)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to parse fetch time: %w", err)
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, title, completed, created_at
		FROM todos
		WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	var items []todo.Todo
	for rows.Next() {
		var (
			item       todo.Todo
			completed  int
			createdStr string
		)
		if err := rows.Scan(&item.ID, &item.Title, &completed, &createdStr); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan todo: %w", err)
		}
		item.Completed = completed != 0
		if ts, err := time.Parse(time.RFC3339Nano, createdStr); err == nil {
			item.CreatedAt = ts
		}
		item.UserID = userID
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("error iterating snapshot: %w", err)
	}
	return items, fetchedAt, nil
}

// Clear removes the stored list for the user. Idempotent.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM todos WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear snapshot todos: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM fetches WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear snapshot fetch record: %w", err)
	}
	return nil
}
