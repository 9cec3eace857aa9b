// Package cache persists a snapshot of the task list and selection in SQLite,
// so later processes can answer lookups without refetching.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"taskdesk/backend"
	"taskdesk/internal/store"
)

const (
	metaSelectedID = "selected_id"
	metaSavedAt    = "saved_at"
	metaWriterPID  = "writer_pid"
)

// Snapshot is the persisted state
type Snapshot struct {
	Tasks      []backend.Task
	SelectedID int
	SavedAt    time.Time
	WriterPID  int
}

// Cache stores snapshots in a SQLite database
type Cache struct {
	db   *sql.DB
	path string
	pid  int
}

// Open opens (creating if needed) the snapshot database at path
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Pragmas are per connection
	db.SetMaxOpenConns(1)

	c := &Cache{db: db, path: path, pid: os.Getpid()}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// initSchema creates the database tables if they don't exist
func (c *Cache) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			position INTEGER PRIMARY KEY,
			id INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			is_checked INTEGER NOT NULL DEFAULT 0,
			expiry_date TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	if _, err := c.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return err
	}
	_, err := c.db.Exec(schema)
	return err
}

// Path returns the database file path
func (c *Cache) Path() string {
	return c.path
}

// Close closes the database
func (c *Cache) Close() error {
	return c.db.Close()
}

// Save replaces the snapshot
func (c *Cache) Save(ctx context.Context, tasks []backend.Task, selectedID int) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO tasks (position, id, title, description, is_checked, expiry_date) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for i, t := range tasks {
		if _, err := stmt.ExecContext(ctx, i, t.ID, t.Title, t.Description, boolToInt(t.IsChecked), t.ExpiryDate); err != nil {
			return err
		}
	}

	meta := map[string]string{
		metaSelectedID: strconv.Itoa(selectedID),
		metaSavedAt:    time.Now().UTC().Format(time.RFC3339Nano),
		metaWriterPID:  strconv.Itoa(c.pid),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			k, v); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Load returns the stored tasks and selected id. ok is false when nothing was saved yet.
func (c *Cache) Load(ctx context.Context) ([]backend.Task, int, bool, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil || snap == nil {
		return nil, 0, false, err
	}
	return snap.Tasks, snap.SelectedID, true, nil
}

// Snapshot returns the full snapshot, or nil when nothing was saved yet
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	meta, err := c.readMeta(ctx)
	if err != nil {
		return nil, err
	}
	savedAt, ok := meta[metaSavedAt]
	if !ok {
		return nil, nil
	}

	snap := &Snapshot{Tasks: []backend.Task{}}
	snap.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
	snap.SelectedID, _ = strconv.Atoi(meta[metaSelectedID])
	snap.WriterPID, _ = strconv.Atoi(meta[metaWriterPID])

	rows, err := c.db.QueryContext(ctx,
		"SELECT id, title, description, is_checked, expiry_date FROM tasks ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var t backend.Task
		var checked int
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &checked, &t.ExpiryDate); err != nil {
			return nil, err
		}
		t.IsChecked = checked != 0
		snap.Tasks = append(snap.Tasks, t)
	}
	return snap, rows.Err()
}

// WrittenByOther reports whether the latest snapshot was saved by another process
func (c *Cache) WrittenByOther(ctx context.Context) (bool, error) {
	meta, err := c.readMeta(ctx)
	if err != nil {
		return false, err
	}
	pid, ok := meta[metaWriterPID]
	if !ok {
		return false, nil
	}
	return pid != strconv.Itoa(c.pid), nil
}

// Clear removes the snapshot
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx, "DELETE FROM meta")
	return err
}

func (c *Cache) readMeta(ctx context.Context) (map[string]string, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT key, value FROM meta")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Verify interface compliance at compile time
var _ store.Persister = (*Cache)(nil)
