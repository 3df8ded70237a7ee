// Package capture persists streamed log lines into an on-disk SQLite file so
// a session can be replayed offline through the same render pipeline.
package capture

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	createTableStmt = `
CREATE TABLE IF NOT EXISTS lines (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    collected_at TEXT NOT NULL,
    cluster TEXT,
    namespace TEXT,
    pod TEXT,
    container TEXT,
    line TEXT
);`
	createIndexStmt = `
CREATE INDEX IF NOT EXISTS idx_lines_pod_container ON lines(pod, container);`
	insertStmt = `INSERT INTO lines(collected_at, cluster, namespace, pod, container, line) VALUES(?, ?, ?, ?, ?, ?)`
)

// Entry is one captured log line with its source identity.
type Entry struct {
	CollectedAt time.Time
	Cluster     string
	Namespace   string
	Pod         string
	Container   string
	Line        string
}

// Writer appends entries to a SQLite capture file.
type Writer struct {
	db     *sql.DB
	insert *sql.Stmt
}

// NewWriter opens (or creates) the capture file at path.
func NewWriter(path string) (*Writer, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("capture path cannot be empty")
	}
	dir := filepath.Dir(p)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create capture directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, fmt.Errorf("open capture database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, createTableStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure lines table: %w", err)
	}
	if _, err := db.ExecContext(ctx, createIndexStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure line index: %w", err)
	}
	stmt, err := db.PrepareContext(ctx, insertStmt)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert statement: %w", err)
	}
	return &Writer{db: db, insert: stmt}, nil
}

// Write appends one entry.
func (w *Writer) Write(ctx context.Context, entry Entry) error {
	if w == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	collected := entry.CollectedAt
	if collected.IsZero() {
		collected = time.Now()
	}
	_, err := w.insert.ExecContext(
		ctx,
		collected.UTC().Format(time.RFC3339Nano),
		entry.Cluster,
		entry.Namespace,
		entry.Pod,
		entry.Container,
		entry.Line,
	)
	return err
}

// Close releases database resources.
func (w *Writer) Close() error {
	var err error
	if w.insert != nil {
		err = errors.Join(err, w.insert.Close())
	}
	if w.db != nil {
		err = errors.Join(err, w.db.Close())
	}
	return err
}
