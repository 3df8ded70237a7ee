// capture_test.go round-trips log lines through the SQLite capture file.
package capture

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteThenReplayPreservesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter returned error: %v", err)
	}
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	lines := []string{"starting", "listening on :8080", "shutting down"}
	for i, line := range lines {
		entry := Entry{
			CollectedAt: base.Add(time.Duration(i) * time.Second),
			Cluster:     "prod",
			Namespace:   "payments",
			Pod:         "checkout-1",
			Container:   "app",
			Line:        line,
		}
		if err := w.Write(t.Context(), entry); err != nil {
			t.Fatalf("write entry %d: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	var got []Entry
	err = Replay(t.Context(), path, func(e Entry) error {
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay returned error: %v", err)
	}
	if len(got) != len(lines) {
		t.Fatalf("expected %d entries, got %d", len(lines), len(got))
	}
	for i, entry := range got {
		if entry.Line != lines[i] {
			t.Fatalf("entry %d out of order: want %q got %q", i, lines[i], entry.Line)
		}
		if !entry.CollectedAt.Equal(base.Add(time.Duration(i) * time.Second)) {
			t.Fatalf("entry %d lost its timestamp: %v", i, entry.CollectedAt)
		}
		if entry.Pod != "checkout-1" || entry.Container != "app" {
			t.Fatalf("entry %d lost its identity: %+v", i, entry)
		}
	}
}

func TestReplayStopsOnEmitError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter returned error: %v", err)
	}
	for _, line := range []string{"one", "two", "three"} {
		if err := w.Write(t.Context(), Entry{Line: line}); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	count := 0
	err = Replay(t.Context(), path, func(Entry) error {
		count++
		if count == 2 {
			return context.Canceled
		}
		return nil
	})
	if err == nil {
		t.Fatalf("emit error should stop the replay")
	}
	if count != 2 {
		t.Fatalf("replay continued past the failing emit, saw %d entries", count)
	}
}

func TestNewWriterRejectsEmptyPath(t *testing.T) {
	if _, err := NewWriter("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestNewWriterCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "session.db")
	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("NewWriter returned error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
}
