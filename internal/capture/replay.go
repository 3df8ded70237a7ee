// replay.go streams a capture file back through a line callback in the order
// lines were collected.
package capture

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const selectStmt = `SELECT collected_at, cluster, namespace, pod, container, line FROM lines ORDER BY id`

// Replay reads the capture at path and invokes emit for every stored entry,
// oldest first. emit returning an error stops the replay.
func Replay(ctx context.Context, path string, emit func(Entry) error) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open capture database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, selectStmt)
	if err != nil {
		return fmt.Errorf("query capture lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var collected string
		var entry Entry
		if err := rows.Scan(&collected, &entry.Cluster, &entry.Namespace, &entry.Pod, &entry.Container, &entry.Line); err != nil {
			return fmt.Errorf("scan capture line: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, collected); err == nil {
			entry.CollectedAt = ts
		}
		if err := emit(entry); err != nil {
			return err
		}
	}
	return rows.Err()
}
