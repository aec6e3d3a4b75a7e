// Package persistence writes the engine's change events to Postgres so
// indexers and support tooling can reconcile without replaying NATS.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"perpcore/internal/event"
)

// ChangeRow is one row of event_log.changes.
type ChangeRow struct {
	Sequence  int64
	Kind      string
	Payload   []byte // JSON-encoded event
	Timestamp time.Time
}

// ChangeLogWriter batch-inserts change rows using multi-row INSERT.
type ChangeLogWriter struct {
	db *sql.DB
}

func NewChangeLogWriter(db *sql.DB) *ChangeLogWriter {
	return &ChangeLogWriter{db: db}
}

// WriteBatch inserts rows idempotently; a re-run over the same
// sequences is a no-op.
func (w *ChangeLogWriter) WriteBatch(ctx context.Context, rows []ChangeRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.changes (sequence, kind, payload, timestamp) VALUES `
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*4)

	for i, r := range rows {
		base := i * 4
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4))
		args = append(args, r.Sequence, r.Kind, r.Payload, r.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

// EncodeEvent renders an engine event as a change row payload.
func EncodeEvent(seq int64, ev event.Event, at time.Time) (ChangeRow, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return ChangeRow{}, fmt.Errorf("marshal %s: %w", ev.EventKind(), err)
	}
	return ChangeRow{
		Sequence:  seq,
		Kind:      string(ev.EventKind()),
		Payload:   payload,
		Timestamp: at,
	}, nil
}
