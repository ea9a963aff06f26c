// Package audit persists a server-side trail for failed requests. Internal
// errors are rendered to callers with only a correlation id; the id is the
// lookup key back into this log.
package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type auditDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Writer struct {
	DB auditDB
	// Redact drops actor ids from stored records.
	Redact bool
}

type Record struct {
	CorrelationID string
	Transport     string
	Route         string
	ActorID       string
	Status        int
	ErrorCode     string
	Detail        string
	CreatedAt     time.Time
}

func (w *Writer) Append(ctx context.Context, rec Record) error {
	if w.Redact {
		rec.ActorID = ""
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := w.DB.Exec(ctx, `
		INSERT INTO request_audit
		(correlation_id, transport, route, actor_id, status, error_code, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.CorrelationID, rec.Transport, rec.Route, rec.ActorID, rec.Status, rec.ErrorCode, rec.Detail, rec.CreatedAt)
	return err
}

func (w *Writer) Get(ctx context.Context, correlationID string) (Record, error) {
	var rec Record
	row := w.DB.QueryRow(ctx, `
		SELECT correlation_id, transport, route, actor_id, status, error_code, detail, created_at
		FROM request_audit WHERE correlation_id = $1
	`, correlationID)
	err := row.Scan(&rec.CorrelationID, &rec.Transport, &rec.Route, &rec.ActorID,
		&rec.Status, &rec.ErrorCode, &rec.Detail, &rec.CreatedAt)
	return rec, err
}
