package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	audit "quorum/pkg/platform/audit"
)

// Store persists audit events in PostgreSQL. Rows are append-only; there is
// no update path.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	query := `
		INSERT INTO audit_events
			(id, category, occurred_at, identity_id, subject, action, reason, severity, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.Category),
		event.Timestamp,
		event.IdentityID.String(),
		event.Subject,
		event.Action,
		event.Reason,
		string(event.Severity),
		event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Schema returns the DDL for the audit_events table. Migration tooling is
// out of scope; integration tests apply this directly.
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS audit_events (
			id          UUID PRIMARY KEY,
			category    TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			identity_id TEXT NOT NULL,
			subject     TEXT NOT NULL DEFAULT '',
			action      TEXT NOT NULL,
			reason      TEXT NOT NULL DEFAULT '',
			severity    TEXT NOT NULL DEFAULT '',
			actor_id    TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_identity ON audit_events (identity_id, occurred_at);
	`
}
