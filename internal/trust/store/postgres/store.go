package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"quorum/internal/trust"
	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

// Store persists trust records in PostgreSQL. The evidence log is stored as
// a JSONB document alongside the derived columns; the log is append-only so
// the whole document is rewritten under the version token.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, identityID id.IdentityID) (*trust.Record, error) {
	query := `
		SELECT identity_id, tier, score, evidence, frozen, last_transition, version
		FROM trust_records
		WHERE identity_id = $1`

	var (
		record      trust.Record
		identityRaw string
		tierRaw     string
		evidenceRaw []byte
	)
	err := s.db.QueryRowContext(ctx, query, identityID.String()).Scan(
		&identityRaw,
		&tierRaw,
		&record.Score,
		&evidenceRaw,
		&record.Frozen,
		&record.LastTransition,
		&record.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query trust record: %w", err)
	}

	record.IdentityID, err = id.ParseIdentityID(identityRaw)
	if err != nil {
		return nil, fmt.Errorf("parse identity id: %w", err)
	}
	record.Tier = trust.Tier(tierRaw)
	if err := json.Unmarshal(evidenceRaw, &record.Evidence); err != nil {
		return nil, fmt.Errorf("decode evidence log: %w", err)
	}
	return &record, nil
}

func (s *Store) Create(ctx context.Context, record *trust.Record) error {
	evidenceRaw, err := json.Marshal(record.Evidence)
	if err != nil {
		return fmt.Errorf("encode evidence log: %w", err)
	}

	query := `
		INSERT INTO trust_records (identity_id, tier, score, evidence, frozen, last_transition, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = s.db.ExecContext(ctx, query,
		record.IdentityID.String(),
		string(record.Tier),
		record.Score,
		evidenceRaw,
		record.Frozen,
		record.LastTransition,
		record.Version,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert trust record: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, record *trust.Record) error {
	evidenceRaw, err := json.Marshal(record.Evidence)
	if err != nil {
		return fmt.Errorf("encode evidence log: %w", err)
	}

	query := `
		UPDATE trust_records
		SET tier = $1, score = $2, evidence = $3, frozen = $4, last_transition = $5, version = version + 1
		WHERE identity_id = $6 AND version = $7`

	result, err := s.db.ExecContext(ctx, query,
		string(record.Tier),
		record.Score,
		evidenceRaw,
		record.Frozen,
		record.LastTransition,
		record.IdentityID.String(),
		record.Version,
	)
	if err != nil {
		return fmt.Errorf("update trust record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update trust record: %w", err)
	}
	if affected == 0 {
		// Either the record vanished or the version token is stale; both
		// resolve the same way for the caller.
		return sentinel.ErrConflict
	}
	record.Version++
	return nil
}

// Schema returns the DDL for the trust record table.
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS trust_records (
			identity_id UUID PRIMARY KEY,
			tier TEXT NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			evidence JSONB NOT NULL DEFAULT '[]'::jsonb,
			frozen BOOLEAN NOT NULL DEFAULT FALSE,
			last_transition TIMESTAMPTZ NOT NULL,
			version BIGINT NOT NULL
		)`
}
