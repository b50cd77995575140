package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quorum/internal/privacy"
	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

// PostgresStore backs the privacy ledger with PostgreSQL. Check-and-charge
// is a single conditional upsert, so two concurrent charges can never both
// commit when only one fits the budget.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Charge(ctx context.Context, resource id.ResourceID, epsilon, budget float64) (*privacy.LedgerEntry, error) {
	if epsilon > budget {
		return nil, sentinel.ErrExhausted
	}

	query := `
		INSERT INTO privacy_ledger (resource_id, spent, window_started_at)
		VALUES ($1, $2, now())
		ON CONFLICT (resource_id) DO UPDATE
		SET spent = privacy_ledger.spent + EXCLUDED.spent
		WHERE privacy_ledger.spent + EXCLUDED.spent <= $3
		RETURNING spent, window_started_at`

	entry := privacy.LedgerEntry{Resource: resource}
	err := s.pool.QueryRow(ctx, query, resource.String(), epsilon, budget).
		Scan(&entry.Spent, &entry.WindowStartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conditional update matched no row: the charge did not fit.
		return nil, sentinel.ErrExhausted
	}
	if err != nil {
		return nil, fmt.Errorf("charge privacy ledger: %w", err)
	}
	return &entry, nil
}

func (s *PostgresStore) Entry(ctx context.Context, resource id.ResourceID) (*privacy.LedgerEntry, error) {
	query := `
		SELECT spent, window_started_at
		FROM privacy_ledger
		WHERE resource_id = $1`

	entry := privacy.LedgerEntry{Resource: resource}
	err := s.pool.QueryRow(ctx, query, resource.String()).
		Scan(&entry.Spent, &entry.WindowStartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query privacy ledger: %w", err)
	}
	return &entry, nil
}

func (s *PostgresStore) Rollover(ctx context.Context, resource id.ResourceID) (float64, error) {
	query := `
		UPDATE privacy_ledger
		SET spent = 0, window_started_at = now()
		WHERE resource_id = $1
		RETURNING (SELECT spent FROM privacy_ledger WHERE resource_id = $1)`

	var closed float64
	err := s.pool.QueryRow(ctx, query, resource.String()).Scan(&closed)
	if errors.Is(err, pgx.ErrNoRows) {
		// Nothing was ever charged; rolling over is a no-op.
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("roll over privacy ledger: %w", err)
	}
	return closed, nil
}

// Schema returns the DDL for the privacy ledger table.
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS privacy_ledger (
			resource_id UUID PRIMARY KEY,
			spent DOUBLE PRECISION NOT NULL DEFAULT 0,
			window_started_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
}
