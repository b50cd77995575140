package cohort

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"quorum/internal/privacy"
	id "quorum/pkg/domain"
)

// PostgresStore aggregates cohorts from the cohort_members table. Rows are
// written by the host application's participation path; this store only
// reads.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Cohorts(ctx context.Context, resource id.ResourceID, dimension string) ([]privacy.Cohort, error) {
	query := `
		SELECT cohort_key, count(*), COALESCE(sum(weight), 0)
		FROM cohort_members
		WHERE resource_id = $1 AND dimension = $2
		GROUP BY cohort_key
		ORDER BY cohort_key
	`
	rows, err := s.pool.Query(ctx, query, resource.String(), dimension)
	if err != nil {
		return nil, fmt.Errorf("query cohorts: %w", err)
	}
	defer rows.Close()

	var out []privacy.Cohort
	for rows.Next() {
		var c privacy.Cohort
		if err := rows.Scan(&c.Key, &c.Size, &c.Weight); err != nil {
			return nil, fmt.Errorf("scan cohort: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cohorts: %w", err)
	}
	return out, nil
}

// Schema returns the DDL for the cohort membership table. Migration tooling
// is out of scope; integration tests apply this directly.
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS cohort_members (
			resource_id UUID             NOT NULL,
			dimension   TEXT             NOT NULL,
			cohort_key  TEXT             NOT NULL,
			identity_id TEXT             NOT NULL,
			weight      DOUBLE PRECISION NOT NULL DEFAULT 1,
			PRIMARY KEY (resource_id, dimension, identity_id)
		);
		CREATE INDEX IF NOT EXISTS idx_cohort_members_group
			ON cohort_members (resource_id, dimension, cohort_key);
	`
}
