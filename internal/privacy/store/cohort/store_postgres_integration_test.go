//go:build integration

package cohort

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/privacy"
	id "quorum/pkg/domain"
	"quorum/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	pc := containers.NewPostgresContainer(t)
	require.NoError(t, pc.Apply(ctx, Schema()))

	pool, err := pgxpool.New(ctx, pc.DSN)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := NewPostgresStore(pool)

	seed := func(t *testing.T, resource id.ResourceID, dimension, key string, weight float64) {
		t.Helper()
		_, err := pool.Exec(ctx,
			`INSERT INTO cohort_members (resource_id, dimension, cohort_key, identity_id, weight)
			 VALUES ($1, $2, $3, $4, $5)`,
			resource.String(), dimension, key, id.NewIdentityID().String(), weight)
		require.NoError(t, err)
	}

	t.Run("groups by cohort key with summed weights", func(t *testing.T) {
		resource := id.NewResourceID()
		seed(t, resource, "choice", "yes", 1)
		seed(t, resource, "choice", "yes", 10)
		seed(t, resource, "choice", "no", 2)

		got, err := store.Cohorts(ctx, resource, "choice")
		require.NoError(t, err)
		assert.Equal(t, []privacy.Cohort{
			{Key: "no", Size: 1, Weight: 2},
			{Key: "yes", Size: 2, Weight: 11},
		}, got)
	})

	t.Run("dimension filter excludes other groupings", func(t *testing.T) {
		resource := id.NewResourceID()
		seed(t, resource, "choice", "yes", 1)
		seed(t, resource, "region", "north", 1)

		got, err := store.Cohorts(ctx, resource, "region")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "north", got[0].Key)
	})

	t.Run("unknown resource yields no cohorts", func(t *testing.T) {
		got, err := store.Cohorts(ctx, id.NewResourceID(), "choice")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
