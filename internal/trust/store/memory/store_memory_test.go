package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/trust"
	id "quorum/pkg/domain"
	"quorum/pkg/platform/sentinel"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("get missing returns not found", func(t *testing.T) {
		store := New()
		_, err := store.Get(ctx, id.NewIdentityID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("create then get round-trips", func(t *testing.T) {
		store := New()
		record := trust.NewRecord(id.NewIdentityID(), now)
		require.NoError(t, store.Create(ctx, record))

		got, err := store.Get(ctx, record.IdentityID)
		require.NoError(t, err)
		assert.Equal(t, record.Tier, got.Tier)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("duplicate create conflicts", func(t *testing.T) {
		store := New()
		record := trust.NewRecord(id.NewIdentityID(), now)
		require.NoError(t, store.Create(ctx, record))
		assert.ErrorIs(t, store.Create(ctx, record), sentinel.ErrConflict)
	})

	t.Run("update bumps the version token", func(t *testing.T) {
		store := New()
		record := trust.NewRecord(id.NewIdentityID(), now)
		require.NoError(t, store.Create(ctx, record))

		record.Tier = trust.TierT1
		require.NoError(t, store.Update(ctx, record))
		assert.Equal(t, int64(2), record.Version)

		got, err := store.Get(ctx, record.IdentityID)
		require.NoError(t, err)
		assert.Equal(t, trust.TierT1, got.Tier)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("stale update conflicts", func(t *testing.T) {
		store := New()
		record := trust.NewRecord(id.NewIdentityID(), now)
		require.NoError(t, store.Create(ctx, record))

		stale := *record
		require.NoError(t, store.Update(ctx, record))
		assert.ErrorIs(t, store.Update(ctx, &stale), sentinel.ErrConflict)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		store := New()
		record := trust.NewRecord(id.NewIdentityID(), now)
		ev, err := trust.NewContactEvidence(record.IdentityID, "email", now)
		require.NoError(t, err)
		record.Evidence = []trust.Evidence{ev}
		require.NoError(t, store.Create(ctx, record))

		got, err := store.Get(ctx, record.IdentityID)
		require.NoError(t, err)
		got.Evidence[0].Reason = "mutated"
		got.Tier = trust.TierT3

		again, err := store.Get(ctx, record.IdentityID)
		require.NoError(t, err)
		assert.Equal(t, "email", again.Evidence[0].Reason)
		assert.Equal(t, trust.TierT0, again.Tier)
	})
}
