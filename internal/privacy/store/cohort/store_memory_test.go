package cohort

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quorum/internal/privacy"
	id "quorum/pkg/domain"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("members accumulate into their cohort", func(t *testing.T) {
		store := NewMemoryStore()
		resource := id.NewResourceID()

		store.AddMember(resource, "choice", "yes", 1)
		store.AddMember(resource, "choice", "yes", 5)
		store.AddMember(resource, "choice", "no", 2)

		got, err := store.Cohorts(ctx, resource, "choice")
		require.NoError(t, err)
		assert.Equal(t, []privacy.Cohort{
			{Key: "no", Size: 1, Weight: 2},
			{Key: "yes", Size: 2, Weight: 6},
		}, got)
	})

	t.Run("dimensions and resources are isolated", func(t *testing.T) {
		store := NewMemoryStore()
		resource := id.NewResourceID()
		other := id.NewResourceID()

		store.AddMember(resource, "choice", "yes", 1)
		store.AddMember(resource, "region", "north", 1)
		store.AddMember(other, "choice", "yes", 1)

		got, err := store.Cohorts(ctx, resource, "choice")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "yes", got[0].Key)
		assert.Equal(t, 1, got[0].Size)
	})

	t.Run("unknown resource yields no cohorts", func(t *testing.T) {
		store := NewMemoryStore()
		got, err := store.Cohorts(ctx, id.NewResourceID(), "choice")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
