//go:build integration

package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"quorum/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	store := NewRedisStore(rc.Client)

	t.Run("counts monotonically", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		for want := int64(1); want <= 5; want++ {
			got, err := store.Increment(ctx, "rate:test", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("ttl is attached once and survives later increments", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		_, err := store.Increment(ctx, "rate:ttl", 2*time.Second)
		require.NoError(t, err)

		time.Sleep(time.Second)
		_, err = store.Increment(ctx, "rate:ttl", 2*time.Second)
		require.NoError(t, err)

		// The original TTL keeps running; the key expires and a fresh
		// increment restarts at one.
		require.Eventually(t, func() bool {
			count, err := store.Increment(ctx, "rate:ttl", 2*time.Second)
			return err == nil && count == 1
		}, 5*time.Second, 200*time.Millisecond)
	})

	t.Run("concurrent increments never lose a count", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		const workers = 50

		var g errgroup.Group
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				_, err := store.Increment(ctx, "rate:conc", time.Minute)
				return err
			})
		}
		require.NoError(t, g.Wait())

		got, err := store.Increment(ctx, "rate:conc", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(workers+1), got)
	})
}
