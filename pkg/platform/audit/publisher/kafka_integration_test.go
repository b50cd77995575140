//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "quorum/pkg/domain"
	audit "quorum/pkg/platform/audit"
	"quorum/pkg/testutil/containers"
)

func TestKafkaPublisher(t *testing.T) {
	ctx := context.Background()
	rp := containers.NewRedpandaContainer(t)
	rp.CreateTopics(t, TopicCompliance, TopicSecurity, TopicOperations)

	producer := rp.NewClient(t)
	kafka := NewKafkaWithClient(producer)

	t.Run("events land on the topic of their category", func(t *testing.T) {
		identity := id.NewIdentityID()
		event := audit.NewEvent(audit.EventCloneDetected, identity)
		event.Severity = audit.SeverityCritical
		event.Subject = "credential-1"

		require.NoError(t, kafka.Emit(ctx, event))
		require.NoError(t, kafka.Flush(ctx))

		consumer := rp.NewClient(t, TopicFor(event.Category))
		fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		fetches := consumer.PollFetches(fetchCtx)
		require.False(t, fetches.IsClientClosed())

		records := fetches.Records()
		require.NotEmpty(t, records)

		var got audit.Event
		require.NoError(t, json.Unmarshal(records[0].Value, &got))
		assert.Equal(t, string(audit.EventCloneDetected), got.Action)
		assert.Equal(t, identity, got.IdentityID)
		assert.Equal(t, identity.String(), string(records[0].Key))
	})

	t.Run("per-identity ordering is preserved by keying", func(t *testing.T) {
		identity := id.NewIdentityID()
		first := audit.NewEvent(audit.EventTierChanged, identity)
		first.Subject = "T1"
		second := audit.NewEvent(audit.EventTierChanged, identity)
		second.Subject = "T2"

		require.NoError(t, kafka.Emit(ctx, first))
		require.NoError(t, kafka.Emit(ctx, second))
		require.NoError(t, kafka.Flush(ctx))

		consumer := rp.NewClient(t, TopicFor(first.Category))
		var subjects []string
		deadline := time.Now().Add(10 * time.Second)
		for len(subjects) < 2 && time.Now().Before(deadline) {
			fetchCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			fetches := consumer.PollFetches(fetchCtx)
			cancel()
			for _, record := range fetches.Records() {
				var got audit.Event
				if err := json.Unmarshal(record.Value, &got); err != nil {
					continue
				}
				if got.IdentityID == identity {
					subjects = append(subjects, got.Subject)
				}
			}
		}
		require.Len(t, subjects, 2)
		assert.Equal(t, []string{"T1", "T2"}, subjects)
	})
}
