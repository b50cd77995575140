// Package publisher ships audit events to Kafka for deployments where audit
// consumers (SIEM, compliance archive) run out of process.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "quorum/pkg/platform/audit"
)

// Topic layout: one topic per category so consumers can apply different
// retention. Compliance topics are expected to be configured with long,
// tamper-evident retention on the broker side.
const (
	TopicCompliance = "quorum.audit.compliance"
	TopicSecurity   = "quorum.audit.security"
	TopicOperations = "quorum.audit.operations"
)

// Kafka publishes audit events as JSON records keyed by identity so all
// events for one identity land in one partition, preserving per-identity
// ordering for consumers.
type Kafka struct {
	client *kgo.Client
	logger *slog.Logger
}

type Option func(*Kafka)

func WithLogger(logger *slog.Logger) Option {
	return func(k *Kafka) {
		k.logger = logger
	}
}

// NewKafka creates a publisher over the given brokers.
func NewKafka(brokers []string, opts ...Option) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	k := &Kafka{client: client}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// NewKafkaWithClient wraps an existing client; used by integration tests.
func NewKafkaWithClient(client *kgo.Client, opts ...Option) *Kafka {
	k := &Kafka{client: client}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

func (k *Kafka) Emit(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: TopicFor(event.Category),
		Key:   []byte(event.IdentityID.String()),
		Value: payload,
	}

	// Fire-and-forget: audit emission must never block the decision path.
	// Delivery failures are logged; the broker-side consumer reconciles gaps
	// against the persisted store.
	k.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil && k.logger != nil {
			k.logger.Error("failed to publish audit event",
				"topic", record.Topic,
				"action", event.Action,
				"error", err,
			)
		}
	})
	return nil
}

// Flush waits for buffered records to be delivered. Call on shutdown.
func (k *Kafka) Flush(ctx context.Context) error {
	return k.client.Flush(ctx)
}

func (k *Kafka) Close() {
	k.client.Close()
}

// TopicFor maps an event category to its Kafka topic.
func TopicFor(category audit.EventCategory) string {
	switch category {
	case audit.CategoryCompliance:
		return TopicCompliance
	case audit.CategorySecurity:
		return TopicSecurity
	default:
		return TopicOperations
	}
}
