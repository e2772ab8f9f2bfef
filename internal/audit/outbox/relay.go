// Package outbox relays audit events from the postgres outbox table to
// Kafka. The access log row is the source of truth; the relay exists so
// compliance consumers (SIEM, long-term archival) receive events without the
// store taking a broker dependency on its hot path.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	auditpg "custodian/internal/audit/store/postgres"
)

const defaultBatchSize = 100

// Source is the slice of the postgres store the relay needs.
type Source interface {
	PendingOutbox(ctx context.Context, limit int) ([]auditpg.OutboxRow, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Relay polls the outbox and publishes pending rows to a Kafka topic.
type Relay struct {
	source   Source
	client   *kgo.Client
	topic    string
	interval time.Duration
	logger   *slog.Logger
}

// Option configures the Relay.
type Option func(*Relay)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) { r.interval = d }
}

// New connects to the brokers and builds a relay.
func New(source Source, brokers []string, topic string, opts ...Option) (*Relay, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	r := &Relay{
		source:   source,
		client:   client,
		topic:    topic,
		interval: 5 * time.Second,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run polls until the context is cancelled. Individual batch failures are
// logged and retried on the next tick; the relay never drops a row without
// publishing it.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.publishPending(ctx); err != nil {
				r.logger.WarnContext(ctx, "audit outbox relay batch failed", "error", err)
			}
		}
	}
}

func (r *Relay) publishPending(ctx context.Context) error {
	pending, err := r.source.PendingOutbox(ctx, defaultBatchSize)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(pending))
	ids := make([]uuid.UUID, 0, len(pending))
	for _, row := range pending {
		records = append(records, &kgo.Record{
			Topic: r.topic,
			Key:   []byte(row.ID.String()),
			Value: row.Payload,
		})
		ids = append(ids, row.ID)
	}

	if err := r.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce audit events: %w", err)
	}
	return r.source.MarkPublished(ctx, ids)
}

// Close flushes and releases the Kafka client.
func (r *Relay) Close() {
	r.client.Close()
}
