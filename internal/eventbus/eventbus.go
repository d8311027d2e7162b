// Package eventbus optionally publishes a run-summary event to Kafka at
// the end of a validation pass. It is a supplemental surface: no other
// part of this repository requires an event bus to function, and it is
// the only package here that talks to Kafka.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// RunSummary is the payload published to the configured topic once a
// validation pass completes.
type RunSummary struct {
	RunID     uuid.UUID     `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	VRPCount  int           `json:"vrp_count"`
	Warnings  int           `json:"warnings"`
	Rejects   int           `json:"rejects"`
}

// Publisher produces RunSummary events to one Kafka topic. Its zero value
// is not usable; build one with NewPublisher. A nil *Publisher is valid
// and Publish on it is a no-op, so callers can leave event publishing
// disabled by construction rather than branching at every call site.
type Publisher struct {
	topic  string
	client *kgo.Client
	admin  *kadm.Client
	log    zerolog.Logger
}

// NewPublisher connects to broker and prepares to publish to topic,
// creating it if it does not already exist. Pass an empty broker to get
// a disabled (nil) Publisher.
func NewPublisher(ctx context.Context, broker, topic string, log zerolog.Logger) (*Publisher, error) {
	if broker == "" {
		return nil, nil
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(broker))
	if err != nil {
		return nil, fmt.Errorf("eventbus: failed to create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, 1, -1, nil, topic); err != nil {
		// topic may already exist; that's fine, anything else is fatal
		// enough to log but not to abort startup over.
		log.Debug().Err(err).Str("topic", topic).Msg("eventbus: create topic (may already exist)")
	}

	return &Publisher{topic: topic, client: client, admin: admin, log: log}, nil
}

// Close releases the underlying Kafka client. Safe to call on a nil
// Publisher.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.client.Close()
}

// Publish sends summary to the configured topic as JSON. Safe to call on
// a nil Publisher (no-op).
func (p *Publisher) Publish(ctx context.Context, summary RunSummary) error {
	if p == nil {
		return nil
	}

	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("eventbus: marshal run summary: %w", err)
	}

	record := &kgo.Record{Topic: p.topic, Key: []byte(summary.RunID.String()), Value: body}

	results := p.client.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("eventbus: publish run.completed: %w", err)
	}

	p.log.Debug().Str("run_id", summary.RunID.String()).Str("topic", p.topic).Msg("eventbus: published run.completed")
	return nil
}
