package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ndquoc/recon-be/shared/rabbitmq"
)

// Publisher emits lifecycle events onto the fanout exchange so every running
// api-service instance can relay them to its local subscribers.
type Publisher struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewPublisher creates a new Publisher instance.
func NewPublisher(client *rabbitmq.Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger,
	}
}

// Publish emits one lifecycle event. Event delivery is best effort: the job
// record in the database stays authoritative, so a lost event degrades the
// live stream but never the job outcome.
func (p *Publisher) Publish(ctx context.Context, jobID, eventType, reason string) {
	event := Event{
		JobID:     jobID,
		Type:      eventType,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal lifecycle event",
			slog.String("job_id", jobID),
			slog.String("event", eventType),
			slog.Any("error", err),
		)
		return
	}

	if err := p.client.Publish(ctx, body, "application/json"); err != nil {
		p.logger.Warn("Failed to publish lifecycle event",
			slog.String("job_id", jobID),
			slog.String("event", eventType),
			slog.Any("error", err),
		)
	}
}

// Relay consumes the fanout exchange and feeds the in-process broker that
// backs the SSE handlers.
type Relay struct {
	client *rabbitmq.Client
	broker *Broker
	logger *slog.Logger
}

// NewRelay creates a new Relay instance.
func NewRelay(client *rabbitmq.Client, broker *Broker, logger *slog.Logger) *Relay {
	return &Relay{
		client: client,
		broker: broker,
		logger: logger,
	}
}

// Run consumes lifecycle events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, consumerTag string) error {
	deliveries, err := r.client.Consume(consumerTag)
	if err != nil {
		return fmt.Errorf("failed to consume lifecycle events: %w", err)
	}

	r.logger.Info("Event relay started",
		slog.String("queue", r.client.QueueName()),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Event relay stopped - context canceled")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				r.logger.Warn("Event delivery channel closed")
				return nil
			}

			var event Event
			if err := json.Unmarshal(delivery.Body, &event); err != nil {
				r.logger.Error("Failed to parse lifecycle event",
					slog.String("body", string(delivery.Body)),
					slog.Any("error", err),
				)
				_ = delivery.Nack(false, false)
				continue
			}

			r.broker.Publish(event)
			_ = delivery.Ack(false)
		}
	}
}
