package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ndquoc/recon-be/internal/events"
	"github.com/ndquoc/recon-be/internal/tool"
	"github.com/ndquoc/recon-be/shared/metrics"
)

// jobStore is the slice of Store the enqueuer needs.
type jobStore interface {
	CreateJob(ctx context.Context, job *Job) error
	DeleteJob(ctx context.Context, jobID string) error
}

// messagePublisher delivers the job pointer message to the broker.
type messagePublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// lifecycleEmitter publishes lifecycle events for stream subscribers.
type lifecycleEmitter interface {
	Publish(ctx context.Context, jobID, eventType, reason string)
}

// Enqueuer admits jobs into the durable queue. Params are validated against
// the tool's descriptor before anything is persisted: invalid work is never
// enqueued.
type Enqueuer struct {
	registry       *tool.Registry
	store          jobStore
	publisher      messagePublisher
	emitter        lifecycleEmitter
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewEnqueuer creates a new Enqueuer instance.
func NewEnqueuer(
	registry *tool.Registry,
	store jobStore,
	publisher messagePublisher,
	emitter lifecycleEmitter,
	defaultTimeout time.Duration,
	logger *slog.Logger,
) *Enqueuer {
	return &Enqueuer{
		registry:       registry,
		store:          store,
		publisher:      publisher,
		emitter:        emitter,
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// Enqueue validates, persists and publishes one job. It fails with
// tool.ErrToolNotFound for an unknown tool, *InvalidParamsError for rejected
// params, and ErrQueueUnavailable when the broker refuses the message.
func (e *Enqueuer) Enqueue(ctx context.Context, toolID string, params map[string]any) (*Job, error) {
	t, err := e.registry.Get(toolID)
	if err != nil {
		return nil, err
	}

	if details := t.Descriptor().Validate(params); details != nil {
		return nil, &InvalidParamsError{Details: details}
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	now := time.Now().UTC()
	job := &Job{
		JobID:     uuid.New().String(),
		ToolID:    toolID,
		Params:    rawParams,
		Status:    StatusQueued,
		TimeoutMs: e.defaultTimeout.Milliseconds(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	body, err := json.Marshal(Message{JobID: job.JobID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job message: %w", err)
	}

	if err := e.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
		// Roll back the row so the caller's retry does not leave an
		// orphaned queued job no worker will ever see.
		if delErr := e.store.DeleteJob(ctx, job.JobID); delErr != nil {
			e.logger.Error("Failed to roll back unpublished job",
				slog.String("job_id", job.JobID),
				slog.Any("error", delErr),
			)
		}
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	e.emitter.Publish(ctx, job.JobID, events.EventQueued, "")
	metrics.JobsEnqueued.Inc()

	e.logger.Info("Job enqueued",
		slog.String("job_id", job.JobID),
		slog.String("tool_id", toolID),
	)

	return job, nil
}

// IsClientError reports whether err should surface as a 4xx to the caller.
func IsClientError(err error) bool {
	var invalid *InvalidParamsError
	return errors.Is(err, tool.ErrToolNotFound) || errors.As(err, &invalid)
}
