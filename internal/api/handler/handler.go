// Package handler implements the HTTP surface consumed by the web and
// Electron front-ends.
package handler

import (
	"context"
	"log/slog"

	"github.com/ndquoc/recon-be/internal/events"
	"github.com/ndquoc/recon-be/internal/queue"
	"github.com/ndquoc/recon-be/internal/result"
	"github.com/ndquoc/recon-be/internal/tool"
)

// JobEnqueuer admits a validated job into the durable queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, toolID string, params map[string]any) (*queue.Job, error)
}

// JobReader reads job records.
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*queue.Job, error)
	ListJobs(ctx context.Context, filter queue.JobFilter) ([]queue.Job, error)
}

// ResultReader queries and exports entities.
type ResultReader interface {
	Query(ctx context.Context, filter result.Filter) ([]result.Entity, error)
	Export(ctx context.Context, filter result.Filter, enc result.Encoder) (int, error)
}

// Dependencies holds all dependencies needed by handlers.
type Dependencies struct {
	Logger   *slog.Logger
	Registry *tool.Registry
	Enqueuer JobEnqueuer
	Jobs     JobReader
	Results  ResultReader
	Broker   *events.Broker

	// HealthCheck pings the backing database; nil skips the check.
	HealthCheck func(ctx context.Context) error
}

// JobHandler handles job-related HTTP requests.
type JobHandler struct {
	logger   *slog.Logger
	enqueuer JobEnqueuer
	jobs     JobReader
}

// NewJobHandler creates a new JobHandler instance.
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		enqueuer: deps.Enqueuer,
		jobs:     deps.Jobs,
	}
}

// ToolHandler serves the tool catalog.
type ToolHandler struct {
	logger   *slog.Logger
	registry *tool.Registry
}

// NewToolHandler creates a new ToolHandler instance.
func NewToolHandler(deps *Dependencies) *ToolHandler {
	return &ToolHandler{
		logger:   deps.Logger,
		registry: deps.Registry,
	}
}

// ResultHandler serves entity queries and exports.
type ResultHandler struct {
	logger  *slog.Logger
	results ResultReader
}

// NewResultHandler creates a new ResultHandler instance.
func NewResultHandler(deps *Dependencies) *ResultHandler {
	return &ResultHandler{
		logger:  deps.Logger,
		results: deps.Results,
	}
}

// StreamHandler serves per-job lifecycle event streams.
type StreamHandler struct {
	logger *slog.Logger
	jobs   JobReader
	broker *events.Broker
}

// NewStreamHandler creates a new StreamHandler instance.
func NewStreamHandler(deps *Dependencies) *StreamHandler {
	return &StreamHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
		broker: deps.Broker,
	}
}
