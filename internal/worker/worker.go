// Package worker runs the bounded pool of execution slots that consume the
// job queue, execute tools in sandboxes, persist entities, and report
// lifecycle transitions.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ndquoc/recon-be/internal/events"
	"github.com/ndquoc/recon-be/internal/queue"
	"github.com/ndquoc/recon-be/internal/ratelimit"
	"github.com/ndquoc/recon-be/internal/result"
	"github.com/ndquoc/recon-be/internal/sandbox"
	"github.com/ndquoc/recon-be/internal/tool"
	"github.com/ndquoc/recon-be/shared/rabbitmq"
)

// Config holds worker configuration.
type Config struct {
	Logger            *slog.Logger
	QueueStore        *queue.Store
	ResultStore       *result.Store
	Registry          *tool.Registry
	Limiter           *ratelimit.Limiter
	Runner            *sandbox.Runner
	Workdirs          *sandbox.Workdirs
	RabbitClient      *rabbitmq.Client
	Emitter           *events.Publisher
	Concurrency       int
	PrefetchCount     int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
}

// Worker owns the pool of execution slots.
type Worker struct {
	logger            *slog.Logger
	queueStore        *queue.Store
	resultStore       *result.Store
	registry          *tool.Registry
	limiter           *ratelimit.Limiter
	runner            *sandbox.Runner
	workdirs          *sandbox.Workdirs
	rabbitClient      *rabbitmq.Client
	emitter           *events.Publisher
	concurrency       int
	prefetchCount     int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration
	workerID          string
	jobsChan          chan *jobMessage
	wg                sync.WaitGroup
	stopChan          chan struct{}
}

// NewWorker creates a new worker instance.
func NewWorker(cfg *Config) *Worker {
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = cfg.Concurrency
	}

	return &Worker{
		logger:            cfg.Logger,
		queueStore:        cfg.QueueStore,
		resultStore:       cfg.ResultStore,
		registry:          cfg.Registry,
		limiter:           cfg.Limiter,
		runner:            cfg.Runner,
		workdirs:          cfg.Workdirs,
		rabbitClient:      cfg.RabbitClient,
		emitter:           cfg.Emitter,
		concurrency:       cfg.Concurrency,
		prefetchCount:     prefetch,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: heartbeat,
		workerID:          fmt.Sprintf("worker-%s", uuid.New().String()[:8]),
		jobsChan:          make(chan *jobMessage),
		stopChan:          make(chan struct{}),
	}
}

// Start consumes the queue and processes jobs. It blocks until ctx is
// cancelled or the delivery channel closes; callers run it in a goroutine.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
		slog.String("sandbox_mode", w.runner.Mode()),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
