package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ndquoc/recon-be/shared/metrics"
)

// Reaper makes claimed-but-abandoned jobs reclaimable. An active job whose
// heartbeat is older than the visibility timeout is flipped back to queued
// and republished, so a worker crash never strands work. A reaped job joins
// the back of the queue.
type Reaper struct {
	store      *Store
	publisher  messagePublisher
	visibility time.Duration
	interval   time.Duration
	logger     *slog.Logger
}

// NewReaper creates a new Reaper instance.
func NewReaper(store *Store, publisher messagePublisher, visibility, interval time.Duration, logger *slog.Logger) *Reaper {
	return &Reaper{
		store:      store,
		publisher:  publisher,
		visibility: visibility,
		interval:   interval,
		logger:     logger,
	}
}

// Run scans for abandoned jobs until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Visibility-timeout reaper started",
		slog.Duration("visibility", r.visibility),
		slog.Duration("interval", r.interval),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reaper stopped - context canceled")
			return
		case <-ticker.C:
			r.reapOnce(ctx)
		}
	}
}

func (r *Reaper) reapOnce(ctx context.Context) {
	jobIDs, err := r.store.ReapStale(ctx, r.visibility)
	if err != nil {
		r.logger.Error("Failed to reap stale jobs",
			slog.Any("error", err),
		)
		return
	}

	for _, jobID := range jobIDs {
		body, err := json.Marshal(Message{JobID: jobID})
		if err != nil {
			r.logger.Error("Failed to marshal reaped job message",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
			continue
		}

		if err := r.publisher.PublishWithRetry(ctx, body, "application/json"); err != nil {
			// Row is already queued again; the next reaper pass will not
			// match it, but a restart of any worker redelivers via the
			// broker once connectivity returns. Log loudly.
			r.logger.Error("Failed to republish reaped job",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
			continue
		}

		metrics.JobsReaped.Inc()
		r.logger.Warn("Reclaimed abandoned job",
			slog.String("job_id", jobID),
		)
	}
}
