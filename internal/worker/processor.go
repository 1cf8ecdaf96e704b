package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ndquoc/recon-be/internal/events"
	"github.com/ndquoc/recon-be/internal/queue"
	"github.com/ndquoc/recon-be/internal/ratelimit"
	"github.com/ndquoc/recon-be/internal/sandbox"
	"github.com/ndquoc/recon-be/internal/tool"
	"github.com/ndquoc/recon-be/shared/metrics"
)

// processJob runs the full slot pipeline for one job: claim, workdir, rate
// gate, execute, parse, persist, ack. Every failure past the claim converts
// to a nack with a structured reason.
func (w *Worker) processJob(ctx context.Context, msg *jobMessage) error {
	w.logger.Info("Processing job",
		slog.String("job_id", msg.JobID),
		slog.String("worker_id", w.workerID),
	)

	// Fresh job-exclusive workdir for this attempt, never reused
	workdir, err := w.workdirs.Create(msg.JobID)
	if err != nil {
		return NewRetryableError(fmt.Errorf("failed to create workdir: %w", err))
	}

	// Claim job (queued -> active); the status guard makes this race-safe
	job, err := w.queueStore.ClaimJob(ctx, msg.JobID, w.workerID, workdir)
	if err != nil {
		_ = os.RemoveAll(workdir)
		if errors.Is(err, queue.ErrJobAlreadyClaimed) {
			w.logger.Warn("Job already claimed, skipping",
				slog.String("job_id", msg.JobID),
			)
			return fmt.Errorf("job already claimed: %w", err)
		}
		return NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	w.emitter.Publish(ctx, job.JobID, events.EventActive, "")

	t, err := w.registry.Get(job.ToolID)
	if err != nil {
		// A job referencing an unknown tool can only appear when the catalog
		// shrank between enqueue and claim. Terminal, not retryable.
		return w.failJob(ctx, job, fmt.Sprintf("tool %q no longer registered", job.ToolID))
	}

	var params map[string]any
	if len(job.Params) > 0 {
		if err := json.Unmarshal(job.Params, &params); err != nil {
			return w.failJob(ctx, job, fmt.Sprintf("invalid params JSON: %s", err.Error()))
		}
	}

	jobTimeout := w.jobTimeout
	if job.TimeoutMs > 0 {
		jobTimeout = job.Timeout()
	}
	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	// Heartbeat keeps the visibility timeout at bay while the tool runs
	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, job.JobID, heartbeatDone)
	defer close(heartbeatDone)

	// Rate-limiter gate: a rejected admission is never executed. We wait out
	// the window inside the job's own deadline and try again.
	src := t.Descriptor().Source
	if err := w.awaitAdmission(jobCtx, src); err != nil {
		return w.failJob(ctx, job, fmt.Sprintf("rate limit wait for source %q exceeded job timeout", src))
	}

	ec := &tool.ExecContext{
		JobID:   job.JobID,
		Workdir: workdir,
		Timeout: jobTimeout,
		Runner:  w.runner,
		Logger:  w.logger.With(slog.String("job_id", job.JobID)),
	}

	parsed, execErr := w.executeTool(jobCtx, t, ec, params)
	if execErr != nil {
		// Workdir is retained on failure for forensic replay
		return w.failJob(ctx, job, failureReason(execErr, jobTimeout))
	}

	// Persist before acking so a crash here re-runs the job instead of
	// losing its entities (at-least-once entity writes)
	if err := w.resultStore.WriteBatch(ctx, parsed.Entities); err != nil {
		return w.failJob(ctx, job, fmt.Sprintf("failed to persist entities: %s", err.Error()))
	}

	if err := w.queueStore.AckJob(ctx, job.JobID); err != nil {
		w.logger.Error("Failed to ack job",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		// Entities are written and the reaper will resolve the row; the
		// broker message is still acked to avoid a duplicate execution.
	}

	w.emitter.Publish(ctx, job.JobID, events.EventCompleted, "")
	metrics.JobsCompleted.Inc()

	w.logger.Info("Job completed",
		slog.String("job_id", job.JobID),
		slog.String("tool_id", job.ToolID),
		slog.Int("entities", len(parsed.Entities)),
		slog.Any("stats", parsed.Stats),
	)

	return nil
}

// executeTool runs Execute and Parse with the slot boundary's panic guard.
func (w *Worker) executeTool(ctx context.Context, t tool.Tool, ec *tool.ExecContext, params map[string]any) (parsed tool.ParseResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()

	raw, err := t.Execute(ctx, ec, params)
	if err != nil {
		return tool.ParseResult{}, err
	}

	return t.Parse(ec, raw)
}

// awaitAdmission blocks until the rate limiter admits source or ctx expires.
func (w *Worker) awaitAdmission(ctx context.Context, source string) error {
	for {
		err := w.limiter.Check(source)
		if err == nil {
			return nil
		}

		var limitErr *ratelimit.LimitExceededError
		if !errors.As(err, &limitErr) {
			return err
		}

		metrics.RateLimitHits.WithLabelValues(source).Inc()
		w.logger.Debug("Rate limited, waiting for window",
			slog.String("source", source),
			slog.Duration("retry_after", limitErr.RetryAfter),
		)

		timer := time.NewTimer(limitErr.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// failJob records the terminal failed state with a human-readable reason and
// publishes the failed event. The returned error drives the broker nack
// (without requeue - a failed job retries only by operator action).
func (w *Worker) failJob(ctx context.Context, job *queue.Job, reason string) error {
	w.logger.Error("Job failed",
		slog.String("job_id", job.JobID),
		slog.String("tool_id", job.ToolID),
		slog.String("reason", reason),
		slog.String("workdir", job.Workdir.String),
	)

	if err := w.queueStore.NackJob(ctx, job.JobID, reason); err != nil {
		w.logger.Error("Failed to nack job",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
	}

	w.emitter.Publish(ctx, job.JobID, events.EventFailed, reason)
	metrics.JobsFailed.Inc()

	return fmt.Errorf("job %s failed: %s", job.JobID, reason)
}

// failureReason turns an execution error into the stored diagnostic string.
func failureReason(err error, timeout time.Duration) string {
	if errors.Is(err, sandbox.ErrExecutionTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("execution timed out after %s", timeout)
	}
	return fmt.Sprintf("execution error: %s", err.Error())
}

// sendJobHeartbeat periodically refreshes the job's heartbeat timestamp.
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queueStore.UpdateHeartbeat(ctx, jobID); err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
