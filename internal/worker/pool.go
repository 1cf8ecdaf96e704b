package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ndquoc/recon-be/internal/queue"
	"github.com/ndquoc/recon-be/shared/metrics"
)

// RetryableError wraps transient infrastructure failures that should trigger
// a broker requeue. Tool failures are never retryable: they terminate the job
// with a recorded reason, and retry is an operator action.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// spawnWorkerPool spawns N execution slots based on concurrency configuration.
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop is the main processing loop for each execution slot. Any failure
// inside a job is converted to a terminal job state at this boundary; a
// single tool crash never takes down the slot or the pool.
func (w *Worker) workerLoop(ctx context.Context, slotNum int) {
	defer w.wg.Done()

	slotName := fmt.Sprintf("%s-%d", w.workerID, slotNum)
	w.logger.Info("Worker slot started",
		slog.String("slot", slotName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker slot stopping - stopChan closed",
				slog.String("slot", slotName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker slot stopping - context canceled",
				slog.String("slot", slotName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				w.logger.Info("Worker slot stopping - jobsChan closed",
					slog.String("slot", slotName),
				)
				return
			}

			w.logger.Info("Worker slot received job",
				slog.String("slot", slotName),
				slog.String("job_id", msg.JobID),
				slog.Uint64("delivery_tag", msg.DeliveryTag),
			)

			metrics.SlotsBusy.Inc()
			err := w.processJob(ctx, msg)
			metrics.SlotsBusy.Dec()

			channel := w.rabbitClient.GetChannel()
			if channel == nil {
				w.logger.Error("Failed to get RabbitMQ channel for ACK/NACK",
					slog.String("slot", slotName),
					slog.String("job_id", msg.JobID),
				)
				continue
			}

			if err != nil {
				w.logger.Error("Job processing failed",
					slog.String("slot", slotName),
					slog.String("job_id", msg.JobID),
					slog.String("error", err.Error()),
				)

				requeue := w.shouldRequeueJob(err)

				if nackErr := channel.Nack(msg.DeliveryTag, false, requeue); nackErr != nil {
					w.logger.Error("Failed to NACK message",
						slog.String("slot", slotName),
						slog.String("job_id", msg.JobID),
						slog.String("error", nackErr.Error()),
					)
				} else {
					w.logger.Info("Message NACKed",
						slog.String("slot", slotName),
						slog.String("job_id", msg.JobID),
						slog.Bool("requeue", requeue),
					)
				}
			} else {
				if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
					w.logger.Error("Failed to ACK message",
						slog.String("slot", slotName),
						slog.String("job_id", msg.JobID),
						slog.String("error", ackErr.Error()),
					)
				}
			}
		}
	}
}

// shouldRequeueJob determines if a broker message should be requeued based on
// the error type.
func (w *Worker) shouldRequeueJob(err error) bool {
	// Another worker already owns the job: drop our copy
	if errors.Is(err, queue.ErrJobAlreadyClaimed) {
		return false
	}

	// Transient infrastructure failures get another delivery
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return true
	}

	// Everything else already produced a terminal job state
	return false
}
