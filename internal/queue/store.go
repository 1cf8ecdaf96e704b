package queue

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	job_id, tool_id, params, status, worker_id, workdir, timeout_ms,
	failure_reason, created_at, updated_at, started_at, completed_at,
	last_heartbeat_at
`

// Store handles all database operations for job records. The queue owns a job
// row while it is queued; after a claim the claiming worker owns its status
// until a terminal state is reached.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance.
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a freshly enqueued job row.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO jobs (job_id, tool_id, params, status, timeout_ms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.JobID,
		job.ToolID,
		[]byte(job.Params),
		job.Status,
		job.TimeoutMs,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// DeleteJob removes a job row. Used only to roll back an enqueue whose broker
// publish failed, so invalid queue state never survives.
func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var job Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// JobFilter narrows job listings.
type JobFilter struct {
	ToolID   string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position for job pagination.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns jobs most-recent-first with keyset pagination. One extra
// row beyond PageSize is fetched so the caller can detect more results.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.ToolID != "" {
		query += fmt.Sprintf(" AND tool_id = $%d", argIdx)
		args = append(args, filter.ToolID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// ClaimJob atomically flips a queued job to active for workerID and records
// the assigned workdir. The status guard in the WHERE clause makes the claim
// at-most-one-claimant under concurrent attempts.
func (s *Store) ClaimJob(ctx context.Context, jobID, workerID, workdir string) (*Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = $2,
		    workdir = $3,
		    started_at = NOW(),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $4
		  AND status = $5
		RETURNING ` + jobColumns

	var job Job
	err := s.db.QueryRowxContext(ctx, query, StatusActive, workerID, workdir, jobID, StatusQueued).StructScan(&job)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil, ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
		slog.String("tool_id", job.ToolID),
	)

	return &job, nil
}

// AckJob marks an active job completed. Acking a job that is no longer active
// is a no-op, which makes the operation idempotent.
func (s *Store) AckJob(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    failure_reason = NULL,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
	`

	res, err := s.db.ExecContext(ctx, query, StatusCompleted, jobID, StatusActive)
	if err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		s.logger.Debug("Ack ignored - job not active",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

// NackJob marks an active job failed, preserving the reason for diagnostics.
// Like AckJob it is idempotent on already-terminal jobs.
func (s *Store) NackJob(ctx context.Context, jobID, reason string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    failure_reason = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, StatusFailed, reason, jobID, StatusActive)
	if err != nil {
		return fmt.Errorf("failed to nack job: %w", err)
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		s.logger.Debug("Nack ignored - job not active",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

// UpdateHeartbeat refreshes the liveness timestamp of a running job. The
// visibility-timeout reaper treats a stale heartbeat as worker death.
func (s *Store) UpdateHeartbeat(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $1 AND status = $2
	`

	res, err := s.db.ExecContext(ctx, query, jobID, StatusActive)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		s.logger.Warn("Job heartbeat update - no rows affected (job may not be active)",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

// ReapStale returns to queued every active job whose heartbeat is older than
// the visibility timeout. The returned ids must be republished so the jobs go
// back to the end of the queue.
func (s *Store) ReapStale(ctx context.Context, visibility time.Duration) ([]string, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = NULL,
		    workdir = NULL,
		    started_at = NULL,
		    last_heartbeat_at = NULL,
		    updated_at = NOW()
		WHERE status = $2
		  AND last_heartbeat_at < NOW() - $3::interval
		RETURNING job_id
	`

	interval := fmt.Sprintf("%d milliseconds", visibility.Milliseconds())

	var jobIDs []string
	if err := s.db.SelectContext(ctx, &jobIDs, query, StatusQueued, StatusActive, interval); err != nil {
		return nil, fmt.Errorf("failed to reap stale jobs: %w", err)
	}

	return jobIDs, nil
}
