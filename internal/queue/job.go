// Package queue implements the durable job queue: enqueue with fail-fast
// validation, claim/ack/nack over the job store, and the visibility-timeout
// reaper.
package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Job status values. Transitions are monotonic and one-directional:
// queued -> active -> {completed|failed}. A claimed job re-enters queued only
// through the visibility-timeout reaper, never automatically on failure.
const (
	StatusQueued    = "queued"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	// ErrJobNotFound is returned when a job id matches no record.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobAlreadyClaimed is returned when a claim races another worker.
	ErrJobAlreadyClaimed = errors.New("job already claimed or not in queued status")

	// ErrQueueUnavailable is returned when the broker rejects an enqueue.
	// Jobs already enqueued stay durable; the new submission fails loudly.
	ErrQueueUnavailable = errors.New("job queue unavailable")
)

// InvalidParamsError reports why submitted params were rejected before any
// queue involvement.
type InvalidParamsError struct {
	Details []string
}

func (e *InvalidParamsError) Error() string {
	return "invalid params: " + strings.Join(e.Details, "; ")
}

// Job is one request to run a tool, tracked through its lifecycle. The row is
// retained after the terminal state for audit until externally purged.
type Job struct {
	JobID         string          `db:"job_id"`
	ToolID        string          `db:"tool_id"`
	Params        json.RawMessage `db:"params"`
	Status        string          `db:"status"`
	WorkerID      sql.NullString  `db:"worker_id"`
	Workdir       sql.NullString  `db:"workdir"`
	TimeoutMs     int64           `db:"timeout_ms"`
	FailureReason sql.NullString  `db:"failure_reason"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
	StartedAt     sql.NullTime    `db:"started_at"`
	CompletedAt   sql.NullTime    `db:"completed_at"`
	LastHeartbeat sql.NullTime    `db:"last_heartbeat_at"`
}

// Timeout returns the job's execution deadline as a duration.
func (j *Job) Timeout() time.Duration {
	return time.Duration(j.TimeoutMs) * time.Millisecond
}

// IsTerminal reports whether the job reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Message is the broker payload pointing at a durable job row.
type Message struct {
	JobID string `json:"job_id"`
}
