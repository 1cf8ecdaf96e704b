package queue

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storeTestJobID = "3e8f2a4b-9c1d-4e6f-8a7b-5c4d3e2f1a0b"

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewStore(sqlx.NewDb(db, "postgres"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return store, mock
}

func jobRows(jobID, status, workerID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"job_id", "tool_id", "params", "status", "worker_id", "workdir",
		"timeout_ms", "failure_reason", "created_at", "updated_at",
		"started_at", "completed_at", "last_heartbeat_at",
	}).AddRow(
		jobID, "amass", []byte(`{"domain":"example.com"}`), status,
		workerID, "/tmp/recon-jobs/"+jobID, int64(600_000), nil,
		now, now, now, nil, now,
	)
}

func TestStore_ClaimJob(t *testing.T) {
	claimSQL := regexp.QuoteMeta(`UPDATE jobs`)

	t.Run("queued job is claimed for the worker", func(t *testing.T) {
		store, mock := newTestStore(t)

		mock.ExpectQuery(claimSQL).
			WithArgs(StatusActive, "worker-a", "/tmp/recon-jobs/"+storeTestJobID, storeTestJobID, StatusQueued).
			WillReturnRows(jobRows(storeTestJobID, StatusActive, "worker-a"))

		job, err := store.ClaimJob(context.Background(), storeTestJobID, "worker-a", "/tmp/recon-jobs/"+storeTestJobID)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, job.Status)
		assert.Equal(t, "worker-a", job.WorkerID.String)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second claimant loses the race", func(t *testing.T) {
		store, mock := newTestStore(t)

		// The status guard matches no row once the job left queued.
		mock.ExpectQuery(claimSQL).
			WithArgs(StatusActive, "worker-a", "/tmp/a", storeTestJobID, StatusQueued).
			WillReturnRows(jobRows(storeTestJobID, StatusActive, "worker-a"))
		mock.ExpectQuery(claimSQL).
			WithArgs(StatusActive, "worker-b", "/tmp/b", storeTestJobID, StatusQueued).
			WillReturnRows(sqlmock.NewRows([]string{"job_id"}))

		_, err := store.ClaimJob(context.Background(), storeTestJobID, "worker-a", "/tmp/a")
		require.NoError(t, err)

		_, err = store.ClaimJob(context.Background(), storeTestJobID, "worker-b", "/tmp/b")
		require.ErrorIs(t, err, ErrJobAlreadyClaimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_AckJob_Idempotent(t *testing.T) {
	store, mock := newTestStore(t)
	ackSQL := regexp.QuoteMeta(`UPDATE jobs`)

	// First ack flips the active row; the repeat matches nothing and is a
	// no-op rather than an error.
	mock.ExpectExec(ackSQL).
		WithArgs(StatusCompleted, storeTestJobID, StatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(ackSQL).
		WithArgs(StatusCompleted, storeTestJobID, StatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.AckJob(context.Background(), storeTestJobID))
	require.NoError(t, store.AckJob(context.Background(), storeTestJobID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_NackJob_Idempotent(t *testing.T) {
	store, mock := newTestStore(t)
	nackSQL := regexp.QuoteMeta(`UPDATE jobs`)

	mock.ExpectExec(nackSQL).
		WithArgs(StatusFailed, "execution timed out after 5s", storeTestJobID, StatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(nackSQL).
		WithArgs(StatusFailed, "execution timed out after 5s", storeTestJobID, StatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.NackJob(context.Background(), storeTestJobID, "execution timed out after 5s"))
	require.NoError(t, store.NackJob(context.Background(), storeTestJobID, "execution timed out after 5s"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetJob_NotFound(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT`)).
		WithArgs(storeTestJobID).
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetJob(context.Background(), storeTestJobID)
	require.ErrorIs(t, err, ErrJobNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateHeartbeat_InactiveJobIsNoOp(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE jobs`)).
		WithArgs(storeTestJobID, StatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.UpdateHeartbeat(context.Background(), storeTestJobID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReapStale(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE jobs`)).
		WithArgs(StatusQueued, StatusActive, "120000 milliseconds").
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}).
			AddRow(storeTestJobID).
			AddRow("9b1c3d5e-7f2a-4b6c-8d9e-0a1b2c3d4e5f"))

	jobIDs, err := store.ReapStale(context.Background(), 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{storeTestJobID, "9b1c3d5e-7f2a-4b6c-8d9e-0a1b2c3d4e5f"}, jobIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
