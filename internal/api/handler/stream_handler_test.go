package handler

import (
	"database/sql"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndquoc/recon-be/internal/events"
	"github.com/ndquoc/recon-be/internal/queue"
)

func TestStreamHandler_StreamJob(t *testing.T) {
	t.Run("malformed id is a 400", func(t *testing.T) {
		r := testRouter(testDeps(t, nil))

		rec := doRequest(r, http.MethodGet, "/jobs/not-a-uuid/stream", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown job is a 404", func(t *testing.T) {
		r := testRouter(testDeps(t, nil))

		rec := doRequest(r, http.MethodGet, "/jobs/"+testJobID+"/stream", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("terminal job gets open then the terminal event and ends", func(t *testing.T) {
		job := queuedJob(testJobID)
		job.Status = queue.StatusFailed
		job.FailureReason = sql.NullString{String: "execution timed out after 10m0s", Valid: true}

		r := testRouter(testDeps(t, func(d *Dependencies) {
			d.Jobs = &fakeJobReader{jobs: map[string]*queue.Job{testJobID: job}}
		}))

		rec := doRequest(r, http.MethodGet, "/jobs/"+testJobID+"/stream", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

		body := rec.Body.String()
		openIdx := strings.Index(body, "event: open")
		failedIdx := strings.Index(body, "event: failed")
		require.GreaterOrEqual(t, openIdx, 0, "open event missing:\n%s", body)
		require.Greater(t, failedIdx, openIdx, "terminal event must follow open:\n%s", body)
		assert.Contains(t, body, "execution timed out")

		// Terminal event arrives exactly once
		assert.Equal(t, 1, strings.Count(body, "event: failed"))
	})

	t.Run("live terminal event ends the stream", func(t *testing.T) {
		job := queuedJob(testJobID)
		job.Status = queue.StatusActive

		deps := testDeps(t, func(d *Dependencies) {
			d.Jobs = &fakeJobReader{jobs: map[string]*queue.Job{testJobID: job}}
		})
		r := testRouter(deps)

		// Publish completed once the handler has subscribed
		go func() {
			for i := 0; i < 100; i++ {
				if deps.Broker.SubscriberCount(testJobID) > 0 {
					deps.Broker.Publish(events.Event{JobID: testJobID, Type: events.EventCompleted})
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
		}()

		done := make(chan string)
		go func() {
			rec := doRequest(r, http.MethodGet, "/jobs/"+testJobID+"/stream", "")
			done <- rec.Body.String()
		}()

		select {
		case body := <-done:
			openIdx := strings.Index(body, "event: open")
			completedIdx := strings.Index(body, "event: completed")
			require.GreaterOrEqual(t, openIdx, 0)
			assert.Greater(t, completedIdx, openIdx, "open must precede completed:\n%s", body)
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not end after the terminal event")
		}
	})
}
