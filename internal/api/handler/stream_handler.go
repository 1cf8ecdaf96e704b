package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ndquoc/recon-be/internal/events"
	"github.com/ndquoc/recon-be/internal/queue"
	"github.com/ndquoc/recon-be/shared/metrics"
)

// heartbeatInterval keeps intermediaries from dropping an idle stream.
const heartbeatInterval = 10 * time.Second

// StreamJob handles GET /jobs/:job_id/stream. The response is a Server-Sent
// Events stream of lifecycle transitions: an open event always arrives first,
// completed/failed arrives at most once and ends the stream, and heartbeats
// are emitted while the connection is idle. Every concurrent subscriber of a
// job receives the full sequence independently.
func (h *StreamHandler) StreamJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	// Subscribe before reading the snapshot so a transition between the two
	// cannot be missed
	eventCh, cancel := h.broker.Subscribe(jobID)
	defer cancel()

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}
		h.logger.Error("Failed to load job for stream", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to load job",
		})
		return
	}

	metrics.StreamSubscribers.Inc()
	defer metrics.StreamSubscribers.Dec()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// The open event is always the first delivered to a new subscriber
	h.writeEvent(c, events.EventOpen, gin.H{
		"jobId":  job.JobID,
		"toolId": job.ToolID,
		"status": job.Status,
	})

	if job.IsTerminal() {
		h.writeTerminal(c, job.Status, job.JobID, job.FailureReason.String)
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return

		case <-heartbeat.C:
			h.writeEvent(c, events.EventHeartbeat, gin.H{
				"jobId": jobID,
				"time":  time.Now().UTC().Format(time.RFC3339),
			})

		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if event.IsTerminal() {
				h.writeTerminal(c, event.Type, event.JobID, event.Reason)
				return
			}
			h.writeEvent(c, event.Type, gin.H{
				"jobId":  event.JobID,
				"status": event.Type,
			})
		}
	}
}

// writeTerminal emits the stream-ending completed/failed event.
func (h *StreamHandler) writeTerminal(c *gin.Context, eventType, jobID, reason string) {
	payload := gin.H{
		"jobId":  jobID,
		"status": eventType,
	}
	if reason != "" {
		payload["reason"] = reason
	}
	h.writeEvent(c, eventType, payload)
}

func (h *StreamHandler) writeEvent(c *gin.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal stream event",
			slog.String("event", eventType),
			slog.Any("error", err),
		)
		return
	}

	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", eventType, data)
	c.Writer.Flush()
}
