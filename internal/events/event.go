// Package events relays job lifecycle transitions to stream subscribers.
package events

import "time"

// Event types delivered on a job's stream.
const (
	EventOpen      = "open"
	EventQueued    = "queued"
	EventActive    = "active"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventHeartbeat = "heartbeat"
)

// Event is one lifecycle transition for a job.
type Event struct {
	JobID     string    `json:"job_id"`
	Type      string    `json:"type"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsTerminal reports whether the event ends a subscriber's stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed
}
