package events

import (
	"log/slog"
	"sync"
)

// subscriberBuffer bounds how far a slow subscriber may lag before events are
// dropped for it. Dropping beats blocking the publisher for every other
// subscriber on the topic.
const subscriberBuffer = 16

type subscriber struct {
	ch chan Event
}

// Broker is an in-process publish/subscribe channel with per-job topics.
// Every subscriber of a job receives the full event sequence independently
// (broadcast, not competing-consumer).
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	logger *slog.Logger
}

// NewBroker creates a new Broker instance.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		topics: make(map[string]map[*subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscriber for jobID. The returned cancel func
// must be called when the subscriber disconnects so the broadcast target does
// not leak.
func (b *Broker) Subscribe(jobID string) (<-chan Event, func()) {
	sub := &subscriber{ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	subs, ok := b.topics[jobID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		b.topics[jobID] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if subs, ok := b.topics[jobID]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.topics, jobID)
			}
		}
		b.mu.Unlock()
	}

	return sub.ch, cancel
}

// Publish delivers event to every subscriber of its job, in publish order.
func (b *Broker) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[event.JobID] {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("Dropping event for slow subscriber",
				slog.String("job_id", event.JobID),
				slog.String("event", event.Type),
			)
		}
	}
}

// SubscriberCount returns the number of subscribers for jobID.
func (b *Broker) SubscriberCount(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[jobID])
}
