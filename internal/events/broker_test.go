package events

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBroker() *Broker {
	return NewBroker(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func receiveEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBroker_PublishSubscribe(t *testing.T) {
	t.Run("events reach the job's subscriber in order", func(t *testing.T) {
		b := testBroker()
		ch, cancel := b.Subscribe("job-1")
		defer cancel()

		b.Publish(Event{JobID: "job-1", Type: EventActive})
		b.Publish(Event{JobID: "job-1", Type: EventCompleted})

		assert.Equal(t, EventActive, receiveEvent(t, ch).Type)
		assert.Equal(t, EventCompleted, receiveEvent(t, ch).Type)
	})

	t.Run("every subscriber receives the full sequence", func(t *testing.T) {
		b := testBroker()
		ch1, cancel1 := b.Subscribe("job-1")
		defer cancel1()
		ch2, cancel2 := b.Subscribe("job-1")
		defer cancel2()

		b.Publish(Event{JobID: "job-1", Type: EventActive})

		assert.Equal(t, EventActive, receiveEvent(t, ch1).Type)
		assert.Equal(t, EventActive, receiveEvent(t, ch2).Type)
	})

	t.Run("other jobs' events are not delivered", func(t *testing.T) {
		b := testBroker()
		ch, cancel := b.Subscribe("job-1")
		defer cancel()

		b.Publish(Event{JobID: "job-2", Type: EventCompleted})

		select {
		case event := <-ch:
			t.Fatalf("unexpected event: %+v", event)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("publish without subscribers is a no-op", func(t *testing.T) {
		b := testBroker()
		assert.NotPanics(t, func() {
			b.Publish(Event{JobID: "nobody-listening", Type: EventQueued})
		})
	})

	t.Run("cancel removes the subscriber", func(t *testing.T) {
		b := testBroker()
		_, cancel := b.Subscribe("job-1")
		require.Equal(t, 1, b.SubscriberCount("job-1"))

		cancel()
		assert.Equal(t, 0, b.SubscriberCount("job-1"))
	})

	t.Run("slow subscriber drops instead of blocking", func(t *testing.T) {
		b := testBroker()
		ch, cancel := b.Subscribe("job-1")
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			// Overflow the buffer; Publish must never block
			for i := 0; i < subscriberBuffer*2; i++ {
				b.Publish(Event{JobID: "job-1", Type: EventHeartbeat})
			}
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publish blocked on a slow subscriber")
		}

		assert.Len(t, ch, subscriberBuffer)
	})
}

func TestEvent_IsTerminal(t *testing.T) {
	assert.True(t, Event{Type: EventCompleted}.IsTerminal())
	assert.True(t, Event{Type: EventFailed}.IsTerminal())
	assert.False(t, Event{Type: EventOpen}.IsTerminal())
	assert.False(t, Event{Type: EventQueued}.IsTerminal())
	assert.False(t, Event{Type: EventActive}.IsTerminal())
	assert.False(t, Event{Type: EventHeartbeat}.IsTerminal())
}
