package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []*GameEvent
	block  chan struct{}
}

func (h *recordingHandler) HandleEvent(e *GameEvent) {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestEventProcessorDeliversInOrder(t *testing.T) {
	ep := newEventProcessor(nil, 16, 1)
	h := &recordingHandler{}
	ep.AddHandler(h)
	ep.Start()
	defer ep.Stop()

	ep.Publish(&GameEvent{Type: EventHandStarted, HandID: "h1"})
	ep.Publish(&GameEvent{Type: EventActionApplied, HandID: "h1", Seat: 2, Action: "call"})
	ep.Publish(&GameEvent{Type: EventShowdown, HandID: "h1"})

	require.Eventually(t, func() bool { return h.count() == 3 }, time.Second, 5*time.Millisecond)
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, EventHandStarted, h.events[0].Type)
	assert.Equal(t, EventActionApplied, h.events[1].Type)
	assert.Equal(t, EventShowdown, h.events[2].Type)
	assert.False(t, h.events[1].Timestamp.IsZero())
}

func TestEventProcessorDropsWhenStoppedOrFull(t *testing.T) {
	ep := newEventProcessor(nil, 1, 1)
	h := &recordingHandler{block: make(chan struct{})}
	ep.AddHandler(h)

	ep.Publish(&GameEvent{Type: EventPlayerSeated})
	assert.Empty(t, ep.queue, "events before Start are dropped")

	ep.Start()
	// The worker takes the first event and blocks in the handler; the second
	// fills the queue and the third is dropped.
	ep.Publish(&GameEvent{Type: EventPlayerSeated, Seat: 0})
	require.Eventually(t, func() bool { return len(ep.queue) == 0 }, time.Second, time.Millisecond)
	ep.Publish(&GameEvent{Type: EventPlayerSeated, Seat: 1})
	ep.Publish(&GameEvent{Type: EventPlayerSeated, Seat: 2})

	close(h.block)
	require.Eventually(t, func() bool { return h.count() == 2 }, time.Second, 5*time.Millisecond)
	ep.Stop()

	ep.Publish(&GameEvent{Type: EventPlayerKicked})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, h.count())
}

func TestEventProcessorRestart(t *testing.T) {
	ep := newEventProcessor(nil, 4, 2)
	h := &recordingHandler{}
	ep.AddHandler(h)

	ep.Start()
	ep.Start()
	ep.Stop()
	ep.Stop()

	ep.Start()
	defer ep.Stop()
	ep.Publish(&GameEvent{Type: EventBetweenHands})
	require.Eventually(t, func() bool { return h.count() == 1 }, time.Second, 5*time.Millisecond)
}
