package server

import (
	"sync"
	"time"

	"github.com/decred/slog"
)

// GameEventType names what happened at the table.
type GameEventType string

const (
	EventHandStarted   GameEventType = "hand_started"
	EventActionApplied GameEventType = "action_applied"
	EventRoundEnded    GameEventType = "round_ended"
	EventPlayerSeated  GameEventType = "player_seated"
	EventPlayerKicked  GameEventType = "player_kicked"
	EventShowdown      GameEventType = "showdown"
	EventBetweenHands  GameEventType = "between_hands"
)

// GameEvent is an immutable record of a state change. Events feed the
// presentation stream; the game loop never waits on them.
type GameEvent struct {
	Type      GameEventType
	HandID    string
	Seat      int
	Identity  string
	Action    string
	Amount    int64
	Timestamp time.Time
}

// EventHandler consumes events on a worker goroutine.
type EventHandler interface {
	HandleEvent(event *GameEvent)
}

// EventProcessor queues events and hands them to its handlers off the game
// loop. A full queue drops the event.
type EventProcessor struct {
	log      slog.Logger
	queue    chan *GameEvent
	handlers []EventHandler
	workers  int
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewEventProcessor creates a processor that feeds the server's presentation
// stream.
func NewEventProcessor(s *Server, queueSize, workerCount int) *EventProcessor {
	ep := newEventProcessor(s.httpLog, queueSize, workerCount)
	ep.AddHandler(&streamHandler{server: s})
	return ep
}

func newEventProcessor(log slog.Logger, queueSize, workerCount int) *EventProcessor {
	if log == nil {
		log = slog.Disabled
	}
	return &EventProcessor{
		log:      log,
		queue:    make(chan *GameEvent, queueSize),
		workers:  max(workerCount, 1),
		stopChan: make(chan struct{}),
	}
}

// AddHandler registers h. Call it before Start.
func (ep *EventProcessor) AddHandler(h EventHandler) {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.handlers = append(ep.handlers, h)
}

// Start launches the workers.
func (ep *EventProcessor) Start() {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.started {
		return
	}
	ep.started = true
	ep.stopChan = make(chan struct{})
	for i := 0; i < ep.workers; i++ {
		ep.wg.Add(1)
		go ep.run(i)
	}
	ep.log.Debugf("Event processor started with %d workers", ep.workers)
}

// Stop stops the workers and waits for them. Queued events are discarded.
func (ep *EventProcessor) Stop() {
	ep.mu.Lock()
	if !ep.started {
		ep.mu.Unlock()
		return
	}
	ep.started = false
	close(ep.stopChan)
	ep.mu.Unlock()

	ep.wg.Wait()
	ep.log.Debugf("Event processor stopped")
}

// Publish queues event. It never blocks.
func (ep *EventProcessor) Publish(event *GameEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	ep.mu.Lock()
	started := ep.started
	ep.mu.Unlock()
	if !started {
		ep.log.Tracef("Event processor not started, dropping %s", event.Type)
		return
	}

	select {
	case ep.queue <- event:
	default:
		ep.log.Warnf("Event queue full, dropping %s", event.Type)
	}
}

func (ep *EventProcessor) run(id int) {
	defer ep.wg.Done()
	for {
		select {
		case <-ep.stopChan:
			return
		case event := <-ep.queue:
			if event == nil {
				continue
			}
			ep.log.Tracef("Worker %d processing %s seat=%d", id, event.Type, event.Seat)
			ep.mu.Lock()
			handlers := ep.handlers
			ep.mu.Unlock()
			for _, h := range handlers {
				h.HandleEvent(event)
			}
		}
	}
}

// streamHandler pushes the presentation snapshot to stream clients.
type streamHandler struct {
	server *Server
}

func (h *streamHandler) HandleEvent(event *GameEvent) {
	if h.server.stream.len() == 0 {
		return
	}
	h.server.stream.broadcast(h.server.Presentation())
}
