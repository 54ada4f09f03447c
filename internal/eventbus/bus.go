// Package eventbus fans dashboard changes out to subscribers on a bounded
// worker pool.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventType represents the type of event
type EventType string

const (
	EventRelayCreated EventType = "relay_created"
	EventRelayUpdated EventType = "relay_updated"
	EventRelayRemoved EventType = "relay_removed"
	EventRuleCreated  EventType = "rule_created"
	EventRuleUpdated  EventType = "rule_updated"
	EventRuleRemoved  EventType = "rule_removed"
	EventNotice       EventType = "notice"
	EventStatus       EventType = "status"
)

// Data keys carried by relay events
const (
	DataName  = "name"
	DataState = "state"
)

// RelayData builds the Data of a relay event.
func RelayData(name, state string) map[string]any {
	return map[string]any{DataName: name, DataState: state}
}

// Default configuration
const (
	DefaultWorkerCount = 2
	DefaultQueueSize   = 256
)

// Event is one change on the board
type Event struct {
	Type    EventType
	RelayID int
	RuleID  int
	At      time.Time
	Data    map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

type work struct {
	event   Event
	handler Handler
}

// Bus provides event routing with a bounded worker pool
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	any      []Handler
	closed   bool

	workQueue chan work
	wg        sync.WaitGroup
	dropped   int64
}

// New creates a new event bus with default settings
func New() *Bus {
	return NewWithConfig(DefaultWorkerCount, DefaultQueueSize)
}

// NewWithConfig creates a new event bus with custom worker count and queue size
func NewWithConfig(workerCount, queueSize int) *Bus {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	b := &Bus{
		handlers:  make(map[EventType][]Handler),
		workQueue: make(chan work, queueSize),
	}

	for i := 0; i < workerCount; i++ {
		b.wg.Add(1)
		go b.worker(i)
	}

	log.Debug().Int("workers", workerCount).Int("queue_size", queueSize).Msg("Event bus worker pool started")
	return b
}

func (b *Bus) worker(id int) {
	defer b.wg.Done()

	for w := range b.workQueue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("event_type", string(w.event.Type)).
						Int("worker", id).
						Msg("Event handler panicked")
				}
			}()
			w.handler(w.event)
		}()
	}
}

// Subscribe registers a handler for the given event types. With no types the
// handler receives every event.
func (b *Bus) Subscribe(handler Handler, types ...EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(types) == 0 {
		b.any = append(b.any, handler)
		return
	}
	for _, t := range types {
		b.handlers[t] = append(b.handlers[t], handler)
	}
}

// Publish queues the event for every matching handler. It never blocks: when
// the queue is full or the bus is closed the event is dropped.
func (b *Bus) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	handlers := b.handlers[event.Type]
	for _, h := range append(handlers[:len(handlers):len(handlers)], b.any...) {
		select {
		case b.workQueue <- work{event: event, handler: h}:
		default:
			b.dropped++
			log.Warn().Str("event_type", string(event.Type)).Msg("Event bus queue full, dropping event")
		}
	}
}

// Dropped returns how many deliveries were dropped on a full queue.
func (b *Bus) Dropped() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Close stops accepting events and waits for queued ones until ctx is done.
func (b *Bus) Close(ctx context.Context) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.workQueue)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Event bus workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Event bus shutdown timed out, some events may be lost")
	}
}
