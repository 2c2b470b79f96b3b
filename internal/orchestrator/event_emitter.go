package orchestrator

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// EventEmitter buffers lifecycle events for a single channel consumer such
// as the CLI watcher. Events are dropped when the consumer falls behind.
type EventEmitter struct {
	events       chan models.Event
	droppedCount atomic.Uint64
	mu           sync.RWMutex
	closed       bool
	logger       *slog.Logger
}

// NewEventEmitter creates an EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int, logger *slog.Logger) *EventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventEmitter{
		events: make(chan models.Event, bufferSize),
		logger: logger,
	}
}

// Emit sends an event, waiting briefly for room before dropping it.
func (e *EventEmitter) Emit(event models.Event) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			e.logger.Warn("event buffer full, dropped event", "total_dropped", count, "kind", event.Kind)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan models.Event {
	return e.events
}

// Close stops emission and closes the channel. Safe to call more than once.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
}
