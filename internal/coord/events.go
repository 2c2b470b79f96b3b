package coord

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// Handler receives lifecycle events.
type Handler func(models.Event)

// envelope is the wire form of a published event.
type envelope struct {
	Origin string       `json:"origin"`
	Event  models.Event `json:"event"`
}

// EventChannel fans lifecycle events out to local listeners and, when the
// store has a backend, to other processes.
//
// Local listeners are called synchronously by Publish. Messages that come
// back from the backend with this channel's origin are skipped, so each
// listener sees an event once.
type EventChannel struct {
	store  *Store
	origin string

	mu        sync.RWMutex
	listeners map[uint64]Handler
	order     []uint64
	nextID    uint64

	subOnce sync.Once
	sub     Subscription
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEventChannel creates a channel bound to store's backend.
func NewEventChannel(store *Store) *EventChannel {
	return &EventChannel{
		store:     store,
		origin:    uuid.NewString(),
		listeners: make(map[uint64]Handler),
	}
}

// Subscribe registers handler and returns a function that removes it.
// The first subscription opens the backend subscriber connection.
func (c *EventChannel) Subscribe(handler Handler) (unsubscribe func()) {
	c.subOnce.Do(c.startRemote)

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = handler
	c.order = append(c.order, id)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.listeners, id)
			for i, v := range c.order {
				if v == id {
					c.order = append(c.order[:i], c.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers ev to local listeners and to the backend.
// A backend failure is returned after local delivery has happened.
func (c *EventChannel) Publish(ctx context.Context, ev models.Event) error {
	c.emit(ev)

	payload, err := json.Marshal(envelope{Origin: c.origin, Event: ev})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = c.store.publish(ctx, payload)
	return err
}

func (c *EventChannel) emit(ev models.Event) {
	c.mu.RLock()
	handlers := make([]Handler, 0, len(c.order))
	for _, id := range c.order {
		handlers = append(handlers, c.listeners[id])
	}
	c.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

func (c *EventChannel) startRemote() {
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := c.store.subscribe(ctx)
	if err != nil || sub == nil {
		cancel()
		if err != nil {
			c.store.logger.Warn("event subscription failed, delivering locally only", "error", err)
		}
		return
	}

	c.sub = sub
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.receive(sub)
}

func (c *EventChannel) receive(sub Subscription) {
	defer close(c.done)
	for payload := range sub.Messages() {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.store.logger.Warn("dropping malformed event", "error", err)
			continue
		}
		if env.Origin == c.origin {
			continue
		}
		c.emit(env.Event)
	}
}

// Close stops the subscriber connection. Listeners stay registered for
// local delivery.
func (c *EventChannel) Close() error {
	c.subOnce.Do(func() {})
	if c.sub == nil {
		return nil
	}
	err := c.sub.Close()
	c.cancel()
	<-c.done
	return err
}
