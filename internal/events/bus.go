// Package events carries domain events from services to subscribers.
// Every event goes to the in-process bus; when the broker is enabled it
// is additionally published to a RabbitMQ topic exchange for external
// consumers.
package events

import (
	"context"
	"sync"

	"licensehub/internal/domain"
	"licensehub/internal/infrastructure"
)

// Handler consumes one event. Handlers must be safe for concurrent
// use; a failing handler never affects its siblings.
type Handler interface {
	Name() string
	Handle(ctx context.Context, e domain.Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, e domain.Event) error
}

// Name returns the handler's name for logging.
func (h HandlerFunc) Name() string { return h.HandlerName }

// Handle invokes the wrapped function.
func (h HandlerFunc) Handle(ctx context.Context, e domain.Event) error { return h.Fn(ctx, e) }

// Bus publishes domain events.
type Bus interface {
	Publish(ctx context.Context, events ...domain.Event)
}

// MemoryBus dispatches events to in-process handlers. Each handler runs
// in its own goroutine; panics and errors are logged and isolated.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	wg       sync.WaitGroup
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for the given event types. An empty
// list subscribes to every event type.
func (b *MemoryBus) Subscribe(h Handler, eventTypes ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(eventTypes) == 0 {
		eventTypes = domain.AllEventTypes
	}
	for _, et := range eventTypes {
		b.handlers[et] = append(b.handlers[et], h)
	}
}

// Publish fans each event out to its subscribers concurrently and
// returns once every handler has completed. Callers therefore observe
// handler side effects, cache eviction in particular, before their own
// response is written.
func (b *MemoryBus) Publish(ctx context.Context, events ...domain.Event) {
	b.mu.RLock()
	var wg sync.WaitGroup
	for _, e := range events {
		for _, h := range b.handlers[e.Type] {
			b.wg.Add(1)
			wg.Add(1)
			go func(h Handler, e domain.Event) {
				defer wg.Done()
				b.dispatch(ctx, h, e)
			}(h, e)
		}
	}
	b.mu.RUnlock()
	wg.Wait()
}

func (b *MemoryBus) dispatch(ctx context.Context, h Handler, e domain.Event) {
	defer b.wg.Done()
	logger := infrastructure.LoggerWithContext(ctx).With(
		"handler", h.Name(), "event_type", e.Type, "event_id", e.ID.String())
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked", "panic", r)
		}
	}()
	if err := h.Handle(ctx, e); err != nil {
		logger.Error("event handler failed", "error", err)
	}
}

// Wait blocks until all in-flight handlers finish. Used on shutdown.
func (b *MemoryBus) Wait() {
	b.wg.Wait()
}

// FanoutBus publishes to several buses in order.
type FanoutBus []Bus

// Publish forwards the events to every bus.
func (f FanoutBus) Publish(ctx context.Context, events ...domain.Event) {
	for _, b := range f {
		b.Publish(ctx, events...)
	}
}
