// Package events publishes pool state transitions to in-process subscribers.
package events

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
)

// Event is implemented by every published state transition.
type Event interface {
	EventName() string
}

// Handler consumes an event. Handlers must not call back into the publisher.
type Handler func(ctx context.Context, event Event)

// Bus dispatches events to handlers keyed by the event's Go type name.
type Bus struct {
	mx       sync.RWMutex
	handlers map[string][]Handler
	all      []Handler
}

// NewBus returns a bus with no subscribers.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers handler for events of the same type as event.
func (b *Bus) Subscribe(event Event, handler Handler) *Bus {
	b.mx.Lock()
	defer b.mx.Unlock()
	name := reflect.TypeOf(event).Name()
	b.handlers[name] = append(b.handlers[name], handler)
	return b
}

// SubscribeAll registers handler for every event.
func (b *Bus) SubscribeAll(handler Handler) *Bus {
	b.mx.Lock()
	defer b.mx.Unlock()
	b.all = append(b.all, handler)
	return b
}

// Publish delivers event synchronously. A nil bus drops the event.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	b.mx.RLock()
	handlers := append([]Handler(nil), b.handlers[reflect.TypeOf(event).Name()]...)
	handlers = append(handlers, b.all...)
	b.mx.RUnlock()

	for _, h := range handlers {
		h(ctx, event)
	}
}

// Typed adapts a handler for one concrete event type.
func Typed[T Event](fn func(ctx context.Context, event T)) Handler {
	return func(ctx context.Context, event Event) {
		if typed, ok := event.(T); ok {
			fn(ctx, typed)
		}
	}
}

// On subscribes fn to events of type T.
func On[T Event](b *Bus, fn func(ctx context.Context, event T)) {
	var zero T
	b.Subscribe(zero, Typed(fn))
}

// LogSink writes every event to logger at info level.
func LogSink(logger *slog.Logger) Handler {
	return func(ctx context.Context, event Event) {
		logger.InfoContext(ctx, "pool event", slog.String("event", event.EventName()), slog.Any("payload", event))
	}
}
