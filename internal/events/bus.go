package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher for session event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(ConnectionStateEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event dispatches on the concrete type, so fan the interface
	// back out through a type switch.
	switch e := ev.(type) {
	case ConnectionStateEvent:
		event.Publish(b.dispatcher, e)
	case ConfigAppliedEvent:
		event.Publish(b.dispatcher, e)
	case SubscriberLagEvent:
		event.Publish(b.dispatcher, e)
	case SessionClosedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function. The handler's
// parameter type selects which events it receives. Returns an unsubscribe
// function.
// Usage: unsub := bus.Subscribe(func(e ConnectionStateEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ConnectionStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ConfigAppliedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SubscriberLagEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionClosedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Unknown handler type, nothing will ever be delivered.
		return func() {}
	}
}
