package shared

import "context"

// EventHandler reacts to published domain events, e.g. the SSE hub or the
// cross-instance relay
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the types to deliver; empty means all of them
	EventTypes() []string
}

// EventPublisher is what services depend on to announce state changes.
// Publishing is best effort: a failing handler never fails the publisher.
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus routes published events to subscribed handlers
type EventBus interface {
	EventPublisher
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
