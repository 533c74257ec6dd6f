package messaging

import (
	"context"

	"github.com/0xsj/overwatch-revocation/internal/domain/event"
)

// EventPublisher defines the interface for publishing domain events.
type EventPublisher interface {
	// Publish publishes a single event.
	Publish(ctx context.Context, evt event.Event) error

	// PublishAll publishes multiple events.
	PublishAll(ctx context.Context, events []event.Event) error
}

// Topic names for revocation events.
const (
	TopicTokenEvents    = "revocation.token"
	TopicUserEvents     = "revocation.user"
	TopicRegistryEvents = "revocation.registry"
)

// TopicForEvent returns the appropriate topic for an event type.
func TopicForEvent(evt event.Event) string {
	switch evt.EventType() {
	case event.EventTypeTokenRevoked:
		return TopicTokenEvents
	case event.EventTypeUserTokensRevoked:
		return TopicUserEvents
	default:
		return TopicRegistryEvents
	}
}

// NopPublisher discards events. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, event.Event) error      { return nil }
func (NopPublisher) PublishAll(context.Context, []event.Event) error { return nil }
