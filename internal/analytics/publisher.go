// Package analytics ships cart and checkout events off the request path and
// stores them for reporting.
package analytics

import (
	"context"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

// EventPublisher is satisfied by *messaging.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Publisher forwards cart events to the event stream keyed by session, so
// one shopper's events stay ordered. It is a cart.Notifier.
type Publisher struct {
	events EventPublisher
}

func NewPublisher(events EventPublisher) *Publisher {
	return &Publisher{events: events}
}

func (p *Publisher) Notify(ctx context.Context, event domain.CartEvent) error {
	return p.events.Publish(context.WithoutCancel(ctx), event.SessionID, event)
}
