package cart

import (
	"context"
	"errors"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

// Notifier receives analytics events after a cart change is committed.
// Delivery is best effort: errors are logged by the store and never undo
// or fail the change.
type Notifier interface {
	Notify(ctx context.Context, event domain.CartEvent) error
}

type NotifierFunc func(ctx context.Context, event domain.CartEvent) error

func (f NotifierFunc) Notify(ctx context.Context, event domain.CartEvent) error {
	return f(ctx, event)
}

// Notifiers fans an event out to every notifier.
type Notifiers []Notifier

func (n Notifiers) Notify(ctx context.Context, event domain.CartEvent) error {
	var errs []error
	for _, notifier := range n {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
