package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/messaging"
)

// EventStore is the persistence the recorder writes to.
type EventStore interface {
	Insert(ctx context.Context, ev domain.CartEvent) (bool, error)
}

// Recorder consumes the cart-events stream and stores every event.
type Recorder struct {
	store  EventStore
	logger *slog.Logger
}

func NewRecorder(store EventStore, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Handle is a messaging.Handler. Undecodable or anonymous events are
// skipped; storage failures stop the consumer so the message is retried
// after a restart.
func (r *Recorder) Handle(ctx context.Context, msg messaging.Message) error {
	var ev domain.CartEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("decode cart event at offset %d: %w: %w", msg.Offset, messaging.ErrSkip, err)
	}
	if ev.Name == "" || ev.SessionID == "" {
		return fmt.Errorf("cart event at offset %d has no name or session: %w", msg.Offset, messaging.ErrSkip)
	}
	if _, err := uuid.Parse(ev.ID); err != nil {
		return fmt.Errorf("cart event at offset %d has invalid id %q: %w", msg.Offset, ev.ID, messaging.ErrSkip)
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = msg.Time.UTC()
	}

	inserted, err := r.store.Insert(ctx, ev)
	if err != nil {
		return fmt.Errorf("store cart event %s: %w", ev.ID, err)
	}
	if !inserted {
		r.logger.Info("duplicate cart event ignored", "event_id", ev.ID, "event", ev.Name)
		return nil
	}

	r.logger.Info("cart event recorded", "event_id", ev.ID, "event", ev.Name, "session_id", ev.SessionID)
	return nil
}
