package analytics

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores ev and reports whether it was new. Redelivered events are
// ignored by id.
func (r *Repository) Insert(ctx context.Context, ev domain.CartEvent) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO analytics_events (
			id, name, session_id, product_id, bundle_id, order_id,
			payment_method, coupon, quantity, price, value, occurred_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.Name, ev.SessionID, ev.ProductID, ev.BundleID, ev.OrderID,
		string(ev.Payment), ev.Coupon, ev.Quantity, ev.Price, ev.Value, ev.OccurredAt)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EventCount aggregates one event name over a time window.
type EventCount struct {
	Name     domain.EventName `json:"name"`
	Events   int64            `json:"events"`
	Sessions int64            `json:"sessions"`
	Value    decimal.Decimal  `json:"value"`
}

// Summary counts events per name since the given time, optionally limited
// to names.
func (r *Repository) Summary(ctx context.Context, since time.Time, names []domain.EventName) ([]EventCount, error) {
	filter := make([]string, 0, len(names))
	for _, n := range names {
		filter = append(filter, string(n))
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT name, COUNT(*), COUNT(DISTINCT session_id), COALESCE(SUM(value), 0)
		FROM analytics_events
		WHERE occurred_at >= $1
		  AND (cardinality($2::text[]) = 0 OR name = ANY($2))
		GROUP BY name
		ORDER BY name
	`, since, pq.Array(filter))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := []EventCount{}
	for rows.Next() {
		var c EventCount
		if err := rows.Scan(&c.Name, &c.Events, &c.Sessions, &c.Value); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// SessionEvents returns the events of one session in the order they occurred.
func (r *Repository) SessionEvents(ctx context.Context, sessionID string) ([]domain.CartEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, session_id, product_id, bundle_id, order_id,
		       payment_method, coupon, quantity, price, value, occurred_at
		FROM analytics_events
		WHERE session_id = $1
		ORDER BY occurred_at, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []domain.CartEvent
	for rows.Next() {
		var (
			ev      domain.CartEvent
			payment string
		)
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.SessionID, &ev.ProductID, &ev.BundleID, &ev.OrderID,
			&payment, &ev.Coupon, &ev.Quantity, &ev.Price, &ev.Value, &ev.OccurredAt); err != nil {
			return nil, err
		}
		ev.Payment = domain.PaymentMethod(payment)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
