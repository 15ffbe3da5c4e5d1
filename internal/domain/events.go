package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EventName string

const (
	EventAddToCart         EventName = "add_to_cart"
	EventRemoveFromCart    EventName = "remove_from_cart"
	EventRemoveBundle      EventName = "remove_bundle_from_cart"
	EventClearCart         EventName = "clear_cart"
	EventApplyCoupon       EventName = "apply_coupon"
	EventBeginCheckout     EventName = "begin_checkout"
	EventPurchase          EventName = "purchase"
	EventPaymentRedirected EventName = "payment_redirected"
)

// CartEvent is an analytics notification emitted after a cart or checkout
// state change has been committed.
type CartEvent struct {
	ID         string          `json:"id"`
	Name       EventName       `json:"name"`
	SessionID  string          `json:"session_id"`
	ProductID  string          `json:"product_id,omitempty"`
	BundleID   string          `json:"bundle_id,omitempty"`
	OrderID    string          `json:"order_id,omitempty"`
	Payment    PaymentMethod   `json:"payment_method,omitempty"`
	Coupon     string          `json:"coupon,omitempty"`
	Quantity   int             `json:"quantity,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Value      decimal.Decimal `json:"value"`
	OccurredAt time.Time       `json:"occurred_at"`
}
