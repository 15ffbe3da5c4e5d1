package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
)

type wireOrderItem struct {
	Product            string `json:"product"`
	Name               string `json:"name"`
	Image              string `json:"image,omitempty"`
	Price              amount `json:"price"`
	Quantity           int    `json:"quantity"`
	BundleID           string `json:"bundleId,omitempty"`
	SelectedColorIndex *int   `json:"selectedColorIndex,omitempty"`
	SelectedDosIndex   *int   `json:"selectedDosIndex,omitempty"`
	ColorName          string `json:"colorName,omitempty"`
	DosName            string `json:"dosName,omitempty"`
	IsProtection       bool   `json:"isProtection,omitempty"`
	ProtectionFor      string `json:"protectionFor,omitempty"`
}

type wireOrder struct {
	OrderItems      []wireOrderItem         `json:"orderItems"`
	ItemsPrice      amount                  `json:"itemsPrice"`
	ShippingPrice   amount                  `json:"shippingPrice"`
	DiscountAmount  amount                  `json:"discountAmount"`
	TotalPrice      amount                  `json:"totalPrice"`
	CouponCode      string                  `json:"couponCode,omitempty"`
	DeliveryType    domain.DeliveryType     `json:"deliveryType"`
	DeliveryOption  string                  `json:"deliveryOption,omitempty"`
	PaymentMethod   domain.PaymentMethod    `json:"paymentMethod"`
	ShippingAddress *domain.ShippingAddress `json:"shippingAddress,omitempty"`
	PickupDetails   *domain.PickupDetails   `json:"pickupDetails,omitempty"`
	GuestInfo       *domain.GuestInfo       `json:"guestInfo,omitempty"`
	CustomerNotes   string                  `json:"customerNotes,omitempty"`
}

func toWireOrder(o domain.OrderSubmission) wireOrder {
	w := wireOrder{
		OrderItems:      make([]wireOrderItem, 0, len(o.OrderItems)),
		ItemsPrice:      amount(o.ItemsPrice),
		ShippingPrice:   amount(o.ShippingPrice),
		DiscountAmount:  amount(o.DiscountAmount),
		TotalPrice:      amount(o.TotalPrice),
		CouponCode:      o.CouponCode,
		DeliveryType:    o.DeliveryType,
		DeliveryOption:  o.DeliveryOption,
		PaymentMethod:   o.PaymentMethod,
		ShippingAddress: o.ShippingAddress,
		PickupDetails:   o.PickupDetails,
		GuestInfo:       o.Guest,
		CustomerNotes:   o.CustomerNotes,
	}
	for _, it := range o.OrderItems {
		w.OrderItems = append(w.OrderItems, wireOrderItem{
			Product:            it.Product,
			Name:               it.Name,
			Image:              it.Image,
			Price:              amount(it.Price),
			Quantity:           it.Quantity,
			BundleID:           it.BundleID,
			SelectedColorIndex: it.Variant.ColorIndex,
			SelectedDosIndex:   it.Variant.DosIndex,
			ColorName:          it.Variant.ColorName,
			DosName:            it.Variant.DosName,
			IsProtection:       it.IsProtection,
			ProtectionFor:      it.ProtectionFor,
		})
	}
	return w
}

type wirePlacedOrder struct {
	MongoID    string          `json:"_id"`
	ID         string          `json:"id"`
	OrderID    string          `json:"orderId"`
	Status     string          `json:"status"`
	TotalPrice json.RawMessage `json:"totalPrice"`
}

// CreateOrder calls POST /api/orders. The idempotency key is forwarded so a
// resubmitted request cannot create a second order.
func (c *Client) CreateOrder(ctx context.Context, order domain.OrderSubmission, idempotencyKey string) (domain.PlacedOrder, error) {
	opts := requestOptions{body: toWireOrder(order)}
	if idempotencyKey != "" {
		opts.headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}

	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/api/orders", opts, &raw); err != nil {
		return domain.PlacedOrder{}, err
	}

	var wp wirePlacedOrder
	if err := json.Unmarshal(unwrapObject(raw, "order"), &wp); err != nil {
		return domain.PlacedOrder{}, fmt.Errorf("decode order: %w", err)
	}
	placed := domain.PlacedOrder{
		ID:         firstNonEmpty(wp.MongoID, wp.ID, wp.OrderID),
		Status:     wp.Status,
		TotalPrice: pricing.Coerce(wp.TotalPrice),
	}
	if placed.ID == "" {
		return domain.PlacedOrder{}, fmt.Errorf("decode order: response carries no order id")
	}
	return placed, nil
}
