package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-otel/internal/cart"
	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
)

// BuildOrder snapshots the cart and draft into the order payload. Item
// prices are the resolved unit prices and itemsPrice is the cart total.
func BuildOrder(snap cart.Snapshot, draft Draft, summary pricing.Summary, method domain.PaymentMethod) domain.OrderSubmission {
	items := make([]domain.OrderItem, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		items = append(items, domain.OrderItem{
			Product:       l.ProductID,
			Name:          l.Name,
			Image:         l.Image,
			Price:         pricing.UnitPrice(pricing.LineInput(l)),
			Quantity:      l.Quantity,
			BundleID:      l.BundleID,
			Variant:       l.Variant,
			IsProtection:  l.IsProtection,
			ProtectionFor: l.ProtectionFor,
		})
	}

	order := domain.OrderSubmission{
		OrderItems:     items,
		ItemsPrice:     snap.Total,
		ShippingPrice:  summary.DeliveryCharge,
		DiscountAmount: summary.CouponDiscount,
		TotalPrice:     summary.Total,
		DeliveryType:   draft.DeliveryType,
		PaymentMethod:  method,
		Guest:          draft.Guest,
		CustomerNotes:  draft.Notes,
	}
	if snap.Coupon != nil && summary.CouponDiscount.GreaterThan(decimal.Zero) {
		order.CouponCode = snap.Coupon.Coupon.Code
	}
	if draft.DeliveryType == domain.DeliveryTypePickup {
		order.PickupDetails = draft.PickupDetails
	} else {
		order.ShippingAddress = draft.ShippingAddress
		order.DeliveryOption = draft.DeliveryOption
	}
	return order
}

// Fingerprint identifies the priced contents of snap: its lines, their
// resolved prices and the applied coupon.
func Fingerprint(snap cart.Snapshot) string {
	h := sha256.New()
	for _, l := range snap.Lines {
		fmt.Fprintf(h, "%s|%s|%v|%d|%s\n", l.ProductID, l.BundleID, l.Variant, l.Quantity, pricing.UnitPrice(pricing.LineInput(l)))
	}
	fmt.Fprintf(h, "total=%s\n", snap.Total)
	if snap.Coupon != nil {
		fmt.Fprintf(h, "coupon=%s|%s\n", snap.Coupon.Coupon.Code, snap.Coupon.DiscountAmount)
	}
	return hex.EncodeToString(h.Sum(nil))
}
