package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
)

type couponCartItem struct {
	Product  string `json:"product"`
	Qty      int    `json:"qty"`
	Price    amount `json:"price"`
	BundleID string `json:"bundleId,omitempty"`
}

type validateCouponRequest struct {
	Code      string           `json:"code"`
	CartItems []couponCartItem `json:"cartItems"`
}

type wireCoupon struct {
	Code          string          `json:"code"`
	DiscountType  string          `json:"discountType"`
	DiscountValue json.RawMessage `json:"discountValue"`
	Description   string          `json:"description"`
	MinOrderValue json.RawMessage `json:"minOrderValue"`
	ExpiresAt     *time.Time      `json:"expiresAt"`
}

func (wc wireCoupon) toCoupon() domain.Coupon {
	return domain.Coupon{
		Code:          wc.Code,
		DiscountType:  domain.DiscountType(wc.DiscountType),
		DiscountValue: pricing.Coerce(wc.DiscountValue),
		Description:   wc.Description,
		MinOrderValue: pricing.Coerce(wc.MinOrderValue),
		ExpiresAt:     wc.ExpiresAt,
	}
}

type validateCouponResponse struct {
	Coupon         wireCoupon      `json:"coupon"`
	DiscountAmount json.RawMessage `json:"discountAmount"`
}

// ValidateCoupon calls POST /api/coupons/validate with the current lines.
// A rejected code surfaces as a *StatusError whose Rejected() is true.
func (c *Client) ValidateCoupon(ctx context.Context, code string, lines []domain.CartLine) (domain.AppliedCoupon, error) {
	req := validateCouponRequest{Code: code, CartItems: make([]couponCartItem, 0, len(lines))}
	for _, l := range lines {
		req.CartItems = append(req.CartItems, couponCartItem{
			Product:  l.ProductID,
			Qty:      l.Quantity,
			Price:    amount(pricing.UnitPrice(pricing.LineInput(l))),
			BundleID: l.BundleID,
		})
	}

	var resp validateCouponResponse
	if err := c.post(ctx, "/api/coupons/validate", req, &resp); err != nil {
		return domain.AppliedCoupon{}, err
	}

	return domain.AppliedCoupon{
		Coupon:         resp.Coupon.toCoupon(),
		DiscountAmount: pricing.Coerce(resp.DiscountAmount),
	}, nil
}

// Coupons calls GET /api/coupons for promotional display.
func (c *Client) Coupons(ctx context.Context) ([]domain.Coupon, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/coupons", nil, &raw); err != nil {
		return nil, err
	}
	list := unwrapList(raw, "coupons")
	if list == nil {
		return []domain.Coupon{}, nil
	}
	var wire []wireCoupon
	if err := json.Unmarshal(list, &wire); err != nil {
		return nil, fmt.Errorf("decode coupons: %w", err)
	}
	out := make([]domain.Coupon, 0, len(wire))
	for _, wc := range wire {
		out = append(out, wc.toCoupon())
	}
	return out, nil
}
