package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

type Coupon struct {
	Code          string          `json:"code"`
	DiscountType  DiscountType    `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	Description   string          `json:"description,omitempty"`
	MinOrderValue decimal.Decimal `json:"minOrderValue"`
	ExpiresAt     *time.Time      `json:"expiresAt,omitempty"`
}

// AppliedCoupon is a coupon accepted by the coupon service together with
// the discount it computed for the cart contents at validation time.
type AppliedCoupon struct {
	Coupon         Coupon          `json:"coupon"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

type DeliveryOption struct {
	Name         string          `json:"name"`
	Charge       decimal.Decimal `json:"charge"`
	DeliveryTime string          `json:"deliveryTime,omitempty"`
}

// TaxSetting is the VAT configuration published by the backend. Prices are
// tax inclusive; the rate is a percentage.
type TaxSetting struct {
	Name    string          `json:"name"`
	Rate    decimal.Decimal `json:"rate"`
	Enabled bool            `json:"enabled"`
}
