package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

// DefaultFreeShippingThreshold is the cart total above which delivery is free.
var DefaultFreeShippingThreshold = decimal.NewFromInt(500)

// Compositor combines the cart total, the selected delivery option and an
// applied coupon into the payable amount.
type Compositor struct {
	threshold decimal.Decimal
}

// NewCompositor returns a Compositor using threshold for free shipping. A
// negative threshold falls back to the default.
func NewCompositor(threshold decimal.Decimal) Compositor {
	if threshold.IsNegative() {
		threshold = DefaultFreeShippingThreshold
	}
	return Compositor{threshold: threshold}
}

func (c Compositor) Threshold() decimal.Decimal {
	return c.threshold
}

type Composition struct {
	CartTotal      decimal.Decimal
	Delivery       *domain.DeliveryOption
	CouponDiscount decimal.Decimal
	TaxRate        decimal.Decimal
}

type Summary struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryCharge decimal.Decimal `json:"deliveryCharge"`
	CouponDiscount decimal.Decimal `json:"couponDiscount"`
	// Tax is always zero: displayed prices already include it.
	Tax          decimal.Decimal `json:"tax"`
	IncludedTax  decimal.Decimal `json:"includedTax"`
	Total        decimal.Decimal `json:"total"`
	FreeShipping bool            `json:"freeShipping"`
	// AmountToFreeShipping is how much more the cart needs before delivery
	// becomes free; zero once it qualifies.
	AmountToFreeShipping decimal.Decimal `json:"amountToFreeShipping"`
}

// DeliveryCharge is zero when no option is selected or the cart total
// exceeds the threshold, otherwise the option's flat charge.
func (c Compositor) DeliveryCharge(cartTotal decimal.Decimal, opt *domain.DeliveryOption) decimal.Decimal {
	if opt == nil || cartTotal.GreaterThan(c.threshold) {
		return decimal.Zero
	}
	if opt.Charge.IsNegative() {
		return decimal.Zero
	}
	return opt.Charge
}

func (c Compositor) Compose(in Composition) Summary {
	delivery := c.DeliveryCharge(in.CartTotal, in.Delivery)

	discount := in.CouponDiscount
	if discount.IsNegative() {
		discount = decimal.Zero
	}

	total := in.CartTotal.Add(delivery).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	free := in.CartTotal.GreaterThan(c.threshold)
	toFree := decimal.Zero
	if !free {
		// strictly greater than the threshold qualifies
		toFree = c.threshold.Sub(in.CartTotal).Add(decimal.New(1, -2))
	}

	return Summary{
		Subtotal:             in.CartTotal,
		DeliveryCharge:       delivery,
		CouponDiscount:       discount,
		Tax:                  decimal.Zero,
		IncludedTax:          includedTax(total, in.TaxRate),
		Total:                total,
		FreeShipping:         free,
		AmountToFreeShipping: toFree,
	}
}

func includedTax(total, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() || !total.IsPositive() {
		return decimal.Zero
	}
	return total.Mul(rate).Div(hundred.Add(rate)).Round(2)
}
