package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

// bundleMarkdown is the multiplier applied to the original price of lines
// carrying the bundle-discount flag.
var bundleMarkdown = decimal.RequireFromString("0.75")

var hundred = decimal.NewFromInt(100)

// Rule identifies which price field determined a resolved unit price.
type Rule int

const (
	RuleBasePrice Rule = iota
	RuleBundlePrice
	RuleBundleDiscount
	RuleOfferPrice
)

func (r Rule) String() string {
	switch r {
	case RuleBundlePrice:
		return "bundle_price"
	case RuleBundleDiscount:
		return "bundle_discount"
	case RuleOfferPrice:
		return "offer_price"
	default:
		return "base_price"
	}
}

// Input carries the competing price fields of a line or product.
type Input struct {
	Price          decimal.Decimal
	OriginalPrice  decimal.Decimal
	BasePrice      decimal.Decimal
	OfferPrice     decimal.Decimal
	BundlePrice    decimal.Decimal
	IsBundleItem   bool
	BundleDiscount bool
}

type Resolution struct {
	UnitPrice decimal.Decimal
	Rule      Rule
}

// Resolve picks the effective unit price. The first matching rule wins:
// bundle price, bundle discount, offer price, then the plain price.
func Resolve(in Input) Resolution {
	switch {
	case in.IsBundleItem && in.BundlePrice.IsPositive():
		return Resolution{UnitPrice: in.BundlePrice, Rule: RuleBundlePrice}
	case in.BundleDiscount && in.OriginalPrice.IsPositive():
		return Resolution{UnitPrice: in.OriginalPrice.Mul(bundleMarkdown), Rule: RuleBundleDiscount}
	case in.OfferPrice.IsPositive():
		return Resolution{UnitPrice: in.OfferPrice, Rule: RuleOfferPrice}
	}
	price := in.Price
	if price.IsNegative() {
		price = decimal.Zero
	}
	return Resolution{UnitPrice: price, Rule: RuleBasePrice}
}

func UnitPrice(in Input) decimal.Decimal {
	return Resolve(in).UnitPrice
}

type PriceBreakdown struct {
	BasePrice          decimal.Decimal
	CurrentPrice       decimal.Decimal
	Savings            decimal.Decimal
	DiscountPercentage int64
	HasDiscount        bool
}

// Breakdown compares the resolved price against the reference price
// (original price, then base price, then price).
func Breakdown(in Input) PriceBreakdown {
	base := firstPositive(in.OriginalPrice, in.BasePrice, in.Price)
	current := UnitPrice(in)

	savings := base.Sub(current)
	if savings.IsNegative() {
		savings = decimal.Zero
	}

	var pct int64
	if base.IsPositive() {
		pct = savings.Div(base).Mul(hundred).Round(0).IntPart()
	}

	return PriceBreakdown{
		BasePrice:          base,
		CurrentPrice:       current,
		Savings:            savings,
		DiscountPercentage: pct,
		HasDiscount:        savings.IsPositive(),
	}
}

func firstPositive(values ...decimal.Decimal) decimal.Decimal {
	for _, v := range values {
		if v.IsPositive() {
			return v
		}
	}
	return decimal.Zero
}

// LineInput extracts the price fields of a cart line.
func LineInput(l domain.CartLine) Input {
	return Input{
		Price:          l.Price,
		OriginalPrice:  l.OriginalPrice,
		OfferPrice:     l.OfferPrice,
		BundlePrice:    l.BundlePrice,
		IsBundleItem:   l.IsBundleItem,
		BundleDiscount: l.BundleDiscount,
	}
}

// ProductInput extracts the price fields of a product about to be added.
func ProductInput(p domain.Product) Input {
	base := p.Base()
	in := Input{
		Price:         base.Price,
		OriginalPrice: base.OriginalPrice,
		OfferPrice:    base.OfferPrice,
	}
	if b, ok := p.(domain.BundleItem); ok {
		in.IsBundleItem = true
		in.BundlePrice = b.BundlePrice
		in.BundleDiscount = b.BundleDiscount
	}
	return in
}

// LineTotal is the resolved unit price times the quantity. Non-positive
// quantities contribute nothing.
func LineTotal(l domain.CartLine) decimal.Decimal {
	if l.Quantity <= 0 {
		return decimal.Zero
	}
	return UnitPrice(LineInput(l)).Mul(decimal.NewFromInt(int64(l.Quantity)))
}
