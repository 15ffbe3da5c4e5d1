package domain

import "github.com/shopspring/decimal"

// Variant holds the optional colour and DOS selectors chosen on the product page.
type Variant struct {
	ColorIndex *int   `json:"selectedColorIndex,omitempty"`
	DosIndex   *int   `json:"selectedDosIndex,omitempty"`
	ColorName  string `json:"colorName,omitempty"`
	DosName    string `json:"dosName,omitempty"`
}

// SameSelection reports whether both variants select the same colour and DOS.
func (v Variant) SameSelection(other Variant) bool {
	return sameIndex(v.ColorIndex, other.ColorIndex) && sameIndex(v.DosIndex, other.DosIndex)
}

func sameIndex(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Listing is the part every purchasable product shares.
type Listing struct {
	ProductID     string
	Name          string
	Image         string
	SKU           string
	Price         decimal.Decimal
	OriginalPrice decimal.Decimal
	OfferPrice    decimal.Decimal
	Variant       Variant
}

// Product is one of Standalone, BundleItem or ProtectionPlan.
type Product interface {
	Base() Listing
	isProduct()
}

// Standalone is an ordinary product sold on its own.
type Standalone struct {
	Listing
}

// BundleItem is a product added as part of a promotional bundle.
// BundleDiscount applies a flat 25% markdown on the original price.
type BundleItem struct {
	Listing
	BundlePrice    decimal.Decimal
	BundleDiscount bool
}

// ProtectionPlan is a warranty line attached to another product.
type ProtectionPlan struct {
	Listing
	ProtectionFor string
	PlanName      string
}

func (p Standalone) Base() Listing     { return p.Listing }
func (p BundleItem) Base() Listing     { return p.Listing }
func (p ProtectionPlan) Base() Listing { return p.Listing }

func (Standalone) isProduct()     {}
func (BundleItem) isProduct()     {}
func (ProtectionPlan) isProduct() {}
