package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLine is one entry of the cart: a product, its variant and a quantity.
type CartLine struct {
	CartID         string          `json:"cartId"`
	ProductID      string          `json:"productId"`
	BundleID       string          `json:"bundleId,omitempty"`
	Name           string          `json:"name"`
	Image          string          `json:"image,omitempty"`
	SKU            string          `json:"sku,omitempty"`
	Variant        Variant         `json:"variant"`
	Price          decimal.Decimal `json:"price"`
	OriginalPrice  decimal.Decimal `json:"originalPrice"`
	OfferPrice     decimal.Decimal `json:"offerPrice"`
	BundlePrice    decimal.Decimal `json:"bundlePrice"`
	BundleDiscount bool            `json:"bundleDiscount,omitempty"`
	IsBundleItem   bool            `json:"isBundleItem,omitempty"`
	IsProtection   bool            `json:"isProtection,omitempty"`
	ProtectionFor  string          `json:"protectionFor,omitempty"`
	Quantity       int             `json:"quantity"`
	AddedAt        time.Time       `json:"addedAt"`
}

// Matches reports whether the line belongs to productID within bundleID.
// An empty bundleID matches standalone lines only.
func (l CartLine) Matches(productID, bundleID string) bool {
	return l.ProductID == productID && l.BundleID == bundleID
}

// BundleGroups maps a bundle id to the product ids added with it.
type BundleGroups map[string][]string

// Clone returns a deep copy.
func (g BundleGroups) Clone() BundleGroups {
	out := make(BundleGroups, len(g))
	for id, products := range g {
		out[id] = append([]string(nil), products...)
	}
	return out
}
