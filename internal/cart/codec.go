package cart

import (
	"encoding/json"
	"time"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
)

// Storage keys shared with the legacy browser client.
const (
	KeyCart         = "cart"
	KeyBundleGroups = "bundleGroups"
)

// storedLine mirrors domain.CartLine with raw price and quantity fields so a
// single malformed value degrades to zero instead of failing the whole cart.
type storedLine struct {
	CartID         string          `json:"cartId"`
	ProductID      string          `json:"productId"`
	BundleID       *string         `json:"bundleId"`
	Name           string          `json:"name"`
	Image          string          `json:"image"`
	SKU            string          `json:"sku"`
	Variant        domain.Variant  `json:"variant"`
	ColorIndex     *int            `json:"selectedColorIndex"`
	DosIndex       *int            `json:"selectedDosIndex"`
	Price          json.RawMessage `json:"price"`
	OriginalPrice  json.RawMessage `json:"originalPrice"`
	OfferPrice     json.RawMessage `json:"offerPrice"`
	BundlePrice    json.RawMessage `json:"bundlePrice"`
	BundleDiscount bool            `json:"bundleDiscount"`
	IsBundleItem   bool            `json:"isBundleItem"`
	IsProtection   bool            `json:"isProtection"`
	ProtectionFor  string          `json:"protectionFor"`
	Quantity       json.RawMessage `json:"quantity"`
	AddedAt        time.Time       `json:"addedAt"`
}

func encodeState(s state) (map[string][]byte, error) {
	lines := s.lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	cartData, err := json.Marshal(lines)
	if err != nil {
		return nil, err
	}
	groupsData, err := json.Marshal(s.groups)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{
		KeyCart:         cartData,
		KeyBundleGroups: groupsData,
	}, nil
}

// decodeLines parses the persisted cart. Lines without a product id or a
// positive quantity are dropped. A document that is not a JSON array of
// objects returns an error and the caller starts from an empty cart.
func decodeLines(data []byte) ([]domain.CartLine, error) {
	var stored []json.RawMessage
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}

	lines := make([]domain.CartLine, 0, len(stored))
	for _, raw := range stored {
		var sl storedLine
		if err := json.Unmarshal(raw, &sl); err != nil {
			continue
		}
		line, ok := sl.toLine()
		if !ok {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (sl storedLine) toLine() (domain.CartLine, bool) {
	quantity := pricing.CoerceInt(sl.Quantity)
	if sl.ProductID == "" || quantity < 1 {
		return domain.CartLine{}, false
	}

	variant := sl.Variant
	// older clients stored the selectors at the top level
	if variant.ColorIndex == nil {
		variant.ColorIndex = sl.ColorIndex
	}
	if variant.DosIndex == nil {
		variant.DosIndex = sl.DosIndex
	}

	var bundleID string
	if sl.BundleID != nil {
		bundleID = *sl.BundleID
	}

	line := domain.CartLine{
		CartID:         sl.CartID,
		ProductID:      sl.ProductID,
		BundleID:       bundleID,
		Name:           sl.Name,
		Image:          sl.Image,
		SKU:            sl.SKU,
		Variant:        variant,
		Price:          pricing.Coerce(sl.Price),
		OriginalPrice:  pricing.Coerce(sl.OriginalPrice),
		OfferPrice:     pricing.Coerce(sl.OfferPrice),
		BundlePrice:    pricing.Coerce(sl.BundlePrice),
		BundleDiscount: sl.BundleDiscount,
		IsBundleItem:   sl.IsBundleItem,
		IsProtection:   sl.IsProtection,
		ProtectionFor:  sl.ProtectionFor,
		Quantity:       quantity,
		AddedAt:        sl.AddedAt,
	}
	if line.CartID == "" {
		line.CartID = lineKey(line.ProductID, line.BundleID, line.Variant, line.AddedAt)
	}
	return line, true
}

func decodeGroups(data []byte) (domain.BundleGroups, error) {
	var groups domain.BundleGroups
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, err
	}
	if groups == nil {
		groups = domain.BundleGroups{}
	}
	return groups, nil
}
