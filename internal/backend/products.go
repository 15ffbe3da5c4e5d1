package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
)

// wireProduct is the loosely typed product document served by the API.
type wireProduct struct {
	MongoID        string          `json:"_id"`
	ID             string          `json:"id"`
	ProductID      string          `json:"productId"`
	Name           string          `json:"name"`
	Image          string          `json:"image"`
	Images         []string        `json:"images"`
	SKU            string          `json:"sku"`
	Price          json.RawMessage `json:"price"`
	OriginalPrice  json.RawMessage `json:"originalPrice"`
	BasePrice      json.RawMessage `json:"basePrice"`
	OfferPrice     json.RawMessage `json:"offerPrice"`
	BundlePrice    json.RawMessage `json:"bundlePrice"`
	BundleDiscount json.RawMessage `json:"bundleDiscount"`
	IsBundleItem   json.RawMessage `json:"isBundleItem"`
	IsProtection   json.RawMessage `json:"isProtection"`
	ProtectionFor  string          `json:"protectionFor"`
	PlanName       string          `json:"planName"`
	ColorIndex     *int            `json:"selectedColorIndex"`
	DosIndex       *int            `json:"selectedDosIndex"`
	ColorName      string          `json:"colorName"`
	DosName        string          `json:"dosName"`
}

var ErrNotAProduct = errors.New("backend: product payload is not an object")

// DecodeProduct turns a product document into the matching product variant.
// Price fields are coerced leniently; a missing id is left empty for the
// caller to reject.
func DecodeProduct(raw json.RawMessage) (domain.Product, error) {
	var wp wireProduct
	if err := json.Unmarshal(raw, &wp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAProduct, err)
	}
	return wp.toProduct(), nil
}

func (wp wireProduct) toProduct() domain.Product {
	image := wp.Image
	if image == "" && len(wp.Images) > 0 {
		image = wp.Images[0]
	}

	original := pricing.Coerce(wp.OriginalPrice)
	if !original.IsPositive() {
		original = pricing.Coerce(wp.BasePrice)
	}

	listing := domain.Listing{
		ProductID:     firstNonEmpty(wp.ProductID, wp.MongoID, wp.ID),
		Name:          wp.Name,
		Image:         image,
		SKU:           wp.SKU,
		Price:         pricing.Coerce(wp.Price),
		OriginalPrice: original,
		OfferPrice:    pricing.Coerce(wp.OfferPrice),
		Variant: domain.Variant{
			ColorIndex: wp.ColorIndex,
			DosIndex:   wp.DosIndex,
			ColorName:  wp.ColorName,
			DosName:    wp.DosName,
		},
	}

	switch {
	case rawBool(wp.IsProtection):
		return domain.ProtectionPlan{Listing: listing, ProtectionFor: wp.ProtectionFor, PlanName: wp.PlanName}
	case rawBool(wp.IsBundleItem) || rawBool(wp.BundleDiscount):
		return domain.BundleItem{
			Listing:        listing,
			BundlePrice:    pricing.Coerce(wp.BundlePrice),
			BundleDiscount: rawBool(wp.BundleDiscount),
		}
	default:
		return domain.Standalone{Listing: listing}
	}
}

func decodeProducts(raw json.RawMessage) ([]domain.Product, error) {
	list := unwrapList(raw, "products", "items")
	if list == nil {
		return []domain.Product{}, nil
	}
	var wire []wireProduct
	if err := json.Unmarshal(list, &wire); err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(wire))
	for _, wp := range wire {
		products = append(products, wp.toProduct())
	}
	return products, nil
}

// SearchProducts calls GET /api/products?search=&limit=.
func (c *Client) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	q := url.Values{}
	q.Set("search", query)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var raw json.RawMessage
	if err := c.get(ctx, "/api/products", q, &raw); err != nil {
		return nil, err
	}
	products, err := decodeProducts(raw)
	if err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

// ProductsBySKUs calls POST /api/products/by-skus.
func (c *Client) ProductsBySKUs(ctx context.Context, skus []string) ([]domain.Product, error) {
	if len(skus) == 0 {
		return []domain.Product{}, nil
	}
	var raw json.RawMessage
	if err := c.post(ctx, "/api/products/by-skus", map[string][]string{"skus": skus}, &raw); err != nil {
		return nil, err
	}
	products, err := decodeProducts(raw)
	if err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}
