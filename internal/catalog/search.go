package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
)

// ErrSuperseded is returned for a search whose sequence number is older
// than one the same shopper has already issued.
var ErrSuperseded = errors.New("catalog: search superseded by a newer query")

const (
	DefaultSearchLimit = 8
	maxTrackedShoppers = 10000
)

// Result is a search hit with its display pricing.
type Result struct {
	ProductID          string          `json:"productId"`
	Kind               string          `json:"kind"`
	Name               string          `json:"name"`
	Image              string          `json:"image,omitempty"`
	SKU                string          `json:"sku,omitempty"`
	Price              decimal.Decimal `json:"price"`
	BasePrice          decimal.Decimal `json:"basePrice"`
	Savings            decimal.Decimal `json:"savings"`
	DiscountPercentage int64           `json:"discountPercentage"`
	HasDiscount        bool            `json:"hasDiscount"`
}

func newResult(p domain.Product) Result {
	base := p.Base()
	b := pricing.Breakdown(pricing.ProductInput(p))
	kind := "standalone"
	switch p.(type) {
	case domain.BundleItem:
		kind = "bundle_item"
	case domain.ProtectionPlan:
		kind = "protection_plan"
	}
	return Result{
		ProductID:          base.ProductID,
		Kind:               kind,
		Name:               base.Name,
		Image:              base.Image,
		SKU:                base.SKU,
		Price:              b.CurrentPrice,
		BasePrice:          b.BasePrice,
		Savings:            b.Savings,
		DiscountPercentage: b.DiscountPercentage,
		HasDiscount:        b.HasDiscount,
	}
}

// Searcher runs product searches and drops results that a later query from
// the same shopper has made obsolete.
type Searcher struct {
	source Source
	limit  int

	mu     sync.Mutex
	latest map[string]uint64
}

func NewSearcher(source Source, limit int) *Searcher {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return &Searcher{source: source, limit: limit, latest: make(map[string]uint64)}
}

// Search queries products for shopper. seq must grow with every keystroke;
// a result is only returned if no higher seq was seen for shopper by the
// time it arrives.
func (s *Searcher) Search(ctx context.Context, shopper string, seq uint64, query string) ([]Result, error) {
	if !s.claim(shopper, seq) {
		return nil, ErrSuperseded
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return []Result{}, nil
	}

	products, err := s.source.SearchProducts(ctx, query, s.limit)
	if err != nil {
		return nil, err
	}

	if !s.current(shopper, seq) {
		return nil, ErrSuperseded
	}

	results := make([]Result, 0, len(products))
	for _, p := range products {
		if p == nil || p.Base().ProductID == "" {
			continue
		}
		results = append(results, newResult(p))
	}
	return results, nil
}

func (s *Searcher) claim(shopper string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.latest[shopper]
	if ok && seq < last {
		return false
	}
	if !ok && len(s.latest) >= maxTrackedShoppers {
		clear(s.latest)
	}
	s.latest[shopper] = seq
	return true
}

func (s *Searcher) current(shopper string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[shopper] == seq
}
