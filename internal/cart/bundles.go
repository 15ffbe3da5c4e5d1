package cart

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
)

type BundleSummary struct {
	Items   []domain.CartLine `json:"items"`
	Total   decimal.Decimal   `json:"total"`
	Savings decimal.Decimal   `json:"savings"`
}

// Grouping partitions cart lines by bundle. Order lists bundle ids in the
// order their first line appears in the cart.
type Grouping struct {
	Grouped    map[string]BundleSummary `json:"grouped"`
	Order      []string                 `json:"order"`
	Standalone []domain.CartLine        `json:"standaloneItems"`
}

func GroupBundles(lines []domain.CartLine) Grouping {
	g := Grouping{
		Grouped:    make(map[string]BundleSummary),
		Standalone: []domain.CartLine{},
	}
	for _, l := range lines {
		if l.BundleID == "" {
			g.Standalone = append(g.Standalone, l)
			continue
		}

		summary, ok := g.Grouped[l.BundleID]
		if !ok {
			g.Order = append(g.Order, l.BundleID)
			summary = BundleSummary{Total: decimal.Zero, Savings: decimal.Zero}
		}

		qty := decimal.NewFromInt(int64(l.Quantity))
		breakdown := pricing.Breakdown(pricing.LineInput(l))
		summary.Items = append(summary.Items, l)
		summary.Total = summary.Total.Add(breakdown.CurrentPrice.Mul(qty))
		summary.Savings = summary.Savings.Add(breakdown.Savings.Mul(qty))
		g.Grouped[l.BundleID] = summary
	}
	return g
}
