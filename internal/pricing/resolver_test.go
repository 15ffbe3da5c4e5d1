package pricing

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		in        Input
		wantPrice string
		wantRule  Rule
	}{
		{
			name:      "bundle price wins for bundle items",
			in:        Input{IsBundleItem: true, BundlePrice: d("80"), Price: d("100")},
			wantPrice: "80",
			wantRule:  RuleBundlePrice,
		},
		{
			name:      "bundle price ignored when not a bundle item",
			in:        Input{BundlePrice: d("80"), Price: d("100")},
			wantPrice: "100",
			wantRule:  RuleBasePrice,
		},
		{
			name:      "bundle discount takes 25 percent off original price",
			in:        Input{BundleDiscount: true, OriginalPrice: d("100"), Price: d("90")},
			wantPrice: "75",
			wantRule:  RuleBundleDiscount,
		},
		{
			name:      "bundle price beats bundle discount",
			in:        Input{IsBundleItem: true, BundlePrice: d("50"), BundleDiscount: true, OriginalPrice: d("100")},
			wantPrice: "50",
			wantRule:  RuleBundlePrice,
		},
		{
			name:      "zero bundle price falls through to bundle discount",
			in:        Input{IsBundleItem: true, BundlePrice: decimal.Zero, BundleDiscount: true, OriginalPrice: d("100")},
			wantPrice: "75",
			wantRule:  RuleBundleDiscount,
		},
		{
			name:      "offer price",
			in:        Input{OfferPrice: d("40"), Price: d("60")},
			wantPrice: "40",
			wantRule:  RuleOfferPrice,
		},
		{
			name:      "bundle discount beats offer price",
			in:        Input{BundleDiscount: true, OriginalPrice: d("200"), OfferPrice: d("40")},
			wantPrice: "150",
			wantRule:  RuleBundleDiscount,
		},
		{
			name:      "plain price",
			in:        Input{Price: d("19.99")},
			wantPrice: "19.99",
			wantRule:  RuleBasePrice,
		},
		{
			name:      "negative price degrades to zero",
			in:        Input{Price: d("-5")},
			wantPrice: "0",
			wantRule:  RuleBasePrice,
		},
		{
			name:      "empty input",
			in:        Input{},
			wantPrice: "0",
			wantRule:  RuleBasePrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.in)
			if !got.UnitPrice.Equal(d(tt.wantPrice)) {
				t.Errorf("expected unit price %s, got %s", tt.wantPrice, got.UnitPrice)
			}
			if got.Rule != tt.wantRule {
				t.Errorf("expected rule %s, got %s", tt.wantRule, got.Rule)
			}
		})
	}
}

func TestBreakdown(t *testing.T) {
	t.Run("reports savings against original price", func(t *testing.T) {
		b := Breakdown(Input{OriginalPrice: d("200"), OfferPrice: d("150"), Price: d("180")})
		if !b.BasePrice.Equal(d("200")) {
			t.Errorf("expected base 200, got %s", b.BasePrice)
		}
		if !b.CurrentPrice.Equal(d("150")) {
			t.Errorf("expected current 150, got %s", b.CurrentPrice)
		}
		if !b.Savings.Equal(d("50")) {
			t.Errorf("expected savings 50, got %s", b.Savings)
		}
		if b.DiscountPercentage != 25 {
			t.Errorf("expected 25%%, got %d", b.DiscountPercentage)
		}
		if !b.HasDiscount {
			t.Error("expected discount")
		}
	})

	t.Run("rounds percentage", func(t *testing.T) {
		b := Breakdown(Input{OriginalPrice: d("30"), OfferPrice: d("20")})
		if b.DiscountPercentage != 33 {
			t.Errorf("expected 33%%, got %d", b.DiscountPercentage)
		}
	})

	t.Run("falls back to price when no reference price", func(t *testing.T) {
		b := Breakdown(Input{Price: d("60"), OfferPrice: d("40")})
		if !b.BasePrice.Equal(d("60")) {
			t.Errorf("expected base 60, got %s", b.BasePrice)
		}
		if !b.Savings.Equal(d("20")) {
			t.Errorf("expected savings 20, got %s", b.Savings)
		}
	})

	t.Run("never reports negative savings", func(t *testing.T) {
		b := Breakdown(Input{OriginalPrice: d("10"), OfferPrice: d("15")})
		if !b.Savings.IsZero() || b.HasDiscount || b.DiscountPercentage != 0 {
			t.Errorf("unexpected breakdown: %+v", b)
		}
	})

	t.Run("zero base price", func(t *testing.T) {
		b := Breakdown(Input{})
		if b.DiscountPercentage != 0 || b.HasDiscount {
			t.Errorf("unexpected breakdown: %+v", b)
		}
	})
}

func TestProductInput(t *testing.T) {
	bundle := domain.BundleItem{
		Listing:     domain.Listing{ProductID: "p1", Price: d("100")},
		BundlePrice: d("80"),
	}
	if got := UnitPrice(ProductInput(bundle)); !got.Equal(d("80")) {
		t.Errorf("expected 80, got %s", got)
	}

	standalone := domain.Standalone{Listing: domain.Listing{ProductID: "p2", Price: d("60"), OfferPrice: d("40")}}
	if got := UnitPrice(ProductInput(standalone)); !got.Equal(d("40")) {
		t.Errorf("expected 40, got %s", got)
	}
}

func TestLineTotal(t *testing.T) {
	line := domain.CartLine{ProductID: "p1", Price: d("12.5"), Quantity: 3}
	if got := LineTotal(line); !got.Equal(d("37.5")) {
		t.Errorf("expected 37.5, got %s", got)
	}

	line.Quantity = 0
	if got := LineTotal(line); !got.IsZero() {
		t.Errorf("expected 0, got %s", got)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`12.5`, "12.5"},
		{`"99.90"`, "99.9"},
		{`" 7 "`, "7"},
		{`null`, "0"},
		{``, "0"},
		{`"abc"`, "0"},
		{`true`, "0"},
		{`{"amount":5}`, "0"},
		{`"NaN"`, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := Coerce(json.RawMessage(tt.raw)); !got.Equal(d(tt.want)) {
				t.Errorf("Coerce(%s) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}

	if got := CoerceInt(json.RawMessage(`"3"`)); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}
