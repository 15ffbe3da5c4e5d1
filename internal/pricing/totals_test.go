package pricing

import (
	"testing"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

func TestCompositor_DeliveryCharge(t *testing.T) {
	c := NewCompositor(DefaultFreeShippingThreshold)
	opt := &domain.DeliveryOption{Name: "standard", Charge: d("25")}

	t.Run("charges below threshold", func(t *testing.T) {
		if got := c.DeliveryCharge(d("450"), opt); !got.Equal(d("25")) {
			t.Errorf("expected 25, got %s", got)
		}
	})

	t.Run("free above threshold", func(t *testing.T) {
		if got := c.DeliveryCharge(d("550"), opt); !got.IsZero() {
			t.Errorf("expected 0, got %s", got)
		}
	})

	t.Run("charges at exactly the threshold", func(t *testing.T) {
		if got := c.DeliveryCharge(d("500"), opt); !got.Equal(d("25")) {
			t.Errorf("expected 25, got %s", got)
		}
	})

	t.Run("no option selected", func(t *testing.T) {
		if got := c.DeliveryCharge(d("100"), nil); !got.IsZero() {
			t.Errorf("expected 0, got %s", got)
		}
	})
}

func TestCompositor_Compose(t *testing.T) {
	c := NewCompositor(DefaultFreeShippingThreshold)

	t.Run("adds delivery and subtracts coupon", func(t *testing.T) {
		s := c.Compose(Composition{
			CartTotal:      d("250"),
			Delivery:       &domain.DeliveryOption{Name: "standard", Charge: d("25")},
			CouponDiscount: d("20"),
		})
		if !s.Total.Equal(d("255")) {
			t.Errorf("expected 255, got %s", s.Total)
		}
		if !s.Tax.IsZero() {
			t.Errorf("expected no extra tax, got %s", s.Tax)
		}
		if s.FreeShipping {
			t.Error("expected paid shipping")
		}
		if !s.AmountToFreeShipping.Equal(d("250.01")) {
			t.Errorf("expected 250.01 to free shipping, got %s", s.AmountToFreeShipping)
		}
	})

	t.Run("floors total at zero", func(t *testing.T) {
		s := c.Compose(Composition{CartTotal: d("10"), CouponDiscount: d("50")})
		if !s.Total.IsZero() {
			t.Errorf("expected 0, got %s", s.Total)
		}
	})

	t.Run("ignores negative coupon discount", func(t *testing.T) {
		s := c.Compose(Composition{CartTotal: d("10"), CouponDiscount: d("-5")})
		if !s.Total.Equal(d("10")) {
			t.Errorf("expected 10, got %s", s.Total)
		}
	})

	t.Run("reports included tax without adding it", func(t *testing.T) {
		s := c.Compose(Composition{CartTotal: d("105"), TaxRate: d("5")})
		if !s.Total.Equal(d("105")) {
			t.Errorf("expected 105, got %s", s.Total)
		}
		if !s.IncludedTax.Equal(d("5")) {
			t.Errorf("expected included tax 5, got %s", s.IncludedTax)
		}
	})

	t.Run("custom threshold", func(t *testing.T) {
		c := NewCompositor(d("100"))
		s := c.Compose(Composition{CartTotal: d("150"), Delivery: &domain.DeliveryOption{Charge: d("10")}})
		if !s.DeliveryCharge.IsZero() || !s.FreeShipping {
			t.Errorf("expected free shipping, got %+v", s)
		}
	})
}
