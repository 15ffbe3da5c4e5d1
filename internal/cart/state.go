package cart

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
)

// state is the cart as a value. Every apply* function returns a new state
// plus the analytics events the change produces, and never touches its input.
type state struct {
	lines  []domain.CartLine
	groups domain.BundleGroups
	coupon *domain.AppliedCoupon
}

func emptyState() state {
	return state{groups: domain.BundleGroups{}}
}

func (s state) clone() state {
	out := state{
		lines:  slices.Clone(s.lines),
		groups: s.groups.Clone(),
	}
	if s.coupon != nil {
		c := *s.coupon
		out.coupon = &c
	}
	return out
}

func (s state) count() int {
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

func (s state) total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(pricing.LineTotal(l))
	}
	return total
}

// settle enforces the invariants that hold after every mutation: bundle
// groups mirror the lines and an empty cart carries no coupon.
func (s state) settle() state {
	groups := domain.BundleGroups{}
	for _, l := range s.lines {
		if l.BundleID == "" {
			continue
		}
		if !slices.Contains(groups[l.BundleID], l.ProductID) {
			groups[l.BundleID] = append(groups[l.BundleID], l.ProductID)
		}
	}
	// keep the recorded membership order for products still present
	for id, products := range s.groups {
		present, ok := groups[id]
		if !ok {
			continue
		}
		ordered := make([]string, 0, len(present))
		for _, p := range products {
			if slices.Contains(present, p) {
				ordered = append(ordered, p)
			}
		}
		for _, p := range present {
			if !slices.Contains(ordered, p) {
				ordered = append(ordered, p)
			}
		}
		groups[id] = ordered
	}
	s.groups = groups
	if len(s.lines) == 0 {
		s.coupon = nil
	}
	return s
}

func applyAdd(s state, product domain.Product, quantity int, bundleID string, now time.Time) (state, []domain.CartEvent) {
	next := s.clone()
	base := product.Base()
	resolved := pricing.UnitPrice(pricing.ProductInput(product))

	idx := slices.IndexFunc(next.lines, func(l domain.CartLine) bool {
		return l.Matches(base.ProductID, bundleID) && l.Variant.SameSelection(base.Variant)
	})
	if idx >= 0 {
		next.lines[idx].Quantity += quantity
	} else {
		next.lines = append(next.lines, newLine(product, resolved, quantity, bundleID, now))
	}

	if bundleID != "" && !slices.Contains(next.groups[bundleID], base.ProductID) {
		next.groups[bundleID] = append(next.groups[bundleID], base.ProductID)
	}

	event := domain.CartEvent{
		Name:      domain.EventAddToCart,
		ProductID: base.ProductID,
		BundleID:  bundleID,
		Quantity:  quantity,
		Price:     resolved,
		Value:     resolved.Mul(decimal.NewFromInt(int64(quantity))),
	}
	return next.settle(), []domain.CartEvent{event}
}

// newLine freezes the resolved price at insertion time. For bundle items
// with a bundle price this is the bundle price.
func newLine(product domain.Product, resolved decimal.Decimal, quantity int, bundleID string, now time.Time) domain.CartLine {
	base := product.Base()
	line := domain.CartLine{
		CartID:        lineKey(base.ProductID, bundleID, base.Variant, now),
		ProductID:     base.ProductID,
		BundleID:      bundleID,
		Name:          base.Name,
		Image:         base.Image,
		SKU:           base.SKU,
		Variant:       base.Variant,
		Price:         resolved,
		OriginalPrice: base.OriginalPrice,
		OfferPrice:    base.OfferPrice,
		Quantity:      quantity,
		AddedAt:       now,
	}
	switch p := product.(type) {
	case domain.BundleItem:
		line.IsBundleItem = true
		line.BundlePrice = p.BundlePrice
		line.BundleDiscount = p.BundleDiscount
	case domain.ProtectionPlan:
		line.IsProtection = true
		line.ProtectionFor = p.ProtectionFor
		if p.PlanName != "" && line.Name == "" {
			line.Name = p.PlanName
		}
	}
	return line
}

func lineKey(productID, bundleID string, v domain.Variant, now time.Time) string {
	if bundleID == "" {
		bundleID = "single"
	}
	return fmt.Sprintf("%s-%s-%s-%s-%d", productID, bundleID, indexKey(v.ColorIndex), indexKey(v.DosIndex), now.UnixMilli())
}

func indexKey(i *int) string {
	if i == nil {
		return "x"
	}
	return strconv.Itoa(*i)
}

func applyRemove(s state, productID, bundleID string) (state, []domain.CartEvent, bool) {
	return removeWhere(s, func(l domain.CartLine) bool { return l.Matches(productID, bundleID) })
}

func applyRemoveLine(s state, cartID string) (state, []domain.CartEvent, bool) {
	return removeWhere(s, func(l domain.CartLine) bool { return l.CartID == cartID })
}

func removeWhere(s state, match func(domain.CartLine) bool) (state, []domain.CartEvent, bool) {
	next := s.clone()
	var events []domain.CartEvent
	kept := next.lines[:0]
	for _, l := range next.lines {
		if !match(l) {
			kept = append(kept, l)
			continue
		}
		events = append(events, domain.CartEvent{
			Name:      domain.EventRemoveFromCart,
			ProductID: l.ProductID,
			BundleID:  l.BundleID,
			Quantity:  l.Quantity,
			Price:     pricing.UnitPrice(pricing.LineInput(l)),
			Value:     pricing.LineTotal(l),
		})
	}
	if len(events) == 0 {
		return s, nil, false
	}
	next.lines = kept
	return next.settle(), events, true
}

func applyRemoveBundle(s state, bundleID string) (state, []domain.CartEvent, bool) {
	if bundleID == "" {
		return s, nil, false
	}
	_, hasGroup := s.groups[bundleID]

	next := s.clone()
	removed := decimal.Zero
	items := 0
	kept := next.lines[:0]
	for _, l := range next.lines {
		if l.BundleID == bundleID {
			removed = removed.Add(pricing.LineTotal(l))
			items += l.Quantity
			continue
		}
		kept = append(kept, l)
	}
	if items == 0 && !hasGroup {
		return s, nil, false
	}
	next.lines = kept
	delete(next.groups, bundleID)

	event := domain.CartEvent{
		Name:     domain.EventRemoveBundle,
		BundleID: bundleID,
		Quantity: items,
		Value:    removed,
	}
	return next.settle(), []domain.CartEvent{event}, true
}

func applyUpdateQuantity(s state, productID string, quantity int, bundleID string) (state, []domain.CartEvent, bool) {
	if quantity <= 0 {
		return applyRemove(s, productID, bundleID)
	}
	next := s.clone()
	matched := false
	for i := range next.lines {
		if next.lines[i].Matches(productID, bundleID) {
			next.lines[i].Quantity = quantity
			matched = true
		}
	}
	if !matched {
		return s, nil, false
	}
	return next.settle(), nil, true
}

func applyClear(s state) (state, []domain.CartEvent, bool) {
	if len(s.lines) == 0 && len(s.groups) == 0 && s.coupon == nil {
		return s, nil, false
	}
	event := domain.CartEvent{
		Name:     domain.EventClearCart,
		Quantity: s.count(),
		Value:    s.total(),
	}
	return emptyState(), []domain.CartEvent{event}, true
}

func applyCoupon(s state, coupon *domain.AppliedCoupon) (state, []domain.CartEvent, bool) {
	next := s.clone()
	next.coupon = coupon
	next = next.settle()
	if coupon == nil || next.coupon == nil {
		return next, nil, s.coupon != nil
	}
	event := domain.CartEvent{
		Name:   domain.EventApplyCoupon,
		Coupon: coupon.Coupon.Code,
		Value:  coupon.DiscountAmount,
	}
	return next, []domain.CartEvent{event}, true
}
