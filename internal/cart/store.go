// Package cart holds the per-session shopping cart: its lines, bundle
// groups and applied coupon, persisted on every change.
package cart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/storage"
)

var (
	ErrInvalidProduct  = errors.New("cart: product is missing or has no id")
	ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")
	ErrInvalidCoupon   = errors.New("cart: invalid coupon")
	ErrEmptyCart       = errors.New("cart: cart is empty")
)

// ErrCouponUnavailable wraps remote failures of the coupon service.
var ErrCouponUnavailable = errors.New("cart: coupon service unavailable")

// CouponValidator asks the coupon service whether code applies to the lines.
// Errors implementing Rejected() bool that report true are treated as an
// invalid coupon rather than a remote failure.
type CouponValidator interface {
	ValidateCoupon(ctx context.Context, code string, lines []domain.CartLine) (domain.AppliedCoupon, error)
}

type Options struct {
	Validator CouponValidator
	Notifier  Notifier
	Logger    *slog.Logger
	Now       func() time.Time
}

// Snapshot is a read-only copy of the cart with its derived values.
type Snapshot struct {
	Lines        []domain.CartLine     `json:"items"`
	BundleGroups domain.BundleGroups   `json:"bundleGroups"`
	Count        int                   `json:"cartCount"`
	Total        decimal.Decimal       `json:"cartTotal"`
	Coupon       *domain.AppliedCoupon `json:"coupon,omitempty"`
}

func (s Snapshot) CouponDiscount() decimal.Decimal {
	if s.Coupon == nil {
		return decimal.Zero
	}
	return s.Coupon.DiscountAmount
}

func (s Snapshot) Bundles() Grouping {
	return GroupBundles(s.Lines)
}

func (s Snapshot) Empty() bool {
	return len(s.Lines) == 0
}

// Store is one session's cart. Mutations are serialised; each one is
// persisted before it becomes visible.
type Store struct {
	mu        sync.Mutex
	sessionID string
	scope     storage.Scope
	state     state
	validator CouponValidator
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// Open hydrates the cart of scope. Unreadable persisted data yields an empty
// cart; a failing store is returned as an error so a transient outage never
// overwrites a saved cart with an empty one.
func Open(ctx context.Context, scope storage.Scope, opts Options) (*Store, error) {
	s := &Store{
		sessionID: scope.Name(),
		scope:     scope,
		validator: opts.Validator,
		notifier:  opts.Notifier,
		logger:    opts.Logger,
		now:       opts.Now,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}

	st, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("hydrate cart: %w", err)
	}
	s.state = st
	return s, nil
}

func (s *Store) load(ctx context.Context) (state, error) {
	st := emptyState()

	cartData, found, err := s.scope.Get(ctx, KeyCart)
	if err != nil {
		return st, err
	}
	if found {
		lines, err := decodeLines(cartData)
		if err != nil {
			s.logger.Warn("discarding unreadable persisted cart", "error", err, "session_id", s.sessionID)
			return st, nil
		}
		st.lines = lines
	}

	groupsData, found, err := s.scope.Get(ctx, KeyBundleGroups)
	if err != nil {
		return st, err
	}
	if found {
		groups, err := decodeGroups(groupsData)
		if err != nil {
			s.logger.Warn("discarding unreadable bundle groups", "error", err, "session_id", s.sessionID)
		} else {
			st.groups = groups
		}
	}

	return st.settle(), nil
}

func (s *Store) SessionID() string {
	return s.sessionID
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	st := s.state.clone()
	if st.lines == nil {
		st.lines = []domain.CartLine{}
	}
	return Snapshot{
		Lines:        st.lines,
		BundleGroups: st.groups,
		Count:        st.count(),
		Total:        st.total(),
		Coupon:       st.coupon,
	}
}

type mutation func(state) (state, []domain.CartEvent, bool)

// mutate runs fn against the current state, persists the result, commits it
// and then delivers the queued events outside the lock.
func (s *Store) mutate(ctx context.Context, fn mutation) (Snapshot, error) {
	s.mu.Lock()
	next, events, changed := fn(s.state)
	if !changed {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	if err := s.persist(ctx, next); err != nil {
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("persist cart: %w", err)
	}
	s.state = next
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.deliver(ctx, events)
	return snap, nil
}

// mutateLines is mutate for changes to the lines. An applied coupon is
// validated again against the new lines so its discount follows the cart;
// a coupon the service rejects or cannot confirm is dropped.
func (s *Store) mutateLines(ctx context.Context, fn mutation) (Snapshot, error) {
	return s.mutate(ctx, func(st state) (state, []domain.CartEvent, bool) {
		next, events, changed := fn(st)
		if changed && next.coupon != nil {
			next.coupon = s.revalidate(ctx, next)
		}
		return next, events, changed
	})
}

func (s *Store) revalidate(ctx context.Context, st state) *domain.AppliedCoupon {
	code := st.coupon.Coupon.Code
	if s.validator == nil {
		return nil
	}
	applied, err := s.validator.ValidateCoupon(ctx, code, st.lines)
	if err != nil {
		s.logger.Info("dropping coupon after cart change", "error", err, "coupon", code, "session_id", s.sessionID)
		return nil
	}
	if applied.Coupon.Code == "" {
		applied.Coupon.Code = code
	}
	return &applied
}

func (s *Store) persist(ctx context.Context, st state) error {
	if len(st.lines) == 0 && len(st.groups) == 0 {
		return s.scope.Delete(ctx, KeyCart, KeyBundleGroups)
	}
	values, err := encodeState(st)
	if err != nil {
		return err
	}
	return s.scope.PutAll(ctx, values)
}

func (s *Store) deliver(ctx context.Context, events []domain.CartEvent) {
	if s.notifier == nil {
		return
	}
	for _, ev := range events {
		ev.ID = uuid.NewString()
		ev.SessionID = s.sessionID
		ev.OccurredAt = s.now().UTC()
		s.notifyOne(ctx, ev)
	}
}

func (s *Store) notifyOne(ctx context.Context, ev domain.CartEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cart event notifier panicked", "event", ev.Name, "panic", r, "session_id", s.sessionID)
		}
	}()
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("failed to deliver cart event", "error", err, "event", ev.Name, "session_id", s.sessionID)
	}
}

// AddToCart merges product into the line with the same product, bundle and
// variant, or appends a new line.
func (s *Store) AddToCart(ctx context.Context, product domain.Product, quantity int, bundleID string) (Snapshot, error) {
	if product == nil || strings.TrimSpace(product.Base().ProductID) == "" {
		s.logger.Warn("rejected add to cart", "error", ErrInvalidProduct, "session_id", s.sessionID)
		return Snapshot{}, ErrInvalidProduct
	}
	if quantity < 1 {
		return Snapshot{}, ErrInvalidQuantity
	}
	now := s.now()
	return s.mutateLines(ctx, func(st state) (state, []domain.CartEvent, bool) {
		next, events := applyAdd(st, product, quantity, bundleID, now)
		return next, events, true
	})
}

func (s *Store) RemoveFromCart(ctx context.Context, productID, bundleID string) (Snapshot, error) {
	return s.mutateLines(ctx, func(st state) (state, []domain.CartEvent, bool) {
		return applyRemove(st, productID, bundleID)
	})
}

// RemoveLine removes the single line rendered under cartID.
func (s *Store) RemoveLine(ctx context.Context, cartID string) (Snapshot, error) {
	return s.mutateLines(ctx, func(st state) (state, []domain.CartEvent, bool) {
		return applyRemoveLine(st, cartID)
	})
}

// RemoveBundleFromCart drops every line of the bundle and its group entry.
func (s *Store) RemoveBundleFromCart(ctx context.Context, bundleID string) (Snapshot, error) {
	return s.mutateLines(ctx, func(st state) (state, []domain.CartEvent, bool) {
		return applyRemoveBundle(st, bundleID)
	})
}

// UpdateQuantity sets the quantity of the matching lines. A quantity of zero
// or less removes them.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int, bundleID string) (Snapshot, error) {
	return s.mutateLines(ctx, func(st state) (state, []domain.CartEvent, bool) {
		return applyUpdateQuantity(st, productID, quantity, bundleID)
	})
}

func (s *Store) ClearCart(ctx context.Context) (Snapshot, error) {
	return s.mutate(ctx, applyClear)
}

// ApplyCoupon validates code against the current lines and, when accepted,
// replaces any previously applied coupon.
func (s *Store) ApplyCoupon(ctx context.Context, code string) (Snapshot, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Snapshot{}, fmt.Errorf("%w: empty code", ErrInvalidCoupon)
	}
	if s.validator == nil {
		return Snapshot{}, errors.New("cart: no coupon validator configured")
	}

	snap := s.Snapshot()
	if snap.Empty() {
		return Snapshot{}, ErrEmptyCart
	}

	applied, err := s.validator.ValidateCoupon(ctx, code, snap.Lines)
	if err != nil {
		var rejected interface{ Rejected() bool }
		if errors.As(err, &rejected) && rejected.Rejected() {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidCoupon, err)
		}
		return Snapshot{}, fmt.Errorf("%w: %w", ErrCouponUnavailable, err)
	}
	if applied.Coupon.Code == "" {
		applied.Coupon.Code = code
	}

	return s.mutate(ctx, func(st state) (state, []domain.CartEvent, bool) {
		return applyCoupon(st, &applied)
	})
}

func (s *Store) RemoveCoupon(ctx context.Context) (Snapshot, error) {
	return s.mutate(ctx, func(st state) (state, []domain.CartEvent, bool) {
		return applyCoupon(st, nil)
	})
}
