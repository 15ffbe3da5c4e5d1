package cart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
	"github.com/joao-fontenele/storefront-otel/internal/storage"
)

type stubValidator struct {
	applied domain.AppliedCoupon
	err     error
	calls   int
}

func (v *stubValidator) ValidateCoupon(_ context.Context, code string, _ []domain.CartLine) (domain.AppliedCoupon, error) {
	v.calls++
	if v.err != nil {
		return domain.AppliedCoupon{}, v.err
	}
	return v.applied, nil
}

type rejection struct{}

func (rejection) Error() string  { return "coupon expired" }
func (rejection) Rejected() bool { return true }

// failingStore fails every write while reads see the wrapped store.
type failingStore struct {
	storage.Store
	getErr error
}

func (f failingStore) Get(ctx context.Context, scope, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.Store.Get(ctx, scope, key)
}

func (failingStore) PutAll(context.Context, string, map[string][]byte) error {
	return errors.New("disk full")
}

func (failingStore) Delete(context.Context, string, ...string) error {
	return errors.New("disk full")
}

type recorder struct {
	mu     sync.Mutex
	events []domain.CartEvent
}

func (r *recorder) Notify(_ context.Context, ev domain.CartEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T, kv storage.Store, opts Options) *Store {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	s, err := Open(context.Background(), storage.NewScope(kv, "sess-1"), opts)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestStore_AddToCart(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects missing product", func(t *testing.T) {
		s := openTestStore(t, storage.NewMemoryStore(), Options{})

		_, err := s.AddToCart(ctx, nil, 1, "")
		if !errors.Is(err, ErrInvalidProduct) {
			t.Errorf("expected ErrInvalidProduct, got %v", err)
		}
		_, err = s.AddToCart(ctx, standalone("", "10"), 1, "")
		if !errors.Is(err, ErrInvalidProduct) {
			t.Errorf("expected ErrInvalidProduct for empty id, got %v", err)
		}
	})

	t.Run("rejects quantity below one", func(t *testing.T) {
		s := openTestStore(t, storage.NewMemoryStore(), Options{})

		_, err := s.AddToCart(ctx, standalone("p1", "10"), 0, "")
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("expected ErrInvalidQuantity, got %v", err)
		}
	})

	t.Run("persists and notifies", func(t *testing.T) {
		kv := storage.NewMemoryStore()
		rec := &recorder{}
		s := openTestStore(t, kv, Options{Notifier: rec})

		snap, err := s.AddToCart(ctx, bundleItem("b1", "40", "30"), 2, "B1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.Count != 2 || !snap.Total.Equal(d("60")) {
			t.Errorf("unexpected snapshot count=%d total=%s", snap.Count, snap.Total)
		}

		data, found, err := kv.Get(ctx, "sess-1", KeyCart)
		if err != nil || !found {
			t.Fatalf("expected persisted cart, found=%v err=%v", found, err)
		}
		var persisted []domain.CartLine
		if err := json.Unmarshal(data, &persisted); err != nil || len(persisted) != 1 {
			t.Fatalf("unexpected persisted cart %s", data)
		}
		if _, found, _ := kv.Get(ctx, "sess-1", KeyBundleGroups); !found {
			t.Error("expected persisted bundle groups")
		}

		if len(rec.events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(rec.events))
		}
		ev := rec.events[0]
		if ev.ID == "" || ev.SessionID != "sess-1" || !ev.OccurredAt.Equal(testNow) {
			t.Errorf("event not stamped: %+v", ev)
		}
	})

	t.Run("persistence failure aborts the mutation", func(t *testing.T) {
		rec := &recorder{}
		s := openTestStore(t, failingStore{Store: storage.NewMemoryStore()}, Options{Notifier: rec})

		_, err := s.AddToCart(ctx, standalone("p1", "10"), 1, "")
		if err == nil {
			t.Fatal("expected error")
		}
		if !s.Snapshot().Empty() {
			t.Error("expected state unchanged after failed persist")
		}
		if len(rec.events) != 0 {
			t.Error("expected no events for an aborted mutation")
		}
	})

	t.Run("notifier failures never fail the mutation", func(t *testing.T) {
		notifier := Notifiers{
			NotifierFunc(func(context.Context, domain.CartEvent) error { return errors.New("broker down") }),
			NotifierFunc(func(context.Context, domain.CartEvent) error { panic("boom") }),
		}
		s := openTestStore(t, storage.NewMemoryStore(), Options{Notifier: notifier})

		snap, err := s.AddToCart(ctx, standalone("p1", "10"), 1, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.Count != 1 {
			t.Errorf("expected count 1, got %d", snap.Count)
		}
	})
}

func TestStore_Hydration(t *testing.T) {
	ctx := context.Background()

	t.Run("reopens persisted cart", func(t *testing.T) {
		kv := storage.NewMemoryStore()
		first := openTestStore(t, kv, Options{})
		if _, err := first.AddToCart(ctx, standalone("p1", "100"), 2, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := first.AddToCart(ctx, bundleItem("b1", "40", "30"), 1, "B1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		second := openTestStore(t, kv, Options{})
		snap := second.Snapshot()
		if snap.Count != 3 || !snap.Total.Equal(d("230")) {
			t.Errorf("unexpected hydrated cart count=%d total=%s", snap.Count, snap.Total)
		}
		if len(snap.BundleGroups["B1"]) != 1 {
			t.Errorf("unexpected groups %v", snap.BundleGroups)
		}
	})

	t.Run("corrupt data degrades to empty cart", func(t *testing.T) {
		kv := storage.NewMemoryStore()
		_ = kv.PutAll(ctx, "sess-1", map[string][]byte{
			KeyCart:         []byte(`{not json`),
			KeyBundleGroups: []byte(`"legacy"`),
		})

		s := openTestStore(t, kv, Options{})
		if !s.Snapshot().Empty() {
			t.Error("expected empty cart")
		}
	})

	t.Run("malformed lines are dropped and groups reconciled", func(t *testing.T) {
		kv := storage.NewMemoryStore()
		_ = kv.PutAll(ctx, "sess-1", map[string][]byte{
			KeyCart: []byte(`[
				{"productId":"p1","price":"abc","quantity":2},
				{"productId":"","price":10,"quantity":1},
				{"productId":"p2","price":10,"quantity":0},
				{"productId":"b1","bundleId":"B1","isBundleItem":true,"bundlePrice":"30","price":40,"quantity":"1"},
				42
			]`),
			KeyBundleGroups: []byte(`{"B1":["b1"],"GHOST":["x"]}`),
		})

		snap := openTestStore(t, kv, Options{}).Snapshot()

		if len(snap.Lines) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(snap.Lines))
		}
		if !snap.Total.Equal(d("30")) {
			t.Errorf("expected total 30 with garbage price coerced to 0, got %s", snap.Total)
		}
		if _, ok := snap.BundleGroups["GHOST"]; ok {
			t.Error("expected orphan group dropped")
		}
	})

	t.Run("storage read failure is an error", func(t *testing.T) {
		_, err := Open(ctx, storage.NewScope(failingStore{Store: storage.NewMemoryStore(), getErr: errors.New("conn refused")}, "s"), Options{})
		if err == nil {
			t.Error("expected hydrate error")
		}
	})
}

func TestStore_Coupons(t *testing.T) {
	ctx := context.Background()
	applied := domain.AppliedCoupon{
		Coupon:         domain.Coupon{Code: "SAVE20", DiscountType: domain.DiscountFixed, DiscountValue: d("20")},
		DiscountAmount: d("20"),
	}

	t.Run("apply then clear", func(t *testing.T) {
		kv := storage.NewMemoryStore()
		s := openTestStore(t, kv, Options{Validator: &stubValidator{applied: applied}})
		if _, err := s.AddToCart(ctx, standalone("p1", "100"), 2, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		snap, err := s.ApplyCoupon(ctx, " SAVE20 ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !snap.CouponDiscount().Equal(d("20")) {
			t.Errorf("expected discount 20, got %s", snap.CouponDiscount())
		}

		snap, err = s.ClearCart(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.Coupon != nil || !snap.CouponDiscount().IsZero() {
			t.Error("expected coupon cleared with the cart")
		}
		if _, found, _ := kv.Get(ctx, "sess-1", KeyCart); found {
			t.Error("expected persisted cart purged")
		}
	})

	t.Run("rejected coupon leaves state untouched", func(t *testing.T) {
		s := openTestStore(t, storage.NewMemoryStore(), Options{Validator: &stubValidator{err: rejection{}}})
		if _, err := s.AddToCart(ctx, standalone("p1", "100"), 1, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, err := s.ApplyCoupon(ctx, "OLD")
		if !errors.Is(err, ErrInvalidCoupon) {
			t.Errorf("expected ErrInvalidCoupon, got %v", err)
		}
		if s.Snapshot().Coupon != nil {
			t.Error("expected no coupon")
		}
	})

	t.Run("remote failure is not an invalid coupon", func(t *testing.T) {
		s := openTestStore(t, storage.NewMemoryStore(), Options{Validator: &stubValidator{err: errors.New("timeout")}})
		if _, err := s.AddToCart(ctx, standalone("p1", "100"), 1, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		_, err := s.ApplyCoupon(ctx, "SAVE20")
		if !errors.Is(err, ErrCouponUnavailable) || errors.Is(err, ErrInvalidCoupon) {
			t.Errorf("expected ErrCouponUnavailable, got %v", err)
		}
	})

	t.Run("empty cart and empty code", func(t *testing.T) {
		v := &stubValidator{applied: applied}
		s := openTestStore(t, storage.NewMemoryStore(), Options{Validator: v})

		if _, err := s.ApplyCoupon(ctx, "SAVE20"); !errors.Is(err, ErrEmptyCart) {
			t.Errorf("expected ErrEmptyCart, got %v", err)
		}
		if _, err := s.ApplyCoupon(ctx, "  "); !errors.Is(err, ErrInvalidCoupon) {
			t.Errorf("expected ErrInvalidCoupon, got %v", err)
		}
		if v.calls != 0 {
			t.Errorf("validator should not be called, got %d calls", v.calls)
		}
	})

	t.Run("remove coupon", func(t *testing.T) {
		s := openTestStore(t, storage.NewMemoryStore(), Options{Validator: &stubValidator{applied: applied}})
		_, _ = s.AddToCart(ctx, standalone("p1", "100"), 1, "")
		_, _ = s.ApplyCoupon(ctx, "SAVE20")

		snap, err := s.RemoveCoupon(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.Coupon != nil {
			t.Error("expected coupon removed")
		}
	})
}

type couponFunc func(lines []domain.CartLine) (domain.AppliedCoupon, error)

func (f couponFunc) ValidateCoupon(_ context.Context, _ string, lines []domain.CartLine) (domain.AppliedCoupon, error) {
	return f(lines)
}

func TestStore_CouponFollowsLines(t *testing.T) {
	ctx := context.Background()
	tenPercent := couponFunc(func(lines []domain.CartLine) (domain.AppliedCoupon, error) {
		total := decimal.Zero
		for _, l := range lines {
			total = total.Add(pricing.LineTotal(l))
		}
		return domain.AppliedCoupon{
			Coupon:         domain.Coupon{Code: "PCT10", DiscountType: domain.DiscountPercentage, DiscountValue: d("10")},
			DiscountAmount: total.Mul(d("0.1")),
		}, nil
	})

	t.Run("discount recomputed after removal", func(t *testing.T) {
		s := openTestStore(t, storage.NewMemoryStore(), Options{Validator: tenPercent})
		_, _ = s.AddToCart(ctx, standalone("p1", "500"), 1, "")
		_, _ = s.AddToCart(ctx, standalone("p2", "500"), 1, "")
		if snap, _ := s.ApplyCoupon(ctx, "PCT10"); !snap.CouponDiscount().Equal(d("100")) {
			t.Fatalf("expected discount 100, got %s", snap.CouponDiscount())
		}

		snap, err := s.RemoveFromCart(ctx, "p2", "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !snap.Total.Equal(d("500")) || !snap.CouponDiscount().Equal(d("50")) {
			t.Errorf("expected total 500 with discount 50, got %s and %s", snap.Total, snap.CouponDiscount())
		}

		snap, _ = s.UpdateQuantity(ctx, "p1", 3, "")
		if !snap.CouponDiscount().Equal(d("150")) {
			t.Errorf("expected discount 150 after update, got %s", snap.CouponDiscount())
		}
	})

	t.Run("coupon dropped when no longer valid", func(t *testing.T) {
		calls := 0
		onlyOnce := couponFunc(func(lines []domain.CartLine) (domain.AppliedCoupon, error) {
			calls++
			if calls > 1 {
				return domain.AppliedCoupon{}, rejection{}
			}
			return tenPercent(lines)
		})
		s := openTestStore(t, storage.NewMemoryStore(), Options{Validator: onlyOnce})
		_, _ = s.AddToCart(ctx, standalone("p1", "500"), 2, "")
		_, _ = s.ApplyCoupon(ctx, "PCT10")

		snap, err := s.UpdateQuantity(ctx, "p1", 1, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.Coupon != nil || !snap.CouponDiscount().IsZero() {
			t.Errorf("expected coupon dropped, got %+v", snap.Coupon)
		}
	})

	t.Run("unchanged cart keeps the coupon without a call", func(t *testing.T) {
		v := &stubValidator{applied: domain.AppliedCoupon{Coupon: domain.Coupon{Code: "SAVE20"}, DiscountAmount: d("20")}}
		s := openTestStore(t, storage.NewMemoryStore(), Options{Validator: v})
		_, _ = s.AddToCart(ctx, standalone("p1", "100"), 1, "")
		_, _ = s.ApplyCoupon(ctx, "SAVE20")

		_, _ = s.RemoveFromCart(ctx, "missing", "")
		if v.calls != 1 || s.Snapshot().Coupon == nil {
			t.Errorf("expected one validation and the coupon kept, got %d calls", v.calls)
		}
	})
}

func TestStore_ConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, storage.NewMemoryStore(), Options{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AddToCart(ctx, standalone("p1", "5"), 1, "")
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	if snap.Count != 20 || !snap.Total.Equal(d("100")) {
		t.Errorf("expected 20 items totalling 100, got count=%d total=%s", snap.Count, snap.Total)
	}
}
