package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-otel/internal/backend"
	"github.com/joao-fontenele/storefront-otel/internal/cart"
	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
	"github.com/joao-fontenele/storefront-otel/internal/session"
	"github.com/joao-fontenele/storefront-otel/internal/storage"
)

type fakeAPI struct {
	mu          sync.Mutex
	options     []domain.DeliveryOption
	orders      []domain.OrderSubmission
	keys        []string
	orderErr    error
	redirect    string
	paymentErr  error
	paymentReqs []backend.PaymentRequest
}

func (f *fakeAPI) DeliveryOptions(context.Context) ([]domain.DeliveryOption, error) {
	return f.options, nil
}

func (f *fakeAPI) Tax(context.Context) (domain.TaxSetting, error) {
	return domain.TaxSetting{Name: "VAT", Rate: decimal.NewFromInt(5), Enabled: true}, nil
}

func (f *fakeAPI) CreateOrder(_ context.Context, order domain.OrderSubmission, key string) (domain.PlacedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return domain.PlacedOrder{}, f.orderErr
	}
	f.orders = append(f.orders, order)
	f.keys = append(f.keys, key)
	return domain.PlacedOrder{ID: "order-1", Status: "pending", TotalPrice: order.TotalPrice}, nil
}

func (f *fakeAPI) StartPayment(_ context.Context, _ domain.PaymentMethod, req backend.PaymentRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paymentReqs = append(f.paymentReqs, req)
	return f.redirect, f.paymentErr
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.CartEvent
}

func (l *eventLog) Notify(_ context.Context, ev domain.CartEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) names() []domain.EventName {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.EventName
	for _, ev := range l.events {
		out = append(out, ev.Name)
	}
	return out
}

type fixture struct {
	kv      *storage.MemoryStore
	carts   *cart.Manager
	api     *fakeAPI
	events  *eventLog
	service *Service
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := storage.NewMemoryStore()
	events := &eventLog{}
	applied := domain.AppliedCoupon{Coupon: domain.Coupon{Code: "SAVE20"}, DiscountAmount: d("20")}
	carts := cart.NewManager(kv, cart.Options{
		Validator: validatorFunc(func() (domain.AppliedCoupon, error) { return applied, nil }),
		Logger:    logger,
	})
	api := &fakeAPI{options: []domain.DeliveryOption{{Name: "Standard", Charge: d("25")}}}
	svc := NewService(carts, kv, api, pricing.NewCompositor(pricing.DefaultFreeShippingThreshold), Options{
		PublicBaseURL: "https://shop.example/",
		Notifier:      events,
		Logger:        logger,
	})
	return &fixture{kv: kv, carts: carts, api: api, events: events, service: svc}
}

type validatorFunc func() (domain.AppliedCoupon, error)

func (f validatorFunc) ValidateCoupon(context.Context, string, []domain.CartLine) (domain.AppliedCoupon, error) {
	return f()
}

// fillCart builds the 250 cart: p1 100x2 plus bundle B1 of 30 and 20.
func (f *fixture) fillCart(t *testing.T, sessionID string) *cart.Store {
	t.Helper()
	ctx := context.Background()
	store, err := f.carts.Get(ctx, sessionID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	products := []struct {
		p      domain.Product
		qty    int
		bundle string
	}{
		{domain.Standalone{Listing: domain.Listing{ProductID: "p1", Name: "Phone", Price: d("100")}}, 2, ""},
		{domain.BundleItem{Listing: domain.Listing{ProductID: "b1", Price: d("40")}, BundlePrice: d("30")}, 1, "B1"},
		{domain.BundleItem{Listing: domain.Listing{ProductID: "b2", Price: d("25")}, BundlePrice: d("20")}, 1, "B1"},
	}
	for _, it := range products {
		if _, err := store.AddToCart(ctx, it.p, it.qty, it.bundle); err != nil {
			t.Fatalf("add to cart: %v", err)
		}
	}
	return store
}

func (f *fixture) toPayment(t *testing.T, sessionID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.service.SetDetails(ctx, sessionID, validDetails()); err != nil {
		t.Fatalf("set details: %v", err)
	}
	if _, err := f.service.Continue(ctx, sessionID); err != nil {
		t.Fatalf("continue to summary: %v", err)
	}
	if _, err := f.service.SetNotes(ctx, sessionID, "ring twice"); err != nil {
		t.Fatalf("set notes: %v", err)
	}
	view, err := f.service.Continue(ctx, sessionID)
	if err != nil {
		t.Fatalf("continue to payment: %v", err)
	}
	if view.Draft.Step != StepPayment {
		t.Fatalf("expected payment step, got %v", view.Draft.Step)
	}
}

func TestService_CashOnDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	store := f.fillCart(t, "s1")
	if _, err := store.ApplyCoupon(ctx, "SAVE20"); err != nil {
		t.Fatalf("apply coupon: %v", err)
	}
	f.toPayment(t, "s1")

	outcome, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentCOD)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Completed || outcome.RedirectURL != "" {
		t.Errorf("unexpected outcome %+v", outcome)
	}

	if len(f.api.orders) != 1 {
		t.Fatalf("expected 1 order, got %d", len(f.api.orders))
	}
	order := f.api.orders[0]
	if !order.ItemsPrice.Equal(d("250")) || !order.ShippingPrice.Equal(d("25")) ||
		!order.DiscountAmount.Equal(d("20")) || !order.TotalPrice.Equal(d("255")) {
		t.Errorf("unexpected order amounts %+v", order)
	}
	if order.CouponCode != "SAVE20" || order.CustomerNotes != "ring twice" || order.DeliveryOption != "Standard" {
		t.Errorf("unexpected order fields %+v", order)
	}
	if len(order.OrderItems) != 3 || !order.OrderItems[1].Price.Equal(d("30")) {
		t.Errorf("unexpected order items %+v", order.OrderItems)
	}
	if f.api.keys[0] == "" {
		t.Error("expected an idempotency key")
	}

	if !store.Snapshot().Empty() {
		t.Error("expected cart cleared after cash on delivery")
	}

	got := f.events.names()
	want := []domain.EventName{domain.EventBeginCheckout, domain.EventPurchase}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected events %v, got %v", want, got)
	}

	view, err := f.service.View(ctx, "s1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.Draft.Step != StepAddress {
		t.Errorf("expected a fresh draft, got step %v", view.Draft.Step)
	}
	if view.Draft.ShippingAddress == nil || view.Draft.ShippingAddress.City != "Dubai" {
		t.Error("expected saved address to prefill the next checkout")
	}
	if view.Draft.Guest == nil || view.Draft.Guest.Email != "sara@example.com" {
		t.Error("expected saved guest info to prefill the next checkout")
	}
}

func TestService_RedirectPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("returns provider url and keeps the cart", func(t *testing.T) {
		f := newFixture(t)
		f.api.redirect = "https://pay.example/session/1"
		store := f.fillCart(t, "s1")
		f.toPayment(t, "s1")

		outcome, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentTabby)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if outcome.RedirectURL != "https://pay.example/session/1" || outcome.Order.ID != "order-1" {
			t.Errorf("unexpected outcome %+v", outcome)
		}
		if store.Snapshot().Empty() {
			t.Error("cart should survive until the provider confirms")
		}
		req := f.api.paymentReqs[0]
		if !strings.HasPrefix(req.SuccessURL, "https://shop.example/checkout/result?") || !strings.Contains(req.SuccessURL, "order=order-1") {
			t.Errorf("unexpected success url %s", req.SuccessURL)
		}
		if !req.Amount.Equal(d("275")) {
			t.Errorf("expected amount 275, got %s", req.Amount)
		}

		view, err := f.service.View(ctx, "s1")
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		if view.Draft.Step != StepAddress || view.Draft.IdempotencyKey != "" {
			t.Errorf("expected the draft reset after the order, got %+v", view.Draft)
		}
	})

	t.Run("missing redirect url is fatal for the attempt", func(t *testing.T) {
		f := newFixture(t)
		f.fillCart(t, "s1")
		f.toPayment(t, "s1")

		outcome, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentCard)
		if !errors.Is(err, ErrMissingRedirectURL) {
			t.Fatalf("expected ErrMissingRedirectURL, got %v", err)
		}
		if outcome.Order.ID != "order-1" {
			t.Error("expected the pending order to be reported")
		}

		view, _ := f.service.View(ctx, "s1")
		if view.Draft.Step != StepPayment {
			t.Errorf("expected to stay on payment step, got %v", view.Draft.Step)
		}
	})

	t.Run("retry reuses the idempotency key", func(t *testing.T) {
		f := newFixture(t)
		f.fillCart(t, "s1")
		f.toPayment(t, "s1")

		f.api.paymentErr = errors.New("provider timeout")
		if _, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentTamara); !errors.Is(err, ErrUpstream) {
			t.Fatalf("expected ErrUpstream, got %v", err)
		}
		f.api.paymentErr = nil
		f.api.redirect = "https://pay.example/t"
		if _, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentTamara); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(f.api.keys) != 2 || f.api.keys[0] != f.api.keys[1] {
			t.Errorf("expected the same key twice, got %v", f.api.keys)
		}
	})
}

func TestService_SecondCheckout(t *testing.T) {
	ctx := context.Background()
	premium := domain.Standalone{Listing: domain.Listing{ProductID: "tv", Name: "TV", Price: d("999")}}

	t.Run("after a redirect the next cart starts over", func(t *testing.T) {
		f := newFixture(t)
		f.api.redirect = "https://pay.example/card"
		store := f.fillCart(t, "s1")
		f.toPayment(t, "s1")
		if _, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentCard); err != nil {
			t.Fatalf("place card order: %v", err)
		}

		if _, err := store.ClearCart(ctx); err != nil {
			t.Fatalf("clear cart: %v", err)
		}
		if _, err := store.AddToCart(ctx, premium, 1, ""); err != nil {
			t.Fatalf("add to cart: %v", err)
		}
		if _, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentCOD); !errors.Is(err, ErrStepOrder) {
			t.Fatalf("expected ErrStepOrder for a cart that never went through checkout, got %v", err)
		}

		f.toPayment(t, "s1")
		if _, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentCOD); err != nil {
			t.Fatalf("place cod order: %v", err)
		}
		if len(f.api.keys) != 2 || f.api.keys[0] == f.api.keys[1] {
			t.Errorf("expected two distinct keys, got %v", f.api.keys)
		}
		if !f.api.orders[1].ItemsPrice.Equal(d("999")) {
			t.Errorf("expected the second order to carry the new cart, got %s", f.api.orders[1].ItemsPrice)
		}
	})

	t.Run("after cash on delivery the next order gets a new key", func(t *testing.T) {
		f := newFixture(t)
		store := f.fillCart(t, "s1")
		f.toPayment(t, "s1")
		if _, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentCOD); err != nil {
			t.Fatalf("place first order: %v", err)
		}

		if _, err := store.AddToCart(ctx, premium, 1, ""); err != nil {
			t.Fatalf("add to cart: %v", err)
		}
		f.toPayment(t, "s1")
		if _, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentCOD); err != nil {
			t.Fatalf("place second order: %v", err)
		}
		if len(f.api.keys) != 2 || f.api.keys[0] == f.api.keys[1] {
			t.Errorf("expected two distinct keys, got %v", f.api.keys)
		}
	})

	t.Run("cart changed on the payment step", func(t *testing.T) {
		f := newFixture(t)
		store := f.fillCart(t, "s1")
		f.toPayment(t, "s1")
		before, _ := f.service.View(ctx, "s1")

		if _, err := store.AddToCart(ctx, premium, 1, ""); err != nil {
			t.Fatalf("add to cart: %v", err)
		}
		if _, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentCOD); !errors.Is(err, ErrCartChanged) {
			t.Fatalf("expected ErrCartChanged, got %v", err)
		}
		if len(f.api.orders) != 0 {
			t.Fatalf("expected no order for the stale draft, got %d", len(f.api.orders))
		}

		view, _ := f.service.View(ctx, "s1")
		if view.Draft.Step != StepSummary || view.Draft.IdempotencyKey != "" {
			t.Fatalf("expected the summary step without a key, got %+v", view.Draft)
		}
		if _, err := f.service.Continue(ctx, "s1"); err != nil {
			t.Fatalf("continue: %v", err)
		}
		if _, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentCOD); err != nil {
			t.Fatalf("place order: %v", err)
		}
		if f.api.keys[0] == before.Draft.IdempotencyKey {
			t.Error("expected a new key for the changed cart")
		}
		if !f.api.orders[0].ItemsPrice.Equal(d("1249")) {
			t.Errorf("expected items price 1249, got %s", f.api.orders[0].ItemsPrice)
		}
	})

	t.Run("view reopens a stale payment step", func(t *testing.T) {
		f := newFixture(t)
		store := f.fillCart(t, "s1")
		f.toPayment(t, "s1")
		if _, err := store.UpdateQuantity(ctx, "p1", 1, ""); err != nil {
			t.Fatalf("update quantity: %v", err)
		}

		view, err := f.service.View(ctx, "s1")
		if err != nil {
			t.Fatalf("view: %v", err)
		}
		if view.Draft.Step != StepSummary {
			t.Errorf("expected summary step, got %v", view.Draft.Step)
		}
	})
}

func TestService_CompletePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("success empties the cart", func(t *testing.T) {
		f := newFixture(t)
		f.api.redirect = "https://pay.example/card"
		store := f.fillCart(t, "s1")
		f.toPayment(t, "s1")
		if _, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentCard); err != nil {
			t.Fatalf("place order: %v", err)
		}

		result, err := f.service.CompletePayment(ctx, "s1", "order-1", "success")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Completed || result.OrderID != "order-1" {
			t.Errorf("unexpected result %+v", result)
		}
		if !store.Snapshot().Empty() {
			t.Error("expected cart cleared after a successful payment")
		}
		names := f.events.names()
		if names[len(names)-1] != domain.EventPurchase {
			t.Errorf("expected a purchase event last, got %v", names)
		}

		if _, err := f.service.CompletePayment(ctx, "s1", "order-1", "success"); err != nil {
			t.Fatalf("repeat: %v", err)
		}
		if got := len(f.events.names()); got != len(names) {
			t.Errorf("expected no second purchase event, got %d events", got)
		}
	})

	t.Run("cancel keeps the cart", func(t *testing.T) {
		f := newFixture(t)
		store := f.fillCart(t, "s1")

		result, err := f.service.CompletePayment(ctx, "s1", "order-1", "cancel")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Completed || store.Snapshot().Empty() {
			t.Errorf("expected the cart kept, got %+v", result)
		}
	})

	t.Run("malformed result", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.service.CompletePayment(ctx, "s1", "", "success"); !errors.Is(err, ErrPaymentResult) {
			t.Errorf("expected ErrPaymentResult, got %v", err)
		}
		if _, err := f.service.CompletePayment(ctx, "s1", "order-1", "paid"); !errors.Is(err, ErrPaymentResult) {
			t.Errorf("expected ErrPaymentResult, got %v", err)
		}
	})
}

func TestService_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("no skipping ahead", func(t *testing.T) {
		f := newFixture(t)
		f.fillCart(t, "s1")

		if _, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentCOD); !errors.Is(err, ErrStepOrder) {
			t.Errorf("expected ErrStepOrder, got %v", err)
		}
		if _, err := f.service.SetNotes(ctx, "s1", "x"); !errors.Is(err, ErrStepOrder) {
			t.Errorf("expected ErrStepOrder, got %v", err)
		}
	})

	t.Run("empty cart cannot continue", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.service.Continue(ctx, "s1"); !errors.Is(err, ErrEmptyCart) {
			t.Errorf("expected ErrEmptyCart, got %v", err)
		}
	})

	t.Run("unknown delivery option", func(t *testing.T) {
		f := newFixture(t)
		f.fillCart(t, "s1")
		in := validDetails()
		in.DeliveryOption = "Teleport"
		if _, err := f.service.SetDetails(ctx, "s1", in); err != nil {
			t.Fatalf("set details: %v", err)
		}
		if _, err := f.service.Continue(ctx, "s1"); !errors.Is(err, ErrIncompleteStep) {
			t.Errorf("expected ErrIncompleteStep, got %v", err)
		}
	})

	t.Run("unsupported payment method", func(t *testing.T) {
		f := newFixture(t)
		if _, err := f.service.PlaceOrder(ctx, "s1", "bitcoin"); !errors.Is(err, ErrUnsupportedPayment) {
			t.Errorf("expected ErrUnsupportedPayment, got %v", err)
		}
	})

	t.Run("order failure keeps the step", func(t *testing.T) {
		f := newFixture(t)
		f.fillCart(t, "s1")
		f.toPayment(t, "s1")
		f.api.orderErr = &backend.StatusError{Status: http.StatusConflict, Message: "out of stock"}

		if _, err := f.service.PlaceOrder(ctx, "s1", domain.PaymentCOD); !errors.Is(err, ErrUpstream) {
			t.Fatalf("expected ErrUpstream, got %v", err)
		}
		view, _ := f.service.View(ctx, "s1")
		if view.Draft.Step != StepPayment {
			t.Errorf("expected payment step, got %v", view.Draft.Step)
		}
	})

	t.Run("unreadable saved values are ignored", func(t *testing.T) {
		f := newFixture(t)
		_ = f.kv.PutAll(ctx, "s1", map[string][]byte{
			KeyDraft:        []byte(`{"step":9}`),
			KeySavedAddress: []byte(`"legacy string"`),
			KeyGuestInfo:    []byte(`{"name":"Sara","email":"sara@example.com"}`),
		})

		view, err := f.service.View(ctx, "s1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if view.Draft.Step != StepAddress || view.Draft.ShippingAddress != nil {
			t.Errorf("unexpected draft %+v", view.Draft)
		}
		if view.Draft.Guest == nil || view.Draft.Guest.Name != "Sara" {
			t.Error("expected readable guest info to be kept")
		}
	})
}

func TestHandler(t *testing.T) {
	f := newFixture(t)
	f.api.redirect = "https://pay.example/card"
	f.fillCart(t, "s1")

	mux := http.NewServeMux()
	NewHandler(f.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(mux)

	do := func(method, target, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req = req.WithContext(session.WithID(req.Context(), "s1"))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/checkout/continue", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty details, got %d", rec.Code)
	}
	var incomplete struct {
		Fields []string `json:"fields"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&incomplete)
	if len(incomplete.Fields) == 0 {
		t.Error("expected missing fields in response")
	}

	details, _ := json.Marshal(validDetails())
	if rec := do(http.MethodPut, "/checkout/address", string(details)); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(http.MethodPost, "/checkout/place", `{"paymentMethod":"card"}`); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 placing before payment step, got %d", rec.Code)
	}
	do(http.MethodPost, "/checkout/continue", "")
	if rec := do(http.MethodPut, "/checkout/notes", `{"customerNotes":"gift wrap"}`); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	do(http.MethodPost, "/checkout/continue", "")

	f.api.orderErr = &backend.StatusError{Status: http.StatusBadRequest, Message: "address not serviceable"}
	rec = do(http.MethodPost, "/checkout/place", `{"paymentMethod":"cod"}`)
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), "address not serviceable") {
		t.Errorf("expected 422 with api message, got %d %s", rec.Code, rec.Body.String())
	}
	f.api.orderErr = nil

	rec = do(http.MethodPost, "/checkout/place", `{"paymentMethod":"card"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var outcome Outcome
	_ = json.NewDecoder(rec.Body).Decode(&outcome)
	if outcome.RedirectURL != "https://pay.example/card" {
		t.Errorf("unexpected outcome %+v", outcome)
	}

	if rec := do(http.MethodPost, "/checkout/place", `{"paymentMethod":"card"}`); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 placing the same checkout twice, got %d", rec.Code)
	}
	if rec := do(http.MethodGet, "/checkout/result?order=order-1&status=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown status, got %d", rec.Code)
	}
	rec = do(http.MethodGet, "/checkout/result?order=order-1&status=success", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"completed":true`) {
		t.Errorf("expected completed payment, got %d %s", rec.Code, rec.Body.String())
	}
}
