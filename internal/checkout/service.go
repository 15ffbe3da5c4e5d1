package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/maphash"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-otel/internal/backend"
	"github.com/joao-fontenele/storefront-otel/internal/cart"
	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
	"github.com/joao-fontenele/storefront-otel/internal/storage"
)

// Keys in the session scope. The last two are shared with the legacy
// browser client.
const (
	KeyDraft           = "checkout"
	KeySavedAddress    = "savedShippingAddress"
	KeyGuestInfo       = "guestInfo"
	lockStripes        = 64
	defaultReturnRoute = "/checkout/result"
)

// API is the part of the commerce API checkout depends on.
type API interface {
	DeliveryOptions(ctx context.Context) ([]domain.DeliveryOption, error)
	Tax(ctx context.Context) (domain.TaxSetting, error)
	CreateOrder(ctx context.Context, order domain.OrderSubmission, idempotencyKey string) (domain.PlacedOrder, error)
	StartPayment(ctx context.Context, method domain.PaymentMethod, req backend.PaymentRequest) (string, error)
}

type Options struct {
	// PublicBaseURL is where payment providers send the shopper back.
	PublicBaseURL string
	Notifier      cart.Notifier
	Logger        *slog.Logger
	Now           func() time.Time
}

type Service struct {
	carts      *cart.Manager
	kv         storage.Store
	api        API
	compositor pricing.Compositor
	returnURL  string
	notifier   cart.Notifier
	logger     *slog.Logger
	now        func() time.Time

	seed  maphash.Seed
	locks [lockStripes]sync.Mutex
}

func NewService(carts *cart.Manager, kv storage.Store, api API, compositor pricing.Compositor, opts Options) *Service {
	s := &Service{
		carts:      carts,
		kv:         kv,
		api:        api,
		compositor: compositor,
		returnURL:  strings.TrimRight(opts.PublicBaseURL, "/") + defaultReturnRoute,
		notifier:   opts.Notifier,
		logger:     opts.Logger,
		now:        opts.Now,
		seed:       maphash.MakeSeed(),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// View is the checkout as shown to the shopper.
type View struct {
	Draft           Draft                   `json:"draft"`
	Cart            cart.Snapshot           `json:"cart"`
	Summary         pricing.Summary         `json:"summary"`
	DeliveryOptions []domain.DeliveryOption `json:"deliveryOptions"`
}

// Outcome is the result of placing an order. RedirectURL is set for
// methods that continue on a hosted payment page.
type Outcome struct {
	Order       domain.PlacedOrder `json:"order"`
	Completed   bool               `json:"completed"`
	RedirectURL string             `json:"redirectUrl,omitempty"`
}

func (s *Service) lock(sessionID string) func() {
	m := &s.locks[maphash.String(s.seed, sessionID)%lockStripes]
	m.Lock()
	return m.Unlock
}

// View loads the checkout of sessionID, prefilling a fresh draft with the
// saved address and guest info.
func (s *Service) View(ctx context.Context, sessionID string) (View, error) {
	defer s.lock(sessionID)()

	draft, err := s.loadDraft(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	store, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return View{}, fmt.Errorf("load cart: %w", err)
	}
	snap := store.Snapshot()
	draft, _, err = s.reconcile(ctx, sessionID, draft, snap)
	if err != nil {
		return View{}, err
	}
	return s.viewWithCart(ctx, draft, snap)
}

func (s *Service) SetDetails(ctx context.Context, sessionID string, in Details) (View, error) {
	return s.update(ctx, sessionID, func(d Draft) (Draft, error) {
		return d.WithDetails(in)
	})
}

func (s *Service) SetNotes(ctx context.Context, sessionID, notes string) (View, error) {
	return s.update(ctx, sessionID, func(d Draft) (Draft, error) {
		return d.WithNotes(notes)
	})
}

func (s *Service) Back(ctx context.Context, sessionID string) (View, error) {
	return s.update(ctx, sessionID, Draft.Back)
}

// Continue completes the current step. Leaving the address step remembers
// the address and guest info and records a begin_checkout event.
func (s *Service) Continue(ctx context.Context, sessionID string) (View, error) {
	defer s.lock(sessionID)()

	store, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return View{}, fmt.Errorf("load cart: %w", err)
	}
	snap := store.Snapshot()
	if snap.Empty() {
		return View{}, ErrEmptyCart
	}

	draft, err := s.loadDraft(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	from := draft.Step

	if from == StepAddress && draft.DeliveryType == domain.DeliveryTypeDelivery {
		if _, err := s.deliveryOption(ctx, draft.DeliveryOption); err != nil {
			return View{}, err
		}
	}

	next, err := draft.Continue()
	if err != nil {
		return View{}, err
	}
	if next.Step == StepPayment {
		next.IdempotencyKey = uuid.NewString()
		next.CartFingerprint = Fingerprint(snap)
	}

	if err := s.saveDraft(ctx, sessionID, next); err != nil {
		return View{}, err
	}

	if from == StepAddress {
		s.remember(ctx, sessionID, next)
		s.notify(ctx, sessionID, domain.CartEvent{
			Name:     domain.EventBeginCheckout,
			Quantity: snap.Count,
			Value:    snap.Total,
		})
	}

	return s.viewWithCart(ctx, next, snap)
}

// PlaceOrder submits the order at the payment step. Cash on delivery
// completes immediately and empties the cart; the other methods return the
// provider's redirect URL and leave the cart for the return trip. Either way
// the draft is reset, so the next order gets its own key. A cart that changed
// after the payment step was entered sends the shopper back to the summary
// with ErrCartChanged.
func (s *Service) PlaceOrder(ctx context.Context, sessionID string, method domain.PaymentMethod) (Outcome, error) {
	if !method.Valid() {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnsupportedPayment, method)
	}

	defer s.lock(sessionID)()

	draft, err := s.loadDraft(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if draft.Step != StepPayment {
		return Outcome{}, fmt.Errorf("%w: orders are placed on the %s step", ErrStepOrder, StepPayment)
	}

	store, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load cart: %w", err)
	}
	snap := store.Snapshot()
	if snap.Empty() {
		return Outcome{}, ErrEmptyCart
	}
	if _, reopened, err := s.reconcile(ctx, sessionID, draft, snap); err != nil {
		return Outcome{}, err
	} else if reopened {
		return Outcome{}, ErrCartChanged
	}

	summary, err := s.summarize(ctx, snap, draft)
	if err != nil {
		return Outcome{}, err
	}

	order := BuildOrder(snap, draft, summary, method)
	placed, err := s.api.CreateOrder(ctx, order, draft.IdempotencyKey)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: create order: %w", ErrUpstream, err)
	}

	if !method.Redirects() {
		s.finish(ctx, sessionID, store)
		s.notify(ctx, sessionID, domain.CartEvent{
			Name:     domain.EventPurchase,
			OrderID:  placed.ID,
			Payment:  method,
			Coupon:   order.CouponCode,
			Quantity: snap.Count,
			Value:    summary.Total,
		})
		s.logger.Info("order placed", "order_id", placed.ID, "session_id", sessionID, "payment_method", method)
		return Outcome{Order: placed, Completed: true}, nil
	}

	redirect, err := s.api.StartPayment(ctx, method, s.paymentRequest(placed, draft, summary))
	if err != nil {
		return Outcome{Order: placed}, fmt.Errorf("%w: start %s payment for order %s: %w", ErrUpstream, method, placed.ID, err)
	}
	if redirect == "" {
		s.logger.Error("payment provider returned no redirect", "order_id", placed.ID, "payment_method", method)
		return Outcome{Order: placed}, fmt.Errorf("%w: %s for order %s", ErrMissingRedirectURL, method, placed.ID)
	}

	s.resetDraft(ctx, sessionID)
	s.notify(ctx, sessionID, domain.CartEvent{
		Name:     domain.EventPaymentRedirected,
		OrderID:  placed.ID,
		Payment:  method,
		Coupon:   order.CouponCode,
		Quantity: snap.Count,
		Value:    summary.Total,
	})
	s.logger.Info("redirecting to payment provider", "order_id", placed.ID, "session_id", sessionID, "payment_method", method)
	return Outcome{Order: placed, RedirectURL: redirect}, nil
}

func (s *Service) paymentRequest(placed domain.PlacedOrder, draft Draft, summary pricing.Summary) backend.PaymentRequest {
	var customer domain.GuestInfo
	if draft.Guest != nil {
		customer = *draft.Guest
	}
	back := func(status string) string {
		q := url.Values{}
		q.Set("order", placed.ID)
		q.Set("status", status)
		return s.returnURL + "?" + q.Encode()
	}
	return backend.PaymentRequest{
		OrderID:    placed.ID,
		Amount:     summary.Total,
		Customer:   customer,
		SuccessURL: back("success"),
		FailureURL: back("failure"),
		CancelURL:  back("cancel"),
	}
}

// PaymentResult is the outcome reported when the shopper comes back from a
// payment provider.
type PaymentResult struct {
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	Completed bool   `json:"completed"`
}

// CompletePayment handles the return from a payment provider. A successful
// payment empties the cart; a failed or cancelled one leaves it for another
// attempt.
func (s *Service) CompletePayment(ctx context.Context, sessionID, orderID, status string) (PaymentResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return PaymentResult{}, fmt.Errorf("%w: missing order", ErrPaymentResult)
	}
	result := PaymentResult{OrderID: orderID, Status: status}

	switch status {
	case "success":
	case "failure", "cancel":
		s.logger.Info("payment not completed", "order_id", orderID, "status", status, "session_id", sessionID)
		return result, nil
	default:
		return PaymentResult{}, fmt.Errorf("%w: status %q", ErrPaymentResult, status)
	}

	defer s.lock(sessionID)()

	store, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("load cart: %w", err)
	}
	snap := store.Snapshot()
	s.finish(ctx, sessionID, store)
	if !snap.Empty() {
		s.notify(ctx, sessionID, domain.CartEvent{
			Name:     domain.EventPurchase,
			OrderID:  orderID,
			Quantity: snap.Count,
			Value:    snap.Total,
		})
	}
	s.logger.Info("payment completed", "order_id", orderID, "session_id", sessionID)
	result.Completed = true
	return result, nil
}

// finish clears the cart and the draft after a completed order. Failures
// are logged: the order already exists.
func (s *Service) finish(ctx context.Context, sessionID string, store *cart.Store) {
	if _, err := store.ClearCart(ctx); err != nil {
		s.logger.Error("failed to clear cart after order", "error", err, "session_id", sessionID)
	}
	s.resetDraft(ctx, sessionID)
}

func (s *Service) resetDraft(ctx context.Context, sessionID string) {
	if err := storage.NewScope(s.kv, sessionID).Delete(ctx, KeyDraft); err != nil {
		s.logger.Error("failed to reset checkout", "error", err, "session_id", sessionID)
	}
}

// reconcile reopens a payment-step draft whose cart no longer matches the
// one the step was entered with.
func (s *Service) reconcile(ctx context.Context, sessionID string, draft Draft, snap cart.Snapshot) (Draft, bool, error) {
	if draft.Step != StepPayment || draft.CartFingerprint == Fingerprint(snap) {
		return draft, false, nil
	}
	draft = draft.Reopen()
	if err := s.saveDraft(ctx, sessionID, draft); err != nil {
		return Draft{}, false, err
	}
	s.logger.Info("cart changed during checkout", "session_id", sessionID, "step", draft.Step.String())
	return draft, true, nil
}

func (s *Service) update(ctx context.Context, sessionID string, fn func(Draft) (Draft, error)) (View, error) {
	defer s.lock(sessionID)()

	draft, err := s.loadDraft(ctx, sessionID)
	if err != nil {
		return View{}, err
	}
	next, err := fn(draft)
	if err != nil {
		return View{}, err
	}
	if err := s.saveDraft(ctx, sessionID, next); err != nil {
		return View{}, err
	}
	return s.view(ctx, sessionID, next)
}

func (s *Service) view(ctx context.Context, sessionID string, draft Draft) (View, error) {
	store, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return View{}, fmt.Errorf("load cart: %w", err)
	}
	return s.viewWithCart(ctx, draft, store.Snapshot())
}

func (s *Service) viewWithCart(ctx context.Context, draft Draft, snap cart.Snapshot) (View, error) {
	options, err := s.api.DeliveryOptions(ctx)
	if err != nil {
		return View{}, fmt.Errorf("%w: fetch delivery options: %w", ErrUpstream, err)
	}
	summary, err := s.compose(ctx, snap, draft, options)
	if err != nil {
		return View{}, err
	}
	return View{Draft: draft, Cart: snap, Summary: summary, DeliveryOptions: options}, nil
}

func (s *Service) summarize(ctx context.Context, snap cart.Snapshot, draft Draft) (pricing.Summary, error) {
	options, err := s.api.DeliveryOptions(ctx)
	if err != nil {
		return pricing.Summary{}, fmt.Errorf("%w: fetch delivery options: %w", ErrUpstream, err)
	}
	return s.compose(ctx, snap, draft, options)
}

func (s *Service) compose(ctx context.Context, snap cart.Snapshot, draft Draft, options []domain.DeliveryOption) (pricing.Summary, error) {
	var selected *domain.DeliveryOption
	if draft.DeliveryType != domain.DeliveryTypePickup && draft.DeliveryOption != "" {
		opt, ok := findOption(options, draft.DeliveryOption)
		if !ok && draft.Step > StepAddress {
			return pricing.Summary{}, &IncompleteError{Step: StepAddress, Fields: []string{"deliveryOption"}}
		}
		if ok {
			selected = &opt
		}
	}

	tax, err := s.api.Tax(ctx)
	if err != nil {
		s.logger.Warn("failed to fetch tax setting", "error", err)
	}

	return s.compositor.Compose(pricing.Composition{
		CartTotal:      snap.Total,
		Delivery:       selected,
		CouponDiscount: snap.CouponDiscount(),
		TaxRate:        tax.Rate,
	}), nil
}

func (s *Service) deliveryOption(ctx context.Context, name string) (domain.DeliveryOption, error) {
	options, err := s.api.DeliveryOptions(ctx)
	if err != nil {
		return domain.DeliveryOption{}, fmt.Errorf("%w: fetch delivery options: %w", ErrUpstream, err)
	}
	opt, ok := findOption(options, name)
	if !ok {
		return domain.DeliveryOption{}, &IncompleteError{Step: StepAddress, Fields: []string{"deliveryOption"}}
	}
	return opt, nil
}

func findOption(options []domain.DeliveryOption, name string) (domain.DeliveryOption, bool) {
	for _, o := range options {
		if strings.EqualFold(o.Name, name) {
			return o, true
		}
	}
	return domain.DeliveryOption{}, false
}

// loadDraft returns the stored draft, or a new one prefilled from the
// remembered address and guest info. Unreadable values count as absent.
func (s *Service) loadDraft(ctx context.Context, sessionID string) (Draft, error) {
	scope := storage.NewScope(s.kv, sessionID)

	data, found, err := scope.Get(ctx, KeyDraft)
	if err != nil {
		return Draft{}, fmt.Errorf("load checkout: %w", err)
	}
	if found {
		var d Draft
		if err := json.Unmarshal(data, &d); err == nil && d.Step >= StepAddress && d.Step <= StepPayment {
			return d, nil
		}
		s.logger.Warn("discarding unreadable checkout draft", "session_id", sessionID)
	}

	draft := NewDraft()
	var addr domain.ShippingAddress
	if ok, err := s.readJSON(ctx, scope, KeySavedAddress, &addr); err != nil {
		return Draft{}, err
	} else if ok {
		draft.ShippingAddress = &addr
	}
	var guest domain.GuestInfo
	if ok, err := s.readJSON(ctx, scope, KeyGuestInfo, &guest); err != nil {
		return Draft{}, err
	} else if ok {
		draft.Guest = &guest
	}
	return draft, nil
}

func (s *Service) readJSON(ctx context.Context, scope storage.Scope, key string, out any) (bool, error) {
	data, found, err := scope.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("ignoring unreadable saved value", "key", key, "error", err, "session_id", scope.Name())
		return false, nil
	}
	return true, nil
}

func (s *Service) saveDraft(ctx context.Context, sessionID string, d Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode checkout: %w", err)
	}
	if err := storage.NewScope(s.kv, sessionID).Put(ctx, KeyDraft, data); err != nil {
		return fmt.Errorf("save checkout: %w", err)
	}
	return nil
}

// remember stores the address and guest info for the next checkout.
func (s *Service) remember(ctx context.Context, sessionID string, d Draft) {
	values := map[string][]byte{}
	if d.ShippingAddress != nil && d.DeliveryType == domain.DeliveryTypeDelivery {
		if data, err := json.Marshal(d.ShippingAddress); err == nil {
			values[KeySavedAddress] = data
		}
	}
	if d.Guest != nil {
		if data, err := json.Marshal(d.Guest); err == nil {
			values[KeyGuestInfo] = data
		}
	}
	if len(values) == 0 {
		return
	}
	if err := storage.NewScope(s.kv, sessionID).PutAll(ctx, values); err != nil {
		s.logger.Warn("failed to remember checkout details", "error", err, "session_id", sessionID)
	}
}

func (s *Service) notify(ctx context.Context, sessionID string, ev domain.CartEvent) {
	if s.notifier == nil {
		return
	}
	ev.ID = uuid.NewString()
	ev.SessionID = sessionID
	ev.OccurredAt = s.now().UTC()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("checkout event notifier panicked", "event", ev.Name, "panic", r)
		}
	}()
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("failed to deliver checkout event", "error", err, "event", ev.Name, "session_id", sessionID)
	}
}
