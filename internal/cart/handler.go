package cart

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/joao-fontenele/storefront-otel/internal/backend"
	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/pricing"
	"github.com/joao-fontenele/storefront-otel/internal/session"
)

// Rates supplies the delivery options and tax setting used for summaries.
type Rates interface {
	DeliveryOptions(ctx context.Context) ([]domain.DeliveryOption, error)
	Tax(ctx context.Context) (domain.TaxSetting, error)
}

type Handler struct {
	carts      *Manager
	compositor pricing.Compositor
	rates      Rates
	logger     *slog.Logger
}

func NewHandler(carts *Manager, compositor pricing.Compositor, rates Rates, logger *slog.Logger) *Handler {
	return &Handler{
		carts:      carts,
		compositor: compositor,
		rates:      rates,
		logger:     logger,
	}
}

// Register mounts the cart routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /cart", h.HandleGet)
	mux.HandleFunc("DELETE /cart", h.HandleClear)
	mux.HandleFunc("POST /cart/items", h.HandleAdd)
	mux.HandleFunc("PATCH /cart/items/{productId}", h.HandleUpdateQuantity)
	mux.HandleFunc("DELETE /cart/items/{productId}", h.HandleRemove)
	mux.HandleFunc("DELETE /cart/lines/{cartId}", h.HandleRemoveLine)
	mux.HandleFunc("DELETE /cart/bundles/{bundleId}", h.HandleRemoveBundle)
	mux.HandleFunc("POST /cart/coupon", h.HandleApplyCoupon)
	mux.HandleFunc("DELETE /cart/coupon", h.HandleRemoveCoupon)
	mux.HandleFunc("GET /cart/summary", h.HandleSummary)
}

type cartResponse struct {
	Snapshot
	Bundles Grouping `json:"bundles"`
}

func newCartResponse(snap Snapshot) cartResponse {
	return cartResponse{Snapshot: snap, Bundles: snap.Bundles()}
}

func (h *Handler) store(w http.ResponseWriter, r *http.Request) (*Store, bool) {
	id := session.ID(r.Context())
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing session")
		return nil, false
	}
	store, err := h.carts.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load cart", "error", err, "session_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	return store, true
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, newCartResponse(store.Snapshot()))
}

type addItemRequest struct {
	Product  json.RawMessage `json:"product"`
	Quantity *int            `json:"quantity"`
	BundleID string          `json:"bundleId"`
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store, ok := h.store(w, r)
	if !ok {
		return
	}

	var product domain.Product
	if len(req.Product) > 0 && string(req.Product) != "null" {
		p, err := backend.DecodeProduct(req.Product)
		if err != nil {
			h.logger.Warn("rejected product payload", "error", err, "session_id", store.SessionID())
			h.writeError(w, http.StatusBadRequest, ErrInvalidProduct.Error())
			return
		}
		product = p
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	snap, err := store.AddToCart(r.Context(), product, quantity, strings.TrimSpace(req.BundleID))
	if err != nil {
		h.writeMutationError(w, store, "add to cart", err)
		return
	}

	h.logger.Info("item added to cart", "session_id", store.SessionID(), "product_id", product.Base().ProductID, "count", snap.Count)
	h.writeJSON(w, http.StatusOK, newCartResponse(snap))
}

type updateQuantityRequest struct {
	Quantity *int   `json:"quantity"`
	BundleID string `json:"bundleId"`
}

func (h *Handler) HandleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store, ok := h.store(w, r)
	if !ok {
		return
	}

	snap, err := store.UpdateQuantity(r.Context(), productID, *req.Quantity, req.BundleID)
	if err != nil {
		h.writeMutationError(w, store, "update quantity", err)
		return
	}
	h.writeJSON(w, http.StatusOK, newCartResponse(snap))
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	store, ok := h.store(w, r)
	if !ok {
		return
	}

	snap, err := store.RemoveFromCart(r.Context(), productID, r.URL.Query().Get("bundleId"))
	if err != nil {
		h.writeMutationError(w, store, "remove from cart", err)
		return
	}
	h.writeJSON(w, http.StatusOK, newCartResponse(snap))
}

func (h *Handler) HandleRemoveLine(w http.ResponseWriter, r *http.Request) {
	cartID := r.PathValue("cartId")
	if cartID == "" {
		h.writeError(w, http.StatusBadRequest, "missing cart line id")
		return
	}

	store, ok := h.store(w, r)
	if !ok {
		return
	}

	snap, err := store.RemoveLine(r.Context(), cartID)
	if err != nil {
		h.writeMutationError(w, store, "remove line", err)
		return
	}
	h.writeJSON(w, http.StatusOK, newCartResponse(snap))
}

func (h *Handler) HandleRemoveBundle(w http.ResponseWriter, r *http.Request) {
	bundleID := r.PathValue("bundleId")
	if bundleID == "" {
		h.writeError(w, http.StatusBadRequest, "missing bundle id")
		return
	}

	store, ok := h.store(w, r)
	if !ok {
		return
	}

	snap, err := store.RemoveBundleFromCart(r.Context(), bundleID)
	if err != nil {
		h.writeMutationError(w, store, "remove bundle", err)
		return
	}
	h.writeJSON(w, http.StatusOK, newCartResponse(snap))
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	snap, err := store.ClearCart(r.Context())
	if err != nil {
		h.writeMutationError(w, store, "clear cart", err)
		return
	}
	h.logger.Info("cart cleared", "session_id", store.SessionID())
	h.writeJSON(w, http.StatusOK, newCartResponse(snap))
}

type couponRequest struct {
	Code string `json:"code"`
}

func (h *Handler) HandleApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	store, ok := h.store(w, r)
	if !ok {
		return
	}

	snap, err := store.ApplyCoupon(r.Context(), req.Code)
	if err != nil {
		h.writeMutationError(w, store, "apply coupon", err)
		return
	}
	h.logger.Info("coupon applied", "session_id", store.SessionID(), "code", snap.Coupon.Coupon.Code)
	h.writeJSON(w, http.StatusOK, newCartResponse(snap))
}

func (h *Handler) HandleRemoveCoupon(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	snap, err := store.RemoveCoupon(r.Context())
	if err != nil {
		h.writeMutationError(w, store, "remove coupon", err)
		return
	}
	h.writeJSON(w, http.StatusOK, newCartResponse(snap))
}

type summaryResponse struct {
	pricing.Summary
	Delivery          *domain.DeliveryOption  `json:"delivery,omitempty"`
	DeliveryOptions   []domain.DeliveryOption `json:"deliveryOptions"`
	FreeShippingAbove string                  `json:"freeShippingThreshold"`
	Count             int                     `json:"cartCount"`
	Coupon            *domain.AppliedCoupon   `json:"coupon,omitempty"`
}

// HandleSummary composes the payable total for the delivery option named by
// the delivery query parameter.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	store, ok := h.store(w, r)
	if !ok {
		return
	}
	snap := store.Snapshot()

	options, err := h.rates.DeliveryOptions(r.Context())
	if err != nil {
		h.logger.Error("failed to fetch delivery options", "error", err)
		h.writeError(w, http.StatusBadGateway, "delivery options unavailable")
		return
	}

	var selected *domain.DeliveryOption
	if name := r.URL.Query().Get("delivery"); name != "" {
		for i := range options {
			if strings.EqualFold(options[i].Name, name) {
				selected = &options[i]
				break
			}
		}
		if selected == nil {
			h.writeError(w, http.StatusBadRequest, "unknown delivery option "+strconv.Quote(name))
			return
		}
	}

	tax, err := h.rates.Tax(r.Context())
	if err != nil {
		h.logger.Warn("failed to fetch tax setting", "error", err)
	}

	summary := h.compositor.Compose(pricing.Composition{
		CartTotal:      snap.Total,
		Delivery:       selected,
		CouponDiscount: snap.CouponDiscount(),
		TaxRate:        tax.Rate,
	})

	h.writeJSON(w, http.StatusOK, summaryResponse{
		Summary:           summary,
		Delivery:          selected,
		DeliveryOptions:   options,
		FreeShippingAbove: h.compositor.Threshold().StringFixed(2),
		Count:             snap.Count,
		Coupon:            snap.Coupon,
	})
}

func (h *Handler) writeMutationError(w http.ResponseWriter, store *Store, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidProduct), errors.Is(err, ErrInvalidQuantity):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCoupon):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrEmptyCart):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrCouponUnavailable):
		h.logger.Error("coupon validation failed", "error", err, "session_id", store.SessionID())
		h.writeError(w, http.StatusBadGateway, "coupon service unavailable")
	default:
		h.logger.Error("cart mutation failed", "op", op, "error", err, "session_id", store.SessionID())
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
