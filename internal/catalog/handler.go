package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/session"
)

// Backend is the part of the commerce API the catalog pages call directly.
type Backend interface {
	Subscribe(ctx context.Context, email string, preferences []string) error
	ProductsBySKUs(ctx context.Context, skus []string) ([]domain.Product, error)
	Coupons(ctx context.Context) ([]domain.Coupon, error)
}

const maxLookupSKUs = 50

type Handler struct {
	menu     *MenuCache
	searcher *Searcher
	api      Backend
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandler(menu *MenuCache, searcher *Searcher, api Backend, logger *slog.Logger) *Handler {
	return &Handler{
		menu:     menu,
		searcher: searcher,
		api:      api,
		logger:   logger,
		now:      time.Now,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /catalog/menu", h.HandleMenu)
	mux.HandleFunc("GET /catalog/categories/{key}", h.HandleCategory)
	mux.HandleFunc("GET /catalog/search", h.HandleSearch)
	mux.HandleFunc("GET /catalog/products", h.HandleProducts)
	mux.HandleFunc("GET /catalog/coupons", h.HandleCoupons)
	mux.HandleFunc("POST /newsletter", h.HandleSubscribe)
}

// HandleMenu degrades to an empty menu when the catalog API is down.
func (h *Handler) HandleMenu(w http.ResponseWriter, r *http.Request) {
	tree, err := h.menu.Tree(r.Context())
	if err != nil {
		h.logger.Warn("serving menu without fresh categories", "error", err, "categories", tree.Len())
	}
	roots := tree.Roots
	if roots == nil {
		roots = []domain.Category{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"categories": roots})
}

func (h *Handler) HandleCategory(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	tree, err := h.menu.Tree(r.Context())
	if err != nil {
		h.logger.Warn("resolving category from stale menu", "error", err)
	}

	category, ok := tree.Find(key)
	if !ok {
		h.writeError(w, http.StatusNotFound, "category not found")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"category":    category,
		"breadcrumbs": tree.Breadcrumbs(key),
	})
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	var seq uint64
	if raw := r.URL.Query().Get("seq"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid seq")
			return
		}
		seq = n
	}

	results, err := h.searcher.Search(r.Context(), session.ID(r.Context()), seq, query)
	if errors.Is(err, ErrSuperseded) {
		h.writeJSON(w, http.StatusOK, map[string]any{"seq": seq, "superseded": true, "results": []Result{}})
		return
	}
	if err != nil {
		h.logger.Error("product search failed", "error", err, "query", query)
		h.writeError(w, http.StatusBadGateway, "search unavailable")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"seq": seq, "superseded": false, "results": results})
}

// HandleProducts resolves ?skus=a,b,c to priced results, in API order.
func (h *Handler) HandleProducts(w http.ResponseWriter, r *http.Request) {
	var skus []string
	for _, raw := range r.URL.Query()["skus"] {
		for sku := range strings.SplitSeq(raw, ",") {
			if sku = strings.TrimSpace(sku); sku != "" && !slices.Contains(skus, sku) {
				skus = append(skus, sku)
			}
		}
	}
	if len(skus) == 0 {
		h.writeError(w, http.StatusBadRequest, "skus is required")
		return
	}
	if len(skus) > maxLookupSKUs {
		h.writeError(w, http.StatusBadRequest, "too many skus")
		return
	}

	products, err := h.api.ProductsBySKUs(r.Context(), skus)
	if err != nil {
		h.logger.Error("sku lookup failed", "error", err, "skus", len(skus))
		h.writeError(w, http.StatusBadGateway, "products unavailable")
		return
	}

	results := make([]Result, 0, len(products))
	for _, p := range products {
		results = append(results, newResult(p))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"products": results})
}

// HandleCoupons lists unexpired promotions. An unreachable API yields an
// empty list.
func (h *Handler) HandleCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.api.Coupons(r.Context())
	if err != nil {
		h.logger.Warn("serving no promotions", "error", err)
		coupons = nil
	}

	now := h.now()
	active := make([]domain.Coupon, 0, len(coupons))
	for _, c := range coupons {
		if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
			continue
		}
		active = append(active, c)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"coupons": active})
}

type subscribeRequest struct {
	Email       string   `json:"email"`
	Preferences []string `json:"preferences"`
}

func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	if err := h.api.Subscribe(r.Context(), addr.Address, req.Preferences); err != nil {
		h.logger.Error("newsletter subscription failed", "error", err)
		h.writeError(w, http.StatusBadGateway, "subscription failed")
		return
	}

	h.logger.Info("newsletter subscription", "preferences", len(req.Preferences))
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "subscribed"})
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
