// Package gateway passes read-only catalog requests through to the commerce
// API so the browser talks to a single origin.
package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// copiedHeaders are returned to the shopper from the upstream response.
var copiedHeaders = []string{"Content-Type", "Cache-Control", "ETag", "Last-Modified"}

type Handler struct {
	catalog *ServiceProxy
	logger  *slog.Logger
}

func NewHandler(catalog *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		catalog: catalog,
		logger:  logger,
	}
}

// Register mounts the pass-through routes. Only reads are proxied; carts,
// coupons and orders go through the storefront handlers.
func (h *Handler) Register(mux *http.ServeMux) {
	for _, pattern := range []string{
		"GET /api/products",
		"GET /api/products/{id}",
		"GET /api/categories",
		"GET /api/categories/tree",
		"GET /api/subcategories",
		"GET /api/delivery-charges",
		"GET /api/tax",
	} {
		mux.HandleFunc(pattern, h.HandleCatalog)
	}
}

func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.catalog, r.URL.Path)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy, path string) {
	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", path)
		h.writeError(w, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for _, name := range copiedHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
