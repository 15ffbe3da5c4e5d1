package checkout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/storefront-otel/internal/backend"
	"github.com/joao-fontenele/storefront-otel/internal/domain"
	"github.com/joao-fontenele/storefront-otel/internal/session"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /checkout", h.HandleView)
	mux.HandleFunc("PUT /checkout/address", h.HandleSetDetails)
	mux.HandleFunc("PUT /checkout/notes", h.HandleSetNotes)
	mux.HandleFunc("POST /checkout/continue", h.HandleContinue)
	mux.HandleFunc("POST /checkout/back", h.HandleBack)
	mux.HandleFunc("POST /checkout/place", h.HandlePlace)
	mux.HandleFunc("GET "+defaultReturnRoute, h.HandlePaymentResult)
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := session.ID(r.Context())
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing session")
		return "", false
	}
	return id, true
}

func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.service.View(r.Context(), id)
	if err != nil {
		h.fail(w, id, "view checkout", err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleSetDetails(w http.ResponseWriter, r *http.Request) {
	var req Details
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.service.SetDetails(r.Context(), id, req)
	if err != nil {
		h.fail(w, id, "set checkout details", err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

type notesRequest struct {
	Notes string `json:"customerNotes"`
}

func (h *Handler) HandleSetNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.service.SetNotes(r.Context(), id, req.Notes)
	if err != nil {
		h.fail(w, id, "set checkout notes", err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleContinue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Continue(r.Context(), id)
	if err != nil {
		h.fail(w, id, "continue checkout", err)
		return
	}
	h.logger.Info("checkout advanced", "session_id", id, "step", view.Draft.Step.String())
	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleBack(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Back(r.Context(), id)
	if err != nil {
		h.fail(w, id, "go back in checkout", err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

type placeRequest struct {
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
}

func (h *Handler) HandlePlace(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	outcome, err := h.service.PlaceOrder(r.Context(), id, req.PaymentMethod)
	if err != nil {
		h.fail(w, id, "place order", err)
		return
	}
	status := http.StatusCreated
	if outcome.RedirectURL != "" {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, outcome)
}

// HandlePaymentResult is where payment providers send the shopper back,
// with ?order=<id>&status=success|failure|cancel.
func (h *Handler) HandlePaymentResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := h.service.CompletePayment(r.Context(), id, q.Get("order"), q.Get("status"))
	if err != nil {
		h.fail(w, id, "complete payment", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) fail(w http.ResponseWriter, sessionID, op string, err error) {
	var (
		incomplete *IncompleteError
		rejected   *backend.StatusError
	)
	switch {
	case errors.As(err, &incomplete):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  err.Error(),
			"step":   incomplete.Step,
			"fields": incomplete.Fields,
		})
	case errors.Is(err, ErrStepOrder), errors.Is(err, ErrEmptyCart), errors.Is(err, ErrCartChanged):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnsupportedPayment), errors.Is(err, ErrPaymentResult):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &rejected) && rejected.Rejected():
		h.logger.Warn("commerce api rejected checkout request", "op", op, "error", err, "session_id", sessionID)
		h.writeError(w, http.StatusUnprocessableEntity, rejected.Message)
	case errors.Is(err, ErrMissingRedirectURL), errors.Is(err, ErrUpstream):
		h.logger.Error("checkout remote call failed", "op", op, "error", err, "session_id", sessionID)
		h.writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.logger.Error("checkout failed", "op", op, "error", err, "session_id", sessionID)
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
