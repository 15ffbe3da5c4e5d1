package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-otel/internal/domain"
)

const defaultSummaryWindow = 24 * time.Hour

// Reports is the read side of the event store.
type Reports interface {
	Summary(ctx context.Context, since time.Time, names []domain.EventName) ([]EventCount, error)
	SessionEvents(ctx context.Context, sessionID string) ([]domain.CartEvent, error)
}

type Handler struct {
	reports Reports
	logger  *slog.Logger
	now     func() time.Time
}

func NewHandler(reports Reports, logger *slog.Logger) *Handler {
	return &Handler{
		reports: reports,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /events/summary", h.HandleSummary)
	mux.HandleFunc("GET /events/sessions/{sessionId}", h.HandleSession)
}

type summaryResponse struct {
	Since  time.Time    `json:"since"`
	Counts []EventCount `json:"counts"`
}

// HandleSummary reports event counts since ?since= (RFC 3339), defaulting to
// the last 24 hours. ?name= may be repeated or comma separated.
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	since := h.now().Add(-defaultSummaryWindow).UTC()
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		since = parsed.UTC()
	}

	var names []domain.EventName
	for _, v := range r.URL.Query()["name"] {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, domain.EventName(n))
			}
		}
	}

	counts, err := h.reports.Summary(r.Context(), since, names)
	if err != nil {
		h.logger.Error("failed to summarize events", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, summaryResponse{Since: since, Counts: counts})
}

func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	events, err := h.reports.SessionEvents(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to list session events", "error", err, "session_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(events) == 0 {
		h.writeError(w, http.StatusNotFound, "no events for session")
		return
	}
	h.writeJSON(w, http.StatusOK, events)
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
