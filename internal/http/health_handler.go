package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthPingTimeout = 2 * time.Second

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	storage   Pinger
	now       func() time.Time
	responder responder
	logger    *slog.Logger
}

func NewHealthHandler(storage Pinger, now func() time.Time, logger *slog.Logger) *HealthHandler {
	if now == nil {
		now = time.Now
	}
	base := defaultLogger(logger)
	return &HealthHandler{storage: storage, now: now, responder: newResponder(base), logger: base}
}

// Check handles GET /health. It answers 503 when storage does not respond.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := healthResponse{Status: "healthy", Storage: "ok", Timestamp: h.now().UTC().Format(time.RFC3339)}
	status := http.StatusOK

	if h.storage != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := h.storage.Ping(ctx); err != nil {
			handlerLogger(r.Context(), h.logger, "HealthHandler", "Check").ErrorContext(r.Context(), "storage ping failed", "error", err)
			resp.Status = "unhealthy"
			resp.Storage = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	h.responder.writeJSON(r.Context(), w, status, resp)
}

type healthResponse struct {
	Status    string `json:"status"`
	Storage   string `json:"storage"`
	Timestamp string `json:"timestamp"`
}
