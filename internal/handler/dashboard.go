package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/pulsecheck/internal/service"
)

type DashboardHandler struct {
	dashboard *service.DashboardService
	logger    *slog.Logger
}

func NewDashboardHandler(dashboard *service.DashboardService, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, logger: logger}
}

// HandleGet returns the richest dashboard the caller's role allows.
//
// HTTP: GET /api/dashboard
func (h *DashboardHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	d, err := h.dashboard.Dashboard(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandleHealth returns a liveness handler that also pings the database.
//
// HTTP: GET /healthz
func HandleHealth(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			logger.Warn("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
