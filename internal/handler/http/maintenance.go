package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/stagelink/rentops/internal/service"
	"github.com/stagelink/rentops/pkg/httputil"
)

// MaintenanceHandler exposes the background maintenance jobs for manual runs.
type MaintenanceHandler struct {
	sweeper *service.Sweeper
	logger  *slog.Logger
}

// NewMaintenanceHandler creates a new maintenance HTTP handler.
func NewMaintenanceHandler(sweeper *service.Sweeper, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		sweeper: sweeper,
		logger:  logger,
	}
}

// SweepExpired handles POST /api/v1/maintenance/sweep
func (h *MaintenanceHandler) SweepExpired(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.SweepExpired(r.Context(), time.Now().UTC())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// Reconcile handles POST /api/v1/maintenance/reconcile
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.sweeper.Reconcile(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}
