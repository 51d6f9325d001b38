// Package admin serves operator endpoints that sit behind the admin policy.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/scholaris/school-gateway/internal/gateway"
	"github.com/scholaris/school-gateway/pkg/interfaces"
	"github.com/scholaris/school-gateway/pkg/logger"
	"github.com/scholaris/school-gateway/pkg/monitoring"
	"github.com/scholaris/school-gateway/pkg/types"
)

// MaintenanceHandler serves the maintenance resource
type MaintenanceHandler struct {
	store   interfaces.MaintenanceStore
	metrics *monitoring.MetricsCollector
	logger  *logger.Logger
	timeout time.Duration
}

// NewMaintenanceHandler creates the handler. metrics may be nil.
func NewMaintenanceHandler(store interfaces.MaintenanceStore, metrics *monitoring.MetricsCollector, log *logger.Logger, timeout time.Duration) *MaintenanceHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &MaintenanceHandler{
		store:   store,
		metrics: metrics,
		logger:  log,
		timeout: timeout,
	}
}

// Handle serves maintenance/status, maintenance/enable and maintenance/disable
func (h *MaintenanceHandler) Handle(ctx context.Context, w http.ResponseWriter, call *gateway.Call) {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	switch call.Action {
	case "", "status":
		if call.Method != http.MethodGet {
			gateway.MethodNotAllowed(w, http.MethodGet)
			return
		}
		h.status(ctx, w)
	case "enable", "disable":
		if call.Method != http.MethodPost {
			gateway.MethodNotAllowed(w, http.MethodPost)
			return
		}
		h.set(ctx, w, call, call.Action == "enable")
	default:
		gateway.WriteError(w, types.NewNotFoundError(types.ErrCodeNotFound, "resource not found"))
	}
}

func (h *MaintenanceHandler) status(ctx context.Context, w http.ResponseWriter) {
	enabled, err := h.store.Enabled(ctx)
	if err != nil {
		gateway.WriteError(w, gateway.StoreFailure("failed to read maintenance flag", err))
		return
	}
	h.record(enabled)
	gateway.WriteJSON(w, http.StatusOK, map[string]interface{}{"maintenance": enabled})
}

func (h *MaintenanceHandler) set(ctx context.Context, w http.ResponseWriter, call *gateway.Call, enabled bool) {
	if err := h.store.SetEnabled(ctx, enabled); err != nil {
		h.logger.Audit(ctx, call.Principal.Username, "maintenance."+call.Action, "maintenance", false,
			map[string]interface{}{"error": err.Error()})
		gateway.WriteError(w, gateway.StoreFailure("failed to write maintenance flag", err))
		return
	}

	h.record(enabled)
	h.logger.Audit(ctx, call.Principal.Username, "maintenance."+call.Action, "maintenance", true,
		map[string]interface{}{"user_id": call.Principal.ID})

	gateway.WriteJSON(w, http.StatusOK, map[string]interface{}{"maintenance": enabled})
}

func (h *MaintenanceHandler) record(enabled bool) {
	if h.metrics != nil {
		h.metrics.SetMaintenance(enabled)
	}
}
