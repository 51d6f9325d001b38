package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/scholaris/school-gateway/pkg/interfaces"
	"github.com/scholaris/school-gateway/pkg/monitoring"
	"github.com/scholaris/school-gateway/pkg/types"
)

// WriteJSON writes data as a JSON response
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes a structured error with its fixed status code
func WriteError(w http.ResponseWriter, err *types.GatewayError) {
	WriteJSON(w, err.StatusCode(), err)
}

// MethodNotAllowed writes a 405 listing the allowed methods
func MethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, method := range allowed {
		w.Header().Add("Allow", method)
	}
	WriteJSON(w, http.StatusMethodNotAllowed, &types.GatewayError{
		Type:    types.ErrorTypeValidation,
		Code:    "METHOD_NOT_ALLOWED",
		Message: "method not allowed",
	})
}

// StatusHandler serves the public "status" resource
type StatusHandler struct {
	health      *monitoring.HealthManager
	maintenance interfaces.MaintenanceStore
	started     time.Time
}

// NewStatusHandler creates the status handler
func NewStatusHandler(health *monitoring.HealthManager, maintenance interfaces.MaintenanceStore) *StatusHandler {
	return &StatusHandler{health: health, maintenance: maintenance, started: time.Now()}
}

// Handle reports health, maintenance state and uptime
func (h *StatusHandler) Handle(ctx context.Context, w http.ResponseWriter, call *Call) {
	if call.Method != http.MethodGet && call.Method != http.MethodHead {
		MethodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}

	maintenance, err := h.maintenance.Enabled(ctx)
	response := map[string]interface{}{
		"maintenance": maintenance || err != nil,
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"timestamp":   time.Now().UTC(),
	}

	status := "ok"
	if h.health != nil {
		report := h.health.CheckHealth(ctx)
		response["checks"] = report.Summary
		if report.Status != monitoring.HealthStatusHealthy {
			status = string(report.Status)
		}
	}
	response["status"] = status

	WriteJSON(w, http.StatusOK, response)
}
