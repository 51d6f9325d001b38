package gateway

import (
	"context"
	"time"

	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/interfaces"
	"github.com/scholaris/school-gateway/pkg/types"
)

// AvailabilityGate rejects non-exempt traffic while the maintenance flag is set
type AvailabilityGate struct {
	store        interfaces.MaintenanceStore
	exemptRoles  []string
	exemptRoutes RouteSet
	message      string
	timeout      time.Duration
}

// NewAvailabilityGate creates the gate over store
func NewAvailabilityGate(store interfaces.MaintenanceStore, cfg *config.MaintenanceConfig, timeout time.Duration) *AvailabilityGate {
	message := cfg.Message
	if message == "" {
		message = "The service is temporarily down for maintenance"
	}
	return &AvailabilityGate{
		store:        store,
		exemptRoles:  types.NormalizeRoles(cfg.ExemptRoles),
		exemptRoutes: NewRouteSet(cfg.ExemptRoutes),
		message:      message,
		timeout:      timeout,
	}
}

// Check admits the request unless maintenance is on and neither the principal
// nor the route is exempt. An unreadable flag counts as maintenance.
func (g *AvailabilityGate) Check(ctx context.Context, principal types.Principal, route Route) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	enabled, err := g.store.Enabled(ctx)
	if err != nil {
		return types.NewUnavailableError(types.ErrCodeStoreUnavailable, "service temporarily unavailable", err)
	}
	if !enabled {
		return nil
	}

	if principal.HasAnyRole(g.exemptRoles) || g.exemptRoutes.Contains(route) {
		return nil
	}

	return types.NewMaintenanceError(g.message)
}
