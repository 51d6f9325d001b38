package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/scholaris/school-gateway/pkg/logger"
	"github.com/scholaris/school-gateway/pkg/monitoring"
	"github.com/scholaris/school-gateway/pkg/types"
)

// Pipeline stage names used in spans, metrics and logs
const (
	StageRoute        = "route"
	StageResolve      = "resolve"
	StageAvailability = "availability"
	StageQuota        = "quota"
	StageAuthorize    = "authorize"
	StageInput        = "input"
	StageDispatch     = "dispatch"
)

type principalKey struct{}

// WithPrincipal stores the resolved principal on ctx
func WithPrincipal(ctx context.Context, principal types.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFromContext returns the principal the gateway admitted the request with
func PrincipalFromContext(ctx context.Context) (types.Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(types.Principal)
	return principal, ok
}

// Options wires the pipeline components
type Options struct {
	Extractor    *Extractor
	Resolver     *Resolver
	Availability *AvailabilityGate
	Quota        *QuotaGate
	Policy       *Policy
	Router       *Router

	Logger  *logger.Logger
	Metrics *monitoring.MetricsCollector
	Tracing *monitoring.TracingManager

	TrustProxy  bool
	Development bool
	Now         func() time.Time
}

// Gateway runs the admission pipeline for every request below the base path
type Gateway struct {
	extractor    *Extractor
	resolver     *Resolver
	availability *AvailabilityGate
	quota        *QuotaGate
	policy       *Policy
	router       *Router

	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
	tracing *monitoring.TracingManager

	trustProxy  bool
	development bool
	now         func() time.Time
}

// New creates a gateway. Logger, Metrics and Now are defaulted when nil.
func New(opts Options) *Gateway {
	g := &Gateway{
		extractor:    opts.Extractor,
		resolver:     opts.Resolver,
		availability: opts.Availability,
		quota:        opts.Quota,
		policy:       opts.Policy,
		router:       opts.Router,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		tracing:      opts.Tracing,
		trustProxy:   opts.TrustProxy,
		development:  opts.Development,
		now:          opts.Now,
	}
	if g.logger == nil {
		g.logger = logger.Discard()
	}
	if g.metrics == nil {
		g.metrics = monitoring.NewMetricsCollector("gateway")
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// admission carries per-request state through the stages
type admission struct {
	route      Route
	resolution *Resolution
	principal  types.Principal
	clientKey  string
}

// ServeHTTP runs route, resolve, availability, quota and authorize in order
// and dispatches on success. Every stage fails closed.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := g.now()
	adm := &admission{clientKey: ClientKey(r, nil, g.trustProxy)}

	route, handler, err := g.router.Route(r.URL.Path)
	if err != nil {
		g.reject(ctx, w, StageRoute, adm, err)
		return
	}
	adm.route = route

	if !g.policy.IsPublic(route) {
		creds := g.extractor.Extract(r)
		err := g.stage(ctx, StageResolve, func(ctx context.Context) error {
			resolution, err := g.resolver.Resolve(ctx, creds, now)
			if err != nil {
				return err
			}
			adm.resolution = resolution
			adm.principal = resolution.Principal
			return nil
		})
		if err != nil {
			g.reject(ctx, w, StageResolve, adm, err)
			return
		}
		adm.clientKey = ClientKey(r, adm.resolution, g.trustProxy)
	}

	if err := g.stage(ctx, StageAvailability, func(ctx context.Context) error {
		return g.availability.Check(ctx, adm.principal, route)
	}); err != nil {
		g.reject(ctx, w, StageAvailability, adm, err)
		return
	}

	if g.quota != nil && g.quota.Enabled() {
		var decision types.QuotaDecision
		class := g.quota.ClassFor(route.Resource)
		err := g.stage(ctx, StageQuota, func(ctx context.Context) error {
			var err error
			decision, err = g.quota.Admit(ctx, class, adm.clientKey, now)
			return err
		})
		if decision.Limit > 0 {
			SetQuotaHeaders(w, decision, now)
		}
		if err != nil {
			if !decision.Allowed && decision.Limit > 0 {
				g.metrics.RecordQuotaRejection(class)
			}
			g.reject(ctx, w, StageQuota, adm, err)
			return
		}
	}

	if err := g.policy.Authorize(adm.principal, route); err != nil {
		g.reject(ctx, w, StageAuthorize, adm, err)
		return
	}

	input, err := ReadInput(w, r)
	if err != nil {
		g.reject(ctx, w, StageInput, adm, err)
		return
	}

	g.metrics.RecordAdmission(StageDispatch, "admitted")

	ctx = WithPrincipal(ctx, adm.principal)
	ctx, span := g.tracing.StartStageSpan(ctx, StageDispatch)
	defer span.End()

	handler.Handle(ctx, w, &Call{
		Action:    route.Action,
		ID:        route.ID,
		Method:    r.Method,
		Input:     input,
		Principal: adm.principal,
		Request:   r.WithContext(ctx),
	})
}

// stage runs fn inside a span named after the stage
func (g *Gateway) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := g.tracing.StartStageSpan(ctx, name)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		recordSpanError(span, err)
	}
	return err
}

func recordSpanError(span trace.Span, err error) {
	if span.IsRecording() {
		monitoring.RecordError(span, err)
	}
}

// reject logs the terminal decision and writes the structured error. Tokens
// and keys never reach the log; only the route and client key do.
func (g *Gateway) reject(ctx context.Context, w http.ResponseWriter, stage string, adm *admission, err error) {
	gwErr := types.AsGatewayError(err)
	g.metrics.RecordAdmission(stage, string(gwErr.Type))

	details := map[string]interface{}{
		"stage":      stage,
		"route":      adm.route.Key(),
		"client_key": adm.clientKey,
		"code":       gwErr.Code,
	}
	if !adm.principal.IsAnonymous() {
		details["user_id"] = adm.principal.ID
	}

	switch gwErr.Type {
	case types.ErrorTypeInternal:
		g.logger.WithContext(ctx).WithFields(logrus.Fields(details)).WithError(gwErr.Cause).Error("Admission failed")
	case types.ErrorTypeUnavailable:
		if gwErr.Maintenance {
			g.logger.Security(ctx, "maintenance_blocked", details)
		} else {
			g.logger.WithContext(ctx).WithFields(logrus.Fields(details)).WithError(gwErr.Cause).Error("Backing store unavailable")
		}
	case types.ErrorTypeAuthentication:
		g.logger.Security(ctx, "unauthenticated", details)
	case types.ErrorTypeAuthorization:
		g.logger.Security(ctx, "forbidden", details)
	case types.ErrorTypeRateLimit:
		g.logger.Security(ctx, "rate_limited", details)
	default:
		g.logger.WithContext(ctx).WithFields(logrus.Fields(details)).Debug("Request rejected")
	}

	WriteError(w, g.publicError(gwErr))
}

// publicError hides internal detail outside development mode
func (g *Gateway) publicError(gwErr *types.GatewayError) *types.GatewayError {
	if gwErr.Type != types.ErrorTypeInternal {
		return gwErr
	}
	if !g.development {
		return types.NewInternalError(types.ErrCodeInternalError, "internal server error", nil)
	}

	exposed := *gwErr
	if gwErr.Cause != nil {
		exposed.Details = map[string]interface{}{"cause": gwErr.Cause.Error()}
	}
	return &exposed
}
