package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/scholaris/school-gateway/internal/store"
	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/interfaces"
	"github.com/scholaris/school-gateway/pkg/types"
)

// DefaultQuotaClass applies to resources without a class mapping
const DefaultQuotaClass = "default"

// QuotaClass is the fixed-window limit for one route class
type QuotaClass struct {
	Limit  int64
	Window time.Duration
}

// QuotaGate counts requests per client key in fixed windows
type QuotaGate struct {
	store           interfaces.QuotaStore
	enabled         bool
	classes         map[string]QuotaClass
	resourceClasses map[string]string
	timeout         time.Duration
}

// NewQuotaGate builds the per-class limits from configuration
func NewQuotaGate(quotaStore interfaces.QuotaStore, cfg *config.RateLimitConfig, timeout time.Duration) *QuotaGate {
	g := &QuotaGate{
		store:           quotaStore,
		enabled:         cfg.Enabled,
		classes:         make(map[string]QuotaClass, len(cfg.Classes)+1),
		resourceClasses: make(map[string]string, len(cfg.ResourceClasses)),
		timeout:         timeout,
	}

	g.classes[DefaultQuotaClass] = QuotaClass{
		Limit:  int64(cfg.Default.Requests),
		Window: time.Duration(cfg.Default.Window) * time.Second,
	}
	for name, class := range cfg.Classes {
		g.classes[name] = QuotaClass{
			Limit:  int64(class.Requests),
			Window: time.Duration(class.Window) * time.Second,
		}
	}
	for resource, class := range cfg.ResourceClasses {
		g.resourceClasses[resource] = class
	}

	return g
}

// Enabled reports whether the gate counts requests at all
func (g *QuotaGate) Enabled() bool {
	return g.enabled
}

// ClassFor returns the route class of resource
func (g *QuotaGate) ClassFor(resource string) string {
	if class, ok := g.resourceClasses[resource]; ok {
		if _, known := g.classes[class]; known {
			return class
		}
	}
	return DefaultQuotaClass
}

// Admit counts one request for clientKey in class. The request whose
// post-increment count exceeds the limit is itself rejected.
func (g *QuotaGate) Admit(ctx context.Context, class, clientKey string, now time.Time) (types.QuotaDecision, error) {
	limits, ok := g.classes[class]
	if !ok {
		limits = g.classes[DefaultQuotaClass]
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	window, err := g.store.Increment(ctx, class+":"+clientKey, limits.Window, now)
	if err != nil {
		return types.QuotaDecision{}, StoreFailure("quota store failure", err)
	}

	decision := types.QuotaDecision{
		Allowed:   window.Count <= limits.Limit,
		Limit:     limits.Limit,
		Remaining: limits.Limit - window.Count,
		Count:     window.Count,
		ResetAt:   window.WindowStart.Add(limits.Window),
	}
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}

	if !decision.Allowed {
		return decision, types.NewRateLimitError(types.ErrCodeRateLimitExceeded, "rate limit exceeded", map[string]interface{}{
			"limit":    decision.Limit,
			"reset_at": decision.ResetAt.Unix(),
		})
	}
	return decision, nil
}

// SetQuotaHeaders writes the advisory rate limit headers
func SetQuotaHeaders(w http.ResponseWriter, decision types.QuotaDecision, now time.Time) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", decision.ResetAt.Unix()))

	if !decision.Allowed {
		retryAfter := int64(decision.ResetAt.Sub(now).Round(time.Second) / time.Second)
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	}
}

// ClientKey identifies the caller for quota purposes: the API key prefix for
// keyed clients, otherwise the client IP
func ClientKey(r *http.Request, resolution *Resolution, trustProxy bool) string {
	if resolution != nil && resolution.Credential.Kind == types.CredentialAPIKey {
		return "key:" + store.KeyPrefix(resolution.Credential.Value)
	}
	return "ip:" + ClientIP(r, trustProxy)
}

// ClientIP returns the remote address, or the first X-Forwarded-For hop when
// the gateway sits behind a trusted proxy
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
