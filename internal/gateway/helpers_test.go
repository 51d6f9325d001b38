package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/scholaris/school-gateway/internal/store"
	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/logger"
	"github.com/scholaris/school-gateway/pkg/monitoring"
	"github.com/scholaris/school-gateway/pkg/types"
)

const testSecret = "test-secret-key-with-at-least-32-bytes!"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			BasePath:     "/api",
			AllowOrigins: []string{"*"},
		},
		JWT: config.JWTConfig{
			SecretKey: testSecret,
			TokenTTL:  86400,
			Issuer:    "school-gateway",
			Audience:  "school-clients",
		},
		Auth: config.AuthConfig{
			APIKeyHeader:  "X-API-Key",
			SessionCookie: "session_id",
			SessionTTL:    3600,
			StoreTimeout:  2000,
		},
		RateLimit: config.RateLimitConfig{
			Enabled: true,
			Default: config.RateLimitClass{Requests: 60, Window: 60},
			Classes: map[string]config.RateLimitClass{
				"auth":    {Requests: 10, Window: 300},
				"reports": {Requests: 20, Window: 300},
			},
			ResourceClasses: map[string]string{"auth": "auth", "reports": "reports"},
		},
		Maintenance: config.MaintenanceConfig{
			ExemptRoles:  []string{types.RoleAdmin},
			ExemptRoutes: []string{"status/*", "auth/login"},
			Message:      "Back soon",
		},
		Policy: config.PolicyConfig{
			OverrideRole: types.RoleAdmin,
			PublicRoutes: []string{"auth/login", "auth/register", "status/*"},
			Routes: map[string][]string{
				"students/*":      {types.RoleTeacher, types.RoleRegistrar},
				"students/delete": {types.RoleRegistrar},
				"grades/*":        {types.RoleAdmin, types.RoleRegistrar},
				"fees/*":          {types.RoleBursar},
				"reports/*":       {AnyAuthenticated},
				"auth/*":          {AnyAuthenticated},
				"notices/*":       {},
			},
		},
		Monitoring: config.MonitoringConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
			HealthPath:  "/health",
		},
	}
}

// testEnv is a fully wired gateway over in-memory stores with a fixed clock
type testEnv struct {
	cfg         *config.Config
	gateway     *Gateway
	service     *Service
	codec       *JWTCodec
	sessions    *store.MemorySessionStore
	apiKeys     *store.MemoryAPIKeyStore
	quota       *store.MemoryQuotaStore
	maintenance *store.MemoryMaintenanceStore
	registry    *Registry
	metrics     *monitoring.MetricsCollector

	mu    sync.Mutex
	now   time.Time
	calls []*Call
}

func newTestEnv(t *testing.T, mutate ...func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, fn := range mutate {
		fn(cfg)
	}

	env := &testEnv{
		cfg:         cfg,
		codec:       NewJWTCodec(&cfg.JWT),
		sessions:    store.NewMemorySessionStore(),
		apiKeys:     store.NewMemoryAPIKeyStore(),
		quota:       store.NewMemoryQuotaStore(),
		maintenance: store.NewMemoryMaintenanceStore(false),
		registry:    NewRegistry(),
		metrics:     monitoring.NewMetricsCollector("test"),
		now:         time.Unix(1700000000, 0),
	}

	for _, resource := range []string{"students", "grades", "fees", "reports", "auth", "status", "notices", "unlisted"} {
		env.registry.Register(resource, HandlerFunc(env.echo))
	}

	timeout := cfg.Auth.StoreTimeoutDuration()
	env.gateway = New(Options{
		Extractor:    NewExtractor(&cfg.Auth),
		Resolver:     NewResolver(env.codec, env.apiKeys, env.sessions, timeout).WithMetrics(env.metrics),
		Availability: NewAvailabilityGate(env.maintenance, &cfg.Maintenance, timeout),
		Quota:        NewQuotaGate(env.quota, &cfg.RateLimit, timeout),
		Policy:       NewPolicy(&cfg.Policy),
		Router:       NewRouter(cfg.Server.BasePath, env.registry),
		Logger:       logger.Discard(),
		Metrics:      env.metrics,
		TrustProxy:   cfg.Server.TrustProxy,
		Development:  cfg.Development,
		Now:          env.clock,
	})
	env.service = NewService(cfg, env.gateway, monitoring.NewHealthManager("test", "test"), env.metrics, nil, logger.Discard())

	return env
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func (e *testEnv) echo(ctx context.Context, w http.ResponseWriter, call *Call) {
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"action":   call.Action,
		"username": call.Principal.Username,
		"input":    call.Input,
	})
}

func (e *testEnv) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *testEnv) lastCall() *Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.calls) == 0 {
		return nil
	}
	return e.calls[len(e.calls)-1]
}

func (e *testEnv) token(t *testing.T, principal types.Principal) string {
	t.Helper()
	token, err := e.codec.Issue(principal, e.clock())
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	return token.AccessToken
}

func (e *testEnv) apiKey(t *testing.T, principal types.Principal) string {
	t.Helper()
	raw, record, err := store.GenerateAPIKey(principal, bcrypt.MinCost, e.clock())
	if err != nil {
		t.Fatalf("Failed to generate API key: %v", err)
	}
	if err := e.apiKeys.Create(context.Background(), record); err != nil {
		t.Fatalf("Failed to store API key: %v", err)
	}
	return raw
}

func (e *testEnv) session(t *testing.T, id string, principal types.Principal) {
	t.Helper()
	now := e.clock()
	err := e.sessions.Put(context.Background(), &types.Session{
		ID:        id,
		Principal: principal,
		CreatedAt: now,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to store session: %v", err)
	}
}

// do sends req through the full service and returns the recorder
func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.service.Handler().ServeHTTP(rr, req)
	return rr
}

func bearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
