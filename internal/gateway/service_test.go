package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/monitoring"
	"github.com/scholaris/school-gateway/pkg/types"
)

func TestService_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/students/list", nil)
	req.Header.Set("Origin", "https://portal.example.edu")
	rr := env.do(req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Expected wildcard origin, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "X-API-Key") {
		t.Errorf("Expected API key header to be allowed, got %q", rr.Header().Get("Access-Control-Allow-Headers"))
	}
	if env.callCount() != 0 {
		t.Error("Expected preflight not to reach a handler")
	}
}

func TestService_SpecificOrigin(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Server.AllowOrigins = []string{"https://portal.example.edu"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/students/list", nil)
	req.Header.Set("Origin", "https://portal.example.edu")
	rr := env.do(req)

	if rr.Header().Get("Access-Control-Allow-Origin") != "https://portal.example.edu" {
		t.Errorf("Expected echoed origin, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("Expected credentials to be allowed for a named origin")
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/students/list", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = env.do(req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("Expected no origin for unknown caller, got %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestService_SecurityHeadersAndRequestID(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rr.Header().Get("X-Content-Type-Options") != "nosniff" || rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("Expected security headers, got %v", rr.Header())
	}
	if rr.Header().Get(monitoring.RequestIDHeader) == "" {
		t.Error("Expected a request id on the response")
	}
}

func TestService_PanicRecovery(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register("explode", HandlerFunc(func(ctx context.Context, w http.ResponseWriter, call *Call) {
		panic("boom")
	}))
	admin := env.token(t, types.NewPrincipal(1, "head", types.RoleAdmin))

	rr := env.do(bearer(httptest.NewRequest(http.MethodGet, "/api/explode", nil), admin))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "boom") {
		t.Errorf("Expected panic value to stay out of the body, got %s", rr.Body.String())
	}
}

func TestService_HealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected health 200, got %d", rr.Code)
	}
	var report monitoring.HealthReport
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to decode health report: %v", err)
	}
	if report.Status != monitoring.HealthStatusHealthy {
		t.Errorf("Expected healthy, got %s", report.Status)
	}

	env.do(httptest.NewRequest(http.MethodGet, "/api/students/list", nil))

	rr = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected metrics 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "gateway_admission_decisions_total") {
		t.Error("Expected admission counter in metrics output")
	}
}

func TestService_NotFoundOutsideBasePath(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/v2/students/list", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body.Code != types.ErrCodeNotFound {
		t.Errorf("Expected code %s, got %s", types.ErrCodeNotFound, body.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	env := newTestEnv(t)
	env.registry.Register("status", NewStatusHandler(monitoring.NewHealthManager("test", "test"), env.maintenance))
	env.maintenance.SetEnabled(context.Background(), true)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["maintenance"] != true {
		t.Errorf("Expected maintenance flag in status, got %v", body)
	}

	rr = env.do(httptest.NewRequest(http.MethodDelete, "/api/status", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rr.Code)
	}
}
