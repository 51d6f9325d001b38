package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/logger"
	"github.com/scholaris/school-gateway/pkg/monitoring"
	"github.com/scholaris/school-gateway/pkg/types"
)

// Service is the HTTP server in front of the gateway pipeline
type Service struct {
	router  *mux.Router
	server  *http.Server
	gateway *Gateway
	health  *monitoring.HealthManager
	metrics *monitoring.MetricsCollector
	monitor *monitoring.MonitoringMiddleware
	logger  *logger.Logger

	basePath     string
	metricsPath  string
	healthPath   string
	allowOrigins []string
	apiKeyHeader string
}

// NewService creates the HTTP service. health, metrics and tracing may be nil.
func NewService(cfg *config.Config, gw *Gateway, health *monitoring.HealthManager, metrics *monitoring.MetricsCollector, tracing *monitoring.TracingManager, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}

	s := &Service{
		router:       mux.NewRouter(),
		gateway:      gw,
		health:       health,
		metrics:      metrics,
		logger:       log,
		basePath:     "/" + strings.Trim(cfg.Server.BasePath, "/"),
		metricsPath:  cfg.Monitoring.MetricsPath,
		healthPath:   cfg.Monitoring.HealthPath,
		allowOrigins: cfg.Server.AllowOrigins,
		apiKeyHeader: cfg.Auth.APIKeyHeader,
	}
	if s.apiKeyHeader == "" {
		s.apiKeyHeader = "X-API-Key"
	}
	s.monitor = monitoring.NewMonitoringMiddleware(metrics, tracing, log)

	s.setupRoutes(cfg.Monitoring.Enabled)
	s.setupMiddleware()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	return s
}

// Handler returns the fully wrapped router
func (s *Service) Handler() http.Handler {
	return s.router
}

// setupRoutes sets up the routing
func (s *Service) setupRoutes(monitoringEnabled bool) {
	if monitoringEnabled {
		if s.health != nil && s.healthPath != "" {
			s.router.Handle(s.healthPath, s.health.HTTPHandler()).Methods(http.MethodGet)
		}
		if s.metrics != nil && s.metricsPath != "" {
			s.router.Handle(s.metricsPath, s.metrics.Handler()).Methods(http.MethodGet)
		}
	}

	if s.basePath == "/" {
		s.router.PathPrefix("/").Handler(s.gateway)
	} else {
		s.router.Handle(s.basePath, s.gateway)
		s.router.PathPrefix(s.basePath + "/").Handler(s.gateway)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, notFound())
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusMethodNotAllowed, &types.GatewayError{
			Type:    types.ErrorTypeValidation,
			Code:    "METHOD_NOT_ALLOWED",
			Message: "method not allowed",
		})
	})
}

// setupMiddleware sets up middleware, outermost first
func (s *Service) setupMiddleware() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.monitor.HTTPMiddleware)
	s.router.Use(s.securityHeadersMiddleware)
	s.router.Use(s.corsMiddleware)
}

// Start starts the server and blocks until it stops
func (s *Service) Start() error {
	s.logger.WithComponent("gateway").WithField("addr", s.server.Addr).Info("Starting API gateway")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires
func (s *Service) Stop(ctx context.Context) error {
	s.logger.WithComponent("gateway").Info("Stopping API gateway")
	return s.server.Shutdown(ctx)
}
