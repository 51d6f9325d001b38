package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/scholaris/school-gateway/internal/account"
	"github.com/scholaris/school-gateway/internal/admin"
	"github.com/scholaris/school-gateway/internal/gateway"
	"github.com/scholaris/school-gateway/internal/store"
	"github.com/scholaris/school-gateway/pkg/config"
	"github.com/scholaris/school-gateway/pkg/database"
	"github.com/scholaris/school-gateway/pkg/interfaces"
	"github.com/scholaris/school-gateway/pkg/logger"
	"github.com/scholaris/school-gateway/pkg/monitoring"
)

// stores groups the backing stores selected by configuration
type stores struct {
	sessions    interfaces.SessionStore
	apiKeys     interfaces.APIKeyStore
	quota       interfaces.QuotaStore
	maintenance interfaces.MaintenanceStore
	users       interfaces.UserDirectory
	closers     []func() error
}

func (s *stores) Close() {
	for _, closeFn := range s.closers {
		_ = closeFn()
	}
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(cfg.LogLevel)
	mainLog := appLogger.WithComponent("main")

	ctx := context.Background()

	tracing, err := monitoring.NewTracingManager(ctx, &monitoring.TracingConfig{
		ServiceName:    cfg.Monitoring.ServiceName,
		ServiceVersion: cfg.Monitoring.ServiceVersion,
		OTLPEndpoint:   cfg.Monitoring.OTLPEndpoint,
		SamplingRate:   cfg.Monitoring.SamplingRate,
	})
	if err != nil {
		mainLog.WithError(err).Fatal("Failed to initialize tracing")
	}

	metrics := monitoring.NewMetricsCollector(cfg.Monitoring.ServiceName)
	health := monitoring.NewHealthManager(cfg.Monitoring.ServiceName, cfg.Monitoring.ServiceVersion)

	backends, err := openStores(ctx, cfg, appLogger, health)
	if err != nil {
		mainLog.WithError(err).Fatal("Failed to open stores")
	}
	defer backends.Close()

	if cfg.Maintenance.Enabled {
		if err := backends.maintenance.SetEnabled(ctx, true); err != nil {
			mainLog.WithError(err).Fatal("Failed to apply initial maintenance flag")
		}
	}
	if enabled, err := backends.maintenance.Enabled(ctx); err == nil {
		metrics.SetMaintenance(enabled)
	}

	timeout := cfg.Auth.StoreTimeoutDuration()
	codec := gateway.NewJWTCodec(&cfg.JWT)

	accounts := account.NewService(
		backends.users,
		account.NewPasswordManager(bcrypt.DefaultCost),
		codec,
		backends.sessions,
		cfg.Auth.SessionTTLDuration(),
		appLogger,
	)

	registry := gateway.NewRegistry()
	registry.Register("status", gateway.NewStatusHandler(health, backends.maintenance))
	registry.Register("auth", account.NewHandler(accounts, &cfg.Auth))
	registry.Register("maintenance", admin.NewMaintenanceHandler(backends.maintenance, metrics, appLogger, timeout))

	gw := gateway.New(gateway.Options{
		Extractor:    gateway.NewExtractor(&cfg.Auth),
		Resolver:     gateway.NewResolver(codec, backends.apiKeys, backends.sessions, timeout).WithMetrics(metrics),
		Availability: gateway.NewAvailabilityGate(backends.maintenance, &cfg.Maintenance, timeout),
		Quota:        gateway.NewQuotaGate(backends.quota, &cfg.RateLimit, timeout),
		Policy:       gateway.NewPolicy(&cfg.Policy),
		Router:       gateway.NewRouter(cfg.Server.BasePath, registry),
		Logger:       appLogger,
		Metrics:      metrics,
		Tracing:      tracing,
		TrustProxy:   cfg.Server.TrustProxy,
		Development:  cfg.Development,
	})

	service := gateway.NewService(cfg, gw, health, metrics, tracing, appLogger)

	// Start the server in a goroutine
	go func() {
		if err := service.Start(); err != nil {
			mainLog.WithError(err).Error("Failed to start server")
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLog.Info("Shutting down API gateway")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := service.Stop(shutdownCtx); err != nil {
		mainLog.WithError(err).Error("Failed to shutdown server gracefully")
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		mainLog.WithError(err).Warn("Failed to flush traces")
	}

	mainLog.Info("API gateway stopped")
}

// openStores picks Redis and Postgres when enabled and in-memory stores otherwise
func openStores(ctx context.Context, cfg *config.Config, appLogger *logger.Logger, health *monitoring.HealthManager) (*stores, error) {
	s := &stores{
		sessions:    store.NewMemorySessionStore(),
		apiKeys:     store.NewMemoryAPIKeyStore(),
		quota:       store.NewMemoryQuotaStore(),
		maintenance: store.NewMemoryMaintenanceStore(false),
		users:       account.NewMemoryDirectory(),
	}

	if cfg.Redis.Enabled {
		client := store.NewRedisClient(&cfg.Redis)
		s.closers = append(s.closers, client.Close)

		quota := store.NewRedisQuotaStore(client, cfg.Redis.Prefix)
		s.quota = quota
		s.sessions = store.NewRedisSessionStore(client, cfg.Redis.Prefix)
		s.maintenance = store.NewRedisMaintenanceStore(client, cfg.Redis.Prefix)
		health.RegisterChecker("redis", monitoring.NewPingHealthChecker(quota.Ping))

		appLogger.WithComponent("main").WithField("addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)).
			Info("Using Redis for quota, sessions and maintenance")
	}

	if cfg.Database.Enabled {
		db, err := database.NewConnection(&cfg.Database, appLogger)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, db.Close)

		if err := db.CreateSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}

		s.apiKeys = store.NewPostgresAPIKeyStore(db)
		s.users = account.NewUserRepository(db, appLogger)
		health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))

		appLogger.WithComponent("main").Info("Using Postgres for API keys and users")
	}

	return s, nil
}
