package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the gateway
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Token configuration
	JWT JWTConfig `mapstructure:"jwt"`

	// Credential extraction and store configuration
	Auth AuthConfig `mapstructure:"auth"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Maintenance gate configuration
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`

	// Route policy table
	Policy PolicyConfig `mapstructure:"policy"`

	// Redis configuration
	Redis RedisConfig `mapstructure:"redis"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`

	// Development exposes internal error detail in responses
	Development bool `mapstructure:"development"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	BasePath     string   `mapstructure:"base_path"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	IdleTimeout  int      `mapstructure:"idle_timeout"`
	TrustProxy   bool     `mapstructure:"trust_proxy"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// JWTConfig holds token configuration
type JWTConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	TokenTTL  int    `mapstructure:"token_ttl"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

// AuthConfig holds credential extraction settings
type AuthConfig struct {
	APIKeyHeader  string `mapstructure:"api_key_header"`
	SessionCookie string `mapstructure:"session_cookie"`
	SessionTTL    int    `mapstructure:"session_ttl"`
	StoreTimeout  int    `mapstructure:"store_timeout_ms"`
}

// RateLimitClass is the limit applied to one route class
type RateLimitClass struct {
	Requests int `mapstructure:"requests"`
	Window   int `mapstructure:"window"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled         bool                      `mapstructure:"enabled"`
	Default         RateLimitClass            `mapstructure:"default"`
	Classes         map[string]RateLimitClass `mapstructure:"classes"`
	ResourceClasses map[string]string         `mapstructure:"resource_classes"`
}

// MaintenanceConfig holds the maintenance gate configuration
type MaintenanceConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	ExemptRoles  []string `mapstructure:"exempt_roles"`
	ExemptRoutes []string `mapstructure:"exempt_routes"`
	Message      string   `mapstructure:"message"`
}

// PolicyConfig holds the route policy table. Keys are "resource/action"
// (action may be "*"); values are the required roles.
type PolicyConfig struct {
	OverrideRole string              `mapstructure:"override_role"`
	PublicRoutes []string            `mapstructure:"public_routes"`
	Routes       map[string][]string `mapstructure:"routes"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	Prefix   string `mapstructure:"prefix"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	URL             string `mapstructure:"url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	MetricsPath    string  `mapstructure:"metrics_path"`
	HealthPath     string  `mapstructure:"health_path"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
}

// TokenTTLDuration returns the token validity as a duration
func (c *JWTConfig) TokenTTLDuration() time.Duration {
	return time.Duration(c.TokenTTL) * time.Second
}

// StoreTimeoutDuration returns the backing store timeout as a duration
func (c *AuthConfig) StoreTimeoutDuration() time.Duration {
	return time.Duration(c.StoreTimeout) * time.Millisecond
}

// SessionTTLDuration returns the session lifetime as a duration
func (c *AuthConfig) SessionTTLDuration() time.Duration {
	return time.Duration(c.SessionTTL) * time.Second
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return LoadFrom(viper.New(), "")
}

// LoadFrom loads configuration into v. When path is non-empty it names the
// config file explicitly; otherwise the standard search paths are used.
func LoadFrom(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/school-gateway")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.allow_origins", []string{"*"})

	// Token defaults
	v.SetDefault("jwt.token_ttl", 86400) // 24 hours
	v.SetDefault("jwt.issuer", "school-gateway")
	v.SetDefault("jwt.audience", "school-clients")

	// Credential defaults
	v.SetDefault("auth.api_key_header", "X-API-Key")
	v.SetDefault("auth.session_cookie", "session_id")
	v.SetDefault("auth.session_ttl", 28800)
	v.SetDefault("auth.store_timeout_ms", 2000)

	// Rate limiting defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.default.requests", 60)
	v.SetDefault("rate_limit.default.window", 60)
	v.SetDefault("rate_limit.classes", map[string]interface{}{
		"auth":    map[string]interface{}{"requests": 10, "window": 300},
		"reports": map[string]interface{}{"requests": 20, "window": 300},
	})
	v.SetDefault("rate_limit.resource_classes", map[string]string{
		"auth":    "auth",
		"reports": "reports",
	})

	// Maintenance defaults
	v.SetDefault("maintenance.enabled", false)
	v.SetDefault("maintenance.exempt_roles", []string{"admin"})
	v.SetDefault("maintenance.exempt_routes", []string{"status/*", "auth/login"})
	v.SetDefault("maintenance.message", "The service is temporarily down for maintenance")

	// Policy defaults
	v.SetDefault("policy.override_role", "admin")
	v.SetDefault("policy.public_routes", []string{"auth/login", "auth/register", "status/*"})
	v.SetDefault("policy.routes", map[string][]string{
		"auth/*":        {"*"},
		"maintenance/*": {"admin"},
	})

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.prefix", "gw:")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "school")
	v.SetDefault("database.user", "school")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.health_path", "/health")
	v.SetDefault("monitoring.sampling_rate", 1.0)
	v.SetDefault("monitoring.service_name", "school-gateway")
	v.SetDefault("monitoring.service_version", "dev")

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("development", false)
}

// overrideWithEnv overrides configuration with well-known environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if jwtSecret := os.Getenv("JWT_SECRET_KEY"); jwtSecret != "" {
		config.JWT.SecretKey = jwtSecret
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
		config.Database.Enabled = true
	}

	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		if host, port, ok := strings.Cut(redisAddr, ":"); ok {
			if p, err := strconv.Atoi(port); err == nil {
				config.Redis.Host = host
				config.Redis.Port = p
				config.Redis.Enabled = true
			}
		}
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.JWT.SecretKey == "" {
		return fmt.Errorf("JWT secret key is required")
	}

	if len(config.JWT.SecretKey) < 32 && !config.Development {
		return fmt.Errorf("JWT secret key must be at least 32 bytes")
	}

	if config.JWT.TokenTTL <= 0 {
		return fmt.Errorf("invalid token ttl: %d", config.JWT.TokenTTL)
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.RateLimit.Default.Requests <= 0 || config.RateLimit.Default.Window <= 0 {
		return fmt.Errorf("default rate limit must be positive")
	}

	for name, class := range config.RateLimit.Classes {
		if class.Requests <= 0 || class.Window <= 0 {
			return fmt.Errorf("rate limit class %q must be positive", name)
		}
	}

	for resource, class := range config.RateLimit.ResourceClasses {
		if _, ok := config.RateLimit.Classes[class]; !ok && class != "default" {
			return fmt.Errorf("resource %q mapped to unknown rate limit class %q", resource, class)
		}
	}

	if config.Database.Enabled && config.Database.URL == "" && config.Database.Password == "" {
		return fmt.Errorf("database password is required")
	}

	return nil
}
