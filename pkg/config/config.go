// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/asque/asque/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Environment is "production" or "development"; production redacts
	// internal error messages from client responses.
	Environment string

	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Stripe   StripeConfig

	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// AllowedOrigins configures CORS for the browser frontend.
	AllowedOrigins []string
}

// DatabaseConfig holds Postgres configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnTimeout  time.Duration
}

// RedisConfig holds optional Redis configuration. When URL is empty the
// cache and rate limiter fall back to in-process memory stores.
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// AuthConfig holds OIDC verification settings for the auth provider.
type AuthConfig struct {
	IssuerURL string
	Audience  string
}

// StripeConfig holds payment provider settings.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	// AppURL is used for checkout/portal redirect URLs.
	AppURL string
	// ProPriceCents is the monthly Pro plan price.
	ProPriceCents int64
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is merged in first when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ASQUE_ENV", "development"),
		Server: ServerConfig{
			Host:            getEnv("ASQUE_HOST", "0.0.0.0"),
			Port:            getEnv("ASQUE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("ASQUE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("ASQUE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("ASQUE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("ASQUE_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  splitNonEmpty(getEnv("ASQUE_ALLOWED_ORIGINS", "*")),
		},
		Database: DatabaseConfig{
			URL:          getEnv("ASQUE_POSTGRES_URL", ""),
			MaxOpenConns: getEnvInt("ASQUE_POSTGRES_MAX_CONNS", 20),
			MaxIdleConns: getEnvInt("ASQUE_POSTGRES_IDLE_CONNS", 5),
			ConnTimeout:  getEnvDuration("ASQUE_POSTGRES_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("ASQUE_REDIS_URL", ""),
			Password: getEnv("ASQUE_REDIS_PASSWORD", ""),
			DB:       getEnvInt("ASQUE_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			IssuerURL: getEnv("ASQUE_AUTH_ISSUER", ""),
			Audience:  getEnv("ASQUE_AUTH_AUDIENCE", ""),
		},
		Stripe: StripeConfig{
			APIKey:        getEnv("STRIPE_API_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			AppURL:        getEnv("ASQUE_APP_URL", "http://localhost:3000"),
			ProPriceCents: int64(getEnvInt("ASQUE_PRO_PRICE_CENTS", 500)),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLevel(getEnv("LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("ASQUE_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Auth.IssuerURL == "" {
		return fmt.Errorf("auth issuer URL is required")
	}
	if c.Stripe.APIKey == "" {
		return fmt.Errorf("stripe API key is required")
	}
	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("stripe webhook secret is required")
	}
	return nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
