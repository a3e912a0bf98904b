// Package config manages environment variables.
//
// It reads variables from the process environment (and a `.env` file when
// present), loads them into structured Go types and validates that required
// values are present so they can be reused across the application runtime.
//
// Responsibilities:
//   - Load environment variables (optionally from a `.env` file).
//   - Map env vars into a structured Go config (structs).
//   - Validate required values so the app fails fast on bad/missing config.
//   - Provide sane defaults for optional config blocks (observability, billing).
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	// Side-effect import: if a `.env` file exists, it gets loaded into the
	// process env before any variable is read.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix every configuration variable must carry.
const EnvPrefix = "TENANTFLOW_"

// ServiceName identifies this service in logs, traces and APM dashboards.
const ServiceName = "tenantflow"

// Config is the root configuration object for the application.
//
// Env vars are read with the TENANTFLOW_ prefix and a double underscore marks
// nesting, e.g. TENANTFLOW_SERVER__PORT -> server.port -> Config.Server.Port.
//
// Observability and Billing are pointers because they are optional. If not
// provided, defaults are injected at load time.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Redis         RedisConfig          `koanf:"redis" validate:"required"`
	Auth          AuthConfig           `koanf:"auth" validate:"required"`
	Integration   IntegrationConfig    `koanf:"integration" validate:"required"`
	Stripe        StripeConfig         `koanf:"stripe" validate:"required"`
	Billing       *BillingConfig       `koanf:"billing"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds top-level information about the runtime environment.
type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

// ServerConfig groups settings for the HTTP server runtime.
// Timeouts are expressed in seconds.
type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required"`
}

// DatabaseConfig contains PostgreSQL connection parameters and pool tuning.
type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password" validate:"required"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int    `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int    `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time" validate:"required"`
}

// RedisConfig contains Redis connection details.
// Address is typically "host:port".
type RedisConfig struct {
	Address string `koanf:"address" validate:"required"`
}

// AuthConfig stores the Clerk secret used to verify session tokens.
type AuthConfig struct {
	SecretKey string `koanf:"secret_key" validate:"required"`
}

// IntegrationConfig holds credentials for outbound notification providers.
type IntegrationConfig struct {
	ResendAPIKey string `koanf:"resend_api_key" validate:"required"`
	// EmailFrom is the verified sender, e.g. "Tenantflow <rent@tenantflow.app>".
	EmailFrom string `koanf:"email_from"`
}

// StripeConfig holds payment processor credentials.
type StripeConfig struct {
	SecretKey string `koanf:"secret_key" validate:"required"`
	// Currency is the ISO currency used when a lease does not carry one.
	Currency string `koanf:"currency"`
}

// LoadConfig loads configuration from environment variables, unmarshals it
// into Config, validates it and applies defaults.
//
// Unlike a fail-fast loader it never exits the process: callers (the CLI)
// decide how to react to a bad configuration.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	// TENANTFLOW_DATABASE__SSL_MODE -> "database.ssl_mode"
	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("could not load env variables: %w", err)
	}

	mainConfig := &Config{}
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("could not unmarshal main config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(mainConfig); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if mainConfig.Observability == nil {
		mainConfig.Observability = DefaultObservabilityConfig()
	}

	// Service name and environment always follow the primary config so
	// telemetry is consistently labelled.
	mainConfig.Observability.ServiceName = ServiceName
	mainConfig.Observability.Environment = mainConfig.Primary.Env

	if err := mainConfig.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}

	mainConfig.Billing = mainConfig.Billing.withDefaults()
	if err := mainConfig.Billing.Validate(); err != nil {
		return nil, fmt.Errorf("invalid billing config: %w", err)
	}

	if mainConfig.Stripe.Currency == "" {
		mainConfig.Stripe.Currency = "usd"
	}
	mainConfig.Stripe.Currency = strings.ToLower(mainConfig.Stripe.Currency)

	if mainConfig.Integration.EmailFrom == "" {
		mainConfig.Integration.EmailFrom = "Tenantflow <rent@tenantflow.app>"
	}

	return mainConfig, nil
}
