// Package config loads the immutable runtime configuration from the
// environment. Values are read once at startup and injected into their
// consumers; no component reads the environment afterwards.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendREST     = "rest"
)

// Config holds runtime configuration. Environment variables carry the
// RESERVO_ prefix.
type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	AuthSecret         string        `envconfig:"AUTH_SECRET" required:"true"`
	SuperadminPassword string        `envconfig:"SUPERADMIN_PASSWORD" required:"true"`
	TokenTTL           time.Duration `envconfig:"TOKEN_TTL" default:"12h"`
	TokenIssuer        string        `envconfig:"TOKEN_ISSUER" default:"reservo"`

	StoreBackend string        `envconfig:"STORE_BACKEND" default:"memory"`
	PGDSN        string        `envconfig:"PG_DSN"`
	StoreBaseURL string        `envconfig:"STORE_BASE_URL"`
	StoreAPIKey  string        `envconfig:"STORE_API_KEY"`
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`

	RateLimitPerSecond int   `envconfig:"RATE_LIMIT_PER_SECOND" default:"20"`
	RateLimitBurst     int   `envconfig:"RATE_LIMIT_BURST" default:"40"`
	MaxBodyBytes       int64 `envconfig:"MAX_BODY_BYTES" default:"1048576"`
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("reservo", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.AuthSecret) == "" {
		return errors.New("auth secret must be provided")
	}
	if strings.TrimSpace(c.SuperadminPassword) == "" {
		return errors.New("superadmin password must be provided")
	}
	if c.TokenTTL <= 0 {
		return errors.New("token ttl must be greater than zero")
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if strings.TrimSpace(c.PGDSN) == "" {
			return errors.New("postgres backend requires RESERVO_PG_DSN")
		}
	case BackendREST:
		if strings.TrimSpace(c.StoreBaseURL) == "" {
			return errors.New("rest backend requires RESERVO_STORE_BASE_URL")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	return nil
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
