package config

import (
	"github.com/jackzampolin/prompta/internal/auth"
)

// Config holds prompta configuration.
// Stored at: ~/.prompta/config.yaml
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           string   `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	// Development relaxes security headers and allows an ephemeral JWT secret.
	Development bool `mapstructure:"development" yaml:"development"`
}

// DatabaseConfig selects and configures the relational store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite" or "postgres"
	// DSN supports ${ENV_VAR} syntax. Empty means ~/.prompta/prompta.db for
	// sqlite, or the managed container for postgres.
	DSN          string          `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns int             `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	Container    ContainerConfig `mapstructure:"container" yaml:"container"`
}

// ContainerConfig holds managed Postgres container settings.
type ContainerConfig struct {
	// Managed starts the container with `prompta serve`.
	Managed  bool   `mapstructure:"managed" yaml:"managed"`
	Name     string `mapstructure:"name" yaml:"name"`
	Image    string `mapstructure:"image" yaml:"image"`
	Port     string `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// AuthConfig configures credentials.
type AuthConfig struct {
	JWTSecret  string            `mapstructure:"jwt_secret" yaml:"jwt_secret"`   // supports ${ENV_VAR}
	SessionTTL string            `mapstructure:"session_ttl" yaml:"session_ttl"` // Go duration, e.g. "30m"
	APIKeyTTL  string            `mapstructure:"api_key_ttl" yaml:"api_key_ttl"` // Go duration, e.g. "8760h"
	Argon2     auth.Argon2Params `mapstructure:"argon2" yaml:"argon2"`
}

// RateLimitConfig configures the per-IP limiter.
type RateLimitConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	PerIP   string `mapstructure:"per_ip" yaml:"per_ip"` // ulule format, e.g. "300-M"
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // console or json
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: "8000",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Container: ContainerConfig{
				Name:     "prompta-postgres",
				Image:    "postgres:16-alpine",
				Port:     "5433",
				User:     "prompta",
				Password: "prompta",
				Database: "prompta",
			},
		},
		Auth: AuthConfig{
			JWTSecret:  "${PROMPTA_JWT_SECRET}",
			SessionTTL: auth.DefaultSessionTTL.String(),
			APIKeyTTL:  auth.DefaultAPIKeyTTL.String(),
			Argon2:     auth.DefaultArgon2Params(),
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			PerIP:   "300-M",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
