package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/prompta/internal/auth"
	"github.com/jackzampolin/prompta/internal/home"
	"github.com/jackzampolin/prompta/internal/store"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
// homeDir is searched for config.yaml when cfgFile is empty.
func NewManager(cfgFile, homeDir string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile, homeDir); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile, homeDir string) error {
	v := cm.v
	setDefaults(v, DefaultConfig())

	// Environment variables with PROMPTA_ prefix, e.g. PROMPTA_SERVER_PORT
	v.SetEnvPrefix("PROMPTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if homeDir != "" {
			v.AddConfigPath(homeDir)
		} else {
			v.AddConfigPath("$HOME/" + home.DefaultDirName)
		}
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setDefaults registers every leaf key so env overrides reach nested fields.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.development", d.Server.Development)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.container.managed", d.Database.Container.Managed)
	v.SetDefault("database.container.name", d.Database.Container.Name)
	v.SetDefault("database.container.image", d.Database.Container.Image)
	v.SetDefault("database.container.port", d.Database.Container.Port)
	v.SetDefault("database.container.user", d.Database.Container.User)
	v.SetDefault("database.container.password", d.Database.Container.Password)
	v.SetDefault("database.container.database", d.Database.Container.Database)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.session_ttl", d.Auth.SessionTTL)
	v.SetDefault("auth.api_key_ttl", d.Auth.APIKeyTTL)
	v.SetDefault("auth.argon2.memory", d.Auth.Argon2.Memory)
	v.SetDefault("auth.argon2.iterations", d.Auth.Argon2.Iterations)
	v.SetDefault("auth.argon2.parallelism", d.Auth.Argon2.Parallelism)
	v.SetDefault("auth.argon2.salt_length", d.Auth.Argon2.SaltLength)
	v.SetDefault("auth.argon2.key_length", d.Auth.Argon2.KeyLength)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.per_ip", d.RateLimit.PerIP)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the file the configuration was read from, if any.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration. Invalid edits are
// ignored and the previous configuration stays in effect.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// Validate checks values that would otherwise fail later and obscurely.
func (c *Config) Validate() error {
	switch store.Driver(c.Database.Driver) {
	case store.DriverSQLite, store.DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	for name, value := range map[string]string{
		"auth.session_ttl": c.Auth.SessionTTL,
		"auth.api_key_ttl": c.Auth.APIKeyTTL,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}
	if c.Log.Level != "" {
		if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("invalid log level %q", c.Log.Level)
		}
	}
	return nil
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	pattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	return pattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// StoreConfig returns the storage settings with env vars resolved and the
// DSN defaulted for the chosen driver.
func (c *Config) StoreConfig(h *home.Dir) store.Config {
	driver := store.Driver(c.Database.Driver)
	dsn := ResolveEnvVars(c.Database.DSN)
	if dsn == "" {
		switch driver {
		case store.DriverPostgres:
			dsn = c.Database.Container.DSN()
		default:
			dsn = store.SQLiteDSN(h.DatabasePath())
		}
	}
	return store.Config{
		Driver:       driver,
		DSN:          dsn,
		MaxOpenConns: c.Database.MaxOpenConns,
	}
}

// DSN returns the connection string for the managed container.
func (cc ContainerConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cc.User, ResolveEnvVars(cc.Password)),
		Host:     "127.0.0.1:" + cc.Port,
		Path:     "/" + cc.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// AuthServiceConfig converts the auth section for auth.NewService.
// Durations were checked by Validate; an empty one takes the auth default.
func (c *Config) AuthServiceConfig() auth.Config {
	sessionTTL, _ := time.ParseDuration(c.Auth.SessionTTL)
	apiKeyTTL, _ := time.ParseDuration(c.Auth.APIKeyTTL)
	return auth.Config{
		JWTSecret:  ResolveEnvVars(c.Auth.JWTSecret),
		SessionTTL: sessionTTL,
		APIKeyTTL:  apiKeyTTL,
		Argon2:     c.Auth.Argon2,
	}
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# prompta configuration
# Secrets and DSNs use ${ENV_VAR} syntax to reference environment variables.
# Set the session signing key in your shell: export PROMPTA_JWT_SECRET=xxx
# Any key can also be overridden with PROMPTA_<SECTION>_<KEY>, e.g. PROMPTA_SERVER_PORT=9000.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
