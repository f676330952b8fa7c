package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/unrolled/secure"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/auth"
	"github.com/jackzampolin/prompta/internal/config"
	"github.com/jackzampolin/prompta/internal/home"
	"github.com/jackzampolin/prompta/internal/pgdocker"
	"github.com/jackzampolin/prompta/internal/prompts"
	"github.com/jackzampolin/prompta/internal/server/endpoints"
	"github.com/jackzampolin/prompta/internal/store"
	"github.com/jackzampolin/prompta/internal/svcctx"
)

// Server is the prompta HTTP server.
// When the database is a managed Postgres container it starts the container
// on server start and stops it on shutdown.
type Server struct {
	httpServer *http.Server
	dbManager  *pgdocker.DockerManager
	db         *store.DB
	configMgr  *config.Manager
	cfg        *config.Config
	home       *home.Dir
	storeCfg   *store.Config
	logger     zerolog.Logger

	// services is nil until the database is open and migrated.
	services atomic.Pointer[svcctx.Services]

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: server.host from config)
	Host string
	// Port is the port to listen on (default: server.port from config)
	Port string
	// ConfigManager provides configuration with hot-reload support. Nil
	// uses the defaults.
	ConfigManager *config.Manager
	// Home is the prompta home directory (default: ~/.prompta)
	Home *home.Dir
	// Store overrides the database settings derived from configuration.
	Store *store.Config
	// ContainerLabels are added to a managed Postgres container.
	ContainerLabels map[string]string
	// SwaggerSpecPath serves a swagger.json from disk instead of the
	// registered spec.
	SwaggerSpecPath string
	// Logger is the structured logger to use
	Logger *zerolog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	appCfg := config.DefaultConfig()
	if cfg.ConfigManager != nil {
		appCfg = cfg.ConfigManager.Get()
	}
	if err := appCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Host == "" {
		cfg.Host = appCfg.Server.Host
	}
	if cfg.Port == "" {
		cfg.Port = appCfg.Server.Port
	}
	if cfg.Home == nil {
		h, err := home.New("")
		if err != nil {
			return nil, err
		}
		cfg.Home = h
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		cfg:       appCfg,
		home:      cfg.Home,
		storeCfg:  cfg.Store,
		logger:    logger.With().Str("component", "server").Logger(),
	}

	if cfg.Store == nil && appCfg.Database.Driver == string(store.DriverPostgres) && appCfg.Database.Container.Managed {
		mgr, err := NewDBManager(appCfg, cfg.Home, cfg.ContainerLabels)
		if err != nil {
			return nil, err
		}
		s.dbManager = mgr
	}

	if cfg.ConfigManager != nil {
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			s.logger.Info().Str("file", cfg.ConfigManager.ConfigFile()).Msg("configuration reloaded")
		})
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{
		DBManager:       s.dbManager,
		Driver:          appCfg.Database.Driver,
		SwaggerSpecPath: cfg.SwaggerSpecPath,
	}) {
		s.endpointRegistry.Register(ep)
	}

	router, err := s.newRouter()
	if err != nil {
		if s.dbManager != nil {
			_ = s.dbManager.Close()
		}
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// NewDBManager returns the manager for the Postgres container described by
// cfg.database.container, with its data kept under the home directory.
func NewDBManager(cfg *config.Config, h *home.Dir, labels map[string]string) (*pgdocker.DockerManager, error) {
	cc := cfg.Database.Container
	mgr, err := pgdocker.NewDockerManager(pgdocker.DockerConfig{
		ContainerName: cc.Name,
		HomePath:      h.Path(),
		Image:         cc.Image,
		DataPath:      h.PostgresPath(),
		HostPort:      cc.Port,
		User:          cc.User,
		Password:      config.ResolveEnvVars(cc.Password),
		Database:      cc.Database,
		Labels:        labels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres manager: %w", err)
	}
	return mgr, nil
}

func (s *Server) newRouter() (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	r.Use(chimid.RealIP)
	r.Use(loggerMiddleware(s.logger))
	r.Use(chimid.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(secure.New(secureOptions(s.cfg.Server.Development)).Handler)
	r.Use(corsMiddleware(s.cfg.Server.AllowedOrigins))
	if s.cfg.RateLimit.Enabled {
		limit, err := ipRateLimiter(s.cfg.RateLimit.PerIP)
		if err != nil {
			return nil, fmt.Errorf("invalid rate_limit.per_ip %q: %w", s.cfg.RateLimit.PerIP, err)
		}
		r.Use(limit)
	}
	r.Use(s.withServices)
	r.Use(withIdentity)

	r.Handle("/metrics", promhttp.Handler())
	s.endpointRegistry.RegisterRoutes(r, s.requireInit)
	return r, nil
}

// Start opens the database (starting the managed container first, if
// any), migrates it and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.startDatabase(ctx); err != nil {
		_ = s.shutdown()
		return err
	}

	if err := s.initServices(); err != nil {
		_ = s.shutdown()
		return err
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

func (s *Server) startDatabase(ctx context.Context) error {
	if s.dbManager != nil {
		if err := s.dbManager.ValidateExisting(ctx); err != nil {
			return fmt.Errorf("existing postgres container incompatible: %w", err)
		}
		if err := s.home.EnsurePostgresDir(); err != nil {
			return fmt.Errorf("failed to create postgres data dir: %w", err)
		}
		s.logger.Info().Str("container", s.dbManager.ContainerName()).Msg("starting postgres")
		if err := s.dbManager.Start(ctx); err != nil {
			return fmt.Errorf("failed to start postgres: %w", err)
		}
		if err := s.dbManager.WaitReady(ctx, 60*time.Second); err != nil {
			return fmt.Errorf("postgres did not become ready: %w", err)
		}
	}

	storeCfg := s.cfg.StoreConfig(s.home)
	if s.storeCfg != nil {
		storeCfg = *s.storeCfg
	}
	if storeCfg.Driver == store.DriverSQLite && s.storeCfg == nil {
		if err := s.home.EnsureExists(); err != nil {
			return err
		}
	}

	db, err := store.Open(ctx, storeCfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	s.logger.Info().Str("driver", string(db.Driver())).Msg("running migrations")
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (s *Server) initServices() error {
	authCfg := s.cfg.AuthServiceConfig()
	if authCfg.JWTSecret == "" {
		if !s.cfg.Server.Development {
			return errors.New("auth.jwt_secret is empty: set PROMPTA_JWT_SECRET or enable server.development")
		}
		secret, err := ephemeralSecret()
		if err != nil {
			return err
		}
		authCfg.JWTSecret = secret
		s.logger.Warn().Msg("no JWT secret configured; using an ephemeral one, sessions end with the process")
	}

	authSvc, err := auth.NewService(s.db, authCfg, s.logger)
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}

	s.services.Store(&svcctx.Services{
		DB:        s.db,
		Prompts:   prompts.NewService(s.db, s.logger),
		Auth:      authSvc,
		ConfigMgr: s.configMgr,
		Logger:    s.logger,
		Home:      s.home,
	})
	return nil
}

func ephemeralSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// shutdown performs graceful shutdown of the HTTP server, the database and
// the managed container.
func (s *Server) shutdown() error {
	s.logger.Info().Msg("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	s.services.Store(nil)
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error().Err(err).Msg("database close error")
		}
		s.db = nil
	}

	if s.dbManager != nil {
		s.logger.Info().Msg("stopping postgres")
		if err := s.dbManager.Stop(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("postgres stop error")
		}
		if err := s.dbManager.Close(); err != nil {
			s.logger.Error().Err(err).Msg("postgres manager close error")
		}
	}

	s.setNotRunning()
	s.logger.Info().Msg("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Services returns the running services, or nil before Start has opened
// the database.
func (s *Server) Services() *svcctx.Services {
	return s.services.Load()
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// DBManager returns the managed Postgres container, or nil.
func (s *Server) DBManager() *pgdocker.DockerManager {
	return s.dbManager
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if services := s.services.Load(); services != nil {
			ctx = svcctx.WithServices(ctx, services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until the database is open and migrated.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services.Load() == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized","code":"unavailable"}`))
			return
		}
		next(w, r)
	}
}
