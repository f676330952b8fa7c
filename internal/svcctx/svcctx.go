// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/jackzampolin/prompta/internal/auth"
	"github.com/jackzampolin/prompta/internal/config"
	"github.com/jackzampolin/prompta/internal/home"
	"github.com/jackzampolin/prompta/internal/prompts"
	"github.com/jackzampolin/prompta/internal/store"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	DB        *store.DB
	Prompts   *prompts.Service
	Auth      *auth.Service
	ConfigMgr *config.Manager
	Logger    zerolog.Logger
	Home      *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// DBFrom extracts the database handle from context.
func DBFrom(ctx context.Context) *store.DB {
	if s := ServicesFrom(ctx); s != nil {
		return s.DB
	}
	return nil
}

// PromptsFrom extracts the prompt service from context.
func PromptsFrom(ctx context.Context) *prompts.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Prompts
	}
	return nil
}

// AuthFrom extracts the auth service from context.
func AuthFrom(ctx context.Context) *auth.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.Auth
	}
	return nil
}

// ConfigFrom extracts the current configuration from context.
func ConfigFrom(ctx context.Context) *config.Config {
	if s := ServicesFrom(ctx); s != nil && s.ConfigMgr != nil {
		return s.ConfigMgr.Get()
	}
	return nil
}

// LoggerFrom extracts the logger from context. Returns a disabled logger if
// none is present.
func LoggerFrom(ctx context.Context) zerolog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return zerolog.Nop()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
