package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jackzampolin/prompta/internal/prompts"
)

// APIKeyHeader carries a raw API key.
const APIKeyHeader = "X-API-Key"

type identityKey struct{}

// identity is what the middleware learned about a request.
type identity struct {
	requester prompts.Requester
	user      *User
	err       error
}

// Middleware resolves the request's identity and stores it in the context.
// A bearer token is tried first (session mode), then an API key (API-key
// mode). Requests without credentials, or with credentials that fail,
// proceed as anonymous; handlers that need a user call RequireUser.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.identify(r)
		if id.err != nil {
			s.logger.Debug().Err(id.err).Str("path", r.URL.Path).Msg("credentials rejected")
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func (s *Service) identify(r *http.Request) identity {
	ctx := r.Context()
	if token, ok := bearerToken(r); ok {
		u, err := s.AuthenticateToken(ctx, token)
		authAttempts.WithLabelValues("session", boolLabel(err == nil)).Inc()
		if err != nil {
			return identity{err: err}
		}
		return identity{requester: prompts.Session(u.ID), user: u}
	}
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		u, err := s.AuthenticateAPIKey(ctx, key)
		authAttempts.WithLabelValues("api_key", boolLabel(err == nil)).Inc()
		if err != nil {
			return identity{err: err}
		}
		return identity{requester: prompts.APIKey(u.ID), user: u}
	}
	return identity{}
}

// RequesterFrom returns the requester stored by Middleware, or an anonymous
// requester.
func RequesterFrom(ctx context.Context) prompts.Requester {
	id, _ := ctx.Value(identityKey{}).(identity)
	return id.requester
}

// UserFrom returns the authenticated user stored by Middleware, or nil.
func UserFrom(ctx context.Context) *User {
	id, _ := ctx.Value(identityKey{}).(identity)
	return id.user
}

// RequireUser returns the authenticated user or the reason there is none:
// ErrInactiveUser for a deactivated account and ErrInvalidCredentials
// otherwise.
func RequireUser(ctx context.Context) (*User, error) {
	id, _ := ctx.Value(identityKey{}).(identity)
	if id.user != nil {
		return id.user, nil
	}
	if errors.Is(id.err, ErrInactiveUser) {
		return nil, ErrInactiveUser
	}
	return nil, ErrInvalidCredentials
}

// WithUser stores an authenticated identity in ctx. It lets callers outside
// the HTTP stack, and tests, act as a given user.
func WithUser(ctx context.Context, u *User, mode prompts.AuthMode) context.Context {
	return context.WithValue(ctx, identityKey{}, identity{
		requester: prompts.Requester{UserID: u.ID, Mode: mode},
		user:      u,
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	return token, token != ""
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
