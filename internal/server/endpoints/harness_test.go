package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/auth"
	"github.com/jackzampolin/prompta/internal/prompts"
	"github.com/jackzampolin/prompta/internal/store"
	"github.com/jackzampolin/prompta/internal/svcctx"
)

var dbSeq atomic.Int64

// harness serves every endpoint over a private in-memory database.
type harness struct {
	t        *testing.T
	handler  http.Handler
	services *svcctx.Services
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.Config{
		Driver: store.DriverSQLite,
		DSN:    store.MemoryDSN(fmt.Sprintf("endpoints_test_%d_%d", time.Now().UnixNano(), dbSeq.Add(1))),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	authSvc, err := auth.NewService(db, auth.Config{
		JWTSecret: "test-secret",
		Argon2:    auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1},
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("auth.NewService() error = %v", err)
	}
	services := &svcctx.Services{
		DB:      db,
		Prompts: prompts.NewService(db, zerolog.Nop()),
		Auth:    authSvc,
		Logger:  zerolog.Nop(),
	}
	return &harness{t: t, handler: newTestRouter(services), services: services}
}

// newTestRouter mounts the endpoint registry behind the services and
// identity middleware. A nil services value leaves the context empty.
func newTestRouter(services *svcctx.Services) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if services != nil {
				req = req.WithContext(svcctx.WithServices(req.Context(), services))
			}
			next.ServeHTTP(w, req)
		})
	})
	if services != nil && services.Auth != nil {
		r.Use(services.Auth.Middleware)
	}

	registry := api.NewRegistry()
	for _, ep := range All(Config{Driver: "sqlite"}) {
		registry.Register(ep)
	}
	registry.RegisterRoutes(r, func(next http.HandlerFunc) http.HandlerFunc { return next })
	return r
}

// cred is a request credential: a bearer token or an API key.
type cred struct {
	token  string
	apiKey string
}

var anon = cred{}

func (h *harness) do(method, path string, c cred, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var req *http.Request
	switch b := body.(type) {
	case nil:
		req = httptest.NewRequest(method, path, nil)
	case string:
		req = httptest.NewRequest(method, path, bytes.NewBufferString(b))
	default:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			h.t.Fatalf("encode body: %v", err)
		}
		req = httptest.NewRequest(method, path, &buf)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.apiKey != "" {
		req.Header.Set(auth.APIKeyHeader, c.apiKey)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

// expect runs a request, checks the status and decodes the body into out.
func (h *harness) expect(method, path string, c cred, body any, status int, out any) {
	h.t.Helper()
	rec := h.do(method, path, c, body)
	if rec.Code != status {
		h.t.Fatalf("%s %s: status = %d, want %d; body = %s", method, path, rec.Code, status, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			h.t.Fatalf("%s %s: decode %s: %v", method, path, rec.Body.String(), err)
		}
	}
}

// user is a registered account with both kinds of credential.
type user struct {
	id      string
	session cred
	key     cred
}

func (h *harness) signup(name string) user {
	h.t.Helper()
	var u auth.User
	h.expect("POST", "/api/v1/auth/register", anon, RegisterRequest{
		Username: name,
		Email:    name + "@example.com",
		Password: "password123",
	}, http.StatusCreated, &u)

	var sess auth.Session
	h.expect("POST", "/api/v1/auth/login", anon, LoginRequest{Username: name, Password: "password123"}, http.StatusOK, &sess)
	session := cred{token: sess.AccessToken}

	var key CreateAPIKeyResponse
	h.expect("POST", "/api/v1/auth/api-keys", session, CreateAPIKeyRequest{Name: "cli"}, http.StatusCreated, &key)

	return user{id: u.ID, session: session, key: cred{apiKey: key.Key}}
}

func (h *harness) createPrompt(u user, name, content string, public bool) prompts.Prompt {
	h.t.Helper()
	var p prompts.Prompt
	h.expect("POST", "/api/v1/prompts", u.session, CreatePromptRequest{
		Name:     name,
		Location: "prompts/" + name + ".md",
		Content:  content,
		IsPublic: public,
	}, http.StatusCreated, &p)
	return p
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Code
}
