package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_AuthHeaders(t *testing.T) {
	tests := []struct {
		name       string
		opts       []ClientOption
		wantBearer string
		wantKey    string
	}{
		{name: "anonymous"},
		{name: "token", opts: []ClientOption{WithToken("tok")}, wantBearer: "Bearer tok"},
		{name: "api key", opts: []ClientOption{WithAPIKey("prompta_abc")}, wantKey: "prompta_abc"},
		{
			name:       "token wins over key",
			opts:       []ClientOption{WithToken("tok"), WithAPIKey("prompta_abc")},
			wantBearer: "Bearer tok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth, gotKey string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				gotKey = r.Header.Get(APIKeyHeader)
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{}`))
			}))
			defer srv.Close()

			c := NewClient(srv.URL+"/", tt.opts...)
			require.NoError(t, c.Get(context.Background(), "/x", nil))
			assert.Equal(t, tt.wantBearer, gotAuth)
			assert.Equal(t, tt.wantKey, gotKey)
		})
	}
}

func TestClient_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
			return
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]string{"method": r.Method, "q": r.URL.Query().Get("q")})
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]string{"method": r.Method, "echo": body["v"]})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	var got map[string]string
	require.NoError(t, c.Get(ctx, WithQuery("/x", url.Values{"q": {"hello"}}), &got))
	assert.Equal(t, "hello", got["q"])

	for _, call := range []struct {
		method string
		fn     func(context.Context, string, any, any) error
	}{
		{http.MethodPost, c.Post},
		{http.MethodPut, c.Put},
		{http.MethodPatch, c.Patch},
	} {
		got = nil
		require.NoError(t, call.fn(ctx, "/x", map[string]string{"v": "1"}, &got))
		assert.Equal(t, call.method, got["method"])
		assert.Equal(t, "1", got["echo"])
	}

	require.NoError(t, c.Delete(ctx, "/x"))
}

func TestClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "prompt not found", Code: "not_found"})
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down\n"))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	err := c.Get(context.Background(), "/missing", nil)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.EqualError(t, err, "server error (404): prompt not found")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)

	err = c.Get(context.Background(), "/other", nil)
	assert.EqualError(t, err, "server error (502): upstream down")
	assert.False(t, IsNotFound(err))
}

func TestWithQuery(t *testing.T) {
	assert.Equal(t, "/p", WithQuery("/p", url.Values{}))
	assert.Equal(t, "/p", WithQuery("/p", url.Values{"a": {""}}))
	assert.Equal(t, "/p?a=1&b=x+y", WithQuery("/p", url.Values{"a": {"1"}, "b": {"x y"}, "c": nil}))
}
