package endpoints

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/jackzampolin/prompta/docs"
)

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t)

	var health HealthResponse
	h.expect("GET", "/health", anon, nil, http.StatusOK, &health)
	if health.Status != "ok" {
		t.Errorf("health = %+v", health)
	}

	h.expect("GET", "/ready", anon, nil, http.StatusOK, &health)
	if health.Database != "ok" {
		t.Errorf("ready = %+v", health)
	}

	var status StatusResponse
	h.expect("GET", "/status", anon, nil, http.StatusOK, &status)
	if status.Server != "running" || status.Database.Driver != "sqlite" || status.Database.Health != "healthy" {
		t.Errorf("status = %+v", status)
	}
	if status.Database.Container != "" {
		t.Errorf("unmanaged database reported container %q", status.Database.Container)
	}
}

func TestWithoutServices(t *testing.T) {
	router := newTestRouter(nil)

	tests := []struct {
		path   string
		status int
	}{
		{"/health", http.StatusOK},
		{"/ready", http.StatusServiceUnavailable},
		{"/api/v1/prompts", http.StatusServiceUnavailable},
		{"/api/v1/auth/me", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
			if rec.Code != tt.status {
				t.Errorf("got %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestSwagger(t *testing.T) {
	h := newHarness(t)

	rec := h.do("GET", "/swagger.json", anon, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	var doc struct {
		Swagger string                    `json:"swagger"`
		Info    struct{ Title string }    `json:"info"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.Info.Title != "Prompta API" {
		t.Errorf("title = %q", doc.Info.Title)
	}
	if _, ok := doc.Paths["/api/v1/prompts/{id}/diff/{v1}/{v2}"]["get"]; !ok {
		t.Error("diff route missing from document")
	}

	rec = h.do("GET", "/swagger", anon, nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Errorf("ui: got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}
