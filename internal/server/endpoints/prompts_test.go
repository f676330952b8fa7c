package endpoints

import (
	"net/http"
	"net/url"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/prompta/internal/prompts"
)

func promptNames(ps []prompts.Prompt) []string {
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

func TestCreatePrompt(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice")

	p := h.createPrompt(alice, "greeting", "hello", false)
	if p.CurrentVersion == nil || p.CurrentVersion.VersionNumber != 1 || !p.CurrentVersion.IsCurrent {
		t.Fatalf("current version = %+v", p.CurrentVersion)
	}
	if msg := p.CurrentVersion.CommitMessage; msg == nil || *msg != "Initial version" {
		t.Errorf("commit message = %v", msg)
	}

	tests := []struct {
		name   string
		c      cred
		body   any
		status int
		code   string
	}{
		{"anonymous", anon, CreatePromptRequest{Name: "x", Location: "x.md"}, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"duplicate name", alice.session, CreatePromptRequest{Name: "greeting", Location: "g2.md"}, http.StatusBadRequest, ErrCodeConflict},
		{"missing location", alice.session, CreatePromptRequest{Name: "x"}, http.StatusBadRequest, ErrCodeInvalidRequest},
		{"unknown project", alice.key, CreatePromptRequest{Name: "x", Location: "x.md", ProjectID: strPtr("nope")}, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do("POST", "/api/v1/prompts", tt.c, tt.body)
			if rec.Code != tt.status || errorCode(t, rec) != tt.code {
				t.Errorf("got %d %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPromptVisibility(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice")
	bob := h.signup("bob")

	secret := h.createPrompt(alice, "secret", "alice only", false)
	shared := h.createPrompt(alice, "shared", "for everyone", true)
	h.createPrompt(bob, "bobs", "bob public", true)
	h.createPrompt(bob, "bob-private", "bob only", false)

	t.Run("list", func(t *testing.T) {
		tests := []struct {
			name string
			c    cred
			want []string
		}{
			{"anonymous sees public", anon, []string{"bobs", "shared"}},
			{"session sees own", alice.session, []string{"secret", "shared"}},
			{"api key sees own and public", alice.key, []string{"bobs", "secret", "shared"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var page prompts.PromptPage
				h.expect("GET", "/api/v1/prompts", tt.c, nil, http.StatusOK, &page)
				if diff := cmp.Diff(tt.want, promptNames(page.Prompts)); diff != "" {
					t.Errorf("names mismatch (-want +got):\n%s", diff)
				}
				if page.Total != len(tt.want) {
					t.Errorf("total = %d", page.Total)
				}
			})
		}
	})

	t.Run("get", func(t *testing.T) {
		tests := []struct {
			name   string
			c      cred
			id     string
			status int
		}{
			{"anonymous private", anon, secret.ID, http.StatusNotFound},
			{"anonymous public", anon, shared.ID, http.StatusOK},
			{"owner session", alice.session, secret.ID, http.StatusOK},
			{"other session public", bob.session, shared.ID, http.StatusNotFound},
			{"other api key public", bob.key, shared.ID, http.StatusOK},
			{"other api key private", bob.key, secret.ID, http.StatusNotFound},
			{"missing", alice.key, "does-not-exist", http.StatusNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := h.do("GET", "/api/v1/prompts/"+tt.id, tt.c, nil)
				if rec.Code != tt.status {
					t.Errorf("got %d, want %d", rec.Code, tt.status)
				}
			})
		}
	})

	t.Run("invalid credentials fall back to anonymous", func(t *testing.T) {
		var page prompts.PromptPage
		h.expect("GET", "/api/v1/prompts", cred{token: "garbage"}, nil, http.StatusOK, &page)
		if diff := cmp.Diff([]string{"bobs", "shared"}, promptNames(page.Prompts)); diff != "" {
			t.Errorf("names mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("writes need ownership", func(t *testing.T) {
		name := "stolen"
		if rec := h.do("PUT", "/api/v1/prompts/"+shared.ID, bob.key, UpdatePromptRequest{Name: &name}); rec.Code != http.StatusNotFound {
			t.Errorf("update: got %d", rec.Code)
		}
		if rec := h.do("DELETE", "/api/v1/prompts/"+shared.ID, bob.key, nil); rec.Code != http.StatusNotFound {
			t.Errorf("delete: got %d", rec.Code)
		}
	})
}

func TestPromptQueries(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice")
	a := h.createPrompt(alice, "alpha", "the needle is here", false)
	h.createPrompt(alice, "beta", "nothing to see", false)

	t.Run("search", func(t *testing.T) {
		var page prompts.PromptPage
		h.expect("GET", "/api/v1/prompts/search?q=needle", alice.session, nil, http.StatusOK, &page)
		if diff := cmp.Diff([]string{"alpha"}, promptNames(page.Prompts)); diff != "" {
			t.Errorf("names mismatch (-want +got):\n%s", diff)
		}
		if rec := h.do("GET", "/api/v1/prompts/search", alice.session, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("missing q: got %d", rec.Code)
		}
	})

	t.Run("query", func(t *testing.T) {
		var page prompts.PromptPage
		h.expect("GET", "/api/v1/prompts?query=bet", alice.session, nil, http.StatusOK, &page)
		if diff := cmp.Diff([]string{"beta"}, promptNames(page.Prompts)); diff != "" {
			t.Errorf("names mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("by location", func(t *testing.T) {
		var got prompts.Prompt
		path := "/api/v1/prompts/by-location?" + url.Values{"location": {a.Location}}.Encode()
		h.expect("GET", path, alice.session, nil, http.StatusOK, &got)
		if got.ID != a.ID {
			t.Errorf("id = %q, want %q", got.ID, a.ID)
		}
		if rec := h.do("GET", path, anon, nil); rec.Code != http.StatusNotFound {
			t.Errorf("anonymous: got %d", rec.Code)
		}
	})
}

func TestUpdateAndDeletePrompt(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice")
	a := h.createPrompt(alice, "alpha", "a", false)
	h.createPrompt(alice, "beta", "b", false)

	taken := "beta"
	rec := h.do("PUT", "/api/v1/prompts/"+a.ID, alice.session, UpdatePromptRequest{Name: &taken})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != ErrCodeConflict {
		t.Errorf("rename onto existing: got %d %s", rec.Code, rec.Body.String())
	}

	name, public := "gamma", true
	var got prompts.Prompt
	h.expect("PUT", "/api/v1/prompts/"+a.ID, alice.session, UpdatePromptRequest{Name: &name, IsPublic: &public}, http.StatusOK, &got)
	if got.Name != "gamma" || !got.IsPublic {
		t.Errorf("got %+v", got)
	}
	h.expect("GET", "/api/v1/prompts/"+a.ID, anon, nil, http.StatusOK, nil)

	h.expect("DELETE", "/api/v1/prompts/"+a.ID, alice.session, nil, http.StatusNoContent, nil)
	if rec := h.do("GET", "/api/v1/prompts/"+a.ID+"/versions", alice.session, nil); rec.Code != http.StatusNotFound {
		t.Errorf("versions after delete: got %d", rec.Code)
	}
}

func TestDownload(t *testing.T) {
	h := newHarness(t)
	alice := h.signup("alice")

	var kit prompts.Project
	h.expect("POST", "/api/v1/projects", alice.session, CreateProjectRequest{Name: "kit"}, http.StatusCreated, &kit)
	h.expect("POST", "/api/v1/prompts", alice.session, CreatePromptRequest{
		Name: "in-kit", Location: "./rules/a.md", Content: "inside", ProjectID: &kit.ID,
	}, http.StatusCreated, nil)
	h.createPrompt(alice, "loose", "outside", false)

	var all prompts.Bundle
	h.expect("GET", "/api/v1/prompts/download", alice.session, nil, http.StatusOK, &all)
	if all.Total != 2 || all.DownloadFormat != "json" {
		t.Errorf("got total=%d format=%q", all.Total, all.DownloadFormat)
	}

	var byProject prompts.Bundle
	h.expect("GET", "/api/v1/prompts/download/by-project/kit", alice.session, nil, http.StatusOK, &byProject)
	if diff := cmp.Diff([]string{"in-kit"}, promptNames(byProject.Prompts)); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if got := byProject.Prompts[0].CurrentVersion.Content; got != "inside" {
		t.Errorf("content = %q", got)
	}

	var bare prompts.Bundle
	h.expect("GET", "/api/v1/prompts/download?project_name=kit&include_content=false&tags=x", alice.session, nil, http.StatusOK, &bare)
	if got := bare.Prompts[0].CurrentVersion.Content; got != prompts.ExcludedContent {
		t.Errorf("content = %q", got)
	}
	if bare.FiltersApplied["project_name"] != "kit" {
		t.Errorf("filters = %v", bare.FiltersApplied)
	}
}

func strPtr(s string) *string { return &s }
