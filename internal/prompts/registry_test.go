package prompts

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestService_CreatePrompt(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, s, "alice")
	bob := addUser(t, s, "bob")

	t.Run("creates first version", func(t *testing.T) {
		p, err := s.CreatePrompt(ctx, alice, CreatePromptInput{
			Name:     "greeting",
			Location: "greeting.md",
			Content:  "hello",
			Tags:     []string{"demo"},
		})
		if err != nil {
			t.Fatalf("CreatePrompt() error = %v", err)
		}
		if p.CurrentVersion == nil {
			t.Fatal("expected current version")
		}
		if p.CurrentVersion.VersionNumber != 1 || p.CurrentVersion.Content != "hello" {
			t.Errorf("got %+v", p.CurrentVersion)
		}
		if *p.CurrentVersion.CommitMessage != DefaultInitialMessage {
			t.Errorf("got message %q", *p.CurrentVersion.CommitMessage)
		}
		if len(p.Tags) != 1 || p.Tags[0] != "demo" {
			t.Errorf("got tags %v", p.Tags)
		}
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		_, err := s.CreatePrompt(ctx, alice, CreatePromptInput{Name: "greeting", Location: "x.md", Content: "x"})
		if !errors.Is(err, ErrConflict) {
			t.Errorf("got %v, want ErrConflict", err)
		}
	})

	t.Run("same name for another owner is fine", func(t *testing.T) {
		if _, err := s.CreatePrompt(ctx, bob, CreatePromptInput{Name: "greeting", Location: "x.md", Content: "x"}); err != nil {
			t.Errorf("CreatePrompt() error = %v", err)
		}
	})

	t.Run("project must belong to owner", func(t *testing.T) {
		proj, err := s.CreateProject(ctx, bob, CreateProjectInput{Name: "bobs"})
		if err != nil {
			t.Fatalf("CreateProject() error = %v", err)
		}
		_, err = s.CreatePrompt(ctx, alice, CreatePromptInput{Name: "stolen", Location: "s.md", Content: "x", ProjectID: &proj.ID})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
		page, err := s.ListPrompts(ctx, Session(alice), ListPromptsParams{Query: "stolen"})
		if err != nil {
			t.Fatal(err)
		}
		if page.Total != 0 {
			t.Errorf("partial prompt left behind: %+v", page.Prompts)
		}
	})

	t.Run("validation", func(t *testing.T) {
		cases := []CreatePromptInput{
			{Name: "", Location: "a", Content: "x"},
			{Name: "a", Location: " ", Content: "x"},
		}
		for _, in := range cases {
			if _, err := s.CreatePrompt(ctx, alice, in); !errors.Is(err, ErrValidation) {
				t.Errorf("CreatePrompt(%+v): got %v, want ErrValidation", in, err)
			}
		}
	})
}

func TestService_RenameAndUpdate(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, s, "alice")
	first := mustCreatePrompt(t, s, alice, "first", "1", false)
	mustCreatePrompt(t, s, alice, "second", "2", false)

	t.Run("rename onto existing name conflicts", func(t *testing.T) {
		_, err := s.RenamePrompt(ctx, alice, first.ID, "second")
		if !errors.Is(err, ErrConflict) {
			t.Errorf("got %v, want ErrConflict", err)
		}
	})

	t.Run("rename to same name is a no-op", func(t *testing.T) {
		p, err := s.RenamePrompt(ctx, alice, first.ID, "first")
		if err != nil {
			t.Fatalf("RenamePrompt() error = %v", err)
		}
		if p.Name != "first" {
			t.Errorf("got %q", p.Name)
		}
	})

	t.Run("rename", func(t *testing.T) {
		p, err := s.RenamePrompt(ctx, alice, first.ID, "renamed")
		if err != nil {
			t.Fatalf("RenamePrompt() error = %v", err)
		}
		if p.Name != "renamed" || p.CurrentVersion == nil {
			t.Errorf("got %+v", p)
		}
	})

	t.Run("update metadata", func(t *testing.T) {
		public := true
		desc := "described"
		p, err := s.UpdatePrompt(ctx, alice, first.ID, UpdatePromptInput{IsPublic: &public, Description: &desc})
		if err != nil {
			t.Fatalf("UpdatePrompt() error = %v", err)
		}
		if !p.IsPublic || p.Description != "described" {
			t.Errorf("got %+v", p)
		}
		versions, _ := s.Versions().List(ctx, first.ID)
		if len(versions) != 1 {
			t.Errorf("metadata update created versions: %d", len(versions))
		}
	})

	t.Run("non-owner cannot update", func(t *testing.T) {
		mallory := addUser(t, s, "mallory")
		_, err := s.RenamePrompt(ctx, mallory, first.ID, "mine")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})
}

func TestService_DeletePrompt(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, s, "alice")
	p := mustCreatePrompt(t, s, alice, "doomed", "1", false)
	for i := 2; i <= 3; i++ {
		if _, err := s.CreateVersion(ctx, alice, p.ID, fmt.Sprint(i), nil); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.DeletePrompt(ctx, addUser(t, s, "bob"), p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-owner delete: got %v, want ErrNotFound", err)
	}

	if err := s.DeletePrompt(ctx, alice, p.ID); err != nil {
		t.Fatalf("DeletePrompt() error = %v", err)
	}
	if _, err := s.GetPrompt(ctx, Session(alice), p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	var orphans int
	if err := s.db.GetContext(ctx, &orphans, s.db.Rebind(`SELECT COUNT(*) FROM prompt_versions WHERE prompt_id = ?`), p.ID); err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Errorf("got %d orphaned versions, want 0", orphans)
	}
}

func TestService_ListPrompts(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, s, "alice")
	proj, err := s.CreateProject(ctx, alice, CreateProjectInput{Name: "agents"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		in := CreatePromptInput{Name: fmt.Sprintf("p%d", i), Location: fmt.Sprintf("dir/p%d.md", i), Content: "c"}
		if i < 2 {
			in.ProjectID = &proj.ID
		}
		if _, err := s.CreatePrompt(ctx, alice, in); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("paginates", func(t *testing.T) {
		page, err := s.ListPrompts(ctx, Session(alice), ListPromptsParams{Pagination: Pagination{Page: 2, PageSize: 2}})
		if err != nil {
			t.Fatal(err)
		}
		if page.Total != 5 || page.TotalPages != 3 || len(page.Prompts) != 2 || page.Page != 2 {
			t.Errorf("got total=%d pages=%d len=%d page=%d", page.Total, page.TotalPages, len(page.Prompts), page.Page)
		}
	})

	t.Run("filters by project name", func(t *testing.T) {
		page, err := s.ListPrompts(ctx, Session(alice), ListPromptsParams{ProjectName: "agents"})
		if err != nil {
			t.Fatal(err)
		}
		if page.Total != 2 {
			t.Errorf("got %d, want 2", page.Total)
		}
	})

	t.Run("filters by project id", func(t *testing.T) {
		page, err := s.ListPrompts(ctx, Session(alice), ListPromptsParams{ProjectID: proj.ID})
		if err != nil {
			t.Fatal(err)
		}
		if page.Total != 2 {
			t.Errorf("got %d, want 2", page.Total)
		}
	})

	t.Run("query matches location", func(t *testing.T) {
		page, err := s.ListPrompts(ctx, Session(alice), ListPromptsParams{Query: "DIR/P3"})
		if err != nil {
			t.Fatal(err)
		}
		if page.Total != 1 || page.Prompts[0].Name != "p3" {
			t.Errorf("got %+v", page.Prompts)
		}
	})

	t.Run("tags are accepted but ignored", func(t *testing.T) {
		page, err := s.ListPrompts(ctx, Session(alice), ListPromptsParams{Tags: []string{"nothing-has-this"}})
		if err != nil {
			t.Fatal(err)
		}
		if page.Total != 5 {
			t.Errorf("got %d, want 5", page.Total)
		}
	})

	t.Run("rejects bad pagination", func(t *testing.T) {
		for _, p := range []Pagination{{Page: -1}, {PageSize: 101}, {PageSize: -3}} {
			if _, err := s.ListPrompts(ctx, Session(alice), ListPromptsParams{Pagination: p}); !errors.Is(err, ErrValidation) {
				t.Errorf("%+v: got %v, want ErrValidation", p, err)
			}
		}
	})

	t.Run("lists include current version", func(t *testing.T) {
		page, _ := s.ListPrompts(ctx, Session(alice), ListPromptsParams{})
		for _, p := range page.Prompts {
			if p.CurrentVersion == nil || !p.CurrentVersion.IsCurrent {
				t.Errorf("%s: missing current version", p.Name)
			}
		}
	})
}

func TestService_GetPromptByLocation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, s, "alice")
	p := mustCreatePrompt(t, s, alice, "loc", "body", false)

	got, err := s.GetPromptByLocation(ctx, APIKey(alice), p.Location)
	if err != nil {
		t.Fatalf("GetPromptByLocation() error = %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("got %s, want %s", got.ID, p.ID)
	}
	if _, err := s.GetPromptByLocation(ctx, Anonymous(), p.Location); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestService_Download(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	alice := addUser(t, s, "alice")
	proj, _ := s.CreateProject(ctx, alice, CreateProjectInput{Name: "kit"})
	if _, err := s.CreatePrompt(ctx, alice, CreatePromptInput{Name: "a", Location: "kit/a.md", Content: "secret", ProjectID: &proj.ID}); err != nil {
		t.Fatal(err)
	}
	mustCreatePrompt(t, s, alice, "b", "other", false)

	t.Run("excludes content", func(t *testing.T) {
		bundle, err := s.Download(ctx, Session(alice), DownloadParams{ProjectName: "kit", Tags: []string{"t"}})
		if err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		if bundle.Total != 1 {
			t.Fatalf("got %d prompts, want 1", bundle.Total)
		}
		if got := bundle.Prompts[0].CurrentVersion.Content; got != ExcludedContent {
			t.Errorf("got content %q, want %q", got, ExcludedContent)
		}
		if bundle.DownloadFormat != "json" {
			t.Errorf("got format %q", bundle.DownloadFormat)
		}
		if bundle.FiltersApplied["project_name"] != "kit" || bundle.FiltersApplied["tags"] == nil {
			t.Errorf("got filters %v", bundle.FiltersApplied)
		}
	})

	t.Run("includes content", func(t *testing.T) {
		bundle, err := s.Download(ctx, Session(alice), DownloadParams{Directory: "kit/", IncludeContent: true})
		if err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		if bundle.Total != 1 || bundle.Prompts[0].CurrentVersion.Content != "secret" {
			t.Errorf("got %+v", bundle.Prompts)
		}
	})
}

func TestTotalPages(t *testing.T) {
	tests := []struct{ total, size, want int }{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{5, 2, 3},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.total, tt.size); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.total, tt.size, got, tt.want)
		}
	}
}
