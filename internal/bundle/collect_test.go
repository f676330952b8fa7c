package bundle

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/prompta/internal/prompts"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func locations(items []Item) []string {
	var out []string
	for _, it := range items {
		out = append(out, it.Location)
	}
	sort.Strings(out)
	return out
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"rules/style.md":           "style",
		"rules/draft.md":           "draft",
		"agents/coder.prompt":      "coder",
		"notes.txt":                "notes",
		"main.go":                  "package main",
		"node_modules/pkg/x.md":    "vendored",
		"build/out.md":             "built",
		"scratch/tmp.md":           "tmp",
		".cursor/rules/main.mdc":   "cursor",
		".gitignore":               "# build output\nbuild/\n\n",
		IgnoreFileName:             "rules/draft.md\nscratch\n",
		".git/hooks/pre-commit.md": "hook",
	})

	items, err := Collect(root, nil)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	want := []string{
		".cursor/rules/main.mdc",
		"agents/coder.prompt",
		"notes.txt",
		"rules/style.md",
	}
	if diff := cmp.Diff(want, locations(items)); diff != "" {
		t.Errorf("locations mismatch (-want +got):\n%s", diff)
	}

	for _, it := range items {
		if it.Location == "rules/style.md" {
			if it.Name != "rules/style" || it.Content != "style" {
				t.Errorf("got item %+v", it)
			}
		}
	}
}

func TestCollect_Extensions(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md":  "a",
		"b.TXT": "b",
		"c.yml": "c",
	})

	items, err := Collect(root, []string{".yml", ".txt"})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if diff := cmp.Diff([]string{"b.TXT", "c.yml"}, locations(items)); diff != "" {
		t.Errorf("locations mismatch (-want +got):\n%s", diff)
	}
}

func TestFromBundle(t *testing.T) {
	b := &prompts.Bundle{Prompts: []prompts.Prompt{
		{Name: "a", Location: "a.md", Tags: []string{"x"}, IsPublic: true,
			CurrentVersion: &prompts.Version{VersionNumber: 3, Content: "alpha"}},
		{Name: "b", Location: "b.md",
			CurrentVersion: &prompts.Version{VersionNumber: 1, Content: prompts.ExcludedContent}},
		{Name: "c", Location: "c.md"},
	}}

	items := FromBundle(b)
	want := []Item{{Name: "a", Location: "a.md", Content: "alpha", Tags: []string{"x"}, IsPublic: true}}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("FromBundle mismatch (-want +got):\n%s", diff)
	}
}

func TestNameFromLocation(t *testing.T) {
	tests := map[string]string{
		"rules/style.md":  "rules/style",
		"plain":           "plain",
		".cursor/a.b.mdc": ".cursor/a.b",
	}
	for in, want := range tests {
		if got := NameFromLocation(in); got != want {
			t.Errorf("NameFromLocation(%q) = %q, want %q", in, got, want)
		}
	}
}
