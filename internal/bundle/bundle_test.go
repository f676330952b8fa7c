package bundle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/prompta/internal/prompts"
)

const validBundle = `{
  "prompts": [
    {
      "id": "p1",
      "name": "style",
      "description": "house style",
      "location": "./rules/style.md",
      "tags": ["team"],
      "is_public": false,
      "current_version": {"version_number": 2, "content": "be brief", "commit_message": null}
    },
    {
      "id": "p2",
      "name": "cursor",
      "location": ".cursor/rules/main.mdc",
      "tags": null,
      "current_version": {"version_number": 1, "content": "use go"}
    }
  ],
  "total": 2,
  "download_format": "json",
  "filters_applied": {"project_name": "kit"}
}`

func TestParse(t *testing.T) {
	b, err := Parse([]byte(validBundle))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if b.Total != 2 || len(b.Prompts) != 2 {
		t.Fatalf("got total %d with %d prompts", b.Total, len(b.Prompts))
	}
	if got := b.Prompts[0].CurrentVersion.Content; got != "be brief" {
		t.Errorf("content = %q", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing prompts", `{"total": 0, "download_format": "json"}`},
		{"wrong format", `{"prompts": [], "total": 0, "download_format": "zip"}`},
		{"empty location", `{"prompts": [{"name": "a", "location": ""}], "total": 1, "download_format": "json"}`},
		{"version zero", `{"prompts": [{"name": "a", "location": "a.md", "current_version": {"version_number": 0, "content": ""}}], "total": 1, "download_format": "json"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("Parse() expected error")
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.json")
	if err := os.WriteFile(path, []byte(validBundle), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if len(b.Prompts) != 2 {
		t.Errorf("got %d prompts", len(b.Prompts))
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("ReadFile() on missing file expected error")
	}
}

func TestNormalizeLocation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"./rules/style.md", "rules/style.md"},
		{"~/prompts/a.md", "prompts/a.md"},
		{"~prompts/a.md", "prompts/a.md"},
		{".cursor/rules/main.mdc", ".cursor/rules/main.mdc"},
		{"/abs/path.md", "abs/path.md"},
		{"plain.md", "plain.md"},
		{"  ./padded.md ", "padded.md"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeLocation(tt.in); got != tt.want {
				t.Errorf("NormalizeLocation(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWriteFiles(t *testing.T) {
	b, err := Parse([]byte(validBundle))
	if err != nil {
		t.Fatal(err)
	}
	dest := t.TempDir()

	written, err := WriteFiles(dest, b)
	if err != nil {
		t.Fatalf("WriteFiles() error = %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("wrote %d files, want 2", len(written))
	}

	data, err := os.ReadFile(filepath.Join(dest, "rules", "style.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "be brief" {
		t.Errorf("content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(dest, ".cursor", "rules", "main.mdc")); err != nil {
		t.Errorf("hidden directory not kept: %v", err)
	}
}

func TestWriteFiles_RejectsEscape(t *testing.T) {
	for _, loc := range []string{"../outside.md", "a/../../outside.md", "."} {
		t.Run(loc, func(t *testing.T) {
			b := &prompts.Bundle{Prompts: []prompts.Prompt{{
				Name:           "bad",
				Location:       loc,
				CurrentVersion: &prompts.Version{VersionNumber: 1, Content: "x"},
			}}}
			if _, err := WriteFiles(t.TempDir(), b); err == nil {
				t.Error("WriteFiles() expected error")
			}
		})
	}
}

func TestWriteFiles_NoContent(t *testing.T) {
	b := &prompts.Bundle{Prompts: []prompts.Prompt{{
		Name:           "a",
		Location:       "a.md",
		CurrentVersion: &prompts.Version{VersionNumber: 1, Content: prompts.ExcludedContent},
	}}}
	_, err := WriteFiles(t.TempDir(), b)
	if !errors.Is(err, ErrNoContent) {
		t.Errorf("WriteFiles() error = %v, want ErrNoContent", err)
	}
}
