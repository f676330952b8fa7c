package home

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("with explicit path", func(t *testing.T) {
		dir, err := New("/tmp/test-prompta")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir.Path() != "/tmp/test-prompta" {
			t.Errorf("expected path /tmp/test-prompta, got %s", dir.Path())
		}
	})

	t.Run("with empty path uses default", func(t *testing.T) {
		dir, err := New("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, DefaultDirName)
		if dir.Path() != expected {
			t.Errorf("expected path %s, got %s", expected, dir.Path())
		}
	})
}

func TestDir_Paths(t *testing.T) {
	dir, _ := New("/tmp/test-prompta")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"ConfigPath", dir.ConfigPath(), "/tmp/test-prompta/config.yaml"},
		{"DatabasePath", dir.DatabasePath(), "/tmp/test-prompta/prompta.db"},
		{"PostgresPath", dir.PostgresPath(), "/tmp/test-prompta/postgres"},
		{"CredentialsPath", dir.CredentialsPath(), "/tmp/test-prompta/credentials.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, tt.got)
			}
		})
	}
}

func TestDir_EnsureExists(t *testing.T) {
	dir, err := New(filepath.Join(t.TempDir(), "prompta-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dir.Exists() {
		t.Error("directory should not exist yet")
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists failed: %v", err)
	}
	if !dir.Exists() {
		t.Error("directory should exist after EnsureExists")
	}
	if err := dir.EnsureExists(); err != nil {
		t.Errorf("second EnsureExists failed: %v", err)
	}
	if dir.ConfigExists() {
		t.Error("config should not exist")
	}

	if err := dir.EnsurePostgresDir(); err != nil {
		t.Fatalf("EnsurePostgresDir failed: %v", err)
	}
	if _, err := os.Stat(dir.PostgresPath()); err != nil {
		t.Errorf("postgres dir missing: %v", err)
	}
}

func TestDir_Credentials(t *testing.T) {
	dir, _ := New(filepath.Join(t.TempDir(), "prompta-test"))

	t.Run("missing file is empty", func(t *testing.T) {
		c, err := dir.LoadCredentials()
		if err != nil {
			t.Fatalf("LoadCredentials() error = %v", err)
		}
		if *c != (Credentials{}) {
			t.Errorf("got %+v, want empty", c)
		}
	})

	t.Run("save and load", func(t *testing.T) {
		want := Credentials{Server: "http://localhost:8000", Username: "alice", Token: "tok"}
		if err := dir.SaveCredentials(&want); err != nil {
			t.Fatalf("SaveCredentials() error = %v", err)
		}
		info, err := os.Stat(dir.CredentialsPath())
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("got mode %o, want 600", perm)
		}
		got, err := dir.LoadCredentials()
		if err != nil {
			t.Fatalf("LoadCredentials() error = %v", err)
		}
		if *got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	})

	t.Run("clear", func(t *testing.T) {
		if err := dir.ClearCredentials(); err != nil {
			t.Fatalf("ClearCredentials() error = %v", err)
		}
		if err := dir.ClearCredentials(); err != nil {
			t.Errorf("second ClearCredentials() error = %v", err)
		}
	})

	t.Run("corrupt file", func(t *testing.T) {
		if err := os.WriteFile(dir.CredentialsPath(), []byte("token: [unterminated"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := dir.LoadCredentials(); err == nil {
			t.Error("expected parse error")
		}
	})
}
