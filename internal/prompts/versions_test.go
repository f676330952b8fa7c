package prompts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestVersionStore_SequentialCreates(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	owner := addUser(t, s, "alice")
	p := mustCreatePrompt(t, s, owner, "seq", "v1", false)

	const n = 6
	for i := 2; i <= n; i++ {
		v, err := s.CreateVersion(ctx, owner, p.ID, fmt.Sprintf("v%d", i), nil)
		if err != nil {
			t.Fatalf("CreateVersion() error = %v", err)
		}
		if v.VersionNumber != i {
			t.Errorf("got version %d, want %d", v.VersionNumber, i)
		}
	}

	versions, err := s.Versions().List(ctx, p.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(versions) != n {
		t.Fatalf("got %d versions, want %d", len(versions), n)
	}

	var current []int
	for i, v := range versions {
		if want := n - i; v.VersionNumber != want {
			t.Errorf("versions[%d] = %d, want %d (newest first)", i, v.VersionNumber, want)
		}
		if v.IsCurrent {
			current = append(current, v.VersionNumber)
		}
	}
	if diff := cmp.Diff([]int{n}, current); diff != "" {
		t.Errorf("current versions mismatch (-want +got):\n%s", diff)
	}

	cur, err := s.Versions().Current(ctx, p.ID)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if cur.VersionNumber != n || cur.Content != fmt.Sprintf("v%d", n) {
		t.Errorf("got current %d %q, want %d", cur.VersionNumber, cur.Content, n)
	}
}

func TestVersionStore_CreateUnknownPrompt(t *testing.T) {
	s := newTestService(t)
	_, err := s.Versions().Create(context.Background(), "missing", "x", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestVersionStore_Restore(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	owner := addUser(t, s, "alice")

	t.Run("scenario", func(t *testing.T) {
		p := mustCreatePrompt(t, s, owner, "a", "v1", false)
		if p.CurrentVersion == nil || p.CurrentVersion.VersionNumber != 1 || !p.CurrentVersion.IsCurrent {
			t.Fatalf("got initial version %+v, want number 1 and current", p.CurrentVersion)
		}

		v2, err := s.CreateVersion(ctx, owner, p.ID, "v2", nil)
		if err != nil {
			t.Fatalf("CreateVersion() error = %v", err)
		}
		v1, err := s.Versions().Get(ctx, p.ID, 1)
		if err != nil {
			t.Fatalf("Get(1) error = %v", err)
		}
		if v1.IsCurrent {
			t.Error("version 1 still current after version 2 was created")
		}
		if !v2.IsCurrent || v2.VersionNumber != 2 {
			t.Errorf("got version 2 = %+v", v2)
		}
		got, err := s.GetPrompt(ctx, Session(owner), p.ID)
		if err != nil {
			t.Fatalf("GetPrompt() error = %v", err)
		}
		if got.CurrentVersionID == nil || *got.CurrentVersionID != v2.ID {
			t.Errorf("current_version_id = %v, want %s", got.CurrentVersionID, v2.ID)
		}

		v3, err := s.RestoreVersion(ctx, owner, p.ID, 1, nil)
		if err != nil {
			t.Fatalf("RestoreVersion() error = %v", err)
		}
		if v3.VersionNumber != 3 || v3.Content != "v1" {
			t.Errorf("got restored %d %q, want 3 \"v1\"", v3.VersionNumber, v3.Content)
		}
		if v3.CommitMessage == nil || *v3.CommitMessage != "Restored from version 1" {
			t.Errorf("got message %v, want %q", v3.CommitMessage, "Restored from version 1")
		}

		diff, err := s.CompareVersions(ctx, Session(owner), p.ID, 1, 3)
		if err != nil {
			t.Fatalf("CompareVersions() error = %v", err)
		}
		if diff != "" {
			t.Errorf("expected empty diff between 1 and 3, got %q", diff)
		}
	})

	t.Run("history is untouched", func(t *testing.T) {
		p := mustCreatePrompt(t, s, owner, "history", "original", false)
		if _, err := s.CreateVersion(ctx, owner, p.ID, "changed", nil); err != nil {
			t.Fatalf("CreateVersion() error = %v", err)
		}
		before, _ := s.Versions().Get(ctx, p.ID, 1)

		if _, err := s.Versions().Restore(ctx, p.ID, 1, nil); err != nil {
			t.Fatalf("Restore() error = %v", err)
		}

		after, err := s.Versions().Get(ctx, p.ID, 1)
		if err != nil {
			t.Fatalf("Get(1) error = %v", err)
		}
		if after.Content != before.Content || after.VersionNumber != before.VersionNumber || after.ID != before.ID {
			t.Errorf("version 1 changed: before %+v after %+v", before, after)
		}
	})

	t.Run("missing target", func(t *testing.T) {
		p := mustCreatePrompt(t, s, owner, "missing-target", "x", false)
		_, err := s.Versions().Restore(ctx, p.ID, 9, nil)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
		versions, _ := s.Versions().List(ctx, p.ID)
		if len(versions) != 1 {
			t.Errorf("failed restore left %d versions, want 1", len(versions))
		}
	})

	t.Run("message placeholder", func(t *testing.T) {
		p := mustCreatePrompt(t, s, owner, "placeholder", "x", false)
		v, err := s.Versions().Restore(ctx, p.ID, 1, strPtr("back to {version_number}"))
		if err != nil {
			t.Fatalf("Restore() error = %v", err)
		}
		if *v.CommitMessage != "back to 1" {
			t.Errorf("got %q, want %q", *v.CommitMessage, "back to 1")
		}
	})
}

func TestVersionStore_Compare(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	owner := addUser(t, s, "alice")
	p := mustCreatePrompt(t, s, owner, "cmp", "line one\nline two\n", false)
	if _, err := s.CreateVersion(ctx, owner, p.ID, "line one\nline 2\n", nil); err != nil {
		t.Fatalf("CreateVersion() error = %v", err)
	}

	t.Run("self diff is empty", func(t *testing.T) {
		diff, err := s.Versions().Compare(ctx, p.ID, 2, 2)
		if err != nil {
			t.Fatalf("Compare() error = %v", err)
		}
		if diff != "" {
			t.Errorf("got %q, want empty", diff)
		}
	})

	t.Run("forward diff", func(t *testing.T) {
		diff, err := s.Versions().Compare(ctx, p.ID, 1, 2)
		if err != nil {
			t.Fatalf("Compare() error = %v", err)
		}
		want := "--- Version 1\n+++ Version 2\n@@ -1,2 +1,2 @@\n line one\n-line two\n+line 2\n"
		if diff != want {
			t.Errorf("diff mismatch:\ngot:\n%s\nwant:\n%s", diff, want)
		}
	})

	t.Run("backward diff swaps direction", func(t *testing.T) {
		diff, err := s.Versions().Compare(ctx, p.ID, 2, 1)
		if err != nil {
			t.Fatalf("Compare() error = %v", err)
		}
		want := "--- Version 2\n+++ Version 1\n@@ -1,2 +1,2 @@\n line one\n-line 2\n+line two\n"
		if diff != want {
			t.Errorf("diff mismatch:\ngot:\n%s\nwant:\n%s", diff, want)
		}
	})

	t.Run("missing version", func(t *testing.T) {
		_, err := s.Versions().Compare(ctx, p.ID, 1, 7)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})
}

func TestDiffText_IdenticalContent(t *testing.T) {
	for _, content := range []string{"", "same", "a\nb\nc\n"} {
		diff, err := DiffText(content, content, 1, 5)
		if err != nil {
			t.Fatalf("DiffText() error = %v", err)
		}
		if diff != "" {
			t.Errorf("DiffText(%q) = %q, want empty", content, diff)
		}
	}
}

func TestDiffText_TrailingNewline(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want string
	}{
		{"missing final newline is not a change", "a", "a\n", ""},
		{"multi-line without final newline", "a\nb", "a\nb\n", ""},
		{"added blank line", "a\nb\n", "a\nb\n\n", "--- Version 1\n+++ Version 2\n@@ -1,2 +1,3 @@\n a\n b\n+\n"},
		{"from empty", "", "x", "--- Version 1\n+++ Version 2\n@@ -0,0 +1 @@\n+x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiffText(tt.a, tt.b, 1, 2)
			if err != nil {
				t.Fatalf("DiffText() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DiffText(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestVersionStore_UpdateMessage(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	owner := addUser(t, s, "alice")
	p := mustCreatePrompt(t, s, owner, "msg", "body", false)

	v, err := s.UpdateVersionMessage(ctx, owner, p.ID, 1, strPtr("better message"))
	if err != nil {
		t.Fatalf("UpdateVersionMessage() error = %v", err)
	}
	if *v.CommitMessage != "better message" || v.Content != "body" {
		t.Errorf("got %+v", v)
	}

	if _, err := s.UpdateVersionMessage(ctx, owner, p.ID, 4, strPtr("x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	other := addUser(t, s, "mallory")
	if _, err := s.UpdateVersionMessage(ctx, other, p.ID, 1, strPtr("x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-owner: got %v, want ErrNotFound", err)
	}
}

func TestVersionStore_ParallelCreatesStayGapless(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	owner := addUser(t, s, "alice")
	p := mustCreatePrompt(t, s, owner, "race", "v1", false)

	const writers = 12
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Versions().Create(ctx, p.ID, fmt.Sprintf("w%d", i), nil)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	versions, err := s.Versions().List(ctx, p.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	seen := make(map[int]bool)
	current := 0
	for _, v := range versions {
		if seen[v.VersionNumber] {
			t.Errorf("duplicate version number %d", v.VersionNumber)
		}
		seen[v.VersionNumber] = true
		if v.IsCurrent {
			current++
		}
	}
	for i := 1; i <= len(versions); i++ {
		if !seen[i] {
			t.Errorf("gap at version %d", i)
		}
	}
	if current != 1 {
		t.Errorf("got %d current versions, want 1", current)
	}
}

func TestVersionStore_NumberCollision(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	owner := addUser(t, s, "alice")
	p := mustCreatePrompt(t, s, owner, "contested", "v1", false)

	s.versions.attempts = 3
	s.versions.delay = time.Millisecond
	claimNextVersion(t, s)

	writes := []struct {
		name string
		run  func() error
	}{
		{"create", func() error {
			_, err := s.Versions().Create(ctx, p.ID, "v2", nil)
			return err
		}},
		{"service create", func() error {
			_, err := s.CreateVersion(ctx, owner, p.ID, "v2", strPtr("mine"))
			return err
		}},
		{"restore", func() error {
			_, err := s.RestoreVersion(ctx, owner, p.ID, 1, nil)
			return err
		}},
	}
	for _, w := range writes {
		t.Run(w.name, func(t *testing.T) {
			before := promtest.ToFloat64(versionConflicts)
			err := w.run()
			if !errors.Is(err, ErrVersionConflict) {
				t.Fatalf("got %v, want ErrVersionConflict", err)
			}
			if !errors.Is(err, ErrConflict) {
				t.Errorf("ErrVersionConflict should wrap ErrConflict")
			}
			if retried := promtest.ToFloat64(versionConflicts) - before; retried < 2 {
				t.Errorf("conflict counter moved by %v, want at least 2 retries", retried)
			}

			versions, err := s.Versions().List(ctx, p.ID)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(versions) != 1 || versions[0].VersionNumber != 1 || !versions[0].IsCurrent {
				t.Fatalf("chain changed after failed write: %+v", versions)
			}
			current, err := s.Versions().Current(ctx, p.ID)
			if err != nil {
				t.Fatalf("Current() error = %v", err)
			}
			if current.ID != versions[0].ID {
				t.Errorf("current_version_id moved to %s", current.ID)
			}
		})
	}
}

func TestService_VersionWritesCheckOwnerInTransaction(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	owner := addUser(t, s, "alice")
	other := addUser(t, s, "mallory")
	p := mustCreatePrompt(t, s, owner, "guarded", "v1", true)

	for name, err := range map[string]error{
		"create":  second(s.CreateVersion(ctx, other, p.ID, "x", nil)),
		"restore": second(s.RestoreVersion(ctx, other, p.ID, 1, nil)),
		"message": second(s.UpdateVersionMessage(ctx, other, p.ID, 1, strPtr("x"))),
		"anon":    second(s.CreateVersion(ctx, "", p.ID, "x", nil)),
	} {
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: got %v, want ErrNotFound", name, err)
		}
	}

	versions, err := s.Versions().List(ctx, p.ID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(versions) != 1 || versions[0].CommitMessage == nil || *versions[0].CommitMessage != DefaultInitialMessage {
		t.Errorf("non-owner writes changed the chain: %+v", versions)
	}
}

func second[T any](_ T, err error) error { return err }

func TestRestoreMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  *string
		want string
	}{
		{"nil", nil, "Restored from version 4"},
		{"blank", strPtr("  "), "Restored from version 4"},
		{"literal", strPtr("rollback"), "rollback"},
		{"placeholder", strPtr("v{version_number} again"), "v4 again"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := restoreMessage(4, tt.msg); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
