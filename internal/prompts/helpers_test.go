package prompts

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackzampolin/prompta/internal/store"
)

var dbSeq atomic.Int64

func newTestService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.Config{
		Driver: store.DriverSQLite,
		DSN:    store.MemoryDSN(fmt.Sprintf("prompts_test_%d_%d", time.Now().UnixNano(), dbSeq.Add(1))),
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewService(db, zerolog.Nop())
}

func addUser(t *testing.T, s *Service, id string) string {
	t.Helper()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(context.Background(), s.db.Rebind(`
		INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, 'x', ?, ?)`), id, id, id+"@example.com", now, now)
	if err != nil {
		t.Fatalf("insert user %s: %v", id, err)
	}
	return id
}

func mustCreatePrompt(t *testing.T, s *Service, owner, name, content string, public bool) *Prompt {
	t.Helper()
	p, err := s.CreatePrompt(context.Background(), owner, CreatePromptInput{
		Name:     name,
		Location: "prompts/" + name + ".md",
		Content:  content,
		IsPublic: public,
	})
	if err != nil {
		t.Fatalf("CreatePrompt(%q) error = %v", name, err)
	}
	return p
}

func strPtr(s string) *string { return &s }

func promptNames(page *PromptPage) map[string]bool {
	names := make(map[string]bool, len(page.Prompts))
	for _, p := range page.Prompts {
		names[p.Name] = true
	}
	return names
}

// claimNextVersion installs a trigger that plays a competing writer: when a
// prompt's current flag is cleared it inserts version MAX+1 first, so the
// writer that cleared the flag collides on (prompt_id, version_number).
func claimNextVersion(t *testing.T, s *Service) {
	t.Helper()
	_, err := s.db.ExecContext(context.Background(), `
		CREATE TRIGGER claim_next_version AFTER UPDATE OF is_current ON prompt_versions
		WHEN NEW.is_current = 0
		BEGIN
			INSERT INTO prompt_versions (id, prompt_id, version_number, content, is_current, created_at)
			SELECT lower(hex(randomblob(16))), NEW.prompt_id, MAX(version_number) + 1, 'other writer', 0, NEW.created_at
			FROM prompt_versions WHERE prompt_id = NEW.prompt_id;
		END`)
	if err != nil {
		t.Fatalf("create trigger: %v", err)
	}
}
