package prompts

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/prompta/internal/store"
	"github.com/jackzampolin/prompta/internal/testutil"
)

// On postgres every writer holds its own connection, so concurrent creates
// really contend. The prompt-row lock must hand out gapless numbers without
// a single conflict reaching the caller.
func TestPostgres_ConcurrentCreates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	dsn := testutil.PostgresDSN(t)
	ctx := context.Background()

	db, err := store.Open(ctx, store.Config{Driver: store.DriverPostgres, DSN: dsn, MaxOpenConns: 16})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	s := NewService(db, zerolog.Nop())
	s.versions.attempts = 1 // any collision would surface as an error

	owner := uuid.NewString()
	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, db.Rebind(`
		INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, 'x', ?, ?)`), owner, "pg-"+owner[:8], owner[:8]+"@example.com", now, now)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), db.Rebind(`DELETE FROM users WHERE id = ?`), owner)
	})

	p, err := s.CreatePrompt(ctx, owner, CreatePromptInput{Name: "race", Location: "race.md", Content: "v1"})
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.CreateVersion(ctx, owner, p.ID, fmt.Sprintf("w%d", i), nil)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}

	versions, err := s.Versions().List(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, writers+1)
	current := 0
	for i, v := range versions {
		require.Equal(t, writers+1-i, v.VersionNumber)
		if v.IsCurrent {
			current++
		}
	}
	require.Equal(t, 1, current)

	cur, err := s.Versions().Current(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, versions[0].ID, cur.ID)
}
