package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/prompta/internal/testutil"
)

func TestPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	dsn := testutil.PostgresDSN(t)
	ctx := context.Background()

	db, err := Open(ctx, Config{Driver: DriverPostgres, DSN: dsn})
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, DriverPostgres, db.Driver())

	require.NoError(t, db.Migrate(ctx))
	pending, err := db.Pending(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	id := uuid.NewString()
	name := "pg-" + id[:8]
	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), db.Rebind(`DELETE FROM users WHERE id = ?`), id)
	})

	insert := func(tx *sqlx.Tx, userID string) error {
		now := time.Now().UTC()
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
			VALUES (?, ?, ?, 'x', ?, ?)`), userID, name, name+"@example.com", now, now)
		return err
	}

	require.NoError(t, db.WithTx(ctx, func(tx *sqlx.Tx) error { return insert(tx, id) }))

	err = db.WithTx(ctx, func(tx *sqlx.Tx) error { return insert(tx, uuid.NewString()) })
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err), "got %v", err)
}
