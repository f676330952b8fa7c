package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{
		Driver: DriverSQLite,
		DSN:    MemoryDSN(fmt.Sprintf("store_%s_%d", t.Name(), time.Now().UnixNano())),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestOpen(t *testing.T) {
	t.Run("rejects empty dsn", func(t *testing.T) {
		_, err := Open(context.Background(), Config{Driver: DriverSQLite})
		require.Error(t, err)
	})

	t.Run("rejects unknown driver", func(t *testing.T) {
		_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
		require.ErrorContains(t, err, "unsupported database driver")
	})

	t.Run("defaults to sqlite", func(t *testing.T) {
		db, err := Open(context.Background(), Config{DSN: MemoryDSN("store_default")})
		require.NoError(t, err)
		defer db.Close()
		require.Equal(t, DriverSQLite, db.Driver())
	})
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	t.Run("is idempotent", func(t *testing.T) {
		require.NoError(t, db.Migrate(ctx))
		pending, err := db.Pending(ctx)
		require.NoError(t, err)
		require.Empty(t, pending)
	})

	t.Run("creates tables", func(t *testing.T) {
		for _, table := range []string{"users", "api_keys", "projects", "prompts", "prompt_versions"} {
			var n int
			err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+table)
			require.NoError(t, err, table)
		}
	})
}

func TestPending(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{
		Driver: DriverSQLite,
		DSN:    MemoryDSN(fmt.Sprintf("store_pending_%d", time.Now().UnixNano())),
	})
	require.NoError(t, err)

	t.Run("fresh database has everything pending", func(t *testing.T) {
		pending, err := db.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, len(migrations))
	})

	t.Run("read failure is returned", func(t *testing.T) {
		require.NoError(t, db.Close())
		pending, err := db.Pending(ctx)
		require.Error(t, err)
		require.Nil(t, pending)
	})
}

func TestWithTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insertUser := func(tx *sqlx.Tx, id, name string) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
			VALUES (?, ?, ?, 'x', ?, ?)`), id, name, name+"@example.com", now, now)
		return err
	}

	t.Run("rolls back on error", func(t *testing.T) {
		sentinel := errors.New("boom")
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			require.NoError(t, insertUser(tx, "u1", "alice"))
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)

		var n int
		require.NoError(t, db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`))
		require.Equal(t, 0, n)
	})

	t.Run("commits on success", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			return insertUser(tx, "u2", "bob")
		})
		require.NoError(t, err)

		var n int
		require.NoError(t, db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`))
		require.Equal(t, 1, n)
	})

	t.Run("unique violation is detected", func(t *testing.T) {
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			return insertUser(tx, "u3", "bob")
		})
		require.Error(t, err)
		require.True(t, IsUniqueViolation(err), "got %v", err)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	require.False(t, IsUniqueViolation(nil))
	require.False(t, IsUniqueViolation(errors.New("plain")))
}

func TestTags(t *testing.T) {
	t.Run("nil encodes as empty array", func(t *testing.T) {
		v, err := Tags(nil).Value()
		require.NoError(t, err)
		require.Equal(t, "[]", v)
	})

	t.Run("scans json text", func(t *testing.T) {
		var tags Tags
		require.NoError(t, tags.Scan(`["a","b"]`))
		require.Equal(t, Tags{"a", "b"}, tags)
	})

	t.Run("scans null as empty", func(t *testing.T) {
		tags := Tags{"x"}
		require.NoError(t, tags.Scan(nil))
		require.Empty(t, tags)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		var tags Tags
		require.Error(t, tags.Scan(42))
	})
}
