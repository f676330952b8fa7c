package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
)

// migration is a single forward schema change. up receives the dialect so
// column types can differ between backends.
type migration struct {
	version string
	up      func(tx *sqlx.Tx, d Driver) error
}

var migrations = []migration{
	{version: "20240101000000", up: migUsers},
	{version: "20240101000100", up: migProjects},
	{version: "20240101000200", up: migPrompts},
}

// Migrate applies any migrations that have not yet run.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at `+timestampType(db.driver)+` NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var applied []string
	if err := db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		return fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	pending := make([]migration, 0, len(migrations))
	for _, m := range migrations {
		if !done[m.version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })

	for _, m := range pending {
		err := db.WithTx(ctx, func(tx *sqlx.Tx) error {
			if err := m.up(tx, db.driver); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				tx.Rebind(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`),
				m.version, time.Now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s failed: %w", m.version, err)
		}
	}
	return nil
}

// Pending returns the versions of migrations that have not been applied. A
// database without schema_migrations has applied nothing; any other read
// failure is returned.
func (db *DB) Pending(ctx context.Context) ([]string, error) {
	exists, err := db.tableExists(ctx, "schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_migrations: %w", err)
	}
	var applied []string
	if exists {
		if err := db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
			return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
		}
	}
	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}
	var pending []string
	for _, m := range migrations {
		if !done[m.version] {
			pending = append(pending, m.version)
		}
	}
	return pending, nil
}

func (db *DB) tableExists(ctx context.Context, name string) (bool, error) {
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	if db.driver == DriverPostgres {
		query = `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = ?`
	}
	var n int
	if err := db.GetContext(ctx, &n, db.Rebind(query), name); err != nil {
		return false, err
	}
	return n > 0, nil
}

func timestampType(d Driver) string {
	if d == DriverPostgres {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}

func execAll(tx *sqlx.Tx, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func migUsers(tx *sqlx.Tx, d Driver) error {
	ts := timestampType(d)
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at `+ts+` NOT NULL,
			updated_at `+ts+` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			key_hash TEXT NOT NULL UNIQUE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_used_at `+ts+`,
			expires_at `+ts+`,
			created_at `+ts+` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_user_id ON api_keys(user_id)`,
	)
}

func migProjects(tx *sqlx.Tx, d Driver) error {
	ts := timestampType(d)
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at `+ts+` NOT NULL,
			updated_at `+ts+` NOT NULL,
			UNIQUE(user_id, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_user_id ON projects(user_id)`,
	)
}

func migPrompts(tx *sqlx.Tx, d Driver) error {
	ts := timestampType(d)
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS prompts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			is_public BOOLEAN NOT NULL DEFAULT FALSE,
			current_version_id TEXT,
			created_at `+ts+` NOT NULL,
			updated_at `+ts+` NOT NULL,
			UNIQUE(user_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS prompt_versions (
			id TEXT PRIMARY KEY,
			prompt_id TEXT NOT NULL REFERENCES prompts(id) ON DELETE CASCADE,
			version_number INTEGER NOT NULL,
			content TEXT NOT NULL,
			commit_message TEXT,
			is_current BOOLEAN NOT NULL DEFAULT FALSE,
			created_at `+ts+` NOT NULL,
			UNIQUE(prompt_id, version_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prompts_user_id ON prompts(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_prompts_project_id ON prompts(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_prompts_location ON prompts(location)`,
		`CREATE INDEX IF NOT EXISTS idx_prompt_versions_prompt_id ON prompt_versions(prompt_id)`,
	)
}
