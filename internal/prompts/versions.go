package prompts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jackzampolin/prompta/internal/store"
)

const versionColumns = `id, prompt_id, version_number, content, commit_message, is_current, created_at`

// DefaultRestoreMessage is used when a restore carries no message of its own.
const DefaultRestoreMessage = "Restored from version %d"

// versionPlaceholder in a restore message is replaced by the restored number.
const versionPlaceholder = "{version_number}"

// queryer is satisfied by both *store.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
	Rebind(query string) string
}

// VersionStore manages the version chain of each prompt. Its exported
// methods check neither ownership nor visibility. Service reads through the
// visibility filter and writes through the owner-scoped variants, which check
// ownership inside the writing transaction.
type VersionStore struct {
	db       *store.DB
	attempts uint
	delay    time.Duration
	now      func() time.Time
}

// NewVersionStore creates a VersionStore over db.
func NewVersionStore(db *store.DB) *VersionStore {
	return &VersionStore{
		db:       db,
		attempts: 5,
		delay:    20 * time.Millisecond,
		now:      utcNow,
	}
}

func utcNow() time.Time { return time.Now().UTC() }

// Create appends a new current version holding content. The previous current
// version loses its flag and the prompt is repointed in the same transaction.
// A number collision with a concurrent writer is retried, then reported as
// ErrVersionConflict.
func (vs *VersionStore) Create(ctx context.Context, promptID, content string, message *string) (*Version, error) {
	return vs.create(ctx, "", promptID, content, message)
}

// create is Create restricted to prompts owned by owner. An empty owner
// skips the ownership check.
func (vs *VersionStore) create(ctx context.Context, owner, promptID, content string, message *string) (*Version, error) {
	var v *Version
	err := vs.retry(ctx, func() error {
		return vs.db.WithTx(ctx, func(tx *sqlx.Tx) error {
			if err := vs.lockPrompt(ctx, tx, owner, promptID); err != nil {
				return err
			}
			var err error
			v, err = vs.insertNext(ctx, tx, promptID, content, message)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	versionsCreated.WithLabelValues("update").Inc()
	return v, nil
}

// Get returns version n of a prompt.
func (vs *VersionStore) Get(ctx context.Context, promptID string, n int) (*Version, error) {
	return getVersion(ctx, vs.db, promptID, n)
}

// List returns every version of a prompt, newest first.
func (vs *VersionStore) List(ctx context.Context, promptID string) ([]Version, error) {
	versions := []Version{}
	err := sqlx.SelectContext(ctx, vs.db, &versions, vs.db.Rebind(`
		SELECT `+versionColumns+` FROM prompt_versions
		WHERE prompt_id = ?
		ORDER BY version_number DESC`), promptID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

// Current dereferences the prompt's current_version_id.
func (vs *VersionStore) Current(ctx context.Context, promptID string) (*Version, error) {
	var v Version
	err := sqlx.GetContext(ctx, vs.db, &v, vs.db.Rebind(`
		SELECT v.id, v.prompt_id, v.version_number, v.content, v.commit_message, v.is_current, v.created_at
		FROM prompts p JOIN prompt_versions v ON v.id = p.current_version_id AND v.prompt_id = p.id
		WHERE p.id = ?`), promptID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("current version")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}
	return &v, nil
}

// Restore appends a new version whose content copies version n. Version n
// itself is left untouched. A nil or empty message becomes
// "Restored from version n"; "{version_number}" in a supplied message is
// replaced with n.
func (vs *VersionStore) Restore(ctx context.Context, promptID string, n int, message *string) (*Version, error) {
	return vs.restore(ctx, "", promptID, n, message)
}

func (vs *VersionStore) restore(ctx context.Context, owner, promptID string, n int, message *string) (*Version, error) {
	if n < 1 {
		return nil, invalid("version number must be positive")
	}
	msg := restoreMessage(n, message)

	var v *Version
	err := vs.retry(ctx, func() error {
		return vs.db.WithTx(ctx, func(tx *sqlx.Tx) error {
			if err := vs.lockPrompt(ctx, tx, owner, promptID); err != nil {
				return err
			}
			target, err := getVersion(ctx, tx, promptID, n)
			if err != nil {
				return err
			}
			v, err = vs.insertNext(ctx, tx, promptID, target.Content, &msg)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	versionsCreated.WithLabelValues("restore").Inc()
	return v, nil
}

// UpdateMessage replaces the commit message of version n. Content is never
// editable.
func (vs *VersionStore) UpdateMessage(ctx context.Context, promptID string, n int, message *string) (*Version, error) {
	return vs.updateMessage(ctx, "", promptID, n, message)
}

func (vs *VersionStore) updateMessage(ctx context.Context, owner, promptID string, n int, message *string) (*Version, error) {
	query := `UPDATE prompt_versions SET commit_message = ?
		WHERE prompt_id = ? AND version_number = ?`
	args := []any{message, promptID, n}
	if owner != "" {
		query += ` AND prompt_id IN (SELECT id FROM prompts WHERE user_id = ?)`
		args = append(args, owner)
	}

	var v *Version
	err := vs.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return fmt.Errorf("failed to update version: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return err
		} else if affected == 0 {
			return notFound("version")
		}
		v, err = getVersion(ctx, tx, promptID, n)
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Compare diffs version a against version b of a prompt.
func (vs *VersionStore) Compare(ctx context.Context, promptID string, a, b int) (string, error) {
	from, err := vs.Get(ctx, promptID, a)
	if err != nil {
		return "", err
	}
	to, err := vs.Get(ctx, promptID, b)
	if err != nil {
		return "", err
	}
	return Diff(from, to)
}

// lockPrompt touches the prompt row first so concurrent writers for the
// same prompt queue behind each other. With a non-empty owner a prompt held
// by someone else is reported as missing.
func (vs *VersionStore) lockPrompt(ctx context.Context, tx *sqlx.Tx, owner, promptID string) error {
	query := `UPDATE prompts SET updated_at = ? WHERE id = ?`
	args := []any{vs.now(), promptID}
	if owner != "" {
		query += ` AND user_id = ?`
		args = append(args, owner)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to lock prompt: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return notFound("prompt")
	}
	return nil
}

// insertNext writes version MAX+1 inside tx, which must already hold the
// prompt lock. The unique (prompt_id, version_number) constraint catches
// anything that slips past the lock.
func (vs *VersionStore) insertNext(ctx context.Context, tx *sqlx.Tx, promptID, content string, message *string) (*Version, error) {
	now := vs.now()

	var maxNumber sql.NullInt64
	if err := sqlx.GetContext(ctx, tx, &maxNumber, tx.Rebind(
		`SELECT MAX(version_number) FROM prompt_versions WHERE prompt_id = ?`), promptID); err != nil {
		return nil, fmt.Errorf("failed to read latest version: %w", err)
	}

	v := &Version{
		ID:            uuid.NewString(),
		PromptID:      promptID,
		VersionNumber: int(maxNumber.Int64) + 1,
		Content:       content,
		CommitMessage: message,
		IsCurrent:     true,
		CreatedAt:     now,
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE prompt_versions SET is_current = ?
		WHERE prompt_id = ? AND is_current = ?`), false, promptID, true); err != nil {
		return nil, fmt.Errorf("failed to clear current version: %w", err)
	}

	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO prompt_versions (`+versionColumns+`)
		VALUES (:id, :prompt_id, :version_number, :content, :commit_message, :is_current, :created_at)`, v); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE prompts SET current_version_id = ? WHERE id = ?`), v.ID, promptID); err != nil {
		return nil, fmt.Errorf("failed to repoint current version: %w", err)
	}

	return v, nil
}

func (vs *VersionStore) retry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(vs.attempts),
		retry.Delay(vs.delay),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrVersionConflict)
		}),
		retry.OnRetry(func(uint, error) {
			versionConflicts.Inc()
		}),
		retry.LastErrorOnly(true),
	)
}

func getVersion(ctx context.Context, q queryer, promptID string, n int) (*Version, error) {
	var v Version
	err := sqlx.GetContext(ctx, q, &v, q.Rebind(`
		SELECT `+versionColumns+` FROM prompt_versions
		WHERE prompt_id = ? AND version_number = ?`), promptID, n)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(fmt.Sprintf("version %d", n))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return &v, nil
}

func restoreMessage(n int, message *string) string {
	if message == nil || strings.TrimSpace(*message) == "" {
		return fmt.Sprintf(DefaultRestoreMessage, n)
	}
	return strings.ReplaceAll(*message, versionPlaceholder, strconv.Itoa(n))
}
