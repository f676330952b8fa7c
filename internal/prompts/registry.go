package prompts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/jackzampolin/prompta/internal/store"
)

const promptColumns = `p.id, p.user_id, p.project_id, p.name, p.description, p.location,
	p.tags, p.is_public, p.current_version_id, p.created_at, p.updated_at`

// DefaultInitialMessage is the commit message of a prompt's first version.
const DefaultInitialMessage = "Initial version"

// Service is the entry point for prompt, project and version operations.
// Reads take a Requester and go through its Filter; writes take the owner's
// user id and only touch records that user owns.
type Service struct {
	db       *store.DB
	versions *VersionStore
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a Service backed by db.
func NewService(db *store.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		versions: NewVersionStore(db),
		logger:   logger.With().Str("component", "prompts").Logger(),
		now:      utcNow,
	}
}

// Versions exposes the underlying version store.
func (s *Service) Versions() *VersionStore {
	return s.versions
}

// CreatePrompt creates a prompt and its first version together.
func (s *Service) CreatePrompt(ctx context.Context, owner string, in CreatePromptInput) (*Prompt, error) {
	if owner == "" {
		return nil, invalid("owner is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name is required")
	}
	location := strings.TrimSpace(in.Location)
	if location == "" {
		return nil, invalid("location is required")
	}
	projectID := emptyToNil(in.ProjectID)
	tags := store.Tags(in.Tags)
	if tags == nil {
		tags = store.Tags{}
	}

	message := DefaultInitialMessage
	if in.CommitMessage != nil && strings.TrimSpace(*in.CommitMessage) != "" {
		message = *in.CommitMessage
	}

	var p *Prompt
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if projectID != nil {
			if err := requireOwnedProject(ctx, tx, owner, *projectID); err != nil {
				return err
			}
		}
		if err := requireFreePromptName(ctx, tx, owner, name, ""); err != nil {
			return err
		}

		now := s.now()
		p = &Prompt{
			ID:          uuid.NewString(),
			UserID:      owner,
			ProjectID:   projectID,
			Name:        name,
			Description: in.Description,
			Location:    location,
			Tags:        tags,
			IsPublic:    in.IsPublic,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO prompts (id, user_id, project_id, name, description, location, tags, is_public, created_at, updated_at)
			VALUES (:id, :user_id, :project_id, :name, :description, :location, :tags, :is_public, :created_at, :updated_at)`, p); err != nil {
			if store.IsUniqueViolation(err) {
				return conflict("prompt %q already exists", name)
			}
			return fmt.Errorf("failed to insert prompt: %w", err)
		}

		v, err := s.versions.insertNext(ctx, tx, p.ID, in.Content, &message)
		if err != nil {
			return err
		}
		p.CurrentVersionID = &v.ID
		p.CurrentVersion = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	versionsCreated.WithLabelValues("initial").Inc()
	s.logger.Debug().Str("prompt_id", p.ID).Str("owner", owner).Msg("prompt created")
	return p, nil
}

// GetPrompt returns a prompt with its current version if the requester may
// see it.
func (s *Service) GetPrompt(ctx context.Context, req Requester, id string) (*Prompt, error) {
	p, err := s.readablePrompt(ctx, req, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachCurrent(ctx, s.db, []*Prompt{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPromptByLocation returns the most recently updated visible prompt
// stored at location.
func (s *Service) GetPromptByLocation(ctx context.Context, req Requester, location string) (*Prompt, error) {
	if strings.TrimSpace(location) == "" {
		return nil, invalid("location is required")
	}
	clause, args := ResolveFilter(req).Clause("p")
	var p Prompt
	err := sqlx.GetContext(ctx, s.db, &p, s.db.Rebind(`
		SELECT `+promptColumns+` FROM prompts p
		WHERE p.location = ? AND `+clause+`
		ORDER BY p.updated_at DESC LIMIT 1`), append([]any{location}, args...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("prompt")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	if err := s.attachCurrent(ctx, s.db, []*Prompt{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPrompts returns one page of visible prompts, most recently updated
// first.
func (s *Service) ListPrompts(ctx context.Context, req Requester, params ListPromptsParams) (*PromptPage, error) {
	page, err := params.Pagination.normalize()
	if err != nil {
		return nil, err
	}

	q := newPromptQuery(ResolveFilter(req))
	if params.ProjectName != "" {
		q.joinProject()
		q.where("pr.name = ?", params.ProjectName)
	}
	if params.ProjectID != "" {
		q.where("p.project_id = ?", params.ProjectID)
	}
	if params.Query != "" {
		like := likePattern(params.Query)
		q.where("(LOWER(p.name) LIKE ? OR LOWER(p.description) LIKE ? OR LOWER(p.location) LIKE ?)", like, like, like)
	}
	if params.Location != "" {
		q.where("LOWER(p.location) LIKE ?", likePattern(params.Location))
	}

	return s.runPromptPage(ctx, q, page)
}

// SearchPrompts finds visible prompts whose current version contains term.
func (s *Service) SearchPrompts(ctx context.Context, req Requester, term string, pagination Pagination) (*PromptPage, error) {
	if strings.TrimSpace(term) == "" {
		return nil, invalid("search term is required")
	}
	page, err := pagination.normalize()
	if err != nil {
		return nil, err
	}

	q := newPromptQuery(ResolveFilter(req))
	q.from += " JOIN prompt_versions cv ON cv.id = p.current_version_id"
	q.where("LOWER(cv.content) LIKE ?", likePattern(term))

	return s.runPromptPage(ctx, q, page)
}

// UpdatePrompt changes prompt metadata. Renaming onto another of the
// owner's prompt names is a conflict.
func (s *Service) UpdatePrompt(ctx context.Context, owner, id string, in UpdatePromptInput) (*Prompt, error) {
	var p *Prompt
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		p, err = ownedPrompt(ctx, tx, owner, id)
		if err != nil {
			return err
		}

		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return invalid("name cannot be empty")
			}
			if name != p.Name {
				if err := requireFreePromptName(ctx, tx, owner, name, p.ID); err != nil {
					return err
				}
			}
			p.Name = name
		}
		if in.Location != nil {
			location := strings.TrimSpace(*in.Location)
			if location == "" {
				return invalid("location cannot be empty")
			}
			p.Location = location
		}
		if in.ProjectID != nil {
			p.ProjectID = emptyToNil(in.ProjectID)
			if p.ProjectID != nil {
				if err := requireOwnedProject(ctx, tx, owner, *p.ProjectID); err != nil {
					return err
				}
			}
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		if in.Tags != nil {
			p.Tags = store.Tags(in.Tags)
		}
		if in.IsPublic != nil {
			p.IsPublic = *in.IsPublic
		}
		p.UpdatedAt = s.now()

		if _, err := tx.NamedExecContext(ctx, `
			UPDATE prompts SET name = :name, description = :description, location = :location,
				project_id = :project_id, tags = :tags, is_public = :is_public, updated_at = :updated_at
			WHERE id = :id`, p); err != nil {
			if store.IsUniqueViolation(err) {
				return conflict("prompt %q already exists", p.Name)
			}
			return fmt.Errorf("failed to update prompt: %w", err)
		}
		return s.attachCurrent(ctx, tx, []*Prompt{p})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RenamePrompt gives a prompt a new name.
func (s *Service) RenamePrompt(ctx context.Context, owner, id, name string) (*Prompt, error) {
	return s.UpdatePrompt(ctx, owner, id, UpdatePromptInput{Name: &name})
}

// DeletePrompt removes a prompt and all of its versions.
func (s *Service) DeletePrompt(ctx context.Context, owner, id string) error {
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := ownedPrompt(ctx, tx, owner, id); err != nil {
			return err
		}
		return deletePrompts(ctx, tx, `id = ?`, id)
	})
	if err != nil {
		return err
	}
	s.logger.Debug().Str("prompt_id", id).Str("owner", owner).Msg("prompt deleted")
	return nil
}

// Download returns every visible prompt matching params, unpaginated.
func (s *Service) Download(ctx context.Context, req Requester, params DownloadParams) (*Bundle, error) {
	q := newPromptQuery(ResolveFilter(req))
	filters := map[string]any{}

	if params.ProjectName != "" {
		q.joinProject()
		q.where("pr.name = ?", params.ProjectName)
		filters["project_name"] = params.ProjectName
	}
	if params.Directory != "" {
		q.where("p.location LIKE ?", strings.TrimRight(params.Directory, "/")+"/%")
		filters["directory"] = params.Directory
	}
	if len(params.Tags) > 0 {
		filters["tags"] = params.Tags
	}

	rows := []Prompt{}
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(q.selectSQL()+` ORDER BY p.updated_at DESC, p.id`), q.args...); err != nil {
		return nil, fmt.Errorf("failed to download prompts: %w", err)
	}
	prompts := pointers(rows)
	if err := s.attachCurrent(ctx, s.db, prompts); err != nil {
		return nil, err
	}
	if !params.IncludeContent {
		for _, p := range prompts {
			if p.CurrentVersion != nil {
				p.CurrentVersion.Content = ExcludedContent
			}
		}
	}

	return &Bundle{
		Prompts:        rows,
		Total:          len(rows),
		DownloadFormat: "json",
		FiltersApplied: filters,
	}, nil
}

// CreateVersion appends a new version to a prompt the owner holds.
func (s *Service) CreateVersion(ctx context.Context, owner, promptID, content string, message *string) (*Version, error) {
	if owner == "" {
		return nil, notFound("prompt")
	}
	v, err := s.versions.create(ctx, owner, promptID, content, message)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("prompt_id", promptID).Int("version", v.VersionNumber).Msg("version created")
	return v, nil
}

// ListVersions lists the versions of a visible prompt, newest first.
func (s *Service) ListVersions(ctx context.Context, req Requester, promptID string) ([]Version, error) {
	if _, err := s.readablePrompt(ctx, req, promptID); err != nil {
		return nil, err
	}
	return s.versions.List(ctx, promptID)
}

// GetVersion returns version n of a visible prompt.
func (s *Service) GetVersion(ctx context.Context, req Requester, promptID string, n int) (*Version, error) {
	if n < 1 {
		return nil, invalid("version number must be positive")
	}
	if _, err := s.readablePrompt(ctx, req, promptID); err != nil {
		return nil, err
	}
	return s.versions.Get(ctx, promptID, n)
}

// UpdateVersionMessage edits the commit message of version n.
func (s *Service) UpdateVersionMessage(ctx context.Context, owner, promptID string, n int, message *string) (*Version, error) {
	if owner == "" {
		return nil, notFound("prompt")
	}
	return s.versions.updateMessage(ctx, owner, promptID, n, message)
}

// RestoreVersion appends a copy of version n as the new current version.
func (s *Service) RestoreVersion(ctx context.Context, owner, promptID string, n int, message *string) (*Version, error) {
	if owner == "" {
		return nil, notFound("prompt")
	}
	v, err := s.versions.restore(ctx, owner, promptID, n, message)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("prompt_id", promptID).Int("from", n).Int("version", v.VersionNumber).Msg("version restored")
	return v, nil
}

// CompareVersions diffs version a against version b of a visible prompt.
func (s *Service) CompareVersions(ctx context.Context, req Requester, promptID string, a, b int) (string, error) {
	if a < 1 || b < 1 {
		return "", invalid("version numbers must be positive")
	}
	if _, err := s.readablePrompt(ctx, req, promptID); err != nil {
		return "", err
	}
	return s.versions.Compare(ctx, promptID, a, b)
}

// readablePrompt loads a prompt and applies the requester's filter. A
// filtered-out prompt is indistinguishable from a missing one.
func (s *Service) readablePrompt(ctx context.Context, req Requester, id string) (*Prompt, error) {
	p, err := promptByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !ResolveFilter(req).Allows(p) {
		return nil, notFound("prompt")
	}
	return p, nil
}

func (s *Service) runPromptPage(ctx context.Context, q *promptQuery, page Pagination) (*PromptPage, error) {
	var total int
	if err := sqlx.GetContext(ctx, s.db, &total, s.db.Rebind(q.countSQL()), q.args...); err != nil {
		return nil, fmt.Errorf("failed to count prompts: %w", err)
	}

	rows := []Prompt{}
	args := append(append([]any{}, q.args...), page.PageSize, page.offset())
	if err := sqlx.SelectContext(ctx, s.db, &rows, s.db.Rebind(q.selectSQL()+`
		ORDER BY p.updated_at DESC, p.id LIMIT ? OFFSET ?`), args...); err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	if err := s.attachCurrent(ctx, s.db, pointers(rows)); err != nil {
		return nil, err
	}

	return &PromptPage{
		Prompts:    rows,
		Total:      total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: TotalPages(total, page.PageSize),
	}, nil
}

// attachCurrent loads CurrentVersion for each prompt through its
// CurrentVersionID.
func (s *Service) attachCurrent(ctx context.Context, q queryer, prompts []*Prompt) error {
	byID := make(map[string]*Prompt, len(prompts))
	ids := make([]string, 0, len(prompts))
	for _, p := range prompts {
		if p.CurrentVersionID != nil {
			byID[*p.CurrentVersionID] = p
			ids = append(ids, *p.CurrentVersionID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`SELECT `+versionColumns+` FROM prompt_versions WHERE id IN (?)`, ids)
	if err != nil {
		return err
	}
	var versions []Version
	if err := sqlx.SelectContext(ctx, q, &versions, q.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load current versions: %w", err)
	}
	for i := range versions {
		v := versions[i]
		if p, ok := byID[v.ID]; ok && v.PromptID == p.ID {
			p.CurrentVersion = &v
		}
	}
	return nil
}

func promptByID(ctx context.Context, q queryer, id string) (*Prompt, error) {
	var p Prompt
	err := sqlx.GetContext(ctx, q, &p, q.Rebind(`SELECT `+promptColumns+` FROM prompts p WHERE p.id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("prompt")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}
	return &p, nil
}

func ownedPrompt(ctx context.Context, q queryer, owner, id string) (*Prompt, error) {
	if owner == "" {
		return nil, notFound("prompt")
	}
	p, err := promptByID(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != owner {
		return nil, notFound("prompt")
	}
	return p, nil
}

func requireFreePromptName(ctx context.Context, q queryer, owner, name, exceptID string) error {
	var n int
	err := sqlx.GetContext(ctx, q, &n, q.Rebind(
		`SELECT COUNT(*) FROM prompts WHERE user_id = ? AND name = ? AND id <> ?`), owner, name, exceptID)
	if err != nil {
		return fmt.Errorf("failed to check prompt name: %w", err)
	}
	if n > 0 {
		return conflict("prompt %q already exists", name)
	}
	return nil
}

func requireOwnedProject(ctx context.Context, q queryer, owner, projectID string) error {
	var n int
	err := sqlx.GetContext(ctx, q, &n, q.Rebind(
		`SELECT COUNT(*) FROM projects WHERE id = ? AND user_id = ?`), projectID, owner)
	if err != nil {
		return fmt.Errorf("failed to check project: %w", err)
	}
	if n == 0 {
		return notFound("project")
	}
	return nil
}

// deletePrompts removes matching prompts and their versions. Versions are
// deleted explicitly so the cascade holds even without foreign key
// enforcement.
func deletePrompts(ctx context.Context, tx *sqlx.Tx, where string, args ...any) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		DELETE FROM prompt_versions WHERE prompt_id IN (SELECT id FROM prompts WHERE `+where+`)`), args...); err != nil {
		return fmt.Errorf("failed to delete versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM prompts WHERE `+where), args...); err != nil {
		return fmt.Errorf("failed to delete prompts: %w", err)
	}
	return nil
}

// promptQuery accumulates a filtered SELECT over prompts p.
type promptQuery struct {
	from       string
	conditions []string
	args       []any
	joined     bool
}

func newPromptQuery(f Filter) *promptQuery {
	clause, args := f.Clause("p")
	return &promptQuery{
		from:       "prompts p",
		conditions: []string{clause},
		args:       args,
	}
}

func (q *promptQuery) joinProject() {
	if !q.joined {
		q.from += " JOIN projects pr ON pr.id = p.project_id"
		q.joined = true
	}
}

func (q *promptQuery) where(cond string, args ...any) {
	q.conditions = append(q.conditions, cond)
	q.args = append(q.args, args...)
}

func (q *promptQuery) whereSQL() string {
	return " WHERE " + strings.Join(q.conditions, " AND ")
}

func (q *promptQuery) selectSQL() string {
	return "SELECT " + promptColumns + " FROM " + q.from + q.whereSQL()
}

func (q *promptQuery) countSQL() string {
	return "SELECT COUNT(*) FROM " + q.from + q.whereSQL()
}

func likePattern(term string) string {
	return "%" + strings.ToLower(strings.TrimSpace(term)) + "%"
}

func emptyToNil(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func pointers(rows []Prompt) []*Prompt {
	out := make([]*Prompt, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}
