package prompts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jackzampolin/prompta/internal/store"
)

const projectColumns = `id, user_id, name, description, tags, is_public, is_active, created_at, updated_at`

// CreateProject creates a project. Project names are unique per owner.
func (s *Service) CreateProject(ctx context.Context, owner string, in CreateProjectInput) (*Project, error) {
	if owner == "" {
		return nil, invalid("owner is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name is required")
	}

	now := s.now()
	p := &Project{
		ID:          uuid.NewString(),
		UserID:      owner,
		Name:        name,
		Description: in.Description,
		Tags:        store.Tags(in.Tags),
		IsPublic:    in.IsPublic,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Tags == nil {
		p.Tags = store.Tags{}
	}

	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := requireFreeProjectName(ctx, tx, owner, name, ""); err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO projects (`+projectColumns+`)
			VALUES (:id, :user_id, :name, :description, :tags, :is_public, :is_active, :created_at, :updated_at)`, p); err != nil {
			if store.IsUniqueViolation(err) {
				return conflict("project %q already exists", name)
			}
			return fmt.Errorf("failed to insert project: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject returns one of the owner's projects.
func (s *Service) GetProject(ctx context.Context, owner, id string) (*Project, error) {
	return getProject(ctx, s.db, `id = ? AND user_id = ?`, id, owner)
}

// GetProjectByName returns the owner's project with the given name.
func (s *Service) GetProjectByName(ctx context.Context, owner, name string) (*Project, error) {
	return getProject(ctx, s.db, `name = ? AND user_id = ?`, name, owner)
}

// ListProjects returns one page of the owner's active projects, most
// recently updated first.
func (s *Service) ListProjects(ctx context.Context, owner string, params ListProjectsParams) (*ProjectPage, error) {
	page, err := params.Pagination.normalize()
	if err != nil {
		return nil, err
	}

	where := `user_id = ? AND is_active = ?`
	args := []any{owner, true}
	if params.Query != "" {
		like := likePattern(params.Query)
		where += ` AND (LOWER(name) LIKE ? OR LOWER(description) LIKE ?)`
		args = append(args, like, like)
	}

	var total int
	if err := sqlx.GetContext(ctx, s.db, &total, s.db.Rebind(`SELECT COUNT(*) FROM projects WHERE `+where), args...); err != nil {
		return nil, fmt.Errorf("failed to count projects: %w", err)
	}

	projects := []Project{}
	if err := sqlx.SelectContext(ctx, s.db, &projects, s.db.Rebind(`
		SELECT `+projectColumns+` FROM projects WHERE `+where+`
		ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`), append(args, page.PageSize, page.offset())...); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	return &ProjectPage{
		Projects:   projects,
		Total:      total,
		Page:       page.Page,
		PageSize:   page.PageSize,
		TotalPages: TotalPages(total, page.PageSize),
	}, nil
}

// UpdateProject changes project fields.
func (s *Service) UpdateProject(ctx context.Context, owner, id string, in UpdateProjectInput) (*Project, error) {
	var p *Project
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		p, err = getProject(ctx, tx, `id = ? AND user_id = ?`, id, owner)
		if err != nil {
			return err
		}

		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return invalid("name cannot be empty")
			}
			if name != p.Name {
				if err := requireFreeProjectName(ctx, tx, owner, name, p.ID); err != nil {
					return err
				}
			}
			p.Name = name
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
		if in.IsActive != nil {
			p.IsActive = *in.IsActive
		}
		p.UpdatedAt = s.now()

		if _, err := tx.NamedExecContext(ctx, `
			UPDATE projects SET name = :name, description = :description, tags = :tags,
				is_public = :is_public, is_active = :is_active, updated_at = :updated_at
			WHERE id = :id`, p); err != nil {
			if store.IsUniqueViolation(err) {
				return conflict("project %q already exists", p.Name)
			}
			return fmt.Errorf("failed to update project: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProject removes a project together with its prompts and their
// versions.
func (s *Service) DeleteProject(ctx context.Context, owner, id string) error {
	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := getProject(ctx, tx, `id = ? AND user_id = ?`, id, owner); err != nil {
			return err
		}
		if err := deletePrompts(ctx, tx, `project_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM projects WHERE id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		return nil
	})
}

func getProject(ctx context.Context, q queryer, where string, args ...any) (*Project, error) {
	var p Project
	err := sqlx.GetContext(ctx, q, &p, q.Rebind(`SELECT `+projectColumns+` FROM projects WHERE `+where), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("project")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

func requireFreeProjectName(ctx context.Context, q queryer, owner, name, exceptID string) error {
	var n int
	err := sqlx.GetContext(ctx, q, &n, q.Rebind(
		`SELECT COUNT(*) FROM projects WHERE user_id = ? AND name = ? AND id <> ?`), owner, name, exceptID)
	if err != nil {
		return fmt.Errorf("failed to check project name: %w", err)
	}
	if n > 0 {
		return conflict("project %q already exists", name)
	}
	return nil
}
