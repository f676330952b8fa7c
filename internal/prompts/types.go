// Package prompts implements prompt storage for prompta: projects, prompts,
// and the append-only version chain behind each prompt.
//
// Every prompt owns an ordered sequence of versions numbered from 1. Exactly
// one version is current; the prompt records it in CurrentVersionID and the
// version carries IsCurrent. Both change together with the insert of a new
// version inside a single transaction.
//
// Reads pass through a Filter resolved from the requester:
//   - anonymous requests see public prompts
//   - session-token requests see the requester's own prompts
//   - API-key requests see the requester's own prompts and all public prompts
//
// A record hidden by the filter is reported as ErrNotFound.
package prompts

import (
	"time"

	"github.com/jackzampolin/prompta/internal/store"
)

// Project groups prompts for one owner.
type Project struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"user_id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	Tags        store.Tags `db:"tags" json:"tags"`
	IsPublic    bool       `db:"is_public" json:"is_public"`
	IsActive    bool       `db:"is_active" json:"is_active"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Prompt is a named, versioned piece of text owned by a user.
type Prompt struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	ProjectID        *string    `db:"project_id" json:"project_id"`
	Name             string     `db:"name" json:"name"`
	Description      string     `db:"description" json:"description"`
	Location         string     `db:"location" json:"location"`
	Tags             store.Tags `db:"tags" json:"tags"`
	IsPublic         bool       `db:"is_public" json:"is_public"`
	CurrentVersionID *string    `db:"current_version_id" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`

	// CurrentVersion is loaded through CurrentVersionID; it is never a
	// column of its own.
	CurrentVersion *Version `db:"-" json:"current_version"`
}

// Version is one immutable snapshot of a prompt's content.
type Version struct {
	ID            string    `db:"id" json:"id"`
	PromptID      string    `db:"prompt_id" json:"prompt_id"`
	VersionNumber int       `db:"version_number" json:"version_number"`
	Content       string    `db:"content" json:"content"`
	CommitMessage *string   `db:"commit_message" json:"commit_message"`
	IsCurrent     bool      `db:"is_current" json:"is_current"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// CreatePromptInput describes a new prompt and its first version.
type CreatePromptInput struct {
	Name          string
	Description   string
	Location      string
	Content       string
	CommitMessage *string
	ProjectID     *string
	Tags          []string
	IsPublic      bool
}

// UpdatePromptInput changes prompt metadata. Nil fields are left alone.
type UpdatePromptInput struct {
	Name        *string
	Description *string
	Location    *string
	ProjectID   *string
	Tags        []string
	IsPublic    *bool
}

// CreateProjectInput describes a new project.
type CreateProjectInput struct {
	Name        string
	Description string
	Tags        []string
	IsPublic    bool
}

// UpdateProjectInput changes project fields. Nil fields are left alone.
type UpdateProjectInput struct {
	Name        *string
	Description *string
	Tags        []string
	IsPublic    *bool
	IsActive    *bool
}

// Pagination selects one page of a listing.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

func (p Pagination) normalize() (Pagination, error) {
	if p.Page == 0 {
		p.Page = 1
	}
	if p.PageSize == 0 {
		p.PageSize = DefaultPageSize
	}
	if p.Page < 1 {
		return p, invalid("page must be at least 1")
	}
	if p.PageSize < 1 || p.PageSize > MaxPageSize {
		return p, invalid("page_size must be between 1 and %d", MaxPageSize)
	}
	return p, nil
}

func (p Pagination) offset() int {
	return (p.Page - 1) * p.PageSize
}

// TotalPages returns ceil(total/pageSize), or 0 when there is nothing to show.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// PromptPage is one page of prompts.
type PromptPage struct {
	Prompts    []Prompt `json:"prompts"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// ProjectPage is one page of projects.
type ProjectPage struct {
	Projects   []Project `json:"projects"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"page_size"`
	TotalPages int       `json:"total_pages"`
}

// ListPromptsParams filters a prompt listing.
type ListPromptsParams struct {
	Query       string
	Location    string
	ProjectID   string
	ProjectName string
	// Tags is accepted but not applied.
	Tags []string
	Pagination
}

// ListProjectsParams filters a project listing.
type ListProjectsParams struct {
	Query string
	Pagination
}

// DownloadParams filters a bulk download.
type DownloadParams struct {
	ProjectName string
	Directory   string
	// Tags is echoed back in FiltersApplied but not applied.
	Tags           []string
	IncludeContent bool
}

// Bundle is the result of a bulk download.
type Bundle struct {
	Prompts        []Prompt       `json:"prompts"`
	Total          int            `json:"total"`
	DownloadFormat string         `json:"download_format"`
	FiltersApplied map[string]any `json:"filters_applied"`
}

// ExcludedContent replaces version content in downloads that omit it.
const ExcludedContent = "[Content excluded]"
