package bundle

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/auth"
	"github.com/jackzampolin/prompta/internal/prompts"
)

// RemoteOptions configures uploads to a prompta server.
type RemoteOptions struct {
	// ProjectName files new prompts under the caller's project of that name.
	ProjectName string
	// CommitMessage is used for every version the upload writes.
	CommitMessage string
	// DryRun reports outcomes without writing anything.
	DryRun bool
}

type createPromptBody struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Location      string   `json:"location"`
	Content       string   `json:"content"`
	CommitMessage *string  `json:"commit_message,omitempty"`
	ProjectID     *string  `json:"project_id,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	IsPublic      bool     `json:"is_public,omitempty"`
}

type createVersionBody struct {
	Content       string  `json:"content"`
	CommitMessage *string `json:"commit_message,omitempty"`
}

// RemoteUploader returns an UploadFunc that syncs items into the caller's
// prompts on the server behind c. An item whose location matches one of the
// caller's prompts gets a new version when its content differs; any other
// item becomes a new prompt.
func RemoteUploader(ctx context.Context, c *api.Client, opts RemoteOptions) (UploadFunc, error) {
	var me auth.User
	if err := c.Get(ctx, "/api/v1/auth/me", &me); err != nil {
		return nil, fmt.Errorf("import requires authentication: %w", err)
	}

	var projectID *string
	if opts.ProjectName != "" {
		var p prompts.Project
		if err := c.Get(ctx, "/api/v1/projects/by-name/"+url.PathEscape(opts.ProjectName), &p); err != nil {
			return nil, fmt.Errorf("project %q: %w", opts.ProjectName, err)
		}
		projectID = &p.ID
	}

	var message *string
	if opts.CommitMessage != "" {
		message = &opts.CommitMessage
	}

	return func(ctx context.Context, item Item) (Outcome, error) {
		existing, err := findOwned(ctx, c, me.ID, item.Location)
		if err != nil {
			return OutcomeFailed, err
		}

		if existing == nil {
			if opts.DryRun {
				return OutcomeCreated, nil
			}
			body := createPromptBody{
				Name:          item.Name,
				Description:   item.Description,
				Location:      item.Location,
				Content:       item.Content,
				CommitMessage: message,
				ProjectID:     projectID,
				Tags:          item.Tags,
				IsPublic:      item.IsPublic,
			}
			if err := c.Post(ctx, "/api/v1/prompts", body, nil); err != nil {
				return OutcomeFailed, err
			}
			return OutcomeCreated, nil
		}

		if existing.CurrentVersion != nil && existing.CurrentVersion.Content == item.Content {
			return OutcomeUnchanged, nil
		}
		if opts.DryRun {
			return OutcomeUpdated, nil
		}
		body := createVersionBody{Content: item.Content, CommitMessage: message}
		if err := c.Post(ctx, "/api/v1/prompts/"+url.PathEscape(existing.ID)+"/versions", body, nil); err != nil {
			return OutcomeFailed, err
		}
		return OutcomeUpdated, nil
	}, nil
}

// findOwned returns the owner's prompt stored exactly at location, or nil.
// The location filter on the list route is a pattern match, so results are
// narrowed here.
func findOwned(ctx context.Context, c *api.Client, ownerID, location string) (*prompts.Prompt, error) {
	for page := 1; ; page++ {
		q := url.Values{
			"location":  {location},
			"page":      {strconv.Itoa(page)},
			"page_size": {strconv.Itoa(prompts.MaxPageSize)},
		}
		var resp prompts.PromptPage
		if err := c.Get(ctx, api.WithQuery("/api/v1/prompts", q), &resp); err != nil {
			return nil, err
		}
		for i := range resp.Prompts {
			p := &resp.Prompts[i]
			if p.UserID == ownerID && p.Location == location {
				return p, nil
			}
		}
		if page >= resp.TotalPages {
			return nil, nil
		}
	}
}
