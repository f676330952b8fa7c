package endpoints

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/auth"
	"github.com/jackzampolin/prompta/internal/prompts"
)

// CreatePromptRequest is the request body for creating a prompt with its
// first version.
type CreatePromptRequest struct {
	Name          string   `json:"name" validate:"required,max=255"`
	Description   string   `json:"description,omitempty"`
	Location      string   `json:"location" validate:"required,max=500"`
	Content       string   `json:"content"`
	CommitMessage *string  `json:"commit_message,omitempty"`
	ProjectID     *string  `json:"project_id,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	IsPublic      bool     `json:"is_public,omitempty"`
}

// CreatePromptEndpoint handles POST /api/v1/prompts.
type CreatePromptEndpoint struct{}

func (e *CreatePromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/prompts", e.handler
}

func (e *CreatePromptEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Create a prompt with its initial version
//	@Tags		prompts
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Security	APIKeyAuth
//	@Param		request	body		CreatePromptRequest	true	"Prompt"
//	@Success	201		{object}	prompts.Prompt
//	@Failure	400		{object}	ErrorResponse
//	@Failure	401		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/api/v1/prompts [post]
func (e *CreatePromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CreatePromptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	p, err := svc.CreatePrompt(r.Context(), u.ID, prompts.CreatePromptInput{
		Name:          req.Name,
		Description:   req.Description,
		Location:      req.Location,
		Content:       req.Content,
		CommitMessage: req.CommitMessage,
		ProjectID:     req.ProjectID,
		Tags:          req.Tags,
		IsPublic:      req.IsPublic,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (e *CreatePromptEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var req CreatePromptRequest
	var file, message, projectID string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a prompt",
		Long: `Create a prompt and its first version.

Content comes from --file, or from stdin when --file is "-".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			if file == "-" && req.Location == "" {
				return fmt.Errorf("--location is required when reading stdin")
			}
			content, err := readContent(cmd, file)
			if err != nil {
				return err
			}
			req.Content = content
			if req.Location == "" {
				req.Location = file
			}
			if message != "" {
				req.CommitMessage = &message
			}
			if projectID != "" {
				req.ProjectID = &projectID
			}
			var p prompts.Prompt
			if err := newClient().Post(cmd.Context(), "/api/v1/prompts", req, &p); err != nil {
				return err
			}
			return api.Output(p)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `File holding the content ("-" for stdin)`)
	cmd.Flags().StringVar(&req.Location, "location", "", "Location path (defaults to --file)")
	cmd.Flags().StringVar(&req.Description, "description", "", "Prompt description")
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message for version 1")
	cmd.Flags().StringVar(&projectID, "project-id", "", "Project to file the prompt under")
	cmd.Flags().StringSliceVar(&req.Tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().BoolVar(&req.IsPublic, "public", false, "Make the prompt public")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// ListPromptsEndpoint handles GET /api/v1/prompts.
type ListPromptsEndpoint struct{}

func (e *ListPromptsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/prompts", e.handler
}

func (e *ListPromptsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List visible prompts
//	@Description	Anonymous callers see public prompts, session tokens see the caller's prompts, API keys see both.
//	@Tags			prompts
//	@Produce		json
//	@Param			query			query		string		false	"Match name, description or location"
//	@Param			location		query		string		false	"Location pattern"
//	@Param			project_id		query		string		false	"Project ID"
//	@Param			project_name	query		string		false	"Project name"
//	@Param			tags			query		[]string	false	"Accepted, not applied"
//	@Param			page			query		int			false	"Page number"	default(1)
//	@Param			page_size		query		int			false	"Items per page"	default(20)
//	@Success		200				{object}	prompts.PromptPage
//	@Failure		400				{object}	ErrorResponse
//	@Router			/api/v1/prompts [get]
func (e *ListPromptsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	page, ok := paginationQuery(w, r)
	if !ok {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	result, err := svc.ListPrompts(r.Context(), auth.RequesterFrom(r.Context()), prompts.ListPromptsParams{
		Query:       q.Get("query"),
		Location:    q.Get("location"),
		ProjectID:   q.Get("project_id"),
		ProjectName: q.Get("project_name"),
		Tags:        q["tags"],
		Pagination:  page,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *ListPromptsEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var query, location, projectID, projectName string
	var tags []string
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{
				"query":        {query},
				"location":     {location},
				"project_id":   {projectID},
				"project_name": {projectName},
				"tags":         tags,
			}
			path := api.WithQuery("/api/v1/prompts", pageValues(q, page, pageSize))
			var resp prompts.PromptPage
			if err := newClient().Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Match name, description or location")
	cmd.Flags().StringVar(&location, "location", "", "Location pattern")
	cmd.Flags().StringVar(&projectID, "project-id", "", "Project ID")
	cmd.Flags().StringVarP(&projectName, "project", "p", "", "Project name")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (accepted by the server, not applied)")
	addPageFlags(cmd, &page, &pageSize)
	return cmd
}

// SearchPromptsEndpoint handles GET /api/v1/prompts/search.
type SearchPromptsEndpoint struct{}

func (e *SearchPromptsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/prompts/search", e.handler
}

func (e *SearchPromptsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Search current version content
//	@Tags		prompts
//	@Produce	json
//	@Param		q			query		string	true	"Search term"
//	@Param		page		query		int		false	"Page number"	default(1)
//	@Param		page_size	query		int		false	"Items per page"	default(20)
//	@Success	200			{object}	prompts.PromptPage
//	@Failure	400			{object}	ErrorResponse
//	@Router		/api/v1/prompts/search [get]
func (e *SearchPromptsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "q is required")
		return
	}
	page, ok := paginationQuery(w, r)
	if !ok {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	result, err := svc.SearchPrompts(r.Context(), auth.RequesterFrom(r.Context()), term, page)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *SearchPromptsEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search prompt content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := api.WithQuery("/api/v1/prompts/search", pageValues(url.Values{"q": {args[0]}}, page, pageSize))
			var resp prompts.PromptPage
			if err := newClient().Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	addPageFlags(cmd, &page, &pageSize)
	return cmd
}

// GetPromptByLocationEndpoint handles GET /api/v1/prompts/by-location.
type GetPromptByLocationEndpoint struct{}

func (e *GetPromptByLocationEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/prompts/by-location", e.handler
}

func (e *GetPromptByLocationEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get the prompt stored at a location
//	@Tags		prompts
//	@Produce	json
//	@Param		location	query		string	true	"Location"
//	@Success	200			{object}	prompts.Prompt
//	@Failure	400			{object}	ErrorResponse
//	@Failure	404			{object}	ErrorResponse
//	@Router		/api/v1/prompts/by-location [get]
func (e *GetPromptByLocationEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	p, err := svc.GetPromptByLocation(r.Context(), auth.RequesterFrom(r.Context()), r.URL.Query().Get("location"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *GetPromptByLocationEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "by-location <location>",
		Short: "Get the prompt stored at a location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := api.WithQuery("/api/v1/prompts/by-location", url.Values{"location": {args[0]}})
			var p prompts.Prompt
			if err := newClient().Get(cmd.Context(), path, &p); err != nil {
				return err
			}
			return api.Output(p)
		},
	}
}

// GetPromptEndpoint handles GET /api/v1/prompts/{id}.
type GetPromptEndpoint struct{}

func (e *GetPromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/prompts/{id}", e.handler
}

func (e *GetPromptEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get a prompt with its current version
//	@Tags		prompts
//	@Produce	json
//	@Param		id	path		string	true	"Prompt ID"
//	@Success	200	{object}	prompts.Prompt
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/prompts/{id} [get]
func (e *GetPromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	p, err := svc.GetPrompt(r.Context(), auth.RequesterFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *GetPromptEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a prompt by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p prompts.Prompt
			if err := newClient().Get(cmd.Context(), "/api/v1/prompts/"+url.PathEscape(args[0]), &p); err != nil {
				return err
			}
			return api.Output(p)
		},
	}
}

// UpdatePromptRequest is the request body for updating prompt metadata.
// Omitted fields are left unchanged; an empty project_id detaches the
// prompt from its project.
type UpdatePromptRequest struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,max=255"`
	Description *string  `json:"description,omitempty"`
	Location    *string  `json:"location,omitempty" validate:"omitempty,max=500"`
	ProjectID   *string  `json:"project_id,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsPublic    *bool    `json:"is_public,omitempty"`
}

// UpdatePromptEndpoint handles PUT /api/v1/prompts/{id}.
type UpdatePromptEndpoint struct{}

func (e *UpdatePromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/v1/prompts/{id}", e.handler
}

func (e *UpdatePromptEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Update prompt metadata
//	@Tags		prompts
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Security	APIKeyAuth
//	@Param		id		path		string				true	"Prompt ID"
//	@Param		request	body		UpdatePromptRequest	true	"Changes"
//	@Success	200		{object}	prompts.Prompt
//	@Failure	400		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/api/v1/prompts/{id} [put]
func (e *UpdatePromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req UpdatePromptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	p, err := svc.UpdatePrompt(r.Context(), u.ID, chi.URLParam(r, "id"), prompts.UpdatePromptInput{
		Name:        req.Name,
		Description: req.Description,
		Location:    req.Location,
		ProjectID:   req.ProjectID,
		Tags:        req.Tags,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *UpdatePromptEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var name, description, location, projectID string
	var tags []string
	var public bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update prompt metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req UpdatePromptRequest
			flags := cmd.Flags()
			if flags.Changed("name") {
				req.Name = &name
			}
			if flags.Changed("description") {
				req.Description = &description
			}
			if flags.Changed("location") {
				req.Location = &location
			}
			if flags.Changed("project-id") {
				req.ProjectID = &projectID
			}
			if flags.Changed("tag") {
				req.Tags = tags
			}
			if flags.Changed("public") {
				req.IsPublic = &public
			}
			var p prompts.Prompt
			if err := newClient().Put(cmd.Context(), "/api/v1/prompts/"+url.PathEscape(args[0]), req, &p); err != nil {
				return err
			}
			return api.Output(p)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&location, "location", "", "New location")
	cmd.Flags().StringVar(&projectID, "project-id", "", `Project ID ("" detaches)`)
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Replace tags (repeatable)")
	cmd.Flags().BoolVar(&public, "public", false, "Public visibility")
	return cmd
}

// DeletePromptEndpoint handles DELETE /api/v1/prompts/{id}.
type DeletePromptEndpoint struct{}

func (e *DeletePromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/v1/prompts/{id}", e.handler
}

func (e *DeletePromptEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Delete a prompt and all of its versions
//	@Tags		prompts
//	@Security	BearerAuth
//	@Security	APIKeyAuth
//	@Param		id	path	string	true	"Prompt ID"
//	@Success	204
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/prompts/{id} [delete]
func (e *DeletePromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	if err := svc.DeletePrompt(r.Context(), u.ID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *DeletePromptEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a prompt and all of its versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().Delete(cmd.Context(), "/api/v1/prompts/"+url.PathEscape(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted prompt %s\n", args[0])
			return nil
		},
	}
}

// readContent reads prompt content from a file, or from stdin for "-".
func readContent(cmd *cobra.Command, file string) (string, error) {
	if file == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return string(data), nil
}
