package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/prompts"
)

// CreateProjectRequest is the request body for creating a project.
type CreateProjectRequest struct {
	Name        string   `json:"name" validate:"required,max=255"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsPublic    bool     `json:"is_public,omitempty"`
}

// CreateProjectEndpoint handles POST /api/v1/projects.
type CreateProjectEndpoint struct{}

func (e *CreateProjectEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/projects", e.handler
}

func (e *CreateProjectEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Create a project
//	@Tags		projects
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Security	APIKeyAuth
//	@Param		request	body		CreateProjectRequest	true	"Project"
//	@Success	201		{object}	prompts.Project
//	@Failure	400		{object}	ErrorResponse
//	@Failure	401		{object}	ErrorResponse
//	@Router		/api/v1/projects [post]
func (e *CreateProjectEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CreateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	p, err := svc.CreateProject(r.Context(), u.ID, prompts.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (e *CreateProjectEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var req CreateProjectRequest
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			var p prompts.Project
			if err := newClient().Post(cmd.Context(), "/api/v1/projects", req, &p); err != nil {
				return err
			}
			return api.Output(p)
		},
	}
	cmd.Flags().StringVar(&req.Description, "description", "", "Project description")
	cmd.Flags().StringSliceVar(&req.Tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().BoolVar(&req.IsPublic, "public", false, "Make the project public")
	return cmd
}

// ListProjectsEndpoint handles GET /api/v1/projects.
type ListProjectsEndpoint struct{}

func (e *ListProjectsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/projects", e.handler
}

func (e *ListProjectsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List the caller's active projects
//	@Tags		projects
//	@Produce	json
//	@Security	BearerAuth
//	@Security	APIKeyAuth
//	@Param		query		query		string	false	"Match name or description"
//	@Param		page		query		int		false	"Page number"	default(1)
//	@Param		page_size	query		int		false	"Items per page"	default(20)
//	@Success	200			{object}	prompts.ProjectPage
//	@Failure	400			{object}	ErrorResponse
//	@Failure	401			{object}	ErrorResponse
//	@Router		/api/v1/projects [get]
func (e *ListProjectsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
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
	result, err := svc.ListProjects(r.Context(), u.ID, prompts.ListProjectsParams{
		Query:      r.URL.Query().Get("query"),
		Pagination: page,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *ListProjectsEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var query string
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := api.WithQuery("/api/v1/projects", pageValues(url.Values{"query": {query}}, page, pageSize))
			var resp prompts.ProjectPage
			if err := newClient().Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Match name or description")
	addPageFlags(cmd, &page, &pageSize)
	return cmd
}

// GetProjectEndpoint handles GET /api/v1/projects/{id}.
type GetProjectEndpoint struct{}

func (e *GetProjectEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/projects/{id}", e.handler
}

func (e *GetProjectEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get a project
//	@Tags		projects
//	@Produce	json
//	@Security	BearerAuth
//	@Security	APIKeyAuth
//	@Param		id	path		string	true	"Project ID"
//	@Success	200	{object}	prompts.Project
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/projects/{id} [get]
func (e *GetProjectEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	p, err := svc.GetProject(r.Context(), u.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *GetProjectEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a project by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p prompts.Project
			if err := newClient().Get(cmd.Context(), "/api/v1/projects/"+url.PathEscape(args[0]), &p); err != nil {
				return err
			}
			return api.Output(p)
		},
	}
}

// GetProjectByNameEndpoint handles GET /api/v1/projects/by-name/{name}.
type GetProjectByNameEndpoint struct{}

func (e *GetProjectByNameEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/projects/by-name/{name}", e.handler
}

func (e *GetProjectByNameEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get a project by name
//	@Tags		projects
//	@Produce	json
//	@Security	BearerAuth
//	@Security	APIKeyAuth
//	@Param		name	path		string	true	"Project name"
//	@Success	200		{object}	prompts.Project
//	@Failure	404		{object}	ErrorResponse
//	@Router		/api/v1/projects/by-name/{name} [get]
func (e *GetProjectByNameEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	p, err := svc.GetProjectByName(r.Context(), u.ID, chi.URLParam(r, "name"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *GetProjectByNameEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "by-name <name>",
		Short: "Get a project by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p prompts.Project
			if err := newClient().Get(cmd.Context(), "/api/v1/projects/by-name/"+url.PathEscape(args[0]), &p); err != nil {
				return err
			}
			return api.Output(p)
		},
	}
}

// UpdateProjectRequest is the request body for updating a project.
// Omitted fields are left unchanged.
type UpdateProjectRequest struct {
	Name        *string  `json:"name,omitempty" validate:"omitempty,max=255"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsPublic    *bool    `json:"is_public,omitempty"`
	IsActive    *bool    `json:"is_active,omitempty"`
}

// UpdateProjectEndpoint handles PUT /api/v1/projects/{id}.
type UpdateProjectEndpoint struct{}

func (e *UpdateProjectEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/v1/projects/{id}", e.handler
}

func (e *UpdateProjectEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Update a project
//	@Tags		projects
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Security	APIKeyAuth
//	@Param		id		path		string					true	"Project ID"
//	@Param		request	body		UpdateProjectRequest	true	"Changes"
//	@Success	200		{object}	prompts.Project
//	@Failure	400		{object}	ErrorResponse
//	@Failure	404		{object}	ErrorResponse
//	@Router		/api/v1/projects/{id} [put]
func (e *UpdateProjectEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req UpdateProjectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	p, err := svc.UpdateProject(r.Context(), u.ID, chi.URLParam(r, "id"), prompts.UpdateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
		IsPublic:    req.IsPublic,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *UpdateProjectEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var name, description string
	var tags []string
	var public, active bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req UpdateProjectRequest
			flags := cmd.Flags()
			if flags.Changed("name") {
				req.Name = &name
			}
			if flags.Changed("description") {
				req.Description = &description
			}
			if flags.Changed("tag") {
				req.Tags = tags
			}
			if flags.Changed("public") {
				req.IsPublic = &public
			}
			if flags.Changed("active") {
				req.IsActive = &active
			}
			var p prompts.Project
			if err := newClient().Put(cmd.Context(), "/api/v1/projects/"+url.PathEscape(args[0]), req, &p); err != nil {
				return err
			}
			return api.Output(p)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Replace tags (repeatable)")
	cmd.Flags().BoolVar(&public, "public", false, "Public visibility")
	cmd.Flags().BoolVar(&active, "active", true, "Active flag")
	return cmd
}

// DeleteProjectEndpoint handles DELETE /api/v1/projects/{id}.
type DeleteProjectEndpoint struct{}

func (e *DeleteProjectEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/v1/projects/{id}", e.handler
}

func (e *DeleteProjectEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Delete a project and its prompts
//	@Tags		projects
//	@Security	BearerAuth
//	@Security	APIKeyAuth
//	@Param		id	path	string	true	"Project ID"
//	@Success	204
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/projects/{id} [delete]
func (e *DeleteProjectEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	if err := svc.DeleteProject(r.Context(), u.ID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteProjectEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project and all of its prompts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().Delete(cmd.Context(), "/api/v1/projects/"+url.PathEscape(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %s\n", args[0])
			return nil
		},
	}
}

func addPageFlags(cmd *cobra.Command, page, pageSize *int) {
	cmd.Flags().IntVar(page, "page", 0, "Page number")
	cmd.Flags().IntVar(pageSize, "page-size", 0, "Items per page (max 100)")
}

func pageValues(q url.Values, page, pageSize int) url.Values {
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	return q
}
