package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/auth"
	"github.com/jackzampolin/prompta/internal/prompts"
	"github.com/jackzampolin/prompta/internal/render"
)

// versionsGroup files every version route under "prompta api versions".
const versionsGroup = "versions"

// CreateVersionRequest is the request body for appending a version.
type CreateVersionRequest struct {
	Content       string  `json:"content"`
	CommitMessage *string `json:"commit_message,omitempty" validate:"omitempty,max=500"`
}

// UpdateVersionRequest edits a version's commit message. A null message
// clears it.
type UpdateVersionRequest struct {
	CommitMessage *string `json:"commit_message" validate:"omitempty,max=500"`
}

// RestoreVersionRequest is the optional body for a restore. The message
// may contain "{version_number}".
type RestoreVersionRequest struct {
	CommitMessage *string `json:"commit_message,omitempty" validate:"omitempty,max=500"`
}

// VersionListResponse lists a prompt's versions, newest first.
type VersionListResponse struct {
	Versions []prompts.Version `json:"versions"`
	Total    int               `json:"total"`
}

// DiffResponse is a unified diff between two versions.
type DiffResponse struct {
	PromptID string `json:"prompt_id"`
	Version1 int    `json:"version1"`
	Version2 int    `json:"version2"`
	Diff     string `json:"diff"`
}

func versionsPath(id string) string {
	return "/api/v1/prompts/" + url.PathEscape(id) + "/versions"
}

// versionArg parses a version number argument.
func versionArg(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid version number %q", s)
	}
	return n, nil
}

// CreateVersionEndpoint handles POST /api/v1/prompts/{id}/versions.
type CreateVersionEndpoint struct{}

func (e *CreateVersionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/prompts/{id}/versions", e.handler
}

func (e *CreateVersionEndpoint) RequiresInit() bool { return true }

func (e *CreateVersionEndpoint) CommandGroup() string { return versionsGroup }

// handler godoc
//
//	@Summary	Create a new version and make it current
//	@Tags		versions
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Security	APIKeyAuth
//	@Param		id		path		string					true	"Prompt ID"
//	@Param		request	body		CreateVersionRequest	true	"Version"
//	@Success	201		{object}	prompts.Version
//	@Failure	404		{object}	ErrorResponse
//	@Failure	409		{object}	ErrorResponse
//	@Router		/api/v1/prompts/{id}/versions [post]
func (e *CreateVersionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CreateVersionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	v, err := svc.CreateVersion(r.Context(), u.ID, chi.URLParam(r, "id"), req.Content, req.CommitMessage)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (e *CreateVersionEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var file, message string
	cmd := &cobra.Command{
		Use:   "create <prompt-id>",
		Short: "Create a new version from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd, file)
			if err != nil {
				return err
			}
			req := CreateVersionRequest{Content: content}
			if message != "" {
				req.CommitMessage = &message
			}
			var v prompts.Version
			if err := newClient().Post(cmd.Context(), versionsPath(args[0]), req, &v); err != nil {
				return err
			}
			return api.Output(v)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", `File holding the content ("-" for stdin)`)
	cmd.Flags().StringVarP(&message, "message", "m", "", "Commit message")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// ListVersionsEndpoint handles GET /api/v1/prompts/{id}/versions.
type ListVersionsEndpoint struct{}

func (e *ListVersionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/prompts/{id}/versions", e.handler
}

func (e *ListVersionsEndpoint) RequiresInit() bool { return true }

func (e *ListVersionsEndpoint) CommandGroup() string { return versionsGroup }

// handler godoc
//
//	@Summary	List versions newest first
//	@Tags		versions
//	@Produce	json
//	@Param		id	path		string	true	"Prompt ID"
//	@Success	200	{object}	VersionListResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/prompts/{id}/versions [get]
func (e *ListVersionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	versions, err := svc.ListVersions(r.Context(), auth.RequesterFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if versions == nil {
		versions = []prompts.Version{}
	}
	writeJSON(w, http.StatusOK, VersionListResponse{Versions: versions, Total: len(versions)})
}

func (e *ListVersionsEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list <prompt-id>",
		Short: "List a prompt's versions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp VersionListResponse
			if err := newClient().Get(cmd.Context(), versionsPath(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetVersionEndpoint handles GET /api/v1/prompts/{id}/versions/{n}.
type GetVersionEndpoint struct{}

func (e *GetVersionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/prompts/{id}/versions/{n}", e.handler
}

func (e *GetVersionEndpoint) RequiresInit() bool { return true }

func (e *GetVersionEndpoint) CommandGroup() string { return versionsGroup }

// handler godoc
//
//	@Summary	Get one version
//	@Tags		versions
//	@Produce	json
//	@Param		id	path		string	true	"Prompt ID"
//	@Param		n	path		int		true	"Version number"
//	@Success	200	{object}	prompts.Version
//	@Failure	400	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/prompts/{id}/versions/{n} [get]
func (e *GetVersionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	n, ok := intParam(w, r, "n")
	if !ok {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	v, err := svc.GetVersion(r.Context(), auth.RequesterFrom(r.Context()), chi.URLParam(r, "id"), n)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (e *GetVersionEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "get <prompt-id> <n>",
		Short: "Get one version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := versionArg(args[1])
			if err != nil {
				return err
			}
			var v prompts.Version
			if err := newClient().Get(cmd.Context(), fmt.Sprintf("%s/%d", versionsPath(args[0]), n), &v); err != nil {
				return err
			}
			return api.Output(v)
		},
	}
}

// UpdateVersionEndpoint handles PUT /api/v1/prompts/{id}/versions/{n}.
type UpdateVersionEndpoint struct{}

func (e *UpdateVersionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/v1/prompts/{id}/versions/{n}", e.handler
}

func (e *UpdateVersionEndpoint) RequiresInit() bool { return true }

func (e *UpdateVersionEndpoint) CommandGroup() string { return versionsGroup }

// handler godoc
//
//	@Summary	Edit a version's commit message
//	@Tags		versions
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Security	APIKeyAuth
//	@Param		id		path		string					true	"Prompt ID"
//	@Param		n		path		int						true	"Version number"
//	@Param		request	body		UpdateVersionRequest	true	"Message"
//	@Success	200		{object}	prompts.Version
//	@Failure	404		{object}	ErrorResponse
//	@Router		/api/v1/prompts/{id}/versions/{n} [put]
func (e *UpdateVersionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	n, ok := intParam(w, r, "n")
	if !ok {
		return
	}
	var req UpdateVersionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	v, err := svc.UpdateVersionMessage(r.Context(), u.ID, chi.URLParam(r, "id"), n, req.CommitMessage)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (e *UpdateVersionEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var message string
	var clearMsg bool
	cmd := &cobra.Command{
		Use:   "update <prompt-id> <n>",
		Short: "Edit a version's commit message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := versionArg(args[1])
			if err != nil {
				return err
			}
			var req UpdateVersionRequest
			switch {
			case clearMsg:
			case cmd.Flags().Changed("message"):
				req.CommitMessage = &message
			default:
				return fmt.Errorf("pass --message or --clear")
			}
			var v prompts.Version
			if err := newClient().Put(cmd.Context(), fmt.Sprintf("%s/%d", versionsPath(args[0]), n), req, &v); err != nil {
				return err
			}
			return api.Output(v)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "New commit message")
	cmd.Flags().BoolVar(&clearMsg, "clear", false, "Remove the commit message")
	return cmd
}

// RestoreVersionEndpoint handles POST /api/v1/prompts/{id}/restore/{n}.
type RestoreVersionEndpoint struct{}

func (e *RestoreVersionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/prompts/{id}/restore/{n}", e.handler
}

func (e *RestoreVersionEndpoint) RequiresInit() bool { return true }

func (e *RestoreVersionEndpoint) CommandGroup() string { return versionsGroup }

// handler godoc
//
//	@Summary		Restore an old version as a new one
//	@Description	Appends a copy of version n. The default message is "Restored from version n".
//	@Tags			versions
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Security		APIKeyAuth
//	@Param			id		path		string					true	"Prompt ID"
//	@Param			n		path		int						true	"Version to restore"
//	@Param			request	body		RestoreVersionRequest	false	"Optional message"
//	@Success		200		{object}	prompts.Version
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/api/v1/prompts/{id}/restore/{n} [post]
func (e *RestoreVersionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	n, ok := intParam(w, r, "n")
	if !ok {
		return
	}
	var req RestoreVersionRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	v, err := svc.RestoreVersion(r.Context(), u.ID, chi.URLParam(r, "id"), n, req.CommitMessage)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (e *RestoreVersionEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "restore <prompt-id> <n>",
		Short: "Restore version n as a new current version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := versionArg(args[1])
			if err != nil {
				return err
			}
			var req RestoreVersionRequest
			if message != "" {
				req.CommitMessage = &message
			}
			path := fmt.Sprintf("/api/v1/prompts/%s/restore/%d", url.PathEscape(args[0]), n)
			var v prompts.Version
			if err := newClient().Post(cmd.Context(), path, req, &v); err != nil {
				return err
			}
			return api.Output(v)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", `Commit message ("{version_number}" is replaced)`)
	return cmd
}

// DiffVersionsEndpoint handles GET /api/v1/prompts/{id}/diff/{v1}/{v2}.
type DiffVersionsEndpoint struct{}

func (e *DiffVersionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/prompts/{id}/diff/{v1}/{v2}", e.handler
}

func (e *DiffVersionsEndpoint) RequiresInit() bool { return true }

func (e *DiffVersionsEndpoint) CommandGroup() string { return versionsGroup }

// handler godoc
//
//	@Summary	Unified diff from version v1 to version v2
//	@Tags		versions
//	@Produce	json
//	@Param		id	path		string	true	"Prompt ID"
//	@Param		v1	path		int		true	"From version"
//	@Param		v2	path		int		true	"To version"
//	@Success	200	{object}	DiffResponse
//	@Failure	400	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/prompts/{id}/diff/{v1}/{v2} [get]
func (e *DiffVersionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	v1, ok := intParam(w, r, "v1")
	if !ok {
		return
	}
	v2, ok := intParam(w, r, "v2")
	if !ok {
		return
	}
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	diff, err := svc.CompareVersions(r.Context(), auth.RequesterFrom(r.Context()), id, v1, v2)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DiffResponse{PromptID: id, Version1: v1, Version2: v2, Diff: diff})
}

func (e *DiffVersionsEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <prompt-id> <from> <to>",
		Short: "Show a unified diff between two versions",
		Long: `Show a unified diff between two versions.

With --output text the diff is printed in colour.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := versionArg(args[1])
			if err != nil {
				return err
			}
			to, err := versionArg(args[2])
			if err != nil {
				return err
			}
			path := fmt.Sprintf("/api/v1/prompts/%s/diff/%d/%d", url.PathEscape(args[0]), from, to)
			var resp DiffResponse
			if err := newClient().Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			if api.GetOutputFormat() == api.OutputFormatText {
				fmt.Fprint(cmd.OutOrStdout(), render.Diff(resp.Diff))
				return nil
			}
			return api.Output(resp)
		},
	}
}
