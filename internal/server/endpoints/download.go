package endpoints

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/auth"
	"github.com/jackzampolin/prompta/internal/bundle"
	"github.com/jackzampolin/prompta/internal/prompts"
)

// DownloadPromptsEndpoint handles GET /api/v1/prompts/download.
type DownloadPromptsEndpoint struct{}

func (e *DownloadPromptsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/prompts/download", e.handler
}

func (e *DownloadPromptsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Download visible prompts as one bundle
//	@Description	Unpaginated. Tags are echoed in filters_applied but not applied.
//	@Tags			prompts
//	@Produce		json
//	@Param			project_name	query		string		false	"Project name"
//	@Param			directory		query		string		false	"Location prefix"
//	@Param			tags			query		[]string	false	"Accepted, not applied"
//	@Param			include_content	query		bool		false	"Include version content"	default(true)
//	@Success		200				{object}	prompts.Bundle
//	@Router			/api/v1/prompts/download [get]
func (e *DownloadPromptsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serveBundle(w, r, prompts.DownloadParams{
		ProjectName:    q.Get("project_name"),
		Directory:      q.Get("directory"),
		Tags:           q["tags"],
		IncludeContent: boolQuery(r, "include_content", true),
	})
}

func (e *DownloadPromptsEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var project, directory, out, dest string
	var tags []string
	var noContent bool
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download prompts as a bundle or as files",
		Long: `Download every visible prompt matching the filters.

With --dest, each prompt's current content is written to <dest>/<location>.
With --out, the bundle is saved as a file that "prompts import --bundle" can
read back. Otherwise the bundle is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dest != "" && noContent {
				return fmt.Errorf("--dest needs content; drop --no-content")
			}
			q := url.Values{
				"project_name": {project},
				"directory":    {directory},
				"tags":         tags,
			}
			if noContent {
				q.Set("include_content", "false")
			}
			var b prompts.Bundle
			if err := newClient().Get(cmd.Context(), api.WithQuery("/api/v1/prompts/download", q), &b); err != nil {
				return err
			}
			return emitBundle(cmd, &b, out, dest)
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project name")
	cmd.Flags().StringVar(&directory, "directory", "", "Only prompts whose location starts with this prefix")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (accepted by the server, not applied)")
	cmd.Flags().BoolVar(&noContent, "no-content", false, "Omit version content")
	cmd.Flags().StringVar(&out, "out", "", "Write the bundle to this file")
	cmd.Flags().StringVar(&dest, "dest", "", "Write prompt files under this directory")
	return cmd
}

// DownloadProjectPromptsEndpoint handles
// GET /api/v1/prompts/download/by-project/{name}.
type DownloadProjectPromptsEndpoint struct{}

func (e *DownloadProjectPromptsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/prompts/download/by-project/{name}", e.handler
}

func (e *DownloadProjectPromptsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Download one project's visible prompts
//	@Tags		prompts
//	@Produce	json
//	@Param		name			path		string	true	"Project name"
//	@Param		include_content	query		bool	false	"Include version content"	default(true)
//	@Success	200				{object}	prompts.Bundle
//	@Router		/api/v1/prompts/download/by-project/{name} [get]
func (e *DownloadProjectPromptsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	serveBundle(w, r, prompts.DownloadParams{
		ProjectName:    chi.URLParam(r, "name"),
		IncludeContent: boolQuery(r, "include_content", true),
	})
}

// Command is nil; "prompts download --project" covers this route.
func (e *DownloadProjectPromptsEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return nil
}

func serveBundle(w http.ResponseWriter, r *http.Request, params prompts.DownloadParams) {
	svc, ok := promptService(w, r)
	if !ok {
		return
	}
	b, err := svc.Download(r.Context(), auth.RequesterFrom(r.Context()), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func emitBundle(cmd *cobra.Command, b *prompts.Bundle, out, dest string) error {
	if out != "" {
		if err := api.OutputToFileAs(out, api.OutputFormatJSON, b); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Saved %d prompts to %s\n", b.Total, out)
	}
	if dest != "" {
		written, err := bundle.WriteFiles(dest, b)
		if err != nil {
			return err
		}
		for _, path := range written {
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d files under %s\n", len(written), dest)
	}
	if out == "" && dest == "" {
		return api.Output(b)
	}
	return nil
}
