package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/prompts"
	"github.com/jackzampolin/prompta/internal/render"
)

// maxSuggestionPages caps how much of the listing "did you mean" reads.
const maxSuggestionPages = 5

func newShowCommand(newClient func() *api.Client) *cobra.Command {
	var versionNumber, width int
	var raw bool
	cmd := &cobra.Command{
		Use:   "show <id|location|name>",
		Short: "Render a prompt's content",
		Long: `Render a prompt's current content, or an older version with --version.

The prompt is looked up by id, then by location, then by name. When
nothing matches, similar prompt names are suggested.

Markdown is rendered for the terminal unless --raw is set. With
-o json the prompt is printed as JSON instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := newClient()

			p, err := resolvePrompt(ctx, c, args[0])
			if err != nil {
				return err
			}
			if api.GetOutputFormat() == api.OutputFormatJSON {
				return api.Output(p)
			}

			v := p.CurrentVersion
			if versionNumber > 0 {
				v = &prompts.Version{}
				path := fmt.Sprintf("/api/v1/prompts/%s/versions/%d", url.PathEscape(p.ID), versionNumber)
				if err := c.Get(ctx, path, v); err != nil {
					return err
				}
			}
			if v == nil {
				return fmt.Errorf("prompt %s has no versions", p.Name)
			}

			out := cmd.OutOrStdout()
			if raw {
				fmt.Fprint(out, v.Content)
				return nil
			}
			fmt.Fprintf(out, "%s (%s) version %d\n", p.Name, p.Location, v.VersionNumber)
			rendered, err := render.Markdown(v.Content, width)
			if err != nil {
				return err
			}
			fmt.Fprint(out, rendered)
			return nil
		},
	}
	cmd.Flags().IntVar(&versionNumber, "version", 0, "Show this version instead of the current one")
	cmd.Flags().IntVar(&width, "width", render.DefaultWidth, "Word-wrap width")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print content without rendering")
	return cmd
}

// resolvePrompt finds a visible prompt by id, location or exact name.
func resolvePrompt(ctx context.Context, c *api.Client, ref string) (*prompts.Prompt, error) {
	var p prompts.Prompt
	err := c.Get(ctx, "/api/v1/prompts/"+url.PathEscape(ref), &p)
	if err == nil {
		return &p, nil
	}
	if !isMiss(err) {
		return nil, err
	}

	err = c.Get(ctx, api.WithQuery("/api/v1/prompts/by-location", url.Values{"location": {ref}}), &p)
	if err == nil {
		return &p, nil
	}
	if !isMiss(err) {
		return nil, err
	}

	names, err := visibleNames(ctx, c, ref)
	if err != nil {
		return nil, err
	}
	for id, name := range names {
		if name == ref {
			if err := c.Get(ctx, "/api/v1/prompts/"+url.PathEscape(id), &p); err != nil {
				return nil, err
			}
			return &p, nil
		}
	}

	all, err := visibleNames(ctx, c, "")
	if err != nil {
		return nil, err
	}
	return nil, notFoundError(ref, all)
}

// isMiss reports whether err means the reference did not name a prompt.
// A reference that collides with a fixed route such as "search" answers
// 400 rather than 404.
func isMiss(err error) bool {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusBadRequest
}

// visibleNames maps prompt id to name for prompts matching query.
func visibleNames(ctx context.Context, c *api.Client, query string) (map[string]string, error) {
	names := map[string]string{}
	for page := 1; page <= maxSuggestionPages; page++ {
		q := url.Values{
			"query":     {query},
			"page":      {strconv.Itoa(page)},
			"page_size": {strconv.Itoa(prompts.MaxPageSize)},
		}
		var resp prompts.PromptPage
		if err := c.Get(ctx, api.WithQuery("/api/v1/prompts", q), &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Prompts {
			names[p.ID] = p.Name
		}
		if page >= resp.TotalPages {
			break
		}
	}
	return names, nil
}

func notFoundError(ref string, names map[string]string) error {
	list := make([]string, 0, len(names))
	for _, name := range names {
		list = append(list, name)
	}
	suggestions := render.Suggest(ref, list, 5)
	if len(suggestions) == 0 {
		return fmt.Errorf("prompt %q not found", ref)
	}
	return fmt.Errorf("prompt %q not found\n\nDid you mean?\n  %s", ref, strings.Join(suggestions, "\n  "))
}
