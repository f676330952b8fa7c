package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

// Grouped lets an endpoint choose the `prompta api <group>` command it
// lives under instead of the one derived from its path.
type Grouped interface {
	CommandGroup() string
}

// Registry holds all registered endpoints.
type Registry struct {
	endpoints []Endpoint
}

// NewRegistry creates a new endpoint registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an endpoint to the registry.
func (r *Registry) Register(ep Endpoint) {
	r.endpoints = append(r.endpoints, ep)
}

// RegisterRoutes registers all endpoint HTTP routes with the given router.
// initMiddleware wraps handlers that require full server initialization.
func (r *Registry) RegisterRoutes(router chi.Router, initMiddleware func(http.HandlerFunc) http.HandlerFunc) {
	for _, ep := range r.endpoints {
		method, path, handler := ep.Route()
		if ep.RequiresInit() {
			handler = initMiddleware(handler)
		}
		router.Method(method, path, handler)
	}
}

// BuildCommands returns a cobra.Command tree for all registered endpoints.
// Commands are organized by their URL path structure: /api/v1/<group>/...
// lands under `api <group>`, anything else directly under `api`.
// Endpoints whose Command returns nil are HTTP-only.
func (r *Registry) BuildCommands(newClient func() *Client) *cobra.Command {
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Commands that call the running server",
		Long: `API commands call the running prompta server via HTTP.

These commands require a running server (prompta serve).
Use --server to specify a custom server URL and --api-key or
prompta login to authenticate.

Examples:
  prompta api health                 # Check server health
  prompta api prompts list           # List visible prompts
  prompta api prompts get <id>       # Get a specific prompt
  prompta api versions diff <id> 1 2 # Diff two versions`,
	}

	groups := map[string]*cobra.Command{}
	for _, ep := range r.endpoints {
		cmd := ep.Command(newClient)
		if cmd == nil {
			continue
		}
		group := CommandGroup(ep)
		if group == "" {
			apiCmd.AddCommand(cmd)
			continue
		}
		parent, ok := groups[group]
		if !ok {
			parent = &cobra.Command{
				Use:   group,
				Short: "Manage " + group,
			}
			groups[group] = parent
		}
		parent.AddCommand(cmd)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		apiCmd.AddCommand(groups[name])
	}

	return apiCmd
}

// Endpoints returns all registered endpoints.
func (r *Registry) Endpoints() []Endpoint {
	return r.endpoints
}

// CommandGroup returns the CLI group for an endpoint.
func CommandGroup(ep Endpoint) string {
	if g, ok := ep.(Grouped); ok {
		return g.CommandGroup()
	}
	_, path, _ := ep.Route()
	rest, ok := strings.CutPrefix(path, "/api/")
	if !ok {
		return ""
	}
	rest = strings.TrimPrefix(rest, "v1/")
	group, _, _ := strings.Cut(rest, "/")
	if strings.HasPrefix(group, "{") {
		return ""
	}
	return group
}
