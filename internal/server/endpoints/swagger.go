package endpoints

import (
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/swaggo/swag"

	"github.com/jackzampolin/prompta/internal/api"
)

// SwaggerEndpoint serves the OpenAPI document registered by the docs package.
type SwaggerEndpoint struct {
	// SpecPath, when readable, replaces the registered document. Used for a
	// freshly generated swagger.json shipped next to the binary.
	SpecPath string
}

func (e *SwaggerEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/swagger.json", e.handler
}

func (e *SwaggerEndpoint) RequiresInit() bool { return false }

func (e *SwaggerEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	doc, err := e.document()
	if err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no OpenAPI document registered")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}

func (e *SwaggerEndpoint) document() ([]byte, error) {
	if e.SpecPath != "" {
		if data, err := os.ReadFile(e.SpecPath); err == nil {
			return data, nil
		}
	}
	doc, err := swag.ReadDoc()
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

func (e *SwaggerEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "swagger",
		Short: "Fetch the server's OpenAPI document",
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc map[string]any
			if err := newClient().Get(cmd.Context(), "/swagger.json", &doc); err != nil {
				return err
			}
			if file == "" {
				return api.Output(doc)
			}
			return api.OutputToFileAs(file, api.OutputFormatJSON, doc)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Write the document as JSON to this file")
	return cmd
}

var swaggerUIPage = template.Must(template.New("swagger-ui").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: {{.URL}}, dom_id: '#swagger-ui', layout: 'BaseLayout',
      presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset]});
  </script>
</body>
</html>
`))

// SwaggerUIEndpoint serves a Swagger UI page pointed at /swagger.json.
type SwaggerUIEndpoint struct{}

func (e *SwaggerUIEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/swagger", e.handler
}

func (e *SwaggerUIEndpoint) RequiresInit() bool { return false }

func (e *SwaggerUIEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = swaggerUIPage.Execute(w, struct{ Title, URL string }{"Prompta API", "/swagger.json"})
}

func (e *SwaggerUIEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:    "swagger-ui",
		Hidden: true,
		Short:  "Print the Swagger UI address",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), newClient().BaseURL()+"/swagger")
			return nil
		},
	}
}

// GetSwaggerSpecPath returns docs/swagger/swagger.json beside the running
// executable, or "" when there is none.
func GetSwaggerSpecPath() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	p := filepath.Join(filepath.Dir(exe), "docs", "swagger", "swagger.json")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
