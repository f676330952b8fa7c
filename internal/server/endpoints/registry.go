package endpoints

import (
	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/pgdocker"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	// DBManager is the managed Postgres container, nil when the database
	// is not managed by prompta.
	DBManager *pgdocker.DockerManager
	// Driver names the configured store driver for /status.
	Driver          string
	SwaggerSpecPath string
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DBManager: cfg.DBManager, Driver: cfg.Driver},

		// Auth endpoints
		&RegisterEndpoint{},
		&LoginEndpoint{},
		&MeEndpoint{},
		&CreateAPIKeyEndpoint{},
		&ListAPIKeysEndpoint{},
		&DeleteAPIKeyEndpoint{},

		// Project endpoints
		&CreateProjectEndpoint{},
		&ListProjectsEndpoint{},
		&GetProjectEndpoint{},
		&GetProjectByNameEndpoint{},
		&UpdateProjectEndpoint{},
		&DeleteProjectEndpoint{},

		// Prompt endpoints
		&CreatePromptEndpoint{},
		&ListPromptsEndpoint{},
		&SearchPromptsEndpoint{},
		&GetPromptByLocationEndpoint{},
		&DownloadPromptsEndpoint{},
		&DownloadProjectPromptsEndpoint{},
		&GetPromptEndpoint{},
		&UpdatePromptEndpoint{},
		&DeletePromptEndpoint{},

		// Version endpoints
		&CreateVersionEndpoint{},
		&ListVersionsEndpoint{},
		&GetVersionEndpoint{},
		&UpdateVersionEndpoint{},
		&RestoreVersionEndpoint{},
		&DiffVersionsEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{SpecPath: cfg.SwaggerSpecPath},
		&SwaggerUIEndpoint{},
	}
}
