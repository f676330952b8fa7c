package endpoints

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/pgdocker"
	"github.com/jackzampolin/prompta/internal/svcctx"
	"github.com/jackzampolin/prompta/version"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Liveness check
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Router		/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp HealthResponse
			if err := newClient().Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Readiness check including the database
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	HealthResponse
//	@Failure	503	{object}	HealthResponse
//	@Router		/ready [get]
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Database: "ok"}

	db := svcctx.DBFrom(r.Context())
	if db == nil {
		resp.Status = "degraded"
		resp.Database = "not_initialized"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Database = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ReadyEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (includes the database)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp HealthResponse
			if err := newClient().Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Status:   %s\n", resp.Status)
			if resp.Database != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n", resp.Database)
			}
			return nil
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server   string         `json:"server"`
	Version  string         `json:"version"`
	Database DatabaseStatus `json:"database"`
}

// DatabaseStatus shows the store driver and, for a managed database, its
// container state.
type DatabaseStatus struct {
	Driver    string `json:"driver"`
	Health    string `json:"health"`
	Container string `json:"container,omitempty"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct {
	// DBManager is set by server since it's not in Services
	DBManager *pgdocker.DockerManager
	Driver    string
}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary	Detailed server status
//	@Tags		health
//	@Produce	json
//	@Success	200	{object}	StatusResponse
//	@Router		/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Server:   "running",
		Version:  version.GitRelease,
		Database: DatabaseStatus{Driver: e.Driver},
	}

	if e.DBManager != nil {
		status, err := e.DBManager.Status(r.Context())
		if err != nil {
			resp.Database.Container = "error"
		} else {
			resp.Database.Container = string(status)
		}
	}

	db := svcctx.DBFrom(r.Context())
	switch {
	case db == nil:
		resp.Database.Health = "not_initialized"
	case db.PingContext(r.Context()) != nil:
		resp.Database.Health = "unhealthy"
	default:
		resp.Database.Health = "healthy"
		if resp.Database.Driver == "" {
			resp.Database.Driver = string(db.Driver())
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp StatusResponse
			if err := newClient().Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server:  %s\n", resp.Server)
			fmt.Fprintf(out, "Version: %s\n", resp.Version)
			fmt.Fprintf(out, "Database:\n")
			fmt.Fprintf(out, "  Driver:    %s\n", resp.Database.Driver)
			fmt.Fprintf(out, "  Health:    %s\n", resp.Database.Health)
			if resp.Database.Container != "" {
				fmt.Fprintf(out, "  Container: %s\n", resp.Database.Container)
			}
			return nil
		},
	}
}
