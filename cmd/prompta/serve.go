package main

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	_ "github.com/jackzampolin/prompta/docs"
	"github.com/jackzampolin/prompta/internal/config"
	"github.com/jackzampolin/prompta/internal/server"
	"github.com/jackzampolin/prompta/internal/server/endpoints"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the prompta server",
	Long: `Start the prompta HTTP server.

The database is sqlite at ~/.prompta/prompta.db unless configured
otherwise. With database.driver=postgres and database.container.managed=true
the server also starts a Postgres container and stops it on shutdown.

The server provides:
  - /health       - Basic server health check
  - /ready        - Readiness check (includes the database)
  - /metrics      - Prometheus metrics
  - /swagger      - API documentation
  - /api/v1/...   - Projects, prompts and versions

Examples:
  prompta serve                    # Start on default port 8000
  prompta serve --port 3000        # Start on custom port
  prompta serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		h, err := getHome()
		if err != nil {
			return err
		}
		cfgMgr, err := getConfig(h)
		if err != nil {
			return err
		}

		cfg := cfgMgr.Get()
		logger := newLogger(os.Stderr, cfg.Log)
		applyLogLevel(cfg.Log.Level)
		cfgMgr.OnChange(func(c *config.Config) {
			applyLogLevel(c.Log.Level)
		})
		cfgMgr.WatchConfig()

		srv, err := server.New(server.Config{
			Host:            serveHost,
			Port:            servePort,
			ConfigManager:   cfgMgr,
			Home:            h,
			SwaggerSpecPath: endpoints.GetSwaggerSpecPath(),
			Logger:          &logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host from config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port from config)")

	rootCmd.AddCommand(serveCmd)
}

// newLogger returns a console logger, or a JSON one for log.format=json.
func newLogger(w io.Writer, cfg config.LogConfig) zerolog.Logger {
	if cfg.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// applyLogLevel sets the process-wide level so config reloads take effect
// on loggers already handed out.
func applyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
