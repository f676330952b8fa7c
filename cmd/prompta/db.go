package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/prompta/internal/pgdocker"
	"github.com/jackzampolin/prompta/internal/server"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the Postgres container",
	Long: `Manage the Postgres container described by database.container.

Data is persisted to ~/.prompta/postgres/. Point the server at it with
database.driver=postgres, or let prompta serve manage it with
database.container.managed=true.

Examples:
  prompta db start   # Start the Postgres container
  prompta db stop    # Stop the container (data preserved)
  prompta db status  # Check container status
  prompta db logs    # View container logs`,
}

var dbStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Postgres container",
	Long: `Start the Postgres container.

If the container doesn't exist, it will be created and started.
If it exists but is stopped, it will be started.
If it's already running, this is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Starting Postgres...")
		if err := mgr.Start(cmd.Context()); err != nil {
			return fmt.Errorf("failed to start Postgres: %w", err)
		}

		fmt.Fprintf(out, "Postgres is running at %s\n", mgr.DSN())
		return nil
	},
}

var dbStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the Postgres container",
	Long: `Stop the Postgres container.

This stops the container but preserves data. Use 'prompta db start'
to restart it later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Stopping Postgres...")
		if err := mgr.Stop(cmd.Context()); err != nil {
			return fmt.Errorf("failed to stop Postgres: %w", err)
		}

		fmt.Fprintln(out, "Postgres stopped")
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Postgres container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		out := cmd.OutOrStdout()
		switch status {
		case pgdocker.StatusRunning:
			fmt.Fprintf(out, "Status: %s\n", status)
			fmt.Fprintf(out, "DSN: %s\n", mgr.DSN())
		case pgdocker.StatusStopped:
			fmt.Fprintf(out, "Status: %s (use 'prompta db start' to start)\n", status)
		case pgdocker.StatusNotFound:
			fmt.Fprintf(out, "Status: %s (use 'prompta db start' to create)\n", status)
		default:
			fmt.Fprintf(out, "Status: %s\n", status)
		}

		return nil
	},
}

var logsTail string

var dbLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show Postgres container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		logs, err := mgr.Logs(cmd.Context(), logsTail)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}

		fmt.Fprint(cmd.OutOrStdout(), logs)
		return nil
	},
}

var dbRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the Postgres container",
	Long: `Remove the Postgres container.

This stops and removes the container. Data in ~/.prompta/postgres/
is NOT deleted - only the container is removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Removing Postgres container...")
		if err := mgr.Remove(cmd.Context()); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}

		fmt.Fprintln(out, "Postgres container removed (data preserved)")
		return nil
	},
}

var dbWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for Postgres to be ready",
	Long: `Wait for Postgres to accept connections.

This is useful in scripts to ensure the database is fully started
before running other commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := getDockerManager()
		if err != nil {
			return err
		}
		defer mgr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Waiting for Postgres (timeout: %s)...\n", timeout)

		if err := mgr.WaitReady(cmd.Context(), timeout); err != nil {
			return fmt.Errorf("Postgres not ready: %w", err)
		}

		fmt.Fprintln(out, "Postgres is ready")
		return nil
	},
}

func init() {
	dbCmd.AddCommand(dbStartCmd)
	dbCmd.AddCommand(dbStopCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbLogsCmd)
	dbCmd.AddCommand(dbRemoveCmd)
	dbCmd.AddCommand(dbWaitCmd)

	dbLogsCmd.Flags().StringVar(&logsTail, "tail", "100", "Number of lines to show from the end")
	dbWaitCmd.Flags().Duration("timeout", 60*time.Second, "Timeout waiting for Postgres")

	rootCmd.AddCommand(dbCmd)
}

// getDockerManager creates the container manager from configuration.
func getDockerManager() (*pgdocker.DockerManager, error) {
	h, err := getHome()
	if err != nil {
		return nil, err
	}
	cfgMgr, err := getConfig(h)
	if err != nil {
		return nil, err
	}
	if err := h.EnsurePostgresDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return server.NewDBManager(cfgMgr.Get(), h, nil)
}
