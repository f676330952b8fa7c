package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage prompta configuration",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long: `Write the default configuration to ~/.prompta/config.yaml, or to
the path given with --config.

Secrets use ${ENV_VAR} references; set PROMPTA_JWT_SECRET before
running prompta serve.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			h, err := getHome()
			if err != nil {
				return err
			}
			path = h.ConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		cfgMgr, err := getConfig(h)
		if err != nil {
			return err
		}
		return api.Output(cfgMgr.Get())
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
