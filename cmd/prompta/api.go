package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/server/endpoints"
)

// newAPICommand builds `prompta api` from the endpoint registry and adds
// the client-side prompt commands that span several routes.
func newAPICommand() *cobra.Command {
	registry := api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{}) {
		registry.Register(ep)
	}
	apiCmd := registry.BuildCommands(newClient)

	for _, cmd := range apiCmd.Commands() {
		if cmd.Name() == "prompts" {
			cmd.AddCommand(newShowCommand(newClient))
			cmd.AddCommand(newImportCommand(newClient))
		}
	}
	return apiCmd
}

func init() {
	rootCmd.AddCommand(newAPICommand())
}
