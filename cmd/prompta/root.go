package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/config"
	"github.com/jackzampolin/prompta/internal/home"
	"github.com/jackzampolin/prompta/version"
)

const defaultServerURL = "http://localhost:8000"

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	serverURL    string
	apiKey       string
	token        string
)

var rootCmd = &cobra.Command{
	Use:   "prompta",
	Short: "Versioned prompt storage",
	Long: `Prompta stores prompts with a full version history.

Prompts are grouped into projects and can be private or public. Every
content change appends a version; old versions can be diffed or restored.

The binary runs the server (prompta serve) and talks to it (prompta api).`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.prompta/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "prompta home directory (default: ~/.prompta)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or text",
	)
	rootCmd.PersistentFlags().StringVar(
		&serverURL, "server", "", "server URL (env: PROMPTA_API_URL or PROMPTA_SERVER; default: "+defaultServerURL+")",
	)
	rootCmd.PersistentFlags().StringVar(
		&apiKey, "api-key", "", "API key (env: PROMPTA_API_KEY)",
	)
	rootCmd.PersistentFlags().StringVar(
		&token, "token", "", "session token (env: PROMPTA_TOKEN)",
	)

	// Load .env and set output format before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		api.SetOutputFormat(outputFormat)
		return nil
	}

	rootCmd.AddCommand(versionCmd)
}

// getHome returns the home directory manager.
func getHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	return h, nil
}

// getConfig loads configuration from --config or the home directory.
func getConfig(h *home.Dir) (*config.Manager, error) {
	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := mgr.Get().Validate(); err != nil {
		return nil, err
	}
	return mgr, nil
}

// clientSettings is the resolved server and credential for API calls.
type clientSettings struct {
	Server string
	Token  string
	APIKey string
}

// resolveClientSettings picks the server and credential in order of
// precedence: flags, environment, then saved credentials. Saved
// credentials only apply to the server they were saved for.
func resolveClientSettings(saved *home.Credentials) clientSettings {
	if saved == nil {
		saved = &home.Credentials{}
	}
	s := clientSettings{
		Server: firstNonEmpty(serverURL, os.Getenv("PROMPTA_API_URL"), os.Getenv("PROMPTA_SERVER"), saved.Server, defaultServerURL),
		Token:  firstNonEmpty(token, os.Getenv("PROMPTA_TOKEN")),
		APIKey: firstNonEmpty(apiKey, os.Getenv("PROMPTA_API_KEY")),
	}
	if s.Token == "" && s.APIKey == "" && (saved.Server == "" || saved.Server == s.Server) {
		s.Token = saved.Token
		s.APIKey = saved.APIKey
	}
	return s
}

// newClient creates an API client at runtime (after flag parsing).
func newClient() *api.Client {
	var saved *home.Credentials
	if h, err := home.New(homeDir); err == nil {
		saved, _ = h.LoadCredentials()
	}
	s := resolveClientSettings(saved)

	var opts []api.ClientOption
	switch {
	case s.Token != "":
		opts = append(opts, api.WithToken(s.Token))
	case s.APIKey != "":
		opts = append(opts, api.WithAPIKey(s.APIKey))
	}
	return api.NewClient(s.Server, opts...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
