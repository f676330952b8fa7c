package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/auth"
	"github.com/jackzampolin/prompta/internal/home"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save credentials for API commands",
	Long: `Log in and save the credentials in ~/.prompta/credentials.yaml.

With --username the password is exchanged for a session token. The
password comes from --password, PROMPTA_PASSWORD or the first line of
stdin. With the global --api-key flag the key is checked and saved
instead.

Session tokens only see your own prompts; API keys also see public ones.

Examples:
  prompta login --username ada
  prompta login --api-key prompta_...
  prompta --server https://prompts.example.com login --username ada`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		s := resolveClientSettings(nil)
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if apiKey != "" {
			var me auth.User
			if err := api.NewClient(s.Server, api.WithAPIKey(apiKey)).Get(ctx, "/api/v1/auth/me", &me); err != nil {
				return fmt.Errorf("API key rejected: %w", err)
			}
			if err := h.SaveCredentials(&home.Credentials{Server: s.Server, Username: me.Username, APIKey: apiKey}); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved API key for %s at %s\n", me.Username, s.Server)
			return nil
		}

		if loginUsername == "" {
			return fmt.Errorf("--username or --api-key is required")
		}
		password := firstNonEmpty(loginPassword, os.Getenv("PROMPTA_PASSWORD"))
		if password == "" {
			if password, err = readLine(cmd.InOrStdin()); err != nil {
				return err
			}
		}

		var sess auth.Session
		body := map[string]string{"username": loginUsername, "password": password}
		if err := api.NewClient(s.Server).Post(ctx, "/api/v1/auth/login", body, &sess); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		if err := h.SaveCredentials(&home.Credentials{Server: s.Server, Username: loginUsername, Token: sess.AccessToken}); err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged in as %s at %s\n", loginUsername, s.Server)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget saved credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		if err := h.ClearCredentials(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Password (env: PROMPTA_PASSWORD)")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

// readLine reads one line, without its newline.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", fmt.Errorf("password is required")
	}
	return line, nil
}
