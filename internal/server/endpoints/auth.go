package endpoints

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/prompta/internal/api"
	"github.com/jackzampolin/prompta/internal/auth"
)

// RegisterRequest is the request body for creating an account.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// RegisterEndpoint handles POST /api/v1/auth/register.
type RegisterEndpoint struct{}

func (e *RegisterEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/auth/register", e.handler
}

func (e *RegisterEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Register a user
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		request	body		RegisterRequest	true	"Account"
//	@Success	201		{object}	auth.User
//	@Failure	400		{object}	ErrorResponse
//	@Router		/api/v1/auth/register [post]
func (e *RegisterEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	svc, ok := authService(w, r)
	if !ok {
		return
	}
	u, err := svc.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (e *RegisterEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var req RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			var u auth.User
			if err := newClient().Post(cmd.Context(), "/api/v1/auth/register", req, &u); err != nil {
				return err
			}
			return api.Output(u)
		},
	}
	cmd.Flags().StringVar(&req.Username, "username", "", "Username")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password (min 8 characters)")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// LoginRequest is the request body for a password login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginEndpoint handles POST /api/v1/auth/login.
type LoginEndpoint struct{}

func (e *LoginEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/auth/login", e.handler
}

func (e *LoginEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Log in and receive a session token
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		request	body		LoginRequest	true	"Credentials"
//	@Success	200		{object}	auth.Session
//	@Failure	400		{object}	ErrorResponse
//	@Failure	401		{object}	ErrorResponse
//	@Router		/api/v1/auth/login [post]
func (e *LoginEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	svc, ok := authService(w, r)
	if !ok {
		return
	}
	sess, err := svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (e *LoginEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	var req LoginRequest
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange a username and password for a session token",
		Long: `Exchange a username and password for a session token.

The token is printed, not saved. Use "prompta login" to store it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sess auth.Session
			if err := newClient().Post(cmd.Context(), "/api/v1/auth/login", req, &sess); err != nil {
				return err
			}
			return api.Output(sess)
		},
	}
	cmd.Flags().StringVar(&req.Username, "username", "", "Username")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

// MeEndpoint handles GET /api/v1/auth/me.
type MeEndpoint struct{}

func (e *MeEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/auth/me", e.handler
}

func (e *MeEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Current user
//	@Tags		auth
//	@Produce	json
//	@Security	BearerAuth
//	@Security	APIKeyAuth
//	@Success	200	{object}	auth.User
//	@Failure	401	{object}	ErrorResponse
//	@Router		/api/v1/auth/me [get]
func (e *MeEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (e *MeEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the authenticated user",
		RunE: func(cmd *cobra.Command, args []string) error {
			var u auth.User
			if err := newClient().Get(cmd.Context(), "/api/v1/auth/me", &u); err != nil {
				return err
			}
			return api.Output(u)
		},
	}
}

// CreateAPIKeyRequest is the request body for creating an API key.
type CreateAPIKeyRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// CreateAPIKeyResponse carries the raw key. It is never shown again.
type CreateAPIKeyResponse struct {
	APIKey *auth.APIKey `json:"api_key"`
	Key    string       `json:"key"`
}

// CreateAPIKeyEndpoint handles POST /api/v1/auth/api-keys.
type CreateAPIKeyEndpoint struct{}

func (e *CreateAPIKeyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/v1/auth/api-keys", e.handler
}

func (e *CreateAPIKeyEndpoint) RequiresInit() bool { return true }

func (e *CreateAPIKeyEndpoint) CommandGroup() string { return "keys" }

// handler godoc
//
//	@Summary	Create an API key
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		CreateAPIKeyRequest	true	"Key name"
//	@Success	201		{object}	CreateAPIKeyResponse
//	@Failure	400		{object}	ErrorResponse
//	@Failure	401		{object}	ErrorResponse
//	@Router		/api/v1/auth/api-keys [post]
func (e *CreateAPIKeyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CreateAPIKeyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	svc, ok := authService(w, r)
	if !ok {
		return
	}
	key, raw, err := svc.CreateAPIKey(r.Context(), u.ID, req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateAPIKeyResponse{APIKey: key, Key: raw})
}

func (e *CreateAPIKeyEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp CreateAPIKeyResponse
			if err := newClient().Post(cmd.Context(), "/api/v1/auth/api-keys", CreateAPIKeyRequest{Name: args[0]}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ListAPIKeysResponse lists a user's keys without their secrets.
type ListAPIKeysResponse struct {
	APIKeys []auth.APIKey `json:"api_keys"`
	Total   int           `json:"total"`
}

// ListAPIKeysEndpoint handles GET /api/v1/auth/api-keys.
type ListAPIKeysEndpoint struct{}

func (e *ListAPIKeysEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/v1/auth/api-keys", e.handler
}

func (e *ListAPIKeysEndpoint) RequiresInit() bool { return true }

func (e *ListAPIKeysEndpoint) CommandGroup() string { return "keys" }

// handler godoc
//
//	@Summary	List API keys
//	@Tags		auth
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	ListAPIKeysResponse
//	@Failure	401	{object}	ErrorResponse
//	@Router		/api/v1/auth/api-keys [get]
func (e *ListAPIKeysEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	svc, ok := authService(w, r)
	if !ok {
		return
	}
	keys, err := svc.ListAPIKeys(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListAPIKeysResponse{APIKeys: keys, Total: len(keys)})
}

func (e *ListAPIKeysEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp ListAPIKeysResponse
			if err := newClient().Get(cmd.Context(), "/api/v1/auth/api-keys", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// DeleteAPIKeyEndpoint handles DELETE /api/v1/auth/api-keys/{id}.
type DeleteAPIKeyEndpoint struct{}

func (e *DeleteAPIKeyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/v1/auth/api-keys/{id}", e.handler
}

func (e *DeleteAPIKeyEndpoint) RequiresInit() bool { return true }

func (e *DeleteAPIKeyEndpoint) CommandGroup() string { return "keys" }

// handler godoc
//
//	@Summary	Delete an API key
//	@Tags		auth
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Key ID"
//	@Success	204
//	@Failure	401	{object}	ErrorResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/v1/auth/api-keys/{id} [delete]
func (e *DeleteAPIKeyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	svc, ok := authService(w, r)
	if !ok {
		return
	}
	if err := svc.DeleteAPIKey(r.Context(), u.ID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (e *DeleteAPIKeyEndpoint) Command(newClient func() *api.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().Delete(cmd.Context(), "/api/v1/auth/api-keys/"+args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted API key %s\n", args[0])
			return nil
		},
	}
}
