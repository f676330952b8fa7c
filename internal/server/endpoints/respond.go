package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/jackzampolin/prompta/internal/auth"
	"github.com/jackzampolin/prompta/internal/prompts"
	"github.com/jackzampolin/prompta/internal/svcctx"
)

// Stable error codes returned in ErrorResponse.Code.
const (
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeNotFound       = "not_found"
	ErrCodeConflict       = "conflict"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeInternal       = "internal_error"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, prompts.ErrVersionConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, prompts.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, prompts.ErrConflict):
		writeError(w, http.StatusBadRequest, ErrCodeConflict, err.Error())
	case errors.Is(err, prompts.ErrValidation):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, auth.ErrInactiveUser):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Inactive user")
	case errors.Is(err, auth.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Could not validate credentials")
	default:
		logger := svcctx.LoggerFrom(r.Context())
		logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

// decodeBody reads a JSON body into v and validates its struct tags.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, validationMessage(err))
		return false
	}
	return true
}

// decodeOptionalBody is decodeBody for routes whose body may be omitted.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return true
	}
	return decodeBody(w, r, v)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		case "min", "max":
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// requireUser returns the authenticated user, or writes the auth error.
func requireUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	u, err := auth.RequireUser(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	return u, true
}

// promptService returns the prompt service, or writes 503.
func promptService(w http.ResponseWriter, r *http.Request) (*prompts.Service, bool) {
	svc := svcctx.PromptsFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "prompt service not initialized")
		return nil, false
	}
	return svc, true
}

// authService returns the auth service, or writes 503.
func authService(w http.ResponseWriter, r *http.Request) (*auth.Service, bool) {
	svc := svcctx.AuthFrom(r.Context())
	if svc == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "auth service not initialized")
		return nil, false
	}
	return svc, true
}

// intParam parses a numeric path parameter.
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := chi.URLParam(r, name)
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, fmt.Sprintf("%s must be an integer", name))
		return 0, false
	}
	return n, true
}

// paginationQuery reads page and page_size. Missing values fall back to
// the service defaults.
func paginationQuery(w http.ResponseWriter, r *http.Request) (prompts.Pagination, bool) {
	var p prompts.Pagination
	q := r.URL.Query()
	for name, dst := range map[string]*int{"page": &p.Page, "page_size": &p.PageSize} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, fmt.Sprintf("%s must be a positive integer", name))
			return p, false
		}
		*dst = n
	}
	return p, true
}

// boolQuery reads a boolean query parameter with a default.
func boolQuery(r *http.Request, name string, def bool) bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}
