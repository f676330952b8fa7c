// Package auth handles users, session tokens and API keys, and resolves
// the identity behind each request.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/jackzampolin/prompta/internal/prompts"
	"github.com/jackzampolin/prompta/internal/store"
)

var (
	// ErrInvalidCredentials covers a bad password, token or API key.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInactiveUser is returned for valid credentials of a deactivated user.
	ErrInactiveUser = errors.New("inactive user")
)

// APIKeyPrefix starts every raw API key.
const APIKeyPrefix = "prompta_"

// DefaultAPIKeyTTL is how long a new API key stays valid.
const DefaultAPIKeyTTL = 365 * 24 * time.Hour

const minPasswordLength = 8

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// User is an account that owns projects and prompts.
type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// APIKey is a stored API key. The raw key is only shown once, at creation.
type APIKey struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Name       string     `db:"name" json:"name"`
	KeyHash    string     `db:"key_hash" json:"-"`
	IsActive   bool       `db:"is_active" json:"is_active"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at"`
	ExpiresAt  *time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// Session is the result of a successful login.
type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	User        *User  `json:"user"`
}

// RegisterInput describes a new user.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// Config configures a Service.
type Config struct {
	JWTSecret  string
	Issuer     string
	SessionTTL time.Duration
	APIKeyTTL  time.Duration
	Argon2     Argon2Params
}

// Service manages users and credentials.
type Service struct {
	db        *store.DB
	hasher    *Hasher
	tokens    *TokenIssuer
	apiKeyTTL time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a Service backed by db.
func NewService(db *store.DB, cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.Issuer == "" {
		cfg.Issuer = "prompta"
	}
	tokens, err := NewTokenIssuer(cfg.JWTSecret, cfg.Issuer, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	if cfg.APIKeyTTL <= 0 {
		cfg.APIKeyTTL = DefaultAPIKeyTTL
	}
	return &Service{
		db:        db,
		hasher:    NewHasher(cfg.Argon2),
		tokens:    tokens,
		apiKeyTTL: cfg.APIKeyTTL,
		logger:    logger.With().Str("component", "auth").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Register creates a user. Username and email must both be unused.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	switch {
	case username == "":
		return nil, fmt.Errorf("%w: username is required", prompts.ErrValidation)
	case !emailRegex.MatchString(email):
		return nil, fmt.Errorf("%w: invalid email address", prompts.ErrValidation)
	case len(in.Password) < minPasswordLength:
		return nil, fmt.Errorf("%w: password must be at least %d characters", prompts.ErrValidation, minPasswordLength)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	now := s.now()
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var n int
		if err := sqlx.GetContext(ctx, tx, &n, tx.Rebind(
			`SELECT COUNT(*) FROM users WHERE username = ? OR email = ?`), username, email); err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: username or email already registered", prompts.ErrConflict)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO users (id, username, email, password_hash, is_active, created_at, updated_at)
			VALUES (:id, :username, :email, :password_hash, :is_active, :created_at, :updated_at)`, u); err != nil {
			if store.IsUniqueViolation(err) {
				return fmt.Errorf("%w: username or email already registered", prompts.ErrConflict)
			}
			return fmt.Errorf("failed to insert user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID).Str("username", u.Username).Msg("user registered")
	return u, nil
}

// Login checks a username and password and issues a session token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.userWhere(ctx, `username = ?`, strings.TrimSpace(username))
	if errors.Is(err, prompts.ErrNotFound) || (err == nil && !s.hasher.Verify(password, u.PasswordHash)) {
		authAttempts.WithLabelValues("login", "false").Inc()
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		authAttempts.WithLabelValues("login", "false").Inc()
		return nil, ErrInactiveUser
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	authAttempts.WithLabelValues("login", "true").Inc()
	return &Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(s.tokens.TTL().Seconds()),
		User:        u,
	}, nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.userWhere(ctx, `id = ?`, id)
}

// CreateAPIKey creates a key for userID and returns it with the raw key.
// The raw key cannot be recovered later.
func (s *Service) CreateAPIKey(ctx context.Context, userID, name string) (*APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", fmt.Errorf("%w: key name is required", prompts.ErrValidation)
	}
	raw, err := generateAPIKey()
	if err != nil {
		return nil, "", err
	}
	now := s.now()
	expires := now.Add(s.apiKeyTTL)
	k := &APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   HashAPIKey(raw),
		IsActive:  true,
		ExpiresAt: &expires,
		CreatedAt: now,
	}
	if _, err := s.db.NamedExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, name, key_hash, is_active, expires_at, created_at)
		VALUES (:id, :user_id, :name, :key_hash, :is_active, :expires_at, :created_at)`, k); err != nil {
		return nil, "", fmt.Errorf("failed to insert api key: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("key_id", k.ID).Msg("api key created")
	return k, raw, nil
}

// ListAPIKeys returns the user's keys, newest first.
func (s *Service) ListAPIKeys(ctx context.Context, userID string) ([]APIKey, error) {
	keys := []APIKey{}
	if err := sqlx.SelectContext(ctx, s.db, &keys, s.db.Rebind(`
		SELECT id, user_id, name, key_hash, is_active, last_used_at, expires_at, created_at
		FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`), userID); err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	return keys, nil
}

// DeleteAPIKey removes one of the user's keys.
func (s *Service) DeleteAPIKey(ctx context.Context, userID, keyID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM api_keys WHERE id = ? AND user_id = ?`), keyID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("api key %w", prompts.ErrNotFound)
	}
	return nil
}

// AuthenticateToken resolves a session token to its user.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (*User, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	u, err := s.GetUser(ctx, userID)
	if errors.Is(err, prompts.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}
	return u, nil
}

// AuthenticateAPIKey resolves a raw API key to its user and records the use.
func (s *Service) AuthenticateAPIKey(ctx context.Context, raw string) (*User, error) {
	if !strings.HasPrefix(raw, APIKeyPrefix) {
		return nil, ErrInvalidCredentials
	}
	var k APIKey
	err := sqlx.GetContext(ctx, s.db, &k, s.db.Rebind(`
		SELECT id, user_id, name, key_hash, is_active, last_used_at, expires_at, created_at
		FROM api_keys WHERE key_hash = ? AND is_active = ?`), HashAPIKey(raw), true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	now := s.now()
	if k.ExpiresAt != nil && now.After(*k.ExpiresAt) {
		return nil, ErrInvalidCredentials
	}

	u, err := s.GetUser(ctx, k.UserID)
	if errors.Is(err, prompts.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`), now, k.ID); err != nil {
		s.logger.Warn().Err(err).Str("key_id", k.ID).Msg("failed to record api key use")
	}
	return u, nil
}

// HashAPIKey returns the hex sha256 digest stored for a raw key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

func (s *Service) userWhere(ctx context.Context, where string, args ...any) (*User, error) {
	var u User
	err := sqlx.GetContext(ctx, s.db, &u, s.db.Rebind(`
		SELECT id, username, email, password_hash, is_active, created_at, updated_at
		FROM users WHERE `+where), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %w", prompts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
