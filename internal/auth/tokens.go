package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is how long a login token stays valid.
const DefaultSessionTTL = 30 * time.Minute

// TokenIssuer signs and validates HS256 session tokens. The subject claim
// carries the user id.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer. An empty secret is rejected.
func NewTokenIssuer(secret, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// TTL returns the lifetime of issued tokens.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue returns a signed token for userID.
func (t *TokenIssuer) Issue(userID string) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Issuer:    t.issuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Validate checks the signature and expiry of tokenString and returns the
// user id it was issued for.
func (t *TokenIssuer) Validate(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid token claims")
	}
	return claims.Subject, nil
}
