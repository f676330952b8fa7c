package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params tunes password hashing.
type Argon2Params struct {
	Memory      uint32 `mapstructure:"memory" yaml:"memory"`
	Iterations  uint32 `mapstructure:"iterations" yaml:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism" yaml:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length" yaml:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length" yaml:"key_length"`
}

// DefaultArgon2Params returns OWASP-recommended defaults for Argon2id.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024, // 64 MiB
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (p Argon2Params) withDefaults() Argon2Params {
	d := DefaultArgon2Params()
	if p.Memory == 0 {
		p.Memory = d.Memory
	}
	if p.Iterations == 0 {
		p.Iterations = d.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = d.Parallelism
	}
	if p.SaltLength == 0 {
		p.SaltLength = d.SaltLength
	}
	if p.KeyLength == 0 {
		p.KeyLength = d.KeyLength
	}
	return p
}

// Hasher hashes and verifies passwords with Argon2id. Hashes are encoded in
// the PHC string format so parameters can change without invalidating
// stored passwords.
type Hasher struct {
	params Argon2Params
}

// NewHasher creates a Hasher. Zero fields in params take the defaults.
func NewHasher(params Argon2Params) *Hasher {
	return &Hasher{params: params.withDefaults()}
}

// Hash returns the encoded Argon2id hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Iterations,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// Verify reports whether password matches encoded.
func (h *Hasher) Verify(password, encoded string) bool {
	params, salt, hash, err := decodeHash(encoded)
	if err != nil {
		return false
	}
	candidate := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.Memory,
		params.Parallelism,
		uint32(len(hash)),
	)
	return subtle.ConstantTimeCompare(hash, candidate) == 1
}

func decodeHash(encoded string) (params Argon2Params, salt, hash []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return params, nil, nil, errors.New("invalid argon2 hash format")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, errors.New("unsupported argon2 version")
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return params, nil, nil, fmt.Errorf("invalid argon2 parameters: %w", err)
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return params, nil, nil, err
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return params, nil, nil, err
	}
	if len(hash) == 0 {
		return params, nil, nil, errors.New("empty argon2 hash")
	}
	return params, salt, hash, nil
}
