package home

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultDirName is the default name for the prompta home directory.
	DefaultDirName = ".prompta"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DatabaseFileName is the default SQLite database file.
	DatabaseFileName = "prompta.db"

	// PostgresDirName holds data for the managed Postgres container.
	PostgresDirName = "postgres"

	// CredentialsFileName stores the CLI's saved login.
	CredentialsFileName = "credentials.yaml"
)

// Dir represents the prompta home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.prompta).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// DatabasePath returns the path to the SQLite database.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.path, DatabaseFileName)
}

// PostgresPath returns the data directory mounted into the Postgres container.
func (d *Dir) PostgresPath() string {
	return filepath.Join(d.path, PostgresDirName)
}

// CredentialsPath returns the path to the saved CLI credentials.
func (d *Dir) CredentialsPath() string {
	return filepath.Join(d.path, CredentialsFileName)
}

// EnsureExists creates the home directory if it doesn't exist.
func (d *Dir) EnsureExists() error {
	if err := os.MkdirAll(d.path, 0o755); err != nil {
		return fmt.Errorf("failed to create home directory: %w", err)
	}
	return nil
}

// EnsurePostgresDir creates the Postgres data directory.
func (d *Dir) EnsurePostgresDir() error {
	return os.MkdirAll(d.PostgresPath(), 0o700)
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// Credentials is what `prompta login` remembers between invocations.
type Credentials struct {
	Server   string `yaml:"server,omitempty"`
	Username string `yaml:"username,omitempty"`
	Token    string `yaml:"token,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// LoadCredentials reads saved credentials. A missing file yields empty
// credentials and no error.
func (d *Dir) LoadCredentials() (*Credentials, error) {
	data, err := os.ReadFile(d.CredentialsPath())
	if errors.Is(err, os.ErrNotExist) {
		return &Credentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	var c Credentials
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return &c, nil
}

// SaveCredentials writes credentials readable only by the current user.
func (d *Dir) SaveCredentials(c *Credentials) error {
	if err := d.EnsureExists(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	return os.WriteFile(d.CredentialsPath(), data, 0o600)
}

// ClearCredentials removes saved credentials.
func (d *Dir) ClearCredentials() error {
	err := os.Remove(d.CredentialsPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
