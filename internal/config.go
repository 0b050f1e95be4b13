package internal

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Store   StoreConfig       `yaml:"store"`
	Session SessionConfig     `yaml:"session"`
	Auth    AuthConfig        `yaml:"auth"`
	Import  ImportConfig      `yaml:"import"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Import.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig holds the SQLite note store configuration.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SessionConfig holds the editing session configuration.
type SessionConfig struct {
	SnapshotPath string `yaml:"snapshot_path"`
	PageSize     int    `yaml:"page_size"`
}

// Validate validates the session configuration.
func (c *SessionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SnapshotPath, validation.Required),
		validation.Field(&c.PageSize, validation.Min(1), validation.Max(500)),
	)
}

// AuthConfig holds authentication configuration. The password itself is
// not configured here; it is set once through the API and stored hashed in
// the note store.
type AuthConfig struct {
	SessionTTL    string `yaml:"session_ttl"`
	PruneInterval string `yaml:"prune_interval"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.SessionTTL != "" {
		if _, err := time.ParseDuration(c.SessionTTL); err != nil {
			return fmt.Errorf("auth: invalid session_ttl: %w", err)
		}
	}
	if c.PruneInterval != "" {
		if _, err := time.ParseDuration(c.PruneInterval); err != nil {
			return fmt.Errorf("auth: invalid prune_interval: %w", err)
		}
	}
	return nil
}

// TTL returns the parsed session TTL, defaulting to 24h.
func (c *AuthConfig) TTL() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// PruneEvery returns the parsed prune interval, defaulting to 1h.
func (c *AuthConfig) PruneEvery() time.Duration {
	d, err := time.ParseDuration(c.PruneInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// ImportConfig holds the inbox importer configuration.
type ImportConfig struct {
	Enabled   bool   `yaml:"enabled"`
	InboxPath string `yaml:"inbox_path"`
}

// Validate validates the importer configuration.
func (c *ImportConfig) Validate() error {
	if c.Enabled && c.InboxPath == "" {
		return fmt.Errorf("import: enabled but inbox_path is empty")
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Path: "./noteforest.db",
		},
		Session: SessionConfig{
			SnapshotPath: "./session.json",
			PageSize:     50,
		},
		Auth: AuthConfig{
			SessionTTL:    "24h",
			PruneInterval: "1h",
		},
		Import: ImportConfig{
			Enabled:   false,
			InboxPath: "./inbox",
		},
	}
}

// LoadConfig merges a YAML file into cfg with environment variable
// expansion, then validates the result.
func LoadConfig(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
