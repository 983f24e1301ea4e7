// Package config provides configuration management for taskvault.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/taskvault/taskvault/internal/util"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
	// VaultDir is the taskvault configuration directory under $HOME.
	VaultDir = ".taskvault"
)

// DatabaseConfig selects the embedded relational engine.
type DatabaseConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`
	// DSN is the file path for sqlite or the connection string for
	// postgres. Empty means <data_dir>/taskvault.db.
	DSN string `yaml:"dsn,omitempty"`
}

// MongoConfig describes the optional cloud document store. An empty URI
// means the connection manager never attempts to connect and every
// project must stay in local mode.
type MongoConfig struct {
	URI      string `yaml:"uri,omitempty"`
	Database string `yaml:"database"`
}

// EmbeddingConfig describes the embedding provider. An empty APIKey
// resolves the disabled provider: memory writes proceed without
// vectors and similarity search degrades to empty results.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key,omitempty"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// Config represents the taskvault configuration.
type Config struct {
	// DataDir holds the embedded database and migration lock files.
	DataDir string `yaml:"data_dir"`

	Database  DatabaseConfig  `yaml:"database"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, VaultDir),
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
		Mongo: MongoConfig{
			Database: "taskvault",
		},
		Embedding: EmbeddingConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1024,
		},
	}
}

// DatabaseDSN returns the configured relational DSN, falling back to
// the default database file under DataDir.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return filepath.Join(c.DataDir, "taskvault.db")
}

// CloudConfigured reports whether a document-store connection string is
// present. Without one the factory refuses to serve cloud mode.
func (c *Config) CloudConfigured() bool {
	return c.Mongo.URI != ""
}

// Load reads configuration. Load order (later overrides earlier):
//  1. Built-in defaults
//  2. User config (~/.taskvault/config.yaml) - optional
//  3. Environment variables (TASKVAULT_*)
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration from an explicit file path, or the
// default locations when path is empty.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, VaultDir, ConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Save writes the configuration to the user config file.
func (c *Config) Save() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("get home dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return util.AtomicWriteFile(filepath.Join(home, VaultDir, ConfigFileName), data, 0644)
}
