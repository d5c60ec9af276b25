// Package config loads bootstrap configuration for the dictdb CLI from a
// YAML file with a dotenv/environment overlay.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the construction parameters for both storage engines.
type Config struct {
	// Database is the backing SQLite file.
	Database string `yaml:"database"`

	// Namespace names the keyed collection. Restricted to [A-Za-z0-9_]+.
	Namespace string `yaml:"namespace"`

	// ReadOnly opens the store without write access.
	ReadOnly bool `yaml:"read_only"`

	// Expires is the entry time-to-live applied by the one-time sweep at
	// startup. Zero disables the sweep.
	Expires time.Duration `yaml:"expires"`

	// KeyType is the key column affinity hint (TEXT, INTEGER or NUMERIC).
	KeyType string `yaml:"key_type"`

	// QueueSize bounds the async executor's command queue.
	QueueSize int `yaml:"queue_size"`
}

var namespaceRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:  "generic.db",
		Namespace: "generic_storage",
		Expires:   60 * time.Second,
		KeyType:   "TEXT",
		QueueSize: 2000,
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if non-empty), then DICTDB_* environment variables. Local .env
// files are loaded first so they can feed the environment overlay.
func Load(path string) (Config, error) {
	// load env files; absence is not an error
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants a Config must satisfy before use.
func (c Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("config: database path must not be empty")
	}
	if !namespaceRe.MatchString(c.Namespace) {
		return fmt.Errorf("config: invalid namespace %q: only alphanumerics and underscores are allowed", c.Namespace)
	}
	if c.Expires < 0 {
		return fmt.Errorf("config: expires must not be negative")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("config: queue_size must be positive")
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DICTDB_DATABASE"); v != "" {
		cfg.Database = v
	}
	if v := os.Getenv("DICTDB_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	if v := os.Getenv("DICTDB_READ_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ReadOnly = b
		}
	}
	if v := os.Getenv("DICTDB_EXPIRES"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Expires = d
		}
	}
	if v := os.Getenv("DICTDB_KEY_TYPE"); v != "" {
		cfg.KeyType = v
	}
	if v := os.Getenv("DICTDB_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueSize = n
		}
	}
}
