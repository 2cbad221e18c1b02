// Package config loads the gateway configuration from a YAML file and
// DIAL_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

// EnvPrefix prefixes environment overrides. "__" separates nesting levels:
// DIAL_SERVER__PORT=9000 sets server.port.
const EnvPrefix = "DIAL_"

type Config struct {
	Server      ServerConfig       `koanf:"server"`
	Logging     LoggingConfig      `koanf:"logging"`
	Storage     StorageConfig      `koanf:"storage"`
	Telemetry   TelemetryConfig    `koanf:"telemetry"`
	Backends    []BackendConfig    `koanf:"backends"`
	Deployments []DeploymentConfig `koanf:"deployments"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	ShutdownGrace  time.Duration `koanf:"shutdown_grace"`
}

// LoggingConfig selects the slog handler. When File is set, logs are written
// to a rotated file instead of stdout.
type LoggingConfig struct {
	Level      string `koanf:"level"`  // debug, info, warn, error
	Format     string `koanf:"format"` // json, text
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite, none
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Tracing     bool   `koanf:"tracing"`
	ServiceName string `koanf:"service_name"`
}

// BackendConfig describes a model backend the deployments route to.
type BackendConfig struct {
	Name    string        `koanf:"name"`
	Type    string        `koanf:"type"` // textcompletion, echo
	BaseURL string        `koanf:"base_url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

// DeploymentConfig is one entry of the deployment table.
type DeploymentConfig struct {
	ID      string `koanf:"id"`
	Backend string `koanf:"backend"`

	// Model is the upstream model name. Defaults to ID.
	Model string `koanf:"model"`

	// Profile names a built-in formatter profile.
	Profile string `koanf:"profile"`

	// ToolProtocol names a tool emulation variant. Empty disables tools.
	ToolProtocol string `koanf:"tool_protocol"`

	// ModelLimit is the prompt token ceiling of the model. Zero means none.
	ModelLimit int `koanf:"model_limit"`

	// Tokenizer is the model name passed to the token counter; "remote"
	// asks the backend.
	Tokenizer string `koanf:"tokenizer"`

	// MaxTokens is used when a request does not set max_tokens.
	MaxTokens int `koanf:"max_tokens"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads DefaultPath. A missing file is not an error.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	setDefault(k, "server.port", 8080)
	setDefault(k, "server.request_timeout", "5m")
	setDefault(k, "server.shutdown_grace", "10s")
	setDefault(k, "logging.level", "info")
	setDefault(k, "logging.format", "json")
	setDefault(k, "storage.type", "memory")
	setDefault(k, "storage.sqlite.path", "usage.db")
	setDefault(k, "telemetry.service_name", "text-completion-gateway")

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Backends {
		cfg.Backends[i].APIKey = substituteEnvVars(cfg.Backends[i].APIKey)
		cfg.Backends[i].BaseURL = substituteEnvVars(cfg.Backends[i].BaseURL)
	}
	for i := range cfg.Deployments {
		d := &cfg.Deployments[i]
		if d.Model == "" {
			d.Model = d.ID
		}
		if d.Profile == "" {
			d.Profile = "default"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}

// Validate checks references between backends and deployments.
func (c *Config) Validate() error {
	backends := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("backend without name")
		}
		if backends[b.Name] {
			return fmt.Errorf("duplicate backend %q", b.Name)
		}
		backends[b.Name] = true
	}

	seen := make(map[string]bool, len(c.Deployments))
	for _, d := range c.Deployments {
		if d.ID == "" {
			return errors.New("deployment without id")
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate deployment %q", d.ID)
		}
		seen[d.ID] = true
		if !backends[d.Backend] {
			return fmt.Errorf("deployment %q: unknown backend %q", d.ID, d.Backend)
		}
		if d.ModelLimit < 0 {
			return fmt.Errorf("deployment %q: negative model_limit", d.ID)
		}
	}

	switch c.Storage.Type {
	case "memory", "sqlite", "none":
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
