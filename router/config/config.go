// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

// Package config loads the routing service configuration from a YAML file
// with environment variable expansion, and resolves provider credentials
// through a pluggable secrets backend.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider timeout bounds. Image edits regularly take tens of seconds, so
// anything below the floor would time out healthy providers and anything
// above the ceiling would hold user requests hostage.
const (
	MinProviderTimeout     = 30 * time.Second
	MaxProviderTimeout     = 60 * time.Second
	DefaultProviderTimeout = 45 * time.Second
)

// Config is the root service configuration.
type Config struct {
	Version   string                    `yaml:"version"`
	Server    ServerConfig              `yaml:"server"`
	Ledger    LedgerConfig              `yaml:"ledger"`
	Cache     CacheConfig               `yaml:"cache"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port          int      `yaml:"port"`
	JWTSecret     string   `yaml:"jwt_secret"`
	SecretBackend string   `yaml:"secret_backend,omitempty"` // "env" (default) or "aws"
	AWSRegion     string   `yaml:"aws_region,omitempty"`
	CORSOrigins   []string `yaml:"cors_origins,omitempty"`
}

// LedgerConfig selects the usage ledger backend.
type LedgerConfig struct {
	// Backend is "memory" or "postgres".
	Backend     string `yaml:"backend"`
	PostgresURL string `yaml:"postgres_url,omitempty"`
}

// CacheConfig selects the result cache backend.
type CacheConfig struct {
	// Backend is "memory", "redis", or "none".
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url,omitempty"`

	// TTLHours bounds entry staleness. Zero means the cache default.
	TTLHours int `yaml:"ttl_hours,omitempty"`
}

// TTL returns the configured time-to-live, or zero when unset.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// ProviderConfig configures one remote provider.
type ProviderConfig struct {
	Enabled bool `yaml:"enabled"`

	// CredentialRef names the secret holding the API key: an env var
	// prefix for the env backend, a secret ARN for AWS.
	CredentialRef string `yaml:"credential_ref,omitempty"`

	// BaseURL overrides the vendor endpoint, mainly for tests.
	BaseURL string `yaml:"base_url,omitempty"`

	// TimeoutMs bounds one edit call. Zero means the default.
	TimeoutMs int `yaml:"timeout_ms,omitempty"`
}

// Timeout returns the provider call timeout clamped to the allowed bounds.
func (p ProviderConfig) Timeout() time.Duration {
	d := time.Duration(p.TimeoutMs) * time.Millisecond
	if d == 0 {
		return DefaultProviderTimeout
	}
	if d < MinProviderTimeout {
		return MinProviderTimeout
	}
	if d > MaxProviderTimeout {
		return MaxProviderTimeout
	}
	return d
}

// Load reads and parses the configuration file, expanding ${VAR} and $VAR
// references from the environment before unmarshalling.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}
	return Parse(data)
}

// Parse parses configuration bytes. Split from Load for tests.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.SecretBackend == "" {
		cfg.Server.SecretBackend = "env"
	}
	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = "memory"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
}

func validate(cfg *Config) error {
	switch cfg.Ledger.Backend {
	case "memory":
	case "postgres":
		if cfg.Ledger.PostgresURL == "" {
			return fmt.Errorf("ledger backend postgres requires postgres_url")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	switch cfg.Cache.Backend {
	case "memory", "none":
	case "redis":
		if cfg.Cache.RedisURL == "" {
			return fmt.Errorf("cache backend redis requires redis_url")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	switch cfg.Server.SecretBackend {
	case "env", "local":
	case "aws":
		if cfg.Server.AWSRegion == "" {
			return fmt.Errorf("secret backend aws requires aws_region")
		}
	default:
		return fmt.Errorf("unknown secret backend %q", cfg.Server.SecretBackend)
	}

	return nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references in the content.
// Supports ${VAR_NAME:-default} for default values.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultVal
	})
}
