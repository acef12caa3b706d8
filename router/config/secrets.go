// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManager resolves a credential reference to key-value credentials.
// Provider API keys are stored under the "api_key" key.
type SecretsManager interface {
	GetSecret(ctx context.Context, ref string) (map[string]string, error)
}

// NewSecretsManager builds the backend named in the server config.
func NewSecretsManager(ctx context.Context, cfg ServerConfig) (SecretsManager, error) {
	switch cfg.SecretBackend {
	case "aws":
		return NewAWSSecretsManager(ctx, AWSSecretsManagerOptions{Region: cfg.AWSRegion})
	case "local":
		return NewLocalSecretsManager(nil), nil
	default:
		return NewEnvSecretsManager(nil), nil
	}
}

// APIKey resolves the provider API key behind a credential reference.
func APIKey(ctx context.Context, sm SecretsManager, ref string) (string, error) {
	creds, err := sm.GetSecret(ctx, ref)
	if err != nil {
		return "", err
	}
	if key := creds["api_key"]; key != "" {
		return key, nil
	}
	// Single-value secrets land under "value".
	if key := creds["value"]; key != "" {
		return key, nil
	}
	return "", fmt.Errorf("secret %s holds no api_key", maskRef(ref))
}

// AWSSecretsManager implements SecretsManager using AWS Secrets Manager
type AWSSecretsManager struct {
	client *secretsmanager.Client
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions holds options for creating an AWSSecretsManager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSSecretsManager creates a new AWS Secrets Manager client
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS_MANAGER] ", log.LstdFlags)
	}

	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute // Cache secrets for 5 minutes by default
	}

	return &AWSSecretsManager{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// GetSecret retrieves a secret from AWS Secrets Manager.
// The secret value is expected to be a JSON object with string values;
// plain-string secrets are returned under the "value" key.
func (s *AWSSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[ref]
	s.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	s.logger.Printf("Fetching secret %s from AWS Secrets Manager", maskRef(ref))

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskRef(ref), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskRef(ref))
	}

	var credentials map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &credentials); err != nil {
		credentials = map[string]string{"value": *result.SecretString}
	}

	s.mu.Lock()
	s.cache[ref] = &secretCacheEntry{
		value:     credentials,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return credentials, nil
}

// InvalidateSecret removes a secret from the cache
func (s *AWSSecretsManager) InvalidateSecret(ref string) {
	s.mu.Lock()
	delete(s.cache, ref)
	s.mu.Unlock()
	s.logger.Printf("Invalidated cache for secret %s", maskRef(ref))
}

// maskRef masks the secret reference for logging (shows only last 8 characters)
func maskRef(ref string) string {
	if len(ref) <= 12 {
		return "***"
	}
	return "..." + ref[len(ref)-8:]
}

// LocalSecretsManager implements SecretsManager using in-process storage.
// Useful for development and tests.
type LocalSecretsManager struct {
	secrets map[string]map[string]string
	mu      sync.RWMutex
	logger  *log.Logger
}

// NewLocalSecretsManager creates a local secrets manager for development
func NewLocalSecretsManager(logger *log.Logger) *LocalSecretsManager {
	if logger == nil {
		logger = log.New(os.Stdout, "[LOCAL_SECRETS] ", log.LstdFlags)
	}
	return &LocalSecretsManager{
		secrets: make(map[string]map[string]string),
		logger:  logger,
	}
}

// GetSecret retrieves a secret from local storage
func (s *LocalSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if secret, exists := s.secrets[ref]; exists {
		return secret, nil
	}
	return nil, fmt.Errorf("secret %s not found in local secrets manager", ref)
}

// SetSecret stores a secret locally (for testing/development)
func (s *LocalSecretsManager) SetSecret(ref string, value map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[ref] = value
	s.logger.Printf("Set local secret %s", maskRef(ref))
}

// EnvSecretsManager implements SecretsManager using environment variables.
// The reference is used as an environment variable name prefix.
type EnvSecretsManager struct {
	logger *log.Logger
}

// NewEnvSecretsManager creates a secrets manager that reads from environment variables
func NewEnvSecretsManager(logger *log.Logger) *EnvSecretsManager {
	if logger == nil {
		logger = log.New(os.Stdout, "[ENV_SECRETS] ", log.LstdFlags)
	}
	return &EnvSecretsManager{logger: logger}
}

// GetSecret retrieves credentials from environment variables.
// The ref is an env var prefix (e.g. "CLIPDROP" reads CLIPDROP_API_KEY).
func (s *EnvSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	fields := map[string]string{
		"API_KEY":    "api_key",
		"API_SECRET": "api_secret",
		"USERNAME":   "username",
		"PASSWORD":   "password",
		"TOKEN":      "token",
	}

	credentials := make(map[string]string)
	for field, key := range fields {
		if value := os.Getenv(ref + "_" + field); value != "" {
			credentials[key] = value
		}
	}

	if len(credentials) == 0 {
		return nil, fmt.Errorf("no credentials found for prefix %s", ref)
	}
	return credentials, nil
}
