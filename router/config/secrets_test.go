// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSecretsManager(t *testing.T) {
	sm := NewLocalSecretsManager(nil)
	sm.SetSecret("pixelflow/providers/clipdrop", map[string]string{"api_key": "cd-key-123"})

	creds, err := sm.GetSecret(context.Background(), "pixelflow/providers/clipdrop")
	require.NoError(t, err)
	assert.Equal(t, "cd-key-123", creds["api_key"])

	_, err = sm.GetSecret(context.Background(), "pixelflow/providers/unknown")
	assert.Error(t, err)
}

func TestEnvSecretsManager(t *testing.T) {
	t.Setenv("CLIPDROP_API_KEY", "cd-key-456")
	t.Setenv("CLIPDROP_TOKEN", "cd-token")

	sm := NewEnvSecretsManager(nil)

	creds, err := sm.GetSecret(context.Background(), "CLIPDROP")
	require.NoError(t, err)
	assert.Equal(t, "cd-key-456", creds["api_key"])
	assert.Equal(t, "cd-token", creds["token"])

	_, err = sm.GetSecret(context.Background(), "NOSUCH_PREFIX")
	assert.Error(t, err)
}

func TestAPIKey(t *testing.T) {
	sm := NewLocalSecretsManager(nil)
	sm.SetSecret("with-api-key", map[string]string{"api_key": "k1"})
	sm.SetSecret("plain-value", map[string]string{"value": "k2"})
	sm.SetSecret("empty-secret-ref", map[string]string{"username": "nobody"})

	key, err := APIKey(context.Background(), sm, "with-api-key")
	require.NoError(t, err)
	assert.Equal(t, "k1", key)

	key, err = APIKey(context.Background(), sm, "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "k2", key)

	_, err = APIKey(context.Background(), sm, "empty-secret-ref")
	assert.Error(t, err)

	_, err = APIKey(context.Background(), sm, "missing")
	assert.Error(t, err)
}

func TestNewSecretsManagerBackends(t *testing.T) {
	sm, err := NewSecretsManager(context.Background(), ServerConfig{SecretBackend: "local"})
	require.NoError(t, err)
	assert.IsType(t, &LocalSecretsManager{}, sm)

	sm, err = NewSecretsManager(context.Background(), ServerConfig{SecretBackend: "env"})
	require.NoError(t, err)
	assert.IsType(t, &EnvSecretsManager{}, sm)

	sm, err = NewSecretsManager(context.Background(), ServerConfig{})
	require.NoError(t, err)
	assert.IsType(t, &EnvSecretsManager{}, sm)
}

func TestMaskRef(t *testing.T) {
	assert.Equal(t, "***", maskRef("short"))
	assert.Equal(t, "...clipdrop", maskRef("pixelflow/providers/clipdrop"))
}
