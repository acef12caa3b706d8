// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelflow/platform/router/provider"
)

var testSecret = []byte("test-signing-secret")

func signedToken(t *testing.T, claims jwt.MapClaims, secret []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestResolve_ValidToken(t *testing.T) {
	auth := NewAuthenticator(testSecret)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{
		"user_id": "acct-42",
		"tier":    "pro",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}, testSecret))

	identity, err := auth.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "acct-42", identity.UserID)
	assert.Equal(t, provider.TierPro, identity.Tier)
	assert.False(t, identity.Anonymous)
}

func TestResolve_MissingTierDefaultsToFree(t *testing.T) {
	auth := NewAuthenticator(testSecret)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{
		"user_id": "acct-42",
	}, testSecret))

	identity, err := auth.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, provider.TierFree, identity.Tier)
}

func TestResolve_Rejections(t *testing.T) {
	auth := NewAuthenticator(testSecret)

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"wrong secret", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{
				"user_id": "acct-42",
			}, []byte("other-secret")))
		}},
		{"expired token", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{
				"user_id": "acct-42",
				"exp":     time.Now().Add(-time.Hour).Unix(),
			}, testSecret))
		}},
		{"missing user_id", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{
				"tier": "pro",
			}, testSecret))
		}},
		{"unknown tier", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{
				"user_id": "acct-42",
				"tier":    "platinum",
			}, testSecret))
		}},
		{"not a bearer token", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		}},
		{"no credentials at all", func(r *http.Request) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(r)
			_, err := auth.Resolve(r)
			assert.Error(t, err)
		})
	}
}

func TestResolve_AnonymousDevice(t *testing.T) {
	auth := NewAuthenticator(testSecret)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(AnonymousIDHeader, "device-123")

	identity, err := auth.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "anon:device-123", identity.UserID)
	assert.Equal(t, provider.TierFree, identity.Tier)
	assert.True(t, identity.Anonymous)
}

func TestResolve_TokenBeatsDeviceHeader(t *testing.T) {
	auth := NewAuthenticator(testSecret)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(AnonymousIDHeader, "device-123")
	r.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{
		"user_id": "acct-42",
		"tier":    "free",
	}, testSecret))

	identity, err := auth.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "acct-42", identity.UserID)
	assert.False(t, identity.Anonymous)
}
