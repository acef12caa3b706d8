// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"pixelflow/platform/router/provider"
)

// Identity is the caller resolved for one request. Anonymous callers get a
// device-scoped ID on the free tier; their usage migrates to the account ID
// on sign-up.
type Identity struct {
	UserID    string
	Tier      provider.Tier
	Anonymous bool
}

// AnonymousIDHeader carries the device-generated ID for signed-out callers.
const AnonymousIDHeader = "X-Device-ID"

// Authenticator resolves request identities from bearer tokens.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an authenticator around an HS256 signing secret.
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// Resolve extracts the caller identity from the request. A valid bearer
// token yields the account identity; otherwise the device ID header yields
// an anonymous free-tier identity. Requests carrying neither are rejected.
func (a *Authenticator) Resolve(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if header != "" {
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			return nil, fmt.Errorf("authorization header is not a bearer token")
		}
		return a.fromToken(tokenString)
	}

	if deviceID := r.Header.Get(AnonymousIDHeader); deviceID != "" {
		return &Identity{
			UserID:    "anon:" + deviceID,
			Tier:      provider.TierFree,
			Anonymous: true,
		}, nil
	}

	return nil, fmt.Errorf("no credentials: provide a bearer token or %s header", AnonymousIDHeader)
}

func (a *Authenticator) fromToken(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	userID := getClaimString(claims, "user_id")
	if userID == "" {
		return nil, fmt.Errorf("token missing user_id claim")
	}

	tier := provider.Tier(getClaimString(claims, "tier"))
	if tier == "" {
		tier = provider.TierFree // Fallback for tokens minted before tiers
	}
	if !provider.IsValidTier(string(tier)) {
		return nil, fmt.Errorf("token carries unknown tier %q", tier)
	}

	return &Identity{UserID: userID, Tier: tier}, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}
