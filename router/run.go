// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"pixelflow/platform/router/cache"
	"pixelflow/platform/router/config"
	"pixelflow/platform/router/ledger"
	"pixelflow/platform/router/provider"
	"pixelflow/platform/router/provider/clipdrop"
	"pixelflow/platform/router/provider/gemini"
	"pixelflow/platform/router/provider/local"
	"pixelflow/platform/router/provider/openai"
	"pixelflow/platform/router/provider/stability"
)

// Run is the exported entry point for the routing service.
//
// It loads configuration, constructs the provider registry, ledger, and
// cache, wires the HTTP routes, and starts the server. The function blocks
// until the server is shut down.
//
// Environment variables used:
//   - CONFIG_PATH: configuration file path (default: config.yaml)
//   - PORT: HTTP server port (overrides the config file)
//   - JWT_SECRET: token signing secret (overrides the config file)
func Run() {
	log.Println("Starting PixelFlow Router...")

	ctx := context.Background()

	configPath := getEnv("CONFIG_PATH", "config.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	secrets, err := config.NewSecretsManager(ctx, cfg.Server)
	if err != nil {
		log.Fatalf("Failed to initialize secrets backend: %v", err)
	}

	registry, engineOpts := buildProviders(ctx, cfg, secrets)

	tracker, err := buildTracker(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize usage ledger: %v", err)
	}

	resultCache, err := buildCache(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize result cache: %v", err)
	}
	if resultCache != nil {
		engineOpts = append(engineOpts, WithCache(resultCache))
	}

	engine := NewEngine(registry, tracker, engineOpts...)

	jwtSecret := getEnv("JWT_SECRET", cfg.Server.JWTSecret)
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is not configured")
	}
	server := NewServer(engine, NewAuthenticator([]byte(jwtSecret)))

	// Setup router
	r := mux.NewRouter()

	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	// Health check
	r.HandleFunc("/health", server.HealthHandler).Methods("GET")

	// Prometheus metrics
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	// Main edit endpoint
	r.HandleFunc("/api/v1/edit", server.EditHandler).Methods("POST")

	// Usage and account endpoints
	r.HandleFunc("/api/v1/usage", server.UsageHandler).Methods("GET")
	r.HandleFunc("/api/v1/usage/migrate", server.MigrateHandler).Methods("POST")

	// Provider management
	r.HandleFunc("/api/v1/providers/status", server.ProvidersStatusHandler).Methods("GET")

	// Start server
	port := getEnv("PORT", strconv.Itoa(cfg.Server.Port))
	handler := c.Handler(r)
	log.Printf("PixelFlow Router listening on port %s", port)
	log.Fatal(http.ListenAndServe(":"+port, handler))
}

// buildProviders constructs every enabled provider from configuration and
// registers it. The local enhancer is always available.
func buildProviders(ctx context.Context, cfg *config.Config, secrets config.SecretsManager) (*provider.Registry, []EngineOption) {
	registry := provider.NewRegistry()
	var opts []EngineOption

	if err := registry.Register(local.NewProvider(local.Config{})); err != nil {
		log.Fatalf("Failed to register local provider: %v", err)
	}

	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}

		apiKey, err := config.APIKey(ctx, secrets, pc.CredentialRef)
		if err != nil {
			log.Printf("Provider %s has no resolvable credentials, skipping: %v", name, err)
			continue
		}

		var p provider.Provider
		switch provider.ID(name) {
		case provider.ProviderClipdrop:
			p = clipdrop.NewProvider(clipdrop.Config{APIKey: apiKey, BaseURL: pc.BaseURL})
		case provider.ProviderStability:
			p = stability.NewProvider(stability.Config{APIKey: apiKey, BaseURL: pc.BaseURL})
		case provider.ProviderOpenAI:
			p = openai.NewProvider(openai.Config{APIKey: apiKey, BaseURL: pc.BaseURL})
		case provider.ProviderGemini:
			p = gemini.NewProvider(gemini.Config{APIKey: apiKey, BaseURL: pc.BaseURL})
		default:
			log.Printf("Unknown provider %q in configuration, skipping", name)
			continue
		}

		if err := registry.Register(p); err != nil {
			log.Fatalf("Failed to register provider %s: %v", name, err)
		}
		opts = append(opts, WithProviderTimeout(p.ID(), pc.Timeout()))
	}

	return registry, opts
}

func buildTracker(cfg *config.Config) (ledger.UsageTracker, error) {
	switch cfg.Ledger.Backend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Ledger.PostgresURL)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, err
		}
		return ledger.NewPostgresTracker(db), nil
	default:
		return ledger.NewMemoryTracker(), nil
	}
}

func buildCache(cfg *config.Config) (cache.ResultCache, error) {
	ttl := cfg.Cache.TTL()
	if ttl == 0 {
		ttl = cache.DefaultTTL
	}
	switch cfg.Cache.Backend {
	case "none":
		return nil, nil
	case "redis":
		return cache.DialRedisCache(context.Background(), cfg.Cache.RedisURL, cache.WithRedisTTL(ttl))
	default:
		return cache.NewMemoryCache(cache.WithTTL(ttl)), nil
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
