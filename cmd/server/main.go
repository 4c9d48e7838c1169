// Copyright (c) 2026 CallVu Ltd.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Lead Bridge — scorecard submission to HubSpot contact sync.
//
// Entry point for the bridge service. It:
//  1. Loads configuration from config.yaml / environment
//  2. Optionally connects to Redis (shared rate limiting) and
//     Postgres (submission journal)
//  3. Builds the authenticated HubSpot client and the pipeline
//  4. Serves the submission endpoint and a health check
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/callvu/leadbridge/internal/config"
	"github.com/callvu/leadbridge/internal/httpapi"
	"github.com/callvu/leadbridge/internal/hubspot"
	"github.com/callvu/leadbridge/internal/journal"
	"github.com/callvu/leadbridge/internal/pipeline"
	"github.com/callvu/leadbridge/internal/ratelimit"
	"github.com/callvu/leadbridge/internal/reconcile"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting lead bridge")

	// Local development convenience; no-op when no .env exists.
	_ = godotenv.Load()

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"strategy", cfg.Strategy,
		"rate_window", cfg.RateLimitWindow,
		"rate_max", cfg.RateLimitMax,
		"redis", cfg.RedisURL != "",
		"journal", cfg.DatabaseURL != "",
	)

	if cfg.HubSpotToken == "" {
		// Keep serving so the frontend gets the stable config-error code
		// instead of connection failures.
		slog.Error("HUBSPOT_ACCESS_TOKEN is not set — all submissions will be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handlerOpts := []httpapi.Option{
		httpapi.WithGlobalThrottle(cfg.GlobalRPS, cfg.GlobalBurst),
		httpapi.WithCrashRedaction(cfg.Env == "production"),
	}

	// --- Rate limit store: Redis when configured, else process memory ---
	var store ratelimit.Store = ratelimit.NewMemoryStore()
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opt)

		rstore := ratelimit.NewRedisStore(rdb)
		if err := rstore.Ping(ctx); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to Redis")

		store = rstore
		handlerOpts = append(handlerOpts, httpapi.WithPinger("redis", rstore))
	}
	limiter := ratelimit.New(store, cfg.RateLimitWindow, cfg.RateLimitMax)

	// --- HubSpot client (bearer auth via oauth2 static token) ---
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.HubSpotToken})
	hsClient := hubspot.NewClient(oauth2.NewClient(ctx, src), cfg.HubSpotBaseURL)

	reconciler := reconcile.New(hsClient, reconcile.Strategy(cfg.Strategy))

	orch := &pipeline.Orchestrator{
		TokenPresent:  cfg.HubSpotToken != "",
		Limiter:       limiter,
		Reconciler:    reconciler,
		RemoteTimeout: cfg.RemoteTimeout,
	}

	// --- Submission journal (optional) ---
	var pgPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pgPool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}

		jstore, err := journal.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise submission journal", "error", err)
			os.Exit(1)
		}
		orch.Recorder = jstore
		handlerOpts = append(handlerOpts, httpapi.WithPinger("postgres", jstore))
	}

	// --- HTTP server ---
	handler := httpapi.NewHandler(orch, cfg.AllowedOrigins, handlerOpts...)
	ready, err := httpapi.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("lead bridge ready", "port", cfg.Port)

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()

	if rdb != nil {
		rdb.Close()
	}
	if pgPool != nil {
		pgPool.Close()
	}

	slog.Info("lead bridge stopped")
}
