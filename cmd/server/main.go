// Copyright (c) 2026 John Earle
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

// Trajectory — Relationship Analysis Service
//
// Entry point for the relationship trajectory service. It:
//  1. Loads configuration from config.yaml
//  2. Connects to PostgreSQL (commitment ledger) and Redis
//  3. Fetches message history per configured user from the archive API
//  4. Rebuilds each user's relationship map on a refresh interval
//  5. Publishes finished maps to Redis and serves them over HTTP
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/bcem/trajectory/internal/config"
	"github.com/bcem/trajectory/internal/engine"
	"github.com/bcem/trajectory/internal/ledger"
	"github.com/bcem/trajectory/internal/models"
	"github.com/bcem/trajectory/internal/oracle"
	"github.com/bcem/trajectory/internal/seen"
	"github.com/bcem/trajectory/internal/snapshot"
	"github.com/bcem/trajectory/internal/source"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting trajectory service")

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"users", len(cfg.Users),
		"refresh_interval", cfg.RefreshInterval,
		"horizon_days", cfg.PredictionHorizonDays,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)

	publisher := snapshot.NewPublisher(rdb, cfg.SnapshotQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Commitment Ledger (Postgres, optional) ---
	var pgPool *pgxpool.Pool
	var store *ledger.Store
	if cfg.DatabaseURL != "" {
		pgPool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}

		store, err = ledger.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise commitment ledger", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("DATABASE_URL not set, commitment state will not persist across runs")
	}

	// --- Message Source (OAuth2 client credentials) ---
	httpClient := http.DefaultClient
	if cfg.Source.TokenURL != "" {
		creds := &clientcredentials.Config{
			ClientID:     cfg.Source.ClientID,
			ClientSecret: cfg.Source.ClientSecret,
			TokenURL:     cfg.Source.TokenURL,
		}
		httpClient = creds.Client(ctx)
	}
	src := source.NewClient(httpClient, cfg.Source.BaseURL)

	// --- Analysis Engine ---
	engCfg := engine.Config{
		MinMessages:        cfg.MinMessages,
		ExcludedDomains:    cfg.ExcludedDomains,
		ExcludedPatterns:   cfg.ExcludedPatterns,
		CommitmentLookback: cfg.CommitmentLookback,
		HorizonDays:        cfg.PredictionHorizonDays,
		BatchSize:          cfg.BatchSize,
		BatchPause:         cfg.BatchPause,
	}
	if cfg.ExtractCommitments && cfg.OracleAPIKey != "" {
		aiClient := openai.NewClient(option.WithAPIKey(cfg.OracleAPIKey))
		engCfg.Oracle = oracle.NewClient(&aiClient, cfg.OracleModel)
		// The seen-filter is only safe with a ledger to merge prior
		// detections back from; ledger-less runs re-classify every time.
		if store != nil {
			engCfg.Seen = seen.NewFilter(rdb)
		}
	} else {
		slog.Warn("commitment extraction disabled",
			"extract_commitments", cfg.ExtractCommitments,
			"api_key_set", cfg.OracleAPIKey != "",
		)
	}
	if store != nil {
		engCfg.Ledger = store
	}
	eng := engine.New(engCfg)

	refresh := func(ctx context.Context, userEmail string) (models.RelationshipMap, error) {
		since := time.Now().UTC().Add(-cfg.MessageLookback)
		msgs, err := src.FetchMessages(ctx, userEmail, since)
		if err != nil {
			return models.RelationshipMap{}, fmt.Errorf("fetch messages for %s: %w", userEmail, err)
		}

		m := eng.BuildMap(ctx, userEmail, msgs)
		if err := publisher.PublishMap(ctx, m); err != nil {
			return m, fmt.Errorf("publish map for %s: %w", userEmail, err)
		}
		return m, nil
	}

	refreshAll := func(ctx context.Context) {
		for _, user := range cfg.Users {
			start := time.Now()
			m, err := refresh(ctx, user)
			if err != nil {
				slog.Error("refresh failed", "user", user, "error", err)
				continue
			}
			slog.Info("refresh complete",
				"user", user,
				"contacts", m.Stats.Contacts,
				"open_commitments", m.Stats.OpenCommitments,
				"duration", time.Since(start).Round(time.Millisecond),
			)
		}
	}

	// --- Periodic Refresh Loop ---
	go func() {
		refreshAll(ctx)

		ticker := time.NewTicker(cfg.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				refreshAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	// --- HTTP API ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := publisher.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
		if pgPool != nil {
			if err := pgPool.Ping(r.Context()); err != nil {
				http.Error(w, "postgres unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	mux.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		user := r.URL.Query().Get("user")
		if user == "" {
			http.Error(w, "user query parameter required", http.StatusBadRequest)
			return
		}

		m, err := refresh(r.Context(), user)
		if err != nil {
			slog.Error("on-demand refresh failed", "user", user, "error", err)
			http.Error(w, "refresh failed", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m); err != nil {
			slog.Error("encode relationship map", "user", user, "error", err)
		}
	})

	mux.HandleFunc("/map", func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		if user == "" {
			http.Error(w, "user query parameter required", http.StatusBadRequest)
			return
		}

		m, err := publisher.Latest(r.Context(), user)
		if err != nil {
			slog.Error("read latest snapshot", "user", user, "error", err)
			http.Error(w, "snapshot read failed", http.StatusInternalServerError)
			return
		}
		if m == nil {
			http.Error(w, "no snapshot yet", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m); err != nil {
			slog.Error("encode relationship map", "user", user, "error", err)
		}
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	// --- Graceful Shutdown ---
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh

		slog.Info("received shutdown signal", "signal", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}

		rdb.Close()
	}()

	slog.Info("trajectory service listening", "addr", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("trajectory service stopped")
}
