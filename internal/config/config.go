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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SourceConfig holds connection details for the email source bridge.
type SourceConfig struct {
	BaseURL      string `yaml:"base_url"`
	TokenURL     string `yaml:"token_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Config holds all configuration for the trajectory engine service.
type Config struct {
	// Users are the mailbox owners whose relationships are refreshed.
	Users []string

	Source SourceConfig

	// Engine tuning
	MinMessages           int           // contact inclusion threshold
	ExcludedDomains       []string      // drop contacts whose domain matches
	ExcludedPatterns      []string      // drop contacts whose address contains
	CommitmentLookback    time.Duration // how far back to scan for promises
	ExtractCommitments    bool
	PredictionHorizonDays int
	MessageLookback       time.Duration // how much history to fetch per run
	BatchSize             int           // contacts processed concurrently
	BatchPause            time.Duration // pause between batches (oracle rate limits)
	RefreshInterval       time.Duration

	// Oracle
	OracleModel  string
	OracleAPIKey string

	// Infrastructure
	RedisURL      string
	SnapshotQueue string
	DatabaseURL   string

	// Server (health check + on-demand refresh)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Users  []string     `yaml:"users"`
	Source SourceConfig `yaml:"source"`
	Engine struct {
		MinMessages            int      `yaml:"min_messages"`
		ExcludedDomains        []string `yaml:"excluded_domains"`
		ExcludedPatterns       []string `yaml:"excluded_patterns"`
		CommitmentLookbackDays int      `yaml:"commitment_lookback_days"`
		ExtractCommitments     *bool    `yaml:"extract_commitments"`
		PredictionHorizonDays  int      `yaml:"prediction_horizon_days"`
		MessageLookbackDays    int      `yaml:"message_lookback_days"`
		BatchSize              int      `yaml:"batch_size"`
	} `yaml:"engine"`
	Oracle struct {
		Model string `yaml:"model"`
	} `yaml:"oracle"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Snapshots string `yaml:"snapshots"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg := &Config{
		Users:                 raw.Users,
		Source:                raw.Source,
		MinMessages:           orInt(raw.Engine.MinMessages, 3),
		ExcludedDomains:       raw.Engine.ExcludedDomains,
		ExcludedPatterns:      raw.Engine.ExcludedPatterns,
		CommitmentLookback:    time.Duration(orInt(raw.Engine.CommitmentLookbackDays, 90)) * 24 * time.Hour,
		ExtractCommitments:    raw.Engine.ExtractCommitments == nil || *raw.Engine.ExtractCommitments,
		PredictionHorizonDays: orInt(raw.Engine.PredictionHorizonDays, 30),
		MessageLookback:       time.Duration(orInt(raw.Engine.MessageLookbackDays, 180)) * 24 * time.Hour,
		BatchSize:             orInt(raw.Engine.BatchSize, 10),
		BatchPause:            envOrDefaultDuration("BATCH_PAUSE", 2*time.Second),
		RefreshInterval:       envOrDefaultDuration("REFRESH_INTERVAL", 6*time.Hour),
		OracleModel:           firstNonEmpty(raw.Oracle.Model, envOrDefault("ORACLE_MODEL", "gpt-4o-mini")),
		OracleAPIKey:          os.Getenv("OPENAI_API_KEY"),
		RedisURL:              firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		SnapshotQueue:         firstNonEmpty(raw.Redis.Queues.Snapshots, envOrDefault("SNAPSHOTS_QUEUE", "relationship_maps")),
		DatabaseURL:           firstNonEmpty(raw.Postgres.URL, os.Getenv("DATABASE_URL")),
		Port:                  envOrDefaultInt("PORT", 8080),
	}

	if len(cfg.Users) == 0 {
		return nil, fmt.Errorf("no users configured — check config.yaml")
	}
	if cfg.Source.BaseURL == "" {
		return nil, fmt.Errorf("source.base_url is required")
	}

	return cfg, nil
}

func orInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
