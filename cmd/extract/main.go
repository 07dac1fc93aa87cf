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

// Trajectory — One-shot Analysis Command
//
// Standalone CLI tool that builds a relationship map from a JSON message
// dump, without Redis or Postgres. Intended for local analysis and for
// inspecting engine behaviour on exported mailboxes.
//
// Usage:
//
//	go run ./cmd/extract/ --messages dump.json --user me@example.com [--out map.json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bcem/trajectory/internal/engine"
	"github.com/bcem/trajectory/internal/models"
	"github.com/bcem/trajectory/internal/oracle"
)

func main() {
	// Human-oriented text logging for CLI use, on stderr so stdout stays
	// valid JSON.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// --- CLI Flags ---
	messagesFlag := flag.String("messages", "", "Path to JSON array of messages (required)")
	userFlag := flag.String("user", "", "Mailbox owner email (required)")
	outFlag := flag.String("out", "", "Output file (default: stdout)")
	apiKeyFlag := flag.String("api-key", "", "OpenAI API key for commitment extraction (default: $OPENAI_API_KEY; empty = skip commitments)")
	modelFlag := flag.String("model", "gpt-4o-mini", "Oracle model for commitment extraction")
	horizonFlag := flag.Int("horizon", 30, "Prediction horizon in days")
	minMessagesFlag := flag.Int("min-messages", 3, "Minimum messages for a contact to be included")
	flag.Parse()

	if *messagesFlag == "" || *userFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --messages and --user are required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*messagesFlag)
	if err != nil {
		slog.Error("failed to read messages file", "path", *messagesFlag, "error", err)
		os.Exit(1)
	}

	var msgs []models.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		slog.Error("failed to parse messages file", "path", *messagesFlag, "error", err)
		os.Exit(1)
	}
	slog.Info("loaded messages", "count", len(msgs), "user", *userFlag)

	cfg := engine.Config{
		MinMessages: *minMessagesFlag,
		HorizonDays: *horizonFlag,
	}

	apiKey := *apiKeyFlag
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey != "" {
		aiClient := openai.NewClient(option.WithAPIKey(apiKey))
		cfg.Oracle = oracle.NewClient(&aiClient, *modelFlag)
	} else {
		slog.Warn("no API key, skipping commitment extraction")
	}

	start := time.Now()
	m := engine.New(cfg).BuildMap(context.Background(), *userFlag, msgs)
	slog.Info("analysis complete",
		"contacts", m.Stats.Contacts,
		"open_commitments", m.Stats.OpenCommitments,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		slog.Error("failed to encode relationship map", "error", err)
		os.Exit(1)
	}

	if *outFlag == "" {
		fmt.Println(string(out))
		return
	}
	if err := os.WriteFile(*outFlag, out, 0o644); err != nil {
		slog.Error("failed to write output", "path", *outFlag, "error", err)
		os.Exit(1)
	}
	slog.Info("relationship map written", "path", *outFlag)
}
