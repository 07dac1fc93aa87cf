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

// Package snapshot publishes finished relationship maps to Redis. Each map
// is pushed onto a queue for downstream consumers and cached as the latest
// snapshot per user so API reads never wait on a rebuild.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/trajectory/internal/models"
)

// latestTTL bounds how long a cached snapshot is served after refreshes stop.
const latestTTL = 48 * time.Hour

// Publisher sends relationship map snapshots to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a snapshot publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// envelope wraps a map for transport so consumers can route on kind
// without parsing the payload.
type envelope struct {
	ID          string                 `json:"id"`
	Kind        string                 `json:"kind"`
	UserEmail   string                 `json:"user_email"`
	GeneratedAt time.Time              `json:"generated_at"`
	Payload     models.RelationshipMap `json:"payload"`
}

// PublishMap pushes a finished relationship map onto the snapshot queue and
// caches it as the latest snapshot for its user.
func (p *Publisher) PublishMap(ctx context.Context, m models.RelationshipMap) error {
	env := envelope{
		ID:          uuid.New().String(),
		Kind:        "relationship_map",
		UserEmail:   m.UserEmail,
		GeneratedAt: m.GeneratedAt,
		Payload:     m,
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := p.rdb.LPush(ctx, p.queueName, raw).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}
	if err := p.rdb.Set(ctx, latestKey(m.UserEmail), raw, latestTTL).Err(); err != nil {
		return fmt.Errorf("redis SET latest: %w", err)
	}

	slog.Info("published relationship map",
		"snapshot_id", env.ID,
		"user", m.UserEmail,
		"contacts", len(m.Relationships),
		"queue", p.queueName,
	)

	return nil
}

// Latest returns the most recent cached map for a user, or nil when no
// snapshot has been published yet.
func (p *Publisher) Latest(ctx context.Context, userEmail string) (*models.RelationshipMap, error) {
	raw, err := p.rdb.Get(ctx, latestKey(userEmail)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET latest: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &env.Payload, nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}

func latestKey(userEmail string) string {
	return "trajectory:latest:" + userEmail
}
