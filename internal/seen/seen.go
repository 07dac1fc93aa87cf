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

// Package seen tracks which message IDs have already been through oracle
// classification, using Redis keys with TTL. This keeps repeated analysis
// runs from re-spending oracle calls on the same messages.
package seen

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL matches the commitment lookback window: a message older
	// than this never qualifies for classification anyway.
	DefaultTTL = 90 * 24 * time.Hour

	// keyPrefix namespaces classification keys in Redis.
	keyPrefix = "trajectory:classified:"
)

// Filter remembers classified message IDs.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a classification filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// Seen reports whether the message ID has already been classified. Unlike
// SETNX-style dedup, checking and marking are separate steps here: a message
// is only marked after the oracle call succeeds, so a failed call gets
// retried on the next run.
func (f *Filter) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := f.rdb.Exists(ctx, keyPrefix+messageID).Result()
	if err != nil {
		return false, fmt.Errorf("seen EXISTS: %w", err)
	}
	return n > 0, nil
}

// Mark records the message ID as classified.
func (f *Filter) Mark(ctx context.Context, messageID string) error {
	if err := f.rdb.Set(ctx, keyPrefix+messageID, 1, f.ttl).Err(); err != nil {
		return fmt.Errorf("seen SET: %w", err)
	}
	return nil
}
