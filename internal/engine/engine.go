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

// Package engine runs the full per-user analysis: it partitions message
// history into per-contact groups, derives each contact's activity series,
// trajectory, health, commitments and prediction, and assembles the
// resulting relationship map. One failing contact never fails the map.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bcem/trajectory/internal/commitments"
	"github.com/bcem/trajectory/internal/contacts"
	"github.com/bcem/trajectory/internal/health"
	"github.com/bcem/trajectory/internal/models"
	"github.com/bcem/trajectory/internal/predictor"
	"github.com/bcem/trajectory/internal/timeseries"
	"github.com/bcem/trajectory/internal/trajectory"
)

// CommitmentStore is the slice of the ledger the engine needs. Nil means
// commitments are rebuilt from scratch each run with no persisted state.
type CommitmentStore interface {
	List(ctx context.Context, userEmail, contactEmail string) ([]models.Commitment, error)
	Upsert(ctx context.Context, userEmail, contactEmail string, c models.Commitment) error
}

// Config holds the engine's dependencies and tuning. Oracle, Seen and
// Ledger are all optional: without an oracle the map simply carries no
// commitments.
type Config struct {
	Oracle commitments.Oracle
	Seen   commitments.SeenFilter
	Ledger CommitmentStore

	MinMessages      int // contacts below this are excluded entirely
	ExcludedDomains  []string
	ExcludedPatterns []string

	CommitmentLookback time.Duration
	HorizonDays        int

	BatchSize  int           // contacts analysed concurrently
	BatchPause time.Duration // pause between batches, spreads oracle load

	Now func() time.Time // defaults to time.Now
}

// Engine builds relationship maps.
type Engine struct {
	cfg Config
}

// New creates an analysis engine, applying defaults for unset tuning.
func New(cfg Config) *Engine {
	if cfg.MinMessages <= 0 {
		cfg.MinMessages = 3
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = predictor.DefaultHorizonDays
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	// A seen-filter only works together with a ledger: skipping an
	// already-classified message is safe only when its commitments can be
	// merged back from persisted state. Without a ledger the filter would
	// make open commitments vanish on the next run.
	if cfg.Ledger == nil {
		cfg.Seen = nil
	}
	return &Engine{cfg: cfg}
}

// BuildMap analyses one user's full message history and returns the
// relationship map. Contacts are processed in deterministic order, in
// concurrent batches. A cancelled context stops between batches and the
// partial map built so far is returned, still internally consistent.
func (e *Engine) BuildMap(ctx context.Context, userEmail string, msgs []models.Message) models.RelationshipMap {
	user := models.CanonicalEmail(userEmail)
	now := e.cfg.Now().UTC()

	groups := contacts.Group(msgs, contacts.GrouperConfig{
		UserEmail:        user,
		ExcludedDomains:  e.cfg.ExcludedDomains,
		ExcludedPatterns: e.cfg.ExcludedPatterns,
	})

	emails := make([]string, 0, len(groups))
	for email, g := range groups {
		if len(g) >= e.cfg.MinMessages {
			emails = append(emails, email)
		}
	}
	sort.Strings(emails)

	results := make([]*models.Relationship, len(emails))

	for start := 0; start < len(emails); start += e.cfg.BatchSize {
		if ctx.Err() != nil {
			slog.Warn("analysis cancelled, returning partial map",
				"user", user,
				"analysed", start,
				"total", len(emails),
			)
			break
		}

		end := start + e.cfg.BatchSize
		if end > len(emails) {
			end = len(emails)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				email := emails[i]
				defer func() {
					if r := recover(); r != nil {
						slog.Error("contact analysis panicked",
							"user", user,
							"contact", email,
							"panic", r,
						)
					}
				}()
				results[i] = e.analyzeContact(ctx, user, email, groups[email], now)
			}(i)
		}
		wg.Wait()

		if e.cfg.BatchPause > 0 && end < len(emails) {
			select {
			case <-time.After(e.cfg.BatchPause):
			case <-ctx.Done():
			}
		}
	}

	rels := make([]models.Relationship, 0, len(results))
	for _, r := range results {
		if r != nil {
			rels = append(rels, *r)
		}
	}

	return assemble(user, rels, now)
}

// analyzeContact runs the per-contact pipeline: series, trajectory,
// commitments, classification, score, prediction.
func (e *Engine) analyzeContact(ctx context.Context, user, email string, msgs []models.Message, now time.Time) *models.Relationship {
	series := timeseries.Build(msgs)
	tr := trajectory.Compute(series, msgs, now)

	commits := e.trackCommitments(ctx, user, email, msgs, now)

	var open []models.Commitment
	for _, c := range commits {
		if c.IsOpen() {
			open = append(open, c)
		}
	}

	status := health.Classify(tr, open)
	score := health.Score(tr, status, open)
	pred := predictor.Predict(tr, status, open, e.cfg.HorizonDays)

	rel := &models.Relationship{
		Contact:         contactPerson(email, msgs),
		Trajectory:      tr,
		Commitments:     commits,
		OpenCommitments: open,
		Status:          status,
		Score:           score,
		Prediction:      pred,
		TotalMessages:   len(msgs),
	}
	if len(msgs) > 0 {
		rel.FirstInteraction = msgs[0].Timestamp
		rel.LastInteraction = msgs[len(msgs)-1].Timestamp
	}
	return rel
}

// trackCommitments reconciles fresh detections with the persisted ledger
// and advances lifecycle states. Ledger failures degrade to in-memory
// tracking rather than failing the contact.
func (e *Engine) trackCommitments(ctx context.Context, user, email string, msgs []models.Message, now time.Time) []models.Commitment {
	if e.cfg.Oracle == nil {
		return nil
	}

	extractor := commitments.NewExtractor(commitments.ExtractorConfig{
		Oracle:    e.cfg.Oracle,
		Seen:      e.cfg.Seen,
		UserEmail: user,
		Lookback:  e.cfg.CommitmentLookback,
	})
	detected := extractor.Extract(ctx, msgs, now)

	var stored []models.Commitment
	if e.cfg.Ledger != nil {
		var err error
		stored, err = e.cfg.Ledger.List(ctx, user, email)
		if err != nil {
			slog.Warn("ledger read failed, tracking in memory",
				"user", user,
				"contact", email,
				"error", err,
			)
		}
	}

	commits := commitments.UpdateStatuses(commitments.Merge(detected, stored), msgs, now)

	if e.cfg.Ledger != nil {
		for _, c := range commits {
			if err := e.cfg.Ledger.Upsert(ctx, user, email, c); err != nil {
				slog.Warn("ledger write failed",
					"user", user,
					"contact", email,
					"commitment_id", c.ID,
					"error", err,
				)
			}
		}
	}

	return commits
}

// contactPerson resolves the richest identity available: a message the
// contact sent carries their display name, a bare address does not.
func contactPerson(email string, msgs []models.Message) models.Person {
	for _, m := range msgs {
		if m.IsFromUser {
			continue
		}
		if p := contacts.Resolve(m.From); p.Email == email {
			return p
		}
	}
	return contacts.Resolve(email)
}
