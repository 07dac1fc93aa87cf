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

// Package commitments turns oracle classifications into commitment records
// and tracks them through to fulfillment or expiry. Status transitions are
// monotonic: pending → overdue happens automatically when a due date passes,
// fulfilled is terminal.
package commitments

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bcem/trajectory/internal/models"
	"github.com/bcem/trajectory/internal/oracle"
	"github.com/google/uuid"
)

// Oracle is the slice of the classification client the extractor needs.
type Oracle interface {
	Classify(ctx context.Context, req oracle.Request) ([]oracle.Candidate, error)
}

// SeenFilter remembers message ids already classified, so repeated runs do
// not re-spend oracle calls. Implemented by seen.Filter.
type SeenFilter interface {
	Seen(ctx context.Context, messageID string) (bool, error)
	Mark(ctx context.Context, messageID string) error
}

const (
	// minBodyChars skips messages too short to contain a real promise.
	minBodyChars = 40

	// ConfidenceThreshold discards low-certainty oracle candidates.
	ConfidenceThreshold = 0.6
)

// automatedMarkers flag senders/bodies that are boilerplate, not promises.
var automatedMarkers = []string{
	"no-reply", "noreply", "do not reply", "unsubscribe",
	"notification", "mail delivery", "delivery status", "auto-reply",
	"out of office",
}

// ExtractorConfig holds the dependencies and tuning for extraction.
type ExtractorConfig struct {
	Oracle    Oracle
	Seen      SeenFilter // optional; only useful with a persistent ledger
	UserEmail string
	Lookback  time.Duration // messages older than this are not classified
}

// Extractor finds commitments in one contact's messages.
type Extractor struct {
	oracle    Oracle
	seen      SeenFilter
	userEmail string
	lookback  time.Duration
}

// NewExtractor creates a commitment extractor.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	lookback := cfg.Lookback
	if lookback == 0 {
		lookback = 90 * 24 * time.Hour
	}
	return &Extractor{
		oracle:    cfg.Oracle,
		seen:      cfg.Seen,
		userEmail: models.CanonicalEmail(cfg.UserEmail),
		lookback:  lookback,
	}
}

// Extract classifies each qualifying message and converts surviving
// candidates into commitments. A failed oracle call for one message is
// treated as "no commitments found" for that message, never as a failure
// of the whole contact.
func (e *Extractor) Extract(ctx context.Context, msgs []models.Message, now time.Time) []models.Commitment {
	if e.oracle == nil {
		return nil
	}

	cutoff := now.Add(-e.lookback)
	var out []models.Commitment

	for _, m := range msgs {
		if !e.qualifies(m, cutoff) {
			continue
		}

		if e.seen != nil {
			if seen, err := e.seen.Seen(ctx, m.ID); err != nil {
				slog.Warn("seen-filter check failed", "message_id", m.ID, "error", err)
			} else if seen {
				continue
			}
		}

		candidates, err := e.oracle.Classify(ctx, oracle.Request{
			Sender:     m.From,
			Recipients: append(append([]string(nil), m.To...), m.CC...),
			Subject:    m.Subject,
			Date:       m.Timestamp,
			Body:       m.Body,
		})
		if err != nil {
			slog.Warn("oracle classification failed, treating as empty",
				"message_id", m.ID,
				"error", err,
			)
			continue
		}

		for _, cand := range candidates {
			if cand.Confidence < ConfidenceThreshold {
				continue
			}
			out = append(out, fromCandidate(cand, m, now))
		}

		if e.seen != nil {
			if err := e.seen.Mark(ctx, m.ID); err != nil {
				slog.Warn("seen-filter mark failed", "message_id", m.ID, "error", err)
			}
		}
	}

	return out
}

func (e *Extractor) qualifies(m models.Message, cutoff time.Time) bool {
	if m.Timestamp.Before(cutoff) {
		return false
	}
	body := strings.TrimSpace(m.Body)
	if len(body) < minBodyChars {
		return false
	}

	haystack := strings.ToLower(m.From + " " + body)
	for _, marker := range automatedMarkers {
		if strings.Contains(haystack, marker) {
			return false
		}
	}
	return true
}

// fromCandidate builds the commitment record: direction from the promising
// party, due date parsed defensively, initial status overdue when the due
// date already passed.
func fromCandidate(cand oracle.Candidate, m models.Message, now time.Time) models.Commitment {
	c := models.Commitment{
		ID:              uuid.New().String(),
		Direction:       direction(cand.Party, m.IsFromUser),
		Text:            strings.TrimSpace(cand.Text),
		Context:         strings.TrimSpace(cand.Context),
		SourceMessageID: m.ID,
		SourceThreadID:  m.ThreadID,
		SourceSubject:   m.Subject,
		SourceDate:      m.Timestamp,
		DetectedAt:      now,
		DueDate:         parseDueDate(cand.DueDate),
		Status:          models.StatusPending,
		Confidence:      cand.Confidence,
	}
	if c.DueDate != nil && c.DueDate.Before(now) {
		c.Status = models.StatusOverdue
	}
	return c
}

// direction resolves who promised: outbound when the user is the promising
// party, inbound when the contact is.
func direction(party string, fromUser bool) models.CommitmentDirection {
	promisedBySender := party == "sender"
	if promisedBySender == fromUser {
		return models.DirectionOutbound
	}
	return models.DirectionInbound
}

var dueDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"January 2, 2006",
}

// parseDueDate parses defensively; anything unparseable becomes nil.
func parseDueDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
