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

package commitments

import (
	"strings"
	"time"

	"github.com/bcem/trajectory/internal/models"
)

// commitmentPrefixChars is how much of the commitment text the body-overlap
// check matches on.
const commitmentPrefixChars = 24

// fulfillmentPhrases indicate a promise being delivered on. The heuristic
// both over- and under-detects; it is kept as an isolated predicate so the
// tradeoff stays visible and testable.
var fulfillmentPhrases = []string{
	"attached", "as promised", "i've sent", "i have sent", "just sent",
	"here is", "here's", "completed", "done", "following up", "as discussed",
}

// IsFulfillmentEvidence is the pure predicate: does this later message look
// like it delivers on the commitment? True only when the message is related
// (same thread, overlapping subject, or body echoing the commitment text)
// and contains a fulfillment phrase.
func IsFulfillmentEvidence(c models.Commitment, m models.Message) bool {
	if !m.Timestamp.After(c.SourceDate) {
		return false
	}
	return related(c, m) && hasFulfillmentPhrase(m.Body)
}

func related(c models.Commitment, m models.Message) bool {
	if m.ThreadID != "" && c.SourceThreadID == m.ThreadID {
		return true
	}

	cs := normalizeSubject(c.SourceSubject)
	ms := normalizeSubject(m.Subject)
	if cs != "" && ms != "" && (strings.Contains(ms, cs) || strings.Contains(cs, ms)) {
		return true
	}

	prefix := strings.ToLower(c.Text)
	if len(prefix) > commitmentPrefixChars {
		prefix = prefix[:commitmentPrefixChars]
	}
	return prefix != "" && strings.Contains(strings.ToLower(m.Body), prefix)
}

func hasFulfillmentPhrase(body string) bool {
	body = strings.ToLower(body)
	for _, phrase := range fulfillmentPhrases {
		if strings.Contains(body, phrase) {
			return true
		}
	}
	return false
}

func normalizeSubject(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for {
		trimmed := s
		for _, prefix := range []string{"re:", "fwd:", "fw:"} {
			trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		}
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

// UpdateStatuses advances the lifecycle of open commitments against newer
// messages: pending flips to overdue when the due date has passed, and
// open commitments with fulfillment evidence become fulfilled. Fulfilled
// entries are never touched again.
func UpdateStatuses(commits []models.Commitment, msgs []models.Message, now time.Time) []models.Commitment {
	out := append([]models.Commitment(nil), commits...)

	for i := range out {
		c := &out[i]
		if c.Status == models.StatusFulfilled {
			continue
		}

		if c.Status == models.StatusPending && c.DueDate != nil && c.DueDate.Before(now) {
			c.Status = models.StatusOverdue
		}

		for _, m := range msgs {
			if IsFulfillmentEvidence(*c, m) {
				c.Status = models.StatusFulfilled
				at := now
				c.FulfilledAt = &at
				break
			}
		}
	}

	return out
}

// Merge reconciles freshly detected commitments with the persisted ledger
// state. Ledger entries win on identity (source message + text) so ids and
// terminal statuses survive rebuild-from-scratch runs; detections without a
// ledger counterpart pass through as new.
func Merge(detected, stored []models.Commitment) []models.Commitment {
	type key struct{ msgID, text string }
	byKey := make(map[key]models.Commitment, len(stored))
	for _, c := range stored {
		byKey[key{c.SourceMessageID, c.Text}] = c
	}

	out := make([]models.Commitment, 0, len(detected))
	seen := make(map[key]bool)
	for _, d := range detected {
		k := key{d.SourceMessageID, d.Text}
		seen[k] = true
		if prior, ok := byKey[k]; ok {
			out = append(out, prior)
			continue
		}
		out = append(out, d)
	}

	// Ledger entries whose source message fell out of the current window
	// still belong to the relationship.
	for _, c := range stored {
		if !seen[key{c.SourceMessageID, c.Text}] {
			out = append(out, c)
		}
	}

	return out
}
