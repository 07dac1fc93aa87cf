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

package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bcem/trajectory/internal/models"
	"github.com/bcem/trajectory/internal/oracle"
)

var analysisTime = time.Date(2025, 6, 16, 12, 0, 0, 0, time.UTC) // a Monday

func fixedNow() time.Time { return analysisTime }

// weeklyExchange produces n weeks of back-and-forth with one contact,
// ending the given number of weeks before the analysis time.
func weeklyExchange(contact string, n, weeksAgoEnd int) []models.Message {
	var msgs []models.Message
	for i := 0; i < n; i++ {
		weeksBack := weeksAgoEnd + (n - 1 - i)
		ts := analysisTime.AddDate(0, 0, -7*weeksBack)
		msgs = append(msgs,
			models.Message{
				ID:         fmt.Sprintf("%s-out-%d", contact, i),
				ThreadID:   fmt.Sprintf("%s-t%d", contact, i),
				From:       "me@example.com",
				To:         []string{contact},
				Subject:    "catch up",
				Body:       strings.Repeat("hello there ", 10),
				Timestamp:  ts,
				IsFromUser: true,
			},
			models.Message{
				ID:        fmt.Sprintf("%s-in-%d", contact, i),
				ThreadID:  fmt.Sprintf("%s-t%d", contact, i),
				From:      contact,
				To:        []string{"me@example.com"},
				Subject:   "Re: catch up",
				Body:      strings.Repeat("sounds good ", 10),
				Timestamp: ts.Add(2 * time.Hour),
			},
		)
	}
	return msgs
}

func TestBuildMap_MinMessagesExcludesThinContacts(t *testing.T) {
	e := New(Config{Now: fixedNow, MinMessages: 3})

	msgs := weeklyExchange("alice@corp.com", 6, 1)
	msgs = append(msgs, models.Message{
		ID:        "thin-1",
		From:      "stranger@other.com",
		To:        []string{"me@example.com"},
		Body:      "one-off",
		Timestamp: analysisTime.AddDate(0, 0, -3),
	})

	m := e.BuildMap(context.Background(), "me@example.com", msgs)
	if len(m.Relationships) != 1 {
		t.Fatalf("got %d relationships, want 1", len(m.Relationships))
	}
	if m.Relationships[0].Contact.Email != "alice@corp.com" {
		t.Errorf("unexpected contact: %s", m.Relationships[0].Contact.Email)
	}
	if m.Stats.Contacts != 1 {
		t.Errorf("stats.Contacts = %d, want 1", m.Stats.Contacts)
	}
}

func TestBuildMap_SortedAscendingByScore(t *testing.T) {
	e := New(Config{Now: fixedNow})

	// Active contact vs one silent for ten weeks.
	msgs := append(
		weeklyExchange("active@corp.com", 8, 1),
		weeklyExchange("faded@corp.com", 8, 10)...,
	)

	m := e.BuildMap(context.Background(), "me@example.com", msgs)
	if len(m.Relationships) != 2 {
		t.Fatalf("got %d relationships, want 2", len(m.Relationships))
	}
	if m.Relationships[0].Score > m.Relationships[1].Score {
		t.Errorf("not sorted ascending: %d then %d",
			m.Relationships[0].Score, m.Relationships[1].Score)
	}
	if m.Relationships[0].Contact.Email != "faded@corp.com" {
		t.Errorf("faded contact should sort first, got %s", m.Relationships[0].Contact.Email)
	}

	for _, r := range m.Relationships {
		found := false
		for _, email := range m.ByStatus[r.Status] {
			if email == r.Contact.Email {
				found = true
			}
		}
		if !found {
			t.Errorf("%s missing from ByStatus[%s]", r.Contact.Email, r.Status)
		}
	}
}

func TestBuildMap_Deterministic(t *testing.T) {
	e := New(Config{Now: fixedNow, BatchSize: 2})

	msgs := append(
		weeklyExchange("alice@corp.com", 6, 1),
		weeklyExchange("bob@corp.com", 6, 2)...,
	)
	msgs = append(msgs, weeklyExchange("carol@corp.com", 6, 3)...)

	a := e.BuildMap(context.Background(), "me@example.com", msgs)
	b := e.BuildMap(context.Background(), "me@example.com", msgs)
	if !reflect.DeepEqual(a, b) {
		t.Error("identical inputs produced different maps")
	}
}

// failingOracle always errors; commitment extraction must degrade to
// empty without affecting the rest of the analysis.
type failingOracle struct{}

func (failingOracle) Classify(context.Context, oracle.Request) ([]oracle.Candidate, error) {
	return nil, errors.New("oracle unavailable")
}

func TestBuildMap_OracleFailureIsolated(t *testing.T) {
	e := New(Config{Now: fixedNow, Oracle: failingOracle{}})

	m := e.BuildMap(context.Background(), "me@example.com",
		weeklyExchange("alice@corp.com", 6, 1))
	if len(m.Relationships) != 1 {
		t.Fatalf("got %d relationships, want 1", len(m.Relationships))
	}
	if len(m.Relationships[0].Commitments) != 0 {
		t.Errorf("expected no commitments, got %d", len(m.Relationships[0].Commitments))
	}
}

// stubOracle emits one high-confidence commitment per classified message.
type stubOracle struct{}

func (stubOracle) Classify(_ context.Context, req oracle.Request) ([]oracle.Candidate, error) {
	if !strings.Contains(req.Body, "i will send") {
		return nil, nil
	}
	return []oracle.Candidate{{
		Text:       "I will send the deck",
		Party:      "sender",
		Confidence: 0.9,
	}}, nil
}

func TestBuildMap_CommitmentsFlowThrough(t *testing.T) {
	e := New(Config{Now: fixedNow, Oracle: stubOracle{}})

	msgs := weeklyExchange("alice@corp.com", 6, 1)
	msgs = append(msgs, models.Message{
		ID:         "promise-1",
		ThreadID:   "promise-t",
		From:       "me@example.com",
		To:         []string{"alice@corp.com"},
		Subject:    "deck",
		Body:       "i will send the deck over tomorrow, promise" + strings.Repeat(" pad", 5),
		Timestamp:  analysisTime.AddDate(0, 0, -2),
		IsFromUser: true,
	})

	m := e.BuildMap(context.Background(), "me@example.com", msgs)
	if len(m.Relationships) != 1 {
		t.Fatalf("got %d relationships, want 1", len(m.Relationships))
	}

	r := m.Relationships[0]
	if len(r.Commitments) != 1 {
		t.Fatalf("got %d commitments, want 1", len(r.Commitments))
	}
	c := r.Commitments[0]
	if c.Direction != models.DirectionOutbound {
		t.Errorf("direction = %s, want outbound", c.Direction)
	}
	if c.Status != models.StatusPending {
		t.Errorf("status = %s, want pending", c.Status)
	}
	if m.Stats.OpenCommitments != 1 {
		t.Errorf("stats.OpenCommitments = %d, want 1", m.Stats.OpenCommitments)
	}
}

// memorySeen is an in-memory SeenFilter.
type memorySeen struct {
	mu  sync.Mutex
	ids map[string]bool
}

func newMemorySeen() *memorySeen {
	return &memorySeen{ids: make(map[string]bool)}
}

func (s *memorySeen) Seen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids[id], nil
}

func (s *memorySeen) Mark(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = true
	return nil
}

// memoryLedger is an in-memory CommitmentStore keyed on detection identity.
type memoryLedger struct {
	mu   sync.Mutex
	rows map[string]models.Commitment
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{rows: make(map[string]models.Commitment)}
}

func ledgerKey(user, contact string, c models.Commitment) string {
	return user + "|" + contact + "|" + c.SourceMessageID + "|" + c.Text
}

func (l *memoryLedger) List(_ context.Context, user, contact string) ([]models.Commitment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Commitment
	prefix := user + "|" + contact + "|"
	for k, c := range l.rows {
		if strings.HasPrefix(k, prefix) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *memoryLedger) Upsert(_ context.Context, user, contact string, c models.Commitment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[ledgerKey(user, contact, c)] = c
	return nil
}

// A seen-filter without a ledger must be ignored: otherwise run 1 marks the
// promise message, run 2 skips it, and the still-open commitment silently
// disappears from the map.
func TestBuildMap_SeenFilterWithoutLedgerIgnored(t *testing.T) {
	e := New(Config{Now: fixedNow, Oracle: stubOracle{}, Seen: newMemorySeen()})

	msgs := weeklyExchange("alice@corp.com", 6, 1)
	msgs = append(msgs, models.Message{
		ID:         "promise-1",
		ThreadID:   "promise-t",
		From:       "me@example.com",
		To:         []string{"alice@corp.com"},
		Subject:    "deck",
		Body:       "i will send the deck over tomorrow, promise" + strings.Repeat(" pad", 5),
		Timestamp:  analysisTime.AddDate(0, 0, -2),
		IsFromUser: true,
	})

	first := e.BuildMap(context.Background(), "me@example.com", msgs)
	second := e.BuildMap(context.Background(), "me@example.com", msgs)

	if len(first.Relationships) != 1 || len(second.Relationships) != 1 {
		t.Fatalf("got %d and %d relationships, want 1 and 1",
			len(first.Relationships), len(second.Relationships))
	}
	if n := len(first.Relationships[0].Commitments); n != 1 {
		t.Fatalf("first run: got %d commitments, want 1", n)
	}
	if n := len(second.Relationships[0].Commitments); n != 1 {
		t.Fatalf("second run lost the open commitment: got %d, want 1", n)
	}
}

// With a ledger the seen-filter may skip re-classification, and the merge
// must carry the first run's commitment ids forward so repeated runs are
// fully identical.
func TestBuildMap_LedgerKeepsIDsStableAcrossRuns(t *testing.T) {
	e := New(Config{
		Now:    fixedNow,
		Oracle: stubOracle{},
		Seen:   newMemorySeen(),
		Ledger: newMemoryLedger(),
	})

	msgs := weeklyExchange("alice@corp.com", 6, 1)
	msgs = append(msgs, models.Message{
		ID:         "promise-1",
		ThreadID:   "promise-t",
		From:       "me@example.com",
		To:         []string{"alice@corp.com"},
		Subject:    "deck",
		Body:       "i will send the deck over tomorrow, promise" + strings.Repeat(" pad", 5),
		Timestamp:  analysisTime.AddDate(0, 0, -2),
		IsFromUser: true,
	})

	first := e.BuildMap(context.Background(), "me@example.com", msgs)
	second := e.BuildMap(context.Background(), "me@example.com", msgs)

	if len(first.Relationships) != 1 || len(second.Relationships) != 1 {
		t.Fatalf("got %d and %d relationships, want 1 and 1",
			len(first.Relationships), len(second.Relationships))
	}
	if n := len(first.Relationships[0].Commitments); n != 1 {
		t.Fatalf("first run: got %d commitments, want 1", n)
	}
	if n := len(second.Relationships[0].Commitments); n != 1 {
		t.Fatalf("second run: got %d commitments, want 1", n)
	}
	if a, b := first.Relationships[0].Commitments[0].ID, second.Relationships[0].Commitments[0].ID; a != b {
		t.Errorf("commitment id changed across runs: %s then %s", a, b)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("ledger-backed runs on identical input produced different maps")
	}
}

func TestBuildMap_CancelledContextPartial(t *testing.T) {
	e := New(Config{Now: fixedNow, BatchSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := e.BuildMap(ctx, "me@example.com", weeklyExchange("alice@corp.com", 6, 1))
	if len(m.Relationships) != 0 {
		t.Errorf("cancelled before first batch, got %d relationships", len(m.Relationships))
	}
	if m.UserEmail != "me@example.com" {
		t.Errorf("partial map missing user: %q", m.UserEmail)
	}
	if m.Stats.Contacts != 0 {
		t.Errorf("stats.Contacts = %d, want 0", m.Stats.Contacts)
	}
}
