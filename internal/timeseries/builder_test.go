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

package timeseries

import (
	"fmt"
	"testing"
	"time"

	"github.com/bcem/trajectory/internal/models"
)

func msg(id, thread string, ts time.Time, fromUser bool) models.Message {
	return models.Message{
		ID:         id,
		ThreadID:   thread,
		Timestamp:  ts,
		IsFromUser: fromUser,
	}
}

// TestWeekStart verifies Monday anchoring across the week.
func TestWeekStart(t *testing.T) {
	// 2025-06-02 is a Monday.
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{monday, monday},
		{monday.Add(5 * time.Hour), monday},
		{time.Date(2025, 6, 8, 23, 59, 0, 0, time.UTC), monday}, // Sunday
		{time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC), monday.AddDate(0, 0, 7)},
	}
	for _, c := range cases {
		if got := WeekStart(c.in); !got.Equal(c.want) {
			t.Errorf("WeekStart(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

// TestBuild_NoGaps verifies that every week between the first and last
// message gets exactly one point, zero-filled when inactive.
func TestBuild_NoGaps(t *testing.T) {
	base := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) // Monday

	// Activity in week 0 and week 4, nothing in between.
	msgs := []models.Message{
		msg("a", "t1", base, true),
		msg("b", "t1", base.AddDate(0, 0, 28), false),
	}

	points := Build(msgs)
	if len(points) != 5 {
		t.Fatalf("expected 5 points, got %d", len(points))
	}

	for i := 1; i < len(points); i++ {
		gap := points[i].PeriodStart.Sub(points[i-1].PeriodStart)
		if gap != Window {
			t.Errorf("point %d starts %v after previous, want %v", i, gap, Window)
		}
	}

	for i := 1; i <= 3; i++ {
		if points[i].Total != 0 {
			t.Errorf("gap week %d has total %d, want 0", i, points[i].Total)
		}
	}
	if points[0].Sent != 1 || points[4].Received != 1 {
		t.Errorf("edge weeks miscounted: %+v / %+v", points[0], points[4])
	}
}

// TestBuild_Empty verifies empty input yields no series.
func TestBuild_Empty(t *testing.T) {
	if points := Build(nil); points != nil {
		t.Errorf("expected nil series, got %d points", len(points))
	}
}

// TestBuild_ResponseLatency verifies latency sampling rules: alternation
// within a thread counts, same-sender runs and week-plus gaps do not.
func TestBuild_ResponseLatency(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	msgs := []models.Message{
		msg("a", "t1", base, true),
		msg("b", "t1", base.Add(90*time.Minute), false), // 90m reply
		msg("c", "t1", base.Add(2*time.Hour), false),    // same sender, no sample
		msg("d", "t2", base, true),
		msg("e", "t2", base.AddDate(0, 0, 10), false), // too late to be a reply
	}

	points := Build(msgs)
	p := points[0]
	if p.AvgResponseMinutes == nil {
		t.Fatal("expected a latency sample in week 0")
	}
	if *p.AvgResponseMinutes != 90 {
		t.Errorf("avg latency = %v, want 90", *p.AvgResponseMinutes)
	}

	// The late "reply" must not produce a sample in its week.
	lateWeek := WeekStart(base.AddDate(0, 0, 10))
	for _, pt := range points {
		if pt.PeriodStart.Equal(lateWeek) && pt.AvgResponseMinutes != nil {
			t.Error("gap over 7 days should not count as a reply")
		}
	}
}

// TestBuild_Initiations verifies the earliest message per thread per window
// credits its sender.
func TestBuild_Initiations(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	msgs := []models.Message{
		msg("a", "t1", base, true),
		msg("b", "t1", base.Add(time.Hour), false), // not an initiation
		msg("c", "t2", base.Add(2*time.Hour), false),
	}

	points := Build(msgs)
	p := points[0]
	if p.InitiatedByUser != 1 {
		t.Errorf("InitiatedByUser = %d, want 1", p.InitiatedByUser)
	}
	if p.InitiatedByContact != 1 {
		t.Errorf("InitiatedByContact = %d, want 1", p.InitiatedByContact)
	}
}

// TestBuild_UnsortedInput verifies ordering does not depend on input order.
func TestBuild_UnsortedInput(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	var forward, backward []models.Message
	for i := 0; i < 6; i++ {
		m := msg(fmt.Sprintf("m%d", i), fmt.Sprintf("t%d", i), base.AddDate(0, 0, i*7), i%2 == 0)
		forward = append(forward, m)
		backward = append([]models.Message{m}, backward...)
	}

	a := Build(forward)
	b := Build(backward)
	if len(a) != len(b) {
		t.Fatalf("length mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("point %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
