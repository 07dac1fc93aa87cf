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

// Package timeseries buckets one contact's messages into fixed-width weekly
// windows. Every week between the first and last observed activity gets
// exactly one point; inactive weeks are zero-filled.
package timeseries

import (
	"sort"
	"time"

	"github.com/bcem/trajectory/internal/models"
)

const (
	// Window is the bucket width. Windows are Monday-anchored in UTC.
	Window = 7 * 24 * time.Hour

	// maxReplyGap is the longest sender-alternation gap still counted as a
	// real reply when sampling response latency.
	maxReplyGap = 7 * 24 * time.Hour
)

// WeekStart truncates t to the Monday 00:00 UTC of its containing week.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// bucket accumulates per-window tallies before points are materialised.
type bucket struct {
	sent, received        int
	initUser, initContact int
	latencySum            float64 // minutes
	latencySamples        int
}

// Build produces the gap-free weekly series for one contact's messages.
// Returns nil for an empty message set.
func Build(msgs []models.Message) []models.TimeSeriesPoint {
	if len(msgs) == 0 {
		return nil
	}

	sorted := append([]models.Message(nil), msgs...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ID < sorted[j].ID
	})

	first := WeekStart(sorted[0].Timestamp)
	last := WeekStart(sorted[len(sorted)-1].Timestamp)

	buckets := make(map[int64]*bucket)
	at := func(t time.Time) *bucket {
		key := WeekStart(t).Unix()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		return b
	}

	for _, m := range sorted {
		b := at(m.Timestamp)
		if m.IsFromUser {
			b.sent++
		} else {
			b.received++
		}
	}

	countInitiations(sorted, at)
	sampleLatencies(sorted, at)

	var points []models.TimeSeriesPoint
	for start := first; !start.After(last); start = start.Add(Window) {
		p := models.TimeSeriesPoint{
			PeriodStart: start,
			PeriodEnd:   start.Add(Window),
		}
		if b, ok := buckets[start.Unix()]; ok {
			p.Sent = b.sent
			p.Received = b.received
			p.Total = b.sent + b.received
			p.InitiatedByUser = b.initUser
			p.InitiatedByContact = b.initContact
			if b.latencySamples > 0 {
				avg := b.latencySum / float64(b.latencySamples)
				p.AvgResponseMinutes = &avg
			}
		}
		points = append(points, p)
	}

	return points
}

// countInitiations credits the earliest message of each thread within each
// window to its sender as an initiation.
func countInitiations(sorted []models.Message, at func(time.Time) *bucket) {
	type key struct {
		thread string
		week   int64
	}
	seen := make(map[key]bool)
	for _, m := range sorted {
		k := key{thread: m.ThreadID, week: WeekStart(m.Timestamp).Unix()}
		if seen[k] {
			continue
		}
		seen[k] = true
		b := at(m.Timestamp)
		if m.IsFromUser {
			b.initUser++
		} else {
			b.initContact++
		}
	}
}

// sampleLatencies walks each thread in time order and records one latency
// sample per sender alternation. The sample lands in the window containing
// the reply. Gaps over maxReplyGap are not treated as real replies.
func sampleLatencies(sorted []models.Message, at func(time.Time) *bucket) {
	threads := make(map[string][]models.Message)
	for _, m := range sorted {
		threads[m.ThreadID] = append(threads[m.ThreadID], m)
	}

	for _, msgs := range threads {
		for i := 1; i < len(msgs); i++ {
			prev, cur := msgs[i-1], msgs[i]
			if prev.IsFromUser == cur.IsFromUser {
				continue
			}
			gap := cur.Timestamp.Sub(prev.Timestamp)
			if gap <= 0 || gap > maxReplyGap {
				continue
			}
			b := at(cur.Timestamp)
			b.latencySum += gap.Minutes()
			b.latencySamples++
		}
	}
}
