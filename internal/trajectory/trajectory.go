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

// Package trajectory derives movement metrics (velocity, acceleration,
// cadence, recency) from a contact's weekly time series.
package trajectory

import (
	"sort"
	"time"

	"github.com/bcem/trajectory/internal/models"
)

const (
	// velocityWindow is how many recent points feed the regression.
	velocityWindow = 8

	// minAccelerationPoints is the series length below which acceleration
	// is reported as zero.
	minAccelerationPoints = 6

	// Cadence bounds in days.
	minCadenceDays     = 1
	maxCadenceDays     = 180
	defaultCadenceDays = 30
)

// Compute derives the trajectory for one contact. Recency is taken from the
// raw message list rather than the windowed series to avoid window-boundary
// rounding error.
func Compute(points []models.TimeSeriesPoint, msgs []models.Message, now time.Time) models.Trajectory {
	tr := models.Trajectory{
		Velocity:                   Velocity(points),
		Acceleration:               acceleration(points),
		NormalContactFrequencyDays: normalContactFrequency(points),
		DataPoints:                 len(points),
	}

	if len(points) > 0 {
		total := 0
		for _, p := range points {
			total += p.Total
		}
		tr.AvgMessagesPerWeek = float64(total) / float64(len(points))
		tr.AvgResponseMinutes = avgResponse(points)
		tr.InitiationRatio = initiationRatio(points)
	}

	if latest := latestTimestamp(msgs); !latest.IsZero() {
		tr.DaysSinceLastContact = now.Sub(latest).Hours() / 24
	}

	return tr
}

// Velocity is the OLS slope of total messages per window over the last
// velocityWindow points. Fewer than two points yield zero.
func Velocity(points []models.TimeSeriesPoint) float64 {
	if len(points) > velocityWindow {
		points = points[len(points)-velocityWindow:]
	}
	if len(points) < 2 {
		return 0
	}

	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		y := float64(p.Total)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// acceleration is the change in velocity between the first and second half
// of the series.
func acceleration(points []models.TimeSeriesPoint) float64 {
	if len(points) < minAccelerationPoints {
		return 0
	}
	mid := len(points) / 2
	return Velocity(points[mid:]) - Velocity(points[:mid])
}

// normalContactFrequency is the median day gap between consecutive active
// windows, clamped to [1,180]. Fewer than two active windows default to 30.
func normalContactFrequency(points []models.TimeSeriesPoint) float64 {
	var active []time.Time
	for _, p := range points {
		if p.Total > 0 {
			active = append(active, p.PeriodStart)
		}
	}
	if len(active) < 2 {
		return defaultCadenceDays
	}

	gaps := make([]float64, 0, len(active)-1)
	for i := 1; i < len(active); i++ {
		gaps = append(gaps, active[i].Sub(active[i-1]).Hours()/24)
	}
	sort.Float64s(gaps)

	var median float64
	mid := len(gaps) / 2
	if len(gaps)%2 == 1 {
		median = gaps[mid]
	} else {
		median = (gaps[mid-1] + gaps[mid]) / 2
	}

	if median < minCadenceDays {
		return minCadenceDays
	}
	if median > maxCadenceDays {
		return maxCadenceDays
	}
	return median
}

func avgResponse(points []models.TimeSeriesPoint) *float64 {
	var sum float64
	var n int
	for _, p := range points {
		if p.AvgResponseMinutes != nil {
			sum += *p.AvgResponseMinutes
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

func initiationRatio(points []models.TimeSeriesPoint) float64 {
	var user, total int
	for _, p := range points {
		user += p.InitiatedByUser
		total += p.InitiatedByUser + p.InitiatedByContact
	}
	if total == 0 {
		return 0
	}
	return float64(user) / float64(total)
}

func latestTimestamp(msgs []models.Message) time.Time {
	var latest time.Time
	for _, m := range msgs {
		if m.Timestamp.After(latest) {
			latest = m.Timestamp
		}
	}
	return latest
}
