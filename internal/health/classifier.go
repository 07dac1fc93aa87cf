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

// Package health maps a trajectory plus open commitments to a categorical
// status and a 0–100 score. The classification is a deterministic rule
// chain evaluated in strict priority order.
package health

import (
	"math"

	"github.com/bcem/trajectory/internal/models"
)

const (
	// minPoints is the series length below which a relationship is "new".
	minPoints = 3

	// dormantCapDays bounds the dormancy threshold regardless of cadence.
	dormantCapDays = 90
)

// DormantThresholdDays is the inactivity span after which a relationship
// counts as dormant: three missed normal contact intervals, capped at 90 days.
func DormantThresholdDays(tr models.Trajectory) float64 {
	return math.Min(3*tr.NormalContactFrequencyDays, dormantCapDays)
}

// Classify evaluates the status rules in priority order.
func Classify(tr models.Trajectory, open []models.Commitment) models.HealthStatus {
	if tr.DataPoints < minPoints {
		return models.HealthNew
	}

	if tr.DaysSinceLastContact > DormantThresholdDays(tr) {
		return models.HealthDormant
	}

	v := tr.Velocity
	avg := tr.AvgMessagesPerWeek

	switch {
	case hasOverdueOutbound(open) && v < -0.3:
		return models.HealthAtRisk
	case v > 0.5 && avg > 2:
		return models.HealthThriving
	case v > 0.2 || (v >= 0 && avg > 1):
		return models.HealthStrong
	case v >= -0.2 && v <= 0.2:
		return models.HealthStable
	case v < -0.5:
		return models.HealthDecaying
	default:
		return models.HealthCooling
	}
}

// Score produces the integer health score for a classified relationship.
// It starts at 50, applies velocity/recency/activity/commitment adjustments,
// enforces status ceilings and floors, and clamps to [0,100].
func Score(tr models.Trajectory, status models.HealthStatus, open []models.Commitment) int {
	score := 50.0

	// Velocity contributes up to ±20.
	score += clamp(tr.Velocity*20, -20, 20)

	// Recency against the normal cadence.
	freq := tr.NormalContactFrequencyDays
	switch {
	case tr.DaysSinceLastContact < freq:
		score += 10
	case tr.DaysSinceLastContact > 2*freq:
		score -= 20
	case tr.DaysSinceLastContact >= 1.5*freq:
		score -= 10
	}

	// Activity level.
	switch {
	case tr.AvgMessagesPerWeek >= 3:
		score += 10
	case tr.AvgMessagesPerWeek < 0.5:
		score -= 10
	}

	// Every overdue commitment costs 10, with no floor before the clamp.
	for _, c := range open {
		if c.Status == models.StatusOverdue {
			score -= 10
		}
	}

	// Status ceilings and floors.
	switch status {
	case models.HealthDormant:
		score = math.Min(score, 20)
	case models.HealthAtRisk:
		score = math.Min(score, 30)
	case models.HealthThriving:
		score = math.Max(score, 80)
	}

	return int(clamp(math.Round(score), 0, 100))
}

func hasOverdueOutbound(open []models.Commitment) bool {
	for _, c := range open {
		if c.Status == models.StatusOverdue && c.Direction == models.DirectionOutbound {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
