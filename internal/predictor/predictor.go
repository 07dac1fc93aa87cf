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

// Package predictor projects a relationship's trajectory forward and
// re-classifies it at the horizon, holding commitments fixed.
package predictor

import (
	"math"

	"github.com/bcem/trajectory/internal/health"
	"github.com/bcem/trajectory/internal/models"
)

// DefaultHorizonDays is the standard projection window.
const DefaultHorizonDays = 30

// Predict projects the trajectory horizonDays forward and derives the
// predicted status, dormancy countdown, status-change countdown, urgency
// and recommendation.
func Predict(tr models.Trajectory, status models.HealthStatus, open []models.Commitment, horizonDays int) models.Prediction {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}

	projected := project(tr, horizonDays)
	predicted := health.Classify(projected, open)

	p := models.Prediction{
		HorizonDays:     horizonDays,
		PredictedStatus: predicted,
		Confidence:      confidence(tr.DataPoints),
	}

	if predicted != status {
		if day := firstDeviation(tr, status, open, horizonDays); day > 0 {
			p.DaysUntilStatusChange = &day
		}
	}

	p.DaysUntilDormant = daysUntilDormant(tr)
	p.Urgency = urgency(status, predicted, open)
	p.Recommendation = recommendation(status, hasOverdue(open))

	return p
}

// project applies the decay formula at a day offset: the weekly rate drifts
// by velocity×days/7 (floored at zero) and days-since-contact grows by the
// offset.
func project(tr models.Trajectory, days int) models.Trajectory {
	out := tr
	out.AvgMessagesPerWeek = math.Max(0, tr.AvgMessagesPerWeek+tr.Velocity*float64(days)/7)
	out.DaysSinceLastContact = tr.DaysSinceLastContact + float64(days)
	return out
}

// firstDeviation binary-searches day offsets in [1, horizon] for the
// smallest offset whose classification differs from the current status.
// The classifier is not monotonic in the offset, so this finds the first
// deviation the search happens to probe, not necessarily the earliest true
// deviation. Accepted approximation.
func firstDeviation(tr models.Trajectory, status models.HealthStatus, open []models.Commitment, horizon int) int {
	lo, hi := 1, horizon
	found := false
	for lo < hi {
		mid := (lo + hi) / 2
		if health.Classify(project(tr, mid), open) != status {
			hi = mid
			found = true
		} else {
			lo = mid + 1
		}
	}
	if !found && health.Classify(project(tr, lo), open) == status {
		return 0
	}
	return lo
}

// daysUntilDormant counts down to the dormancy threshold for declining
// relationships. Nil when engagement is not declining, zero when already
// past the threshold.
func daysUntilDormant(tr models.Trajectory) *int {
	if tr.Velocity >= 0 {
		return nil
	}
	remaining := health.DormantThresholdDays(tr) - tr.DaysSinceLastContact
	days := int(math.Ceil(remaining))
	if days < 0 {
		days = 0
	}
	return &days
}

// confidence grows with observed data, clamped to [0.3, 0.95].
func confidence(dataPoints int) float64 {
	c := float64(dataPoints) / 20
	return math.Max(0.3, math.Min(0.95, c))
}

func urgency(status, predicted models.HealthStatus, open []models.Commitment) models.Urgency {
	overdue := hasOverdue(open)
	switch {
	case status == models.HealthAtRisk && overdue:
		return models.UrgencyCritical
	case status == models.HealthAtRisk,
		predicted == models.HealthDormant && status != models.HealthDormant:
		return models.UrgencyHigh
	case status == models.HealthDecaying,
		status == models.HealthCooling && overdue:
		return models.UrgencyMedium
	case status == models.HealthCooling, status == models.HealthDormant:
		return models.UrgencyLow
	default:
		return models.UrgencyNone
	}
}

// recommendation is a fixed decision table keyed on status and overdue
// commitment presence.
func recommendation(status models.HealthStatus, overdue bool) string {
	if overdue {
		switch status {
		case models.HealthAtRisk:
			return "Deliver the overdue promise now — the relationship is already slipping."
		case models.HealthDormant:
			return "Re-open the thread and close out the overdue promise."
		default:
			return "Close out the overdue promise before it erodes trust."
		}
	}

	switch status {
	case models.HealthNew:
		return "Too little history yet — keep the conversation going."
	case models.HealthThriving:
		return "Momentum is strong — no action needed."
	case models.HealthStrong:
		return "Healthy cadence — maintain the current rhythm."
	case models.HealthStable:
		return "Steady — a proactive check-in would not hurt."
	case models.HealthCooling:
		return "Engagement is drifting down — send a check-in this week."
	case models.HealthDecaying:
		return "Volume is falling fast — reach out with something of value."
	case models.HealthAtRisk:
		return "Re-engage directly and ask what they need."
	case models.HealthDormant:
		return "Long silence — restart with a fresh, low-pressure note."
	default:
		return "Keep in touch."
	}
}

func hasOverdue(open []models.Commitment) bool {
	for _, c := range open {
		if c.Status == models.StatusOverdue {
			return true
		}
	}
	return false
}
