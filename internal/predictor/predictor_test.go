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

package predictor

import (
	"testing"

	"github.com/bcem/trajectory/internal/health"
	"github.com/bcem/trajectory/internal/models"
)

func traj(velocity, avg, freqDays, daysSince float64, points int) models.Trajectory {
	return models.Trajectory{
		Velocity:                   velocity,
		AvgMessagesPerWeek:         avg,
		NormalContactFrequencyDays: freqDays,
		DaysSinceLastContact:       daysSince,
		DataPoints:                 points,
	}
}

// TestPredict_DeclineTrendsDormant: a steep decline is predicted to reach
// decaying/dormant within the horizon.
func TestPredict_DeclineTrendsDormant(t *testing.T) {
	tr := traj(-1.2, 4, 7, 5, 10)
	status := health.Classify(tr, nil)

	p := Predict(tr, status, nil, 30)
	if p.PredictedStatus != models.HealthDormant && p.PredictedStatus != models.HealthDecaying {
		t.Errorf("predicted = %s, want decaying or dormant", p.PredictedStatus)
	}
	if p.DaysUntilDormant == nil {
		t.Fatal("expected a dormancy countdown for negative velocity")
	}
	// Threshold is min(3×7, 90) = 21; 21 − 5 = 16 days out.
	if *p.DaysUntilDormant != 16 {
		t.Errorf("DaysUntilDormant = %d, want 16", *p.DaysUntilDormant)
	}
}

// TestPredict_StableStaysPut: flat trajectories report no status change and
// no dormancy countdown.
func TestPredict_StableStaysPut(t *testing.T) {
	tr := traj(0, 2, 7, 2, 10)
	status := health.Classify(tr, nil)

	p := Predict(tr, status, nil, 30)
	if p.DaysUntilDormant != nil {
		t.Errorf("DaysUntilDormant = %v, want nil for non-negative velocity", *p.DaysUntilDormant)
	}
	if p.PredictedStatus == status && p.DaysUntilStatusChange != nil {
		t.Errorf("unexpected status change in %d days", *p.DaysUntilStatusChange)
	}
}

// TestPredict_StatusChangeWithinHorizon verifies the search finds a
// deviation day consistent with the projection formula.
func TestPredict_StatusChangeWithinHorizon(t *testing.T) {
	// Stable today, but 3 days from the dormancy threshold.
	tr := traj(-0.1, 1, 10, 27, 10)
	status := health.Classify(tr, nil)
	if status == models.HealthDormant {
		t.Fatalf("precondition failed: already dormant")
	}

	p := Predict(tr, status, nil, 30)
	if p.PredictedStatus != models.HealthDormant {
		t.Fatalf("predicted = %s, want dormant", p.PredictedStatus)
	}
	if p.DaysUntilStatusChange == nil {
		t.Fatal("expected days-until-status-change")
	}

	day := *p.DaysUntilStatusChange
	if health.Classify(project(tr, day), nil) == status {
		t.Errorf("classification at day %d still %s", day, status)
	}
	if day > 1 && health.Classify(project(tr, day-1), nil) != status {
		t.Errorf("day %d is not the first deviation found", day)
	}
}

// TestPredict_AlreadyPastThreshold reports zero days until dormant.
func TestPredict_AlreadyPastThreshold(t *testing.T) {
	tr := traj(-0.4, 0.2, 14, 200, 10)
	p := Predict(tr, models.HealthDormant, nil, 30)
	if p.DaysUntilDormant == nil || *p.DaysUntilDormant != 0 {
		t.Errorf("DaysUntilDormant = %v, want 0", p.DaysUntilDormant)
	}
}

// TestConfidence verifies the clamp at both ends.
func TestConfidence(t *testing.T) {
	cases := []struct {
		points int
		want   float64
	}{
		{0, 0.3},
		{4, 0.3},
		{10, 0.5},
		{19, 0.95},
		{100, 0.95},
	}
	for _, c := range cases {
		if got := confidence(c.points); got != c.want {
			t.Errorf("confidence(%d) = %v, want %v", c.points, got, c.want)
		}
	}
}

// TestUrgency covers the decision table's edges.
func TestUrgency(t *testing.T) {
	overdue := []models.Commitment{{Status: models.StatusOverdue, Direction: models.DirectionOutbound}}

	if got := urgency(models.HealthAtRisk, models.HealthAtRisk, overdue); got != models.UrgencyCritical {
		t.Errorf("at_risk+overdue = %s, want critical", got)
	}
	if got := urgency(models.HealthAtRisk, models.HealthAtRisk, nil); got != models.UrgencyHigh {
		t.Errorf("at_risk = %s, want high", got)
	}
	if got := urgency(models.HealthStable, models.HealthDormant, nil); got != models.UrgencyHigh {
		t.Errorf("heading dormant = %s, want high", got)
	}
	if got := urgency(models.HealthThriving, models.HealthThriving, nil); got != models.UrgencyNone {
		t.Errorf("thriving = %s, want none", got)
	}
	if got := urgency(models.HealthCooling, models.HealthCooling, nil); got != models.UrgencyLow {
		t.Errorf("cooling = %s, want low", got)
	}
}

// TestRecommendation_NonEmpty guarantees the table covers every status.
func TestRecommendation_NonEmpty(t *testing.T) {
	for _, status := range models.AllHealthStatuses {
		for _, overdue := range []bool{true, false} {
			if recommendation(status, overdue) == "" {
				t.Errorf("empty recommendation for %s overdue=%v", status, overdue)
			}
		}
	}
}
