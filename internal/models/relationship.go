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

package models

import "time"

// TimeSeriesPoint is one fixed-width activity window for a single contact.
// The full series is rebuilt from scratch each run, never patched.
type TimeSeriesPoint struct {
	PeriodStart        time.Time `json:"period_start"`
	PeriodEnd          time.Time `json:"period_end"`
	Sent               int       `json:"sent"`
	Received           int       `json:"received"`
	Total              int       `json:"total"`
	AvgResponseMinutes *float64  `json:"avg_response_minutes,omitempty"`
	InitiatedByUser    int       `json:"initiated_by_user"`
	InitiatedByContact int       `json:"initiated_by_contact"`

	// Sentiment is a placeholder; it stays nil unless a sentiment source
	// is wired in.
	Sentiment *float64 `json:"sentiment,omitempty"`
}

// Trajectory holds the derived movement metrics for one contact's series.
type Trajectory struct {
	Velocity                   float64  `json:"velocity"`     // messages/week slope
	Acceleration               float64  `json:"acceleration"` // Δvelocity between halves
	AvgMessagesPerWeek         float64  `json:"avg_messages_per_week"`
	AvgResponseMinutes         *float64 `json:"avg_response_minutes,omitempty"`
	NormalContactFrequencyDays float64  `json:"normal_contact_frequency_days"`
	DaysSinceLastContact       float64  `json:"days_since_last_contact"`
	InitiationRatio            float64  `json:"initiation_ratio"`
	DataPoints                 int      `json:"data_points"`
}

// HealthStatus is the categorical relationship state.
type HealthStatus string

const (
	HealthNew      HealthStatus = "new"
	HealthThriving HealthStatus = "thriving"
	HealthStrong   HealthStatus = "strong"
	HealthStable   HealthStatus = "stable"
	HealthCooling  HealthStatus = "cooling"
	HealthDecaying HealthStatus = "decaying"
	HealthAtRisk   HealthStatus = "at_risk"
	HealthDormant  HealthStatus = "dormant"
)

// AllHealthStatuses lists every reachable status, in display order.
var AllHealthStatuses = []HealthStatus{
	HealthNew, HealthThriving, HealthStrong, HealthStable,
	HealthCooling, HealthDecaying, HealthAtRisk, HealthDormant,
}

// Urgency grades how quickly the user should act on a relationship.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
	UrgencyNone     Urgency = "none"
)

// Prediction is the forward projection of a relationship's health.
type Prediction struct {
	HorizonDays           int          `json:"horizon_days"`
	PredictedStatus       HealthStatus `json:"predicted_status"`
	DaysUntilDormant      *int         `json:"days_until_dormant,omitempty"`
	DaysUntilStatusChange *int         `json:"days_until_status_change,omitempty"`
	Confidence            float64      `json:"confidence"`
	Urgency               Urgency      `json:"urgency"`
	Recommendation        string       `json:"recommendation"`
}

// Relationship is the aggregate record for one (user, contact) pair,
// rebuilt wholesale on every extraction cycle.
type Relationship struct {
	Contact          Person       `json:"contact"`
	Trajectory       Trajectory   `json:"trajectory"`
	Commitments      []Commitment `json:"commitments,omitempty"`
	OpenCommitments  []Commitment `json:"open_commitments,omitempty"`
	Status           HealthStatus `json:"status"`
	Score            int          `json:"score"`
	Prediction       Prediction   `json:"prediction"`
	FirstInteraction time.Time    `json:"first_interaction"`
	LastInteraction  time.Time    `json:"last_interaction"`
	TotalMessages    int          `json:"total_messages"`
}

// MapStats are the aggregate statistics over a full RelationshipMap.
type MapStats struct {
	Contacts             int                  `json:"contacts"`
	StatusCounts         map[HealthStatus]int `json:"status_counts"`
	OpenCommitments      int                  `json:"open_commitments"`
	OverdueCommitments   int                  `json:"overdue_commitments"`
	AvgResponseMinutes   *float64             `json:"avg_response_minutes,omitempty"`
	AvgMessagesPerWeek   float64              `json:"avg_messages_per_week"`
	GrowingRelationships int                  `json:"growing_relationships"`   // velocity > 0.2
	DecliningRelations   int                  `json:"declining_relationships"` // velocity < -0.2
}

// RelationshipMap is the immutable per-run snapshot for one user.
// Relationships are sorted ascending by health score so at-risk contacts
// surface first.
type RelationshipMap struct {
	UserEmail     string                    `json:"user_email"`
	Relationships []Relationship            `json:"relationships"`
	ByStatus      map[HealthStatus][]string `json:"by_status"` // contact emails per bucket
	Stats         MapStats                  `json:"stats"`
	GeneratedAt   time.Time                 `json:"generated_at"`
}
