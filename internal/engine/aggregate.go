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
	"sort"
	"time"

	"github.com/bcem/trajectory/internal/models"
)

// trendThreshold is the velocity magnitude past which a relationship
// counts as growing or declining in the map stats.
const trendThreshold = 0.2

// assemble sorts relationships ascending by score so the most at-risk
// contacts surface first, builds the status index and computes map stats.
func assemble(userEmail string, rels []models.Relationship, now time.Time) models.RelationshipMap {
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].Score != rels[j].Score {
			return rels[i].Score < rels[j].Score
		}
		return rels[i].Contact.Email < rels[j].Contact.Email
	})

	byStatus := make(map[models.HealthStatus][]string, len(models.AllHealthStatuses))
	for _, r := range rels {
		byStatus[r.Status] = append(byStatus[r.Status], r.Contact.Email)
	}

	return models.RelationshipMap{
		UserEmail:     userEmail,
		Relationships: rels,
		ByStatus:      byStatus,
		Stats:         computeStats(rels),
		GeneratedAt:   now,
	}
}

func computeStats(rels []models.Relationship) models.MapStats {
	stats := models.MapStats{
		Contacts:     len(rels),
		StatusCounts: make(map[models.HealthStatus]int),
	}

	var latencySum float64
	var latencyCount int
	var weeklySum float64

	for _, r := range rels {
		stats.StatusCounts[r.Status]++
		weeklySum += r.Trajectory.AvgMessagesPerWeek

		if r.Trajectory.AvgResponseMinutes != nil {
			latencySum += *r.Trajectory.AvgResponseMinutes
			latencyCount++
		}

		for _, c := range r.OpenCommitments {
			stats.OpenCommitments++
			if c.Status == models.StatusOverdue {
				stats.OverdueCommitments++
			}
		}

		switch {
		case r.Trajectory.Velocity > trendThreshold:
			stats.GrowingRelationships++
		case r.Trajectory.Velocity < -trendThreshold:
			stats.DecliningRelations++
		}
	}

	if len(rels) > 0 {
		stats.AvgMessagesPerWeek = weeklySum / float64(len(rels))
	}
	if latencyCount > 0 {
		avg := latencySum / float64(latencyCount)
		stats.AvgResponseMinutes = &avg
	}

	return stats
}
