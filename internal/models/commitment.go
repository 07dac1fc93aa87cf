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

// CommitmentDirection says who made the promise.
type CommitmentDirection string

const (
	// DirectionOutbound is a promise made by the user to the contact.
	DirectionOutbound CommitmentDirection = "outbound"
	// DirectionInbound is a promise made by the contact to the user.
	DirectionInbound CommitmentDirection = "inbound"
)

// CommitmentStatus is the lifecycle state of a commitment. Transitions are
// append-only and monotonic: fulfilled is terminal, pending flips to overdue
// automatically once the due date passes, and overdue may still be fulfilled.
type CommitmentStatus string

const (
	StatusPending   CommitmentStatus = "pending"
	StatusOverdue   CommitmentStatus = "overdue"
	StatusFulfilled CommitmentStatus = "fulfilled"
)

// Commitment is a detected promise extracted from a message body.
type Commitment struct {
	ID              string              `json:"id"`
	Direction       CommitmentDirection `json:"direction"`
	Text            string              `json:"text"`
	Context         string              `json:"context,omitempty"`
	SourceMessageID string              `json:"source_message_id"`
	SourceThreadID  string              `json:"source_thread_id,omitempty"`
	SourceSubject   string              `json:"source_subject,omitempty"`
	SourceDate      time.Time           `json:"source_date"`
	DetectedAt      time.Time           `json:"detected_at"`
	DueDate         *time.Time          `json:"due_date,omitempty"`
	Status          CommitmentStatus    `json:"status"`
	FulfilledAt     *time.Time          `json:"fulfilled_at,omitempty"`
	Confidence      float64             `json:"confidence"`
}

// IsOpen reports whether the commitment still awaits fulfillment.
func (c Commitment) IsOpen() bool {
	return c.Status == StatusPending || c.Status == StatusOverdue
}
