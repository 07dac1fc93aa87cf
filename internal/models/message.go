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

// Package models defines the data structures shared across the trajectory
// engine: normalized messages as supplied by the email source, the canonical
// contact identity, and the derived relationship records.
package models

import (
	"strings"
	"time"
)

// Message is a normalized email record as supplied by the email source.
// The engine treats it as read-only input.
type Message struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	From       string    `json:"from"`
	To         []string  `json:"to"`
	CC         []string  `json:"cc,omitempty"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
	IsFromUser bool      `json:"is_from_user"`
	Labels     []string  `json:"labels,omitempty"`
}

// Person is the canonical identity of an external contact. It is recomputed
// on every extraction run, never stored as mutable identity.
type Person struct {
	Email   string `json:"email"` // canonical lower-cased address
	Name    string `json:"name,omitempty"`
	Domain  string `json:"domain,omitempty"`
	Company string `json:"company,omitempty"`
}

// CanonicalEmail lower-cases and trims an address for identity comparison.
func CanonicalEmail(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
