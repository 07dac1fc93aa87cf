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

// Package oracle is the client for the external text-classification service
// that spots promise-like statements in message bodies. It sends a bounded
// prompt and requires a strict JSON-schema response, so malformed model
// output surfaces as a decode error rather than a mis-shaped result.
package oracle

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// maxBodyChars bounds how much of a message body goes into the prompt.
const maxBodyChars = 1500

// Request carries one message to classify.
type Request struct {
	Sender     string
	Recipients []string
	Subject    string
	Date       time.Time
	Body       string
}

// Candidate is one promise-like statement the oracle found.
type Candidate struct {
	// Text is the exact quoted commitment sentence.
	Text string `json:"text" jsonschema_description:"The exact sentence containing the commitment, quoted verbatim"`
	// Party is who made the promise: "sender" or "recipient".
	Party string `json:"party" jsonschema:"enum=sender,enum=recipient" jsonschema_description:"Who is making the commitment"`
	// DueDate is an ISO date (YYYY-MM-DD) or empty when none was stated.
	DueDate string `json:"due_date" jsonschema_description:"Due date in YYYY-MM-DD format, or empty string if none"`
	// Context is a short paraphrase of the surrounding discussion.
	Context string `json:"context" jsonschema_description:"One sentence of surrounding context"`
	// Confidence is the oracle's certainty in [0,1].
	Confidence float64 `json:"confidence" jsonschema_description:"Confidence between 0 and 1 that this is a real commitment"`
}

// Result is the structured classification response.
type Result struct {
	Commitments []Candidate `json:"commitments" jsonschema_description:"All commitments found, or an empty list"`
}

// Valid reports whether a candidate has the required shape. Entries failing
// this are dropped rather than trusted.
func (c Candidate) Valid() bool {
	if strings.TrimSpace(c.Text) == "" {
		return false
	}
	if c.Party != "sender" && c.Party != "recipient" {
		return false
	}
	return c.Confidence >= 0 && c.Confidence <= 1
}

// BuildPrompt renders the bounded classification prompt for one message.
func BuildPrompt(req Request) string {
	body := req.Body
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars] + "…"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", req.Sender)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(req.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", req.Subject)
	fmt.Fprintf(&b, "Date: %s\n\n", req.Date.UTC().Format("2006-01-02"))
	b.WriteString(body)
	return b.String()
}

// decodeResult parses the model's JSON output defensively.
func decodeResult(raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	// Some models wrap JSON in fences despite strict mode.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var out Result
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return Result{}, fmt.Errorf("decode oracle result: %w", err)
	}
	return out, nil
}
