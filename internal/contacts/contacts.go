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

// Package contacts resolves raw addresses into canonical Person identities
// and partitions a user's messages into per-contact groups.
package contacts

import (
	"net/mail"
	"sort"
	"strings"

	"github.com/bcem/trajectory/internal/models"
)

// GrouperConfig controls which contacts are kept.
type GrouperConfig struct {
	UserEmail        string
	ExcludedDomains  []string // dropped when the contact domain has this suffix
	ExcludedPatterns []string // dropped when the contact address contains this
}

// Resolve normalizes a raw sender/recipient string ("Name <addr>" or a bare
// address) into a canonical Person.
func Resolve(raw string) models.Person {
	var p models.Person

	if addr, err := mail.ParseAddress(raw); err == nil {
		p.Email = models.CanonicalEmail(addr.Address)
		p.Name = strings.TrimSpace(addr.Name)
	} else {
		p.Email = models.CanonicalEmail(raw)
	}

	if at := strings.LastIndex(p.Email, "@"); at >= 0 && at+1 < len(p.Email) {
		p.Domain = p.Email[at+1:]
		p.Company = inferCompany(p.Domain)
	}

	return p
}

// inferCompany strips the TLD and any www prefix from a domain and keeps
// the leading label: "www.acme.co.uk" → "acme".
func inferCompany(domain string) string {
	domain = strings.TrimPrefix(domain, "www.")
	labels := strings.Split(domain, ".")
	if len(labels) == 0 || labels[0] == "" {
		return ""
	}
	return labels[0]
}

// Group partitions a user's messages into canonical-contact-email → message
// list. Messages are deduped by id first; messages with no resolvable other
// party, or whose other party is the user or excluded, are dropped.
//
// A message with several non-user recipients is attributed only to the first
// one (the "primary"). This mirrors the established behaviour downstream
// briefing consumers depend on; do not silently change it.
func Group(msgs []models.Message, cfg GrouperConfig) map[string][]models.Message {
	user := models.CanonicalEmail(cfg.UserEmail)

	groups := make(map[string][]models.Message)
	seen := make(map[string]bool)

	for _, m := range msgs {
		if m.ID == "" || seen[m.ID] {
			continue
		}
		seen[m.ID] = true

		other := otherParty(m, user)
		if other == "" || other == user {
			continue
		}
		if excluded(other, cfg) {
			continue
		}

		groups[other] = append(groups[other], m)
	}

	for email := range groups {
		g := groups[email]
		sort.Slice(g, func(i, j int) bool {
			if !g[i].Timestamp.Equal(g[j].Timestamp) {
				return g[i].Timestamp.Before(g[j].Timestamp)
			}
			return g[i].ID < g[j].ID
		})
		groups[email] = g
	}

	return groups
}

// otherParty picks the contact side of a message: the first non-user
// recipient (To, then CC) when the user sent it, else the sender.
func otherParty(m models.Message, user string) string {
	if !m.IsFromUser {
		return Resolve(m.From).Email
	}
	for _, list := range [][]string{m.To, m.CC} {
		for _, raw := range list {
			if email := Resolve(raw).Email; email != "" && email != user {
				return email
			}
		}
	}
	return ""
}

func excluded(email string, cfg GrouperConfig) bool {
	domain := ""
	if at := strings.LastIndex(email, "@"); at >= 0 {
		domain = email[at+1:]
	}
	for _, d := range cfg.ExcludedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" && (domain == d || strings.HasSuffix(domain, "."+d)) {
			return true
		}
	}
	for _, pat := range cfg.ExcludedPatterns {
		pat = strings.ToLower(strings.TrimSpace(pat))
		if pat != "" && strings.Contains(email, pat) {
			return true
		}
	}
	return false
}
