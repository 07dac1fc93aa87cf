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

// Package source retrieves message history from the mail archive API.
// Responses are paged; the client walks every page, tolerates malformed
// entries, and returns a deduplicated, time-sorted slice.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/bcem/trajectory/internal/models"
)

// maxPages bounds a paging walk so a misbehaving server that keeps
// returning tokens cannot spin the client forever.
const maxPages = 200

// Client fetches message history over HTTP. The http.Client is expected to
// carry authentication (an oauth2 client-credentials transport in the
// server binary).
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a message source client.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// messagePage is one page of the archive listing.
type messagePage struct {
	Messages      []rawMessage `json:"messages"`
	NextPageToken string       `json:"next_page_token"`
}

// rawMessage mirrors the wire format before validation.
type rawMessage struct {
	ID        string   `json:"id"`
	ThreadID  string   `json:"thread_id"`
	From      string   `json:"from"`
	To        []string `json:"to"`
	CC        []string `json:"cc"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Timestamp string   `json:"timestamp"`
	Labels    []string `json:"labels"`
}

// FetchMessages retrieves all messages for a mailbox since the given time,
// walking every page. Entries without an id or with an unparseable
// timestamp are skipped with a warning rather than failing the fetch.
func (c *Client) FetchMessages(ctx context.Context, userEmail string, since time.Time) ([]models.Message, error) {
	user := models.CanonicalEmail(userEmail)
	byID := make(map[string]models.Message)

	token := ""
	for page := 0; page < maxPages; page++ {
		p, err := c.fetchPage(ctx, user, since, token)
		if err != nil {
			return nil, err
		}

		for _, raw := range p.Messages {
			m, ok := parseMessage(raw, user)
			if !ok {
				continue
			}
			byID[m.ID] = m
		}

		if p.NextPageToken == "" {
			break
		}
		token = p.NextPageToken
	}

	out := make([]models.Message, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})

	slog.Info("fetched message history",
		"user", user,
		"messages", len(out),
		"since", since.Format(time.RFC3339),
	)

	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, userEmail string, since time.Time, pageToken string) (*messagePage, error) {
	q := url.Values{}
	q.Set("user", userEmail)
	q.Set("since", since.UTC().Format(time.RFC3339))
	if pageToken != "" {
		q.Set("page_token", pageToken)
	}
	endpoint := fmt.Sprintf("%s/v1/messages?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("archive API returned HTTP %d for user %s", resp.StatusCode, userEmail)
	}

	var p messagePage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode message page: %w", err)
	}
	return &p, nil
}

// parseMessage validates one wire entry and derives IsFromUser from the
// sender address.
func parseMessage(raw rawMessage, userEmail string) (models.Message, bool) {
	if raw.ID == "" {
		slog.Warn("skipping message without id")
		return models.Message{}, false
	}

	ts, err := time.Parse(time.RFC3339, raw.Timestamp)
	if err != nil {
		slog.Warn("skipping message with bad timestamp",
			"message_id", raw.ID,
			"timestamp", raw.Timestamp,
		)
		return models.Message{}, false
	}

	return models.Message{
		ID:         raw.ID,
		ThreadID:   raw.ThreadID,
		From:       raw.From,
		To:         raw.To,
		CC:         raw.CC,
		Subject:    raw.Subject,
		Body:       raw.Body,
		Timestamp:  ts.UTC(),
		IsFromUser: models.CanonicalEmail(raw.From) == userEmail,
		Labels:     raw.Labels,
	}, true
}
