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

// Package ledger provides a Postgres-backed store for commitment records.
// The ledger is the durable side of commitment tracking: ids and terminal
// statuses persisted here survive rebuild-from-scratch analysis runs.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/trajectory/internal/models"
)

// Store provides CRUD operations for commitments in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a commitment store backed by the given Postgres pool.
// It ensures the commitments table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure commitment schema: %w", err)
	}
	slog.Info("commitment ledger initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS commitments (
			id                TEXT PRIMARY KEY,
			user_email        TEXT NOT NULL,
			contact_email     TEXT NOT NULL,
			direction         TEXT NOT NULL,
			text              TEXT NOT NULL,
			context           TEXT DEFAULT '',
			source_message_id TEXT NOT NULL,
			source_thread_id  TEXT DEFAULT '',
			source_subject    TEXT DEFAULT '',
			source_date       TIMESTAMPTZ NOT NULL,
			detected_at       TIMESTAMPTZ NOT NULL,
			due_date          TIMESTAMPTZ,
			status            TEXT NOT NULL DEFAULT 'pending',
			fulfilled_at      TIMESTAMPTZ,
			confidence        DOUBLE PRECISION NOT NULL,
			updated_at        TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE(user_email, contact_email, source_message_id, text)
		);
		CREATE INDEX IF NOT EXISTS idx_commitments_contact ON commitments(user_email, contact_email);
		CREATE INDEX IF NOT EXISTS idx_commitments_status ON commitments(status);
	`)
	return err
}

// Upsert inserts or updates a commitment keyed on its detection identity
// (user, contact, source message, text). Fulfilled rows are never downgraded:
// a re-detection of an already-fulfilled commitment leaves the row as is.
func (s *Store) Upsert(ctx context.Context, userEmail, contactEmail string, c models.Commitment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO commitments
			(id, user_email, contact_email, direction, text, context,
			 source_message_id, source_thread_id, source_subject, source_date,
			 detected_at, due_date, status, fulfilled_at, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_email, contact_email, source_message_id, text) DO UPDATE SET
			status       = EXCLUDED.status,
			due_date     = EXCLUDED.due_date,
			fulfilled_at = EXCLUDED.fulfilled_at,
			confidence   = EXCLUDED.confidence,
			updated_at   = NOW()
		WHERE commitments.status <> 'fulfilled'
	`, c.ID, userEmail, contactEmail, string(c.Direction), c.Text, c.Context,
		c.SourceMessageID, c.SourceThreadID, c.SourceSubject, c.SourceDate,
		c.DetectedAt, c.DueDate, string(c.Status), c.FulfilledAt, c.Confidence)
	return err
}

// List returns all commitments between a user and one contact, newest first.
func (s *Store) List(ctx context.Context, userEmail, contactEmail string) ([]models.Commitment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, direction, text, context, source_message_id, source_thread_id,
		       source_subject, source_date, detected_at, due_date, status,
		       fulfilled_at, confidence
		FROM commitments
		WHERE user_email = $1 AND contact_email = $2
		ORDER BY source_date DESC
	`, userEmail, contactEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCommitments(rows)
}

// ListOpen returns all pending or overdue commitments for a user across
// every contact, most overdue first.
func (s *Store) ListOpen(ctx context.Context, userEmail string) ([]models.Commitment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, direction, text, context, source_message_id, source_thread_id,
		       source_subject, source_date, detected_at, due_date, status,
		       fulfilled_at, confidence
		FROM commitments
		WHERE user_email = $1 AND status IN ('pending', 'overdue')
		ORDER BY due_date ASC NULLS LAST, source_date ASC
	`, userEmail)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCommitments(rows)
}

// UpdateStatus sets the status of a commitment by id. Fulfilled rows are
// terminal and never change.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.CommitmentStatus) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE commitments
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status <> 'fulfilled'
	`, string(status), id)
	return err
}

// collectCommitments scans rows into commitment records.
func collectCommitments(rows pgx.Rows) ([]models.Commitment, error) {
	var out []models.Commitment
	for rows.Next() {
		var c models.Commitment
		var direction, status string
		if err := rows.Scan(
			&c.ID, &direction, &c.Text, &c.Context, &c.SourceMessageID,
			&c.SourceThreadID, &c.SourceSubject, &c.SourceDate, &c.DetectedAt,
			&c.DueDate, &status, &c.FulfilledAt, &c.Confidence,
		); err != nil {
			return nil, err
		}
		c.Direction = models.CommitmentDirection(direction)
		c.Status = models.CommitmentStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}
