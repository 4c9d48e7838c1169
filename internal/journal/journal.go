// Copyright (c) 2026 CallVu Ltd.
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

// Package journal provides a Postgres-backed audit trail of pipeline
// outcomes. It is diagnostics only: writes are best-effort and nothing
// in the pipeline ever reads it back. The authoritative contact state
// stays in the CRM.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/callvu/leadbridge/internal/pipeline"
)

// Store persists pipeline entries in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a journal store backed by the given Postgres pool.
// It ensures the submissions table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure journal schema: %w", err)
	}
	slog.Info("submission journal initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS lead_submissions (
			id            BIGSERIAL PRIMARY KEY,
			submission_id TEXT NOT NULL UNIQUE,
			email         TEXT NOT NULL DEFAULT '',
			risk          TEXT NOT NULL DEFAULT '',
			status        INT NOT NULL,
			error_code    TEXT NOT NULL DEFAULT '',
			action        TEXT NOT NULL DEFAULT '',
			contact_id    TEXT NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_lead_subs_email ON lead_submissions(email);
		CREATE INDEX IF NOT EXISTS idx_lead_subs_created ON lead_submissions(created_at);
	`)
	return err
}

// Record implements pipeline.Recorder. The write runs under its own
// short timeout so a slow database cannot hold a request open.
func (s *Store) Record(ctx context.Context, e pipeline.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO lead_submissions
			(submission_id, email, risk, status, error_code, action, contact_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (submission_id) DO NOTHING
	`, e.SubmissionID, e.Email, e.Risk, e.Status, e.ErrorCode, e.Action, e.ContactID)
	if err != nil {
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
