// Package repository persists campaigns and their per-target submissions in
// PostgreSQL. All statements go through the DB interface so tests can run
// against pgxmock instead of a live pool.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repositories use.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
	id             UUID PRIMARY KEY,
	account_id     UUID NOT NULL,
	message        TEXT NOT NULL,
	target_count   INT NOT NULL DEFAULT 0,
	success_count  INT NOT NULL DEFAULT 0,
	failure_count  INT NOT NULL DEFAULT 0,
	status         TEXT NOT NULL DEFAULT 'created',
	stop_requested BOOLEAN NOT NULL DEFAULT FALSE,
	started_at     TIMESTAMPTZ,
	completed_at   TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS submissions (
	id                  UUID PRIMARY KEY,
	campaign_id         UUID NOT NULL REFERENCES campaigns(id),
	target_url          TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending',
	method              TEXT NOT NULL DEFAULT '',
	extracted_email     TEXT NOT NULL DEFAULT '',
	captcha_encountered BOOLEAN NOT NULL DEFAULT FALSE,
	captcha_solved      BOOLEAN NOT NULL DEFAULT FALSE,
	outcome             TEXT NOT NULL DEFAULT '',
	fields_filled       INT NOT NULL DEFAULT 0,
	retry_count         INT NOT NULL DEFAULT 0,
	error_detail        TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at          TIMESTAMPTZ,
	completed_at        TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS submissions_campaign_status_idx
	ON submissions (campaign_id, status, created_at);
`

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db DB) error {
	_, err := db.Exec(ctx, schema)
	return err
}
