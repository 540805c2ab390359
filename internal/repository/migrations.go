package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

type migration struct {
	version int
	sql     string
}

// migrations are applied in order inside one transaction each; applied
// versions are recorded in schema_migrations.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS accounts (
	id                   BIGSERIAL PRIMARY KEY,
	platform_user_id     TEXT NOT NULL UNIQUE,
	handle               TEXT NOT NULL DEFAULT '',
	access_token         TEXT NOT NULL,
	timezone             TEXT NOT NULL DEFAULT 'UTC',
	active               BOOLEAN NOT NULL DEFAULT TRUE,
	pause_reason         TEXT NOT NULL DEFAULT '',
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS posts (
	id                BIGSERIAL PRIMARY KEY,
	account_id        BIGINT NOT NULL REFERENCES accounts(id) ON DELETE RESTRICT,
	platform          TEXT NOT NULL DEFAULT 'instagram',
	post_type         TEXT NOT NULL DEFAULT 'photo',
	media_url         TEXT NOT NULL,
	caption           TEXT NOT NULL DEFAULT '',
	scheduled_at      TIMESTAMPTZ NOT NULL,
	status            TEXT NOT NULL DEFAULT 'scheduled',
	retry_count       INTEGER NOT NULL DEFAULT 0,
	error_code        TEXT,
	publish_result    JSONB NOT NULL DEFAULT '{}'::jsonb,
	client_request_id TEXT,
	locked_at         TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_posts_account_scheduled
	ON posts (account_id, scheduled_at, id);
CREATE INDEX IF NOT EXISTS idx_posts_status_scheduled
	ON posts (status, scheduled_at);
CREATE UNIQUE INDEX IF NOT EXISTS uq_posts_account_client_request
	ON posts (account_id, client_request_id)
	WHERE client_request_id IS NOT NULL;
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS media_assets (
	id          UUID PRIMARY KEY,
	account_id  BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	stored_path TEXT NOT NULL,
	media_url   TEXT NOT NULL,
	bytes       BIGINT NOT NULL DEFAULT 0,
	sha256      TEXT NOT NULL,
	short_hash  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (account_id, sha256)
);
`,
	},
}

// Migrate brings the schema up to date.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		applied, err := migrationApplied(ctx, db, m.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}
		if err := withTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("apply migration %d: %w", m.version, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
				return fmt.Errorf("record migration %d: %w", m.version, err)
			}
			return nil
		}); err != nil {
			return err
		}
		log.Printf("[DB] migration applied: version=%d", m.version)
	}
	return nil
}

func migrationApplied(ctx context.Context, db *sql.DB, version int) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %d: %w", version, err)
	}
	return exists, nil
}
