package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schemaDDL creates the two document-store tables if they do not already
// exist: a small, fast-query metadata table and a larger content table
// keyed by content hash so identical bodies are stored once regardless of
// how many URLs resolve to them.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS pages_metadata (
	url                  TEXT NOT NULL,
	normalized_url       TEXT PRIMARY KEY,
	status               INTEGER NOT NULL,
	content_type         TEXT NOT NULL DEFAULT '',
	content_length       BIGINT NOT NULL DEFAULT 0,
	content_hash         TEXT NOT NULL DEFAULT '',
	fetched_at           TIMESTAMPTZ NOT NULL,
	worker_id            TEXT NOT NULL DEFAULT '',
	outbound_link_count  INTEGER NOT NULL DEFAULT 0,
	headers              JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pages_metadata_content_hash ON pages_metadata (content_hash);

CREATE TABLE IF NOT EXISTS pages_content (
	content_hash     TEXT PRIMARY KEY,
	compressed_body  BYTEA NOT NULL,
	original_length  INTEGER NOT NULL,
	compression      TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the document-store tables if they don't already
// exist. Safe to call on every process startup.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("storage: ensure schema: %w", err)
	}
	return nil
}
