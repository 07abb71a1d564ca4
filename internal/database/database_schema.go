// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema is idempotent. Foreign keys are deliberately absent: DuckDB
// rejects UPDATEs on rows referenced by a foreign key, and every write path
// validates its references inside the same transaction instead.
func (db *DB) createSchema(ctx context.Context) error {
	for _, query := range schemaQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

func schemaQueries() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS users_id_seq START 1`,
		`CREATE SEQUENCE IF NOT EXISTS pages_id_seq START 1`,
		`CREATE SEQUENCE IF NOT EXISTS comments_id_seq START 1`,
		`CREATE SEQUENCE IF NOT EXISTS votes_id_seq START 1`,

		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY DEFAULT nextval('users_id_seq'),
			username VARCHAR NOT NULL UNIQUE,
			password_hash VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS pages (
			id BIGINT PRIMARY KEY DEFAULT nextval('pages_id_seq'),
			title VARCHAR NOT NULL,
			body VARCHAR NOT NULL,
			author_id BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS comments (
			id BIGINT PRIMARY KEY DEFAULT nextval('comments_id_seq'),
			page_id BIGINT NOT NULL,
			author_id BIGINT NOT NULL,
			content VARCHAR NOT NULL,
			parent_id BIGINT,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS votes (
			id BIGINT PRIMARY KEY DEFAULT nextval('votes_id_seq'),
			user_id BIGINT NOT NULL,
			comment_id BIGINT NOT NULL,
			vote_type VARCHAR NOT NULL CHECK (vote_type IN ('up', 'down')),
			voted_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, comment_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_comments_page ON comments(page_id)`,
		`CREATE INDEX IF NOT EXISTS idx_comments_parent ON comments(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_comment ON votes(comment_id)`,
	}
}
