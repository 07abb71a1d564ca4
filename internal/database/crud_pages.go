// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tomtom215/threadline/internal/models"
)

// pageSelect joins the author name and the live top-level comment count.
const pageSelect = `
	SELECT p.id, p.title, p.body, p.author_id, COALESCE(u.username, ''),
		(SELECT COUNT(*) FROM comments c WHERE c.page_id = p.id AND c.parent_id IS NULL AND c.is_deleted = FALSE),
		p.created_at, p.updated_at
	FROM pages p
	LEFT JOIN users u ON u.id = p.author_id`

func scanPage(row interface{ Scan(...interface{}) error }) (*models.Page, error) {
	var p models.Page
	if err := row.Scan(&p.ID, &p.Title, &p.Body, &p.AuthorID, &p.AuthorName,
		&p.CommentCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePage inserts a page owned by authorID.
func (db *DB) CreatePage(ctx context.Context, authorID int64, title, body string) (*models.Page, error) {
	now := Now()
	var id int64
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO pages (title, body, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, title, body, authorID, now, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert page: %w", err)
	}
	return db.GetPage(ctx, id)
}

// GetPage returns the page with its comment count, or ErrPageNotFound.
func (db *DB) GetPage(ctx context.Context, id int64) (*models.Page, error) {
	p, err := scanPage(db.conn.QueryRowContext(ctx, pageSelect+` WHERE p.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page %d: %w", id, ErrPageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query page: %w", err)
	}
	return p, nil
}

// ListPages returns every page, newest first.
func (db *DB) ListPages(ctx context.Context) ([]models.Page, error) {
	rows, err := db.conn.QueryContext(ctx, pageSelect+` ORDER BY p.created_at DESC, p.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer closeWithLog(rows, "rows")

	pages := []models.Page{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pages: %w", err)
	}
	return pages, nil
}

// UpdatePage changes title and body. Only the author may edit.
func (db *DB) UpdatePage(ctx context.Context, id, actorID int64, title, body string) (*models.Page, error) {
	var authorID int64
	err := db.conn.QueryRowContext(ctx, `SELECT author_id FROM pages WHERE id = $1`, id).Scan(&authorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page %d: %w", id, ErrPageNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query page: %w", err)
	}
	if authorID != actorID {
		return nil, &models.PermissionError{Action: "edit page", Message: "only the author can edit this page"}
	}

	if _, err := db.conn.ExecContext(ctx, `
		UPDATE pages SET title = $1, body = $2, updated_at = $3 WHERE id = $4`,
		title, body, Now(), id); err != nil {
		return nil, fmt.Errorf("failed to update page: %w", err)
	}
	return db.GetPage(ctx, id)
}

// PageExists reports whether a page with id exists.
func (db *DB) PageExists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE id = $1`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check page: %w", err)
	}
	return n > 0, nil
}
