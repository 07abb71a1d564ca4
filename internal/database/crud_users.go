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

// CreateUser inserts a user. A taken username returns ErrUsernameTaken.
func (db *DB) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	u := &models.User{Username: username, PasswordHash: passwordHash, CreatedAt: Now()}
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO users (username, password_hash, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`, username, passwordHash, u.CreatedAt).Scan(&u.ID)
	if err != nil {
		if IsUniqueConstraintError(err) {
			return nil, fmt.Errorf("username %q: %w", username, ErrUsernameTaken)
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

// GetUserByUsername looks a user up for login.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return db.getUser(ctx, `username = $1`, username)
}

// GetUserByID returns the user or ErrUserNotFound.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return db.getUser(ctx, `id = $1`, id)
}

func (db *DB) getUser(ctx context.Context, where string, arg interface{}) (*models.User, error) {
	var u models.User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}
