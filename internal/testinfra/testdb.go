// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

// Package testinfra provides shared test fixtures: an in-memory DuckDB
// database for store tests and, behind the integration build tag, Docker
// containers for Postgres and Redis.
package testinfra

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/threadline/internal/config"
	"github.com/tomtom215/threadline/internal/database"
	"github.com/tomtom215/threadline/internal/logging"
	"github.com/tomtom215/threadline/internal/models"
)

// testDBSemaphore serializes DuckDB tests within one test binary.
var testDBSemaphore = make(chan struct{}, 1)

// NewTestDB opens a fresh in-memory DuckDB database with the schema applied.
// The database is closed when the test ends.
func NewTestDB(t testing.TB) *database.DB {
	t.Helper()
	logging.Init(logging.Config{Level: "error", Output: io.Discard})

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	type result struct {
		db  *database.DB
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		db, err := database.New(&config.DatabaseConfig{Driver: database.DriverDuckDB, Path: ":memory:"})
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Failed to create test database: %v", res.err)
		}
		t.Cleanup(func() {
			if err := res.db.Close(); err != nil {
				t.Errorf("Failed to close test database: %v", err)
			}
		})
		return res.db
	case <-time.After(120 * time.Second):
		t.Fatal("Timeout creating test database")
		return nil
	}
}

// SeedUser creates a user with a placeholder password hash.
func SeedUser(t testing.TB, db *database.DB, username string) *models.User {
	t.Helper()
	u, err := db.CreateUser(context.Background(), username, "x")
	if err != nil {
		t.Fatalf("SeedUser(%s): %v", username, err)
	}
	return u
}

// SeedPage creates a page owned by authorID.
func SeedPage(t testing.TB, db *database.DB, authorID int64, title string) *models.Page {
	t.Helper()
	p, err := db.CreatePage(context.Background(), authorID, title, title+" body")
	if err != nil {
		t.Fatalf("SeedPage(%s): %v", title, err)
	}
	return p
}
