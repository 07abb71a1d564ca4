// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

// Package database owns the SQL connection for Threadline.
//
// Two drivers share one dialect: embedded DuckDB (default) and Postgres via
// pgx. Queries use $N placeholders, sequences with nextval and RETURNING,
// which both engines accept. The package also stores pages and users; votes
// and comments live in their own packages and borrow the connection through
// Conn().
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tomtom215/threadline/internal/config"
	"github.com/tomtom215/threadline/internal/logging"
)

const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

// DB wraps the SQL connection pool.
type DB struct {
	conn   *sql.DB
	driver string

	// Per-key write locks; see LockKey.
	keyLocks sync.Map
}

// New opens the configured database and creates the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	var (
		conn *sql.DB
		err  error
	)

	switch cfg.Driver {
	case DriverPostgres:
		conn, err = sql.Open("pgx", cfg.DSN)
	case DriverDuckDB, "":
		if cfg.Path != ":memory:" {
			// 0750 per gosec G301
			if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
				}
			}
		}
		conn, err = sql.Open("duckdb", cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DriverDuckDB
	}
	db := &DB{conn: conn, driver: driver}
	db.configureConnectionPool(cfg.MaxOpenConns)

	ctx, cancel := schemaContext()
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if err := db.createSchema(ctx); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().Str("driver", driver).Msg("Database ready")
	return db, nil
}

func (db *DB) configureConnectionPool(maxOpen int) {
	if db.driver == DriverDuckDB {
		// An in-memory DuckDB database exists per connection pool, not per
		// connection, but keeping the pool small avoids write-conflict churn.
		if maxOpen <= 0 || maxOpen > 4 {
			maxOpen = 4
		}
	}
	if maxOpen <= 0 {
		maxOpen = 10
	}
	db.conn.SetMaxOpenConns(maxOpen)
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// Conn returns the underlying pool for the vote ledger and comment store.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Driver returns "duckdb" or "postgres".
func (db *DB) Driver() string {
	return db.driver
}

// Ping checks if the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Close checkpoints DuckDB (flushing the WAL) and closes the pool.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if db.driver == DriverDuckDB {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
			logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
		}
		cancel()
	}
	return db.conn.Close()
}

// LockKey serializes writers that share key within this process and returns
// the unlock function. Used to order vote and comment writes with their
// broadcasts; the database unique constraint covers writers in other
// processes.
func (db *DB) LockKey(key string) func() {
	v, _ := db.keyLocks.LoadOrStore(key, &sync.Mutex{})
	mu, ok := v.(*sync.Mutex)
	if !ok {
		mu = &sync.Mutex{}
		db.keyLocks.Store(key, mu)
	}
	mu.Lock()
	return mu.Unlock
}
