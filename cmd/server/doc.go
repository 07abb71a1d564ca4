// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

/*
Package main is the entry point for the Threadline server.

Threadline serves pages with threaded comments and votes over a REST API,
and pushes new comments, vote tallies, typing indicators and reply
notifications to browsers over websockets.

# Application Architecture

	threadline
	├── messaging-layer
	│   ├── broadcast-engine
	│   └── nats-relay (NATS_ENABLED=true, build tag: nats)
	└── api-layer
	    └── http-server

Initialization order:

 1. Configuration: Koanf v2 (defaults, optional config file, environment)
 2. Logging: zerolog, JSON or console
 3. Database: DuckDB (embedded) or PostgreSQL, schema created on open
 4. Cache: memory LRU, Redis or Badger for page reads
 5. Registry, broadcast engine and optional NATS relay
 6. Vote ledger, comment store and the discussion service
 7. JWT manager, account service and the Chi router
 8. Supervisor tree, served until SIGINT or SIGTERM

# Configuration

	# Server
	HTTP_HOST=0.0.0.0
	HTTP_PORT=8000
	HTTP_SHUTDOWN_TIMEOUT=10s

	# Storage
	DB_DRIVER=duckdb             # or postgres
	DUCKDB_PATH=/data/threadline.duckdb
	DATABASE_URL=postgres://...  # when DB_DRIVER=postgres

	# Cache
	CACHE_BACKEND=memory         # memory, redis, badger or none
	REDIS_ADDR=localhost:6379

	# Security
	JWT_SECRET=...               # at least 32 characters
	CORS_ORIGINS=https://example.com
	LOGIN_RATE_LIMIT=5

	# Discussion
	COMMENT_EDIT_TIMEOUT=15m

	# Realtime
	WS_SEND_BUFFER=256
	NATS_ENABLED=false
	NATS_URL=nats://127.0.0.1:4222
	NATS_EMBEDDED=true

	# Logging
	LOG_LEVEL=info
	LOG_FORMAT=json

# Build

	go build -o threadline ./cmd/server
	go build -tags nats -o threadline ./cmd/server   # with cross-instance relay
*/
package main
