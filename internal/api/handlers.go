// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/threadline/internal/auth"
	"github.com/tomtom215/threadline/internal/config"
	"github.com/tomtom215/threadline/internal/discussion"
	"github.com/tomtom215/threadline/internal/logging"
	ws "github.com/tomtom215/threadline/internal/websocket"
)

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, websocket upgrader
//   - handlers_helpers.go: response envelope, decoding, error mapping
//   - handlers_health.go: liveness and readiness probes
//   - handlers_auth.go: signup and login
//   - handlers_pages.go: page CRUD
//   - handlers_comments.go: comment CRUD, listing and voting
//   - handlers_websocket.go: page room and notification sockets
type Handler struct {
	svc       *discussion.Service
	accounts  *auth.Service
	engine    *ws.Engine
	config    *config.Config
	startTime time.Time
}

// NewHandler creates a new API handler.
//
// Example:
//
//	handler := api.NewHandler(svc, accounts, engine, cfg)
//	router := api.NewRouter(handler, authMiddleware, cfg)
//	http.ListenAndServe(":8080", router.SetupChi())
func NewHandler(svc *discussion.Service, accounts *auth.Service, engine *ws.Engine, cfg *config.Config) *Handler {
	return &Handler{
		svc:       svc,
		accounts:  accounts,
		engine:    engine,
		config:    cfg,
		startTime: time.Now(),
	}
}

// getUpgrader creates a websocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates websocket connection origins against the
// configured CORS origins. Non-browser clients that send no Origin are
// allowed only when the wildcard origin is configured.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	if h.config == nil {
		return true
	}

	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || (origin != "" && allowed == origin) {
			return true
		}
	}

	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
