// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package api

import (
	"net/http"

	"github.com/tomtom215/threadline/internal/auth"
	"github.com/tomtom215/threadline/internal/logging"
)

// PageSocket upgrades to a websocket joined to a page's comment room. Unknown
// pages are rejected with 404 before the upgrade.
func (h *Handler) PageSocket(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket service unavailable", nil)
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	exists, err := h.svc.PageExists(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if !exists {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Page not found", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade error")
		return
	}

	if _, err := h.engine.OpenPage(conn, auth.IdentityFromContext(r.Context()), id); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Int64("page_id", id).Msg("Page socket rejected")
		_ = conn.Close()
	}
}

// NotificationSocket upgrades to a websocket joined to the caller's
// notification channel. Anonymous callers are upgraded, sent an error frame
// and disconnected.
func (h *Handler) NotificationSocket(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket service unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade error")
		return
	}

	if _, err := h.engine.OpenNotifications(conn, auth.IdentityFromContext(r.Context())); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Notification socket rejected")
	}
}
