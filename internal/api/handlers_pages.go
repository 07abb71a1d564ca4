// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/threadline/internal/models"
)

// ListPages returns every page with its live comment count.
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	pages, err := h.svc.ListPages(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if pages == nil {
		pages = []models.Page{}
	}
	respondData(w, http.StatusOK, pages, models.Metadata{QueryTimeMS: time.Since(start).Milliseconds()})
}

// CreatePage stores a page authored by the caller.
func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	page, err := h.svc.CreatePage(r.Context(), viewer(r), req.Title, req.Content)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, page, models.Metadata{})
}

// GetPage returns one page, served from cache when possible.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	start := time.Now()
	page, cached, err := h.svc.GetPage(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, page, models.Metadata{
		QueryTimeMS: time.Since(start).Milliseconds(),
		Cached:      cached,
	})
}

// UpdatePage replaces a page's title and content. Only its author may.
func (h *Handler) UpdatePage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.UpdatePageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	page, err := h.svc.UpdatePage(r.Context(), id, viewer(r), req.Title, req.Content)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, page, models.Metadata{})
}

// PageComments returns a page's live top-level comments, newest first.
func (h *Handler) PageComments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	start := time.Now()
	views, err := h.svc.ListTopLevel(r.Context(), id, viewer(r))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondComments(w, views, start)
}
