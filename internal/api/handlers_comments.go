// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/threadline/internal/comments"
	"github.com/tomtom215/threadline/internal/models"
)

// ListComments returns live comments filtered by the page and parent query
// parameters. parent=null selects top-level comments only.
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseCommentFilter(w, r)
	if !ok {
		return
	}

	start := time.Now()
	views, err := h.svc.ListComments(r.Context(), filter, viewer(r))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondComments(w, views, start)
}

func parseCommentFilter(w http.ResponseWriter, r *http.Request) (comments.Filter, bool) {
	var f comments.Filter
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		id, err := parseID(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid page: must be a positive integer", nil)
			return f, false
		}
		f.PageID = &id
	}

	switch v := q.Get("parent"); v {
	case "":
	case "null":
		f.TopLevel = true
	default:
		id, err := parseID(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid parent: must be a positive integer or null", nil)
			return f, false
		}
		f.ParentID = &id
	}
	return f, true
}

func respondComments(w http.ResponseWriter, views []models.CommentView, start time.Time) {
	if views == nil {
		views = []models.CommentView{}
	}
	respondData(w, http.StatusOK, views, models.Metadata{QueryTimeMS: time.Since(start).Milliseconds()})
}

// CreateComment stores a comment or a reply by the caller.
func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.svc.CreateComment(r.Context(), viewer(r), req.PageID, req.Content, req.ParentID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, view, models.Metadata{})
}

// GetComment returns one comment. Deleted comments come back as tombstones.
func (h *Handler) GetComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	view, err := h.svc.GetComment(r.Context(), id, viewer(r))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, view, models.Metadata{})
}

// EditComment replaces a comment's content.
func (h *Handler) EditComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.EditCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	view, err := h.svc.EditComment(r.Context(), viewer(r), id, req.Content)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, view, models.Metadata{})
}

// DeleteComment soft-deletes a comment.
func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteComment(r.Context(), viewer(r), id); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, map[string]interface{}{
		"id":         id,
		"is_deleted": true,
	}, models.Metadata{})
}

// CommentReplies returns a comment's live direct replies, oldest first.
func (h *Handler) CommentReplies(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	start := time.Now()
	views, err := h.svc.ListReplies(r.Context(), id, viewer(r))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondComments(w, views, start)
}

// VoteComment casts, changes or toggles off the caller's vote.
func (h *Handler) VoteComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.VoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.svc.CastVote(r.Context(), viewer(r), id, models.VoteType(req.VoteType))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, resp, models.Metadata{})
}
