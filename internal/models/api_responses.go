// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package models

import (
	"time"
)

// APIResponse is the envelope returned by every HTTP endpoint.
//
// Success:
//
//	{
//	  "status": "success",
//	  "data": {"id": 7, "content": "First!"},
//	  "metadata": {"timestamp": "2026-10-19T12:00:00Z"}
//	}
//
// Error:
//
//	{
//	  "status": "error",
//	  "error": {"code": "PERMISSION_DENIED", "message": "edit window has expired"},
//	  "metadata": {"timestamp": "2026-10-19T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata accompanies every response.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message.
//
// Codes:
//   - VALIDATION_ERROR: rejected input or linkage (deleted parent, bad vote type)
//   - PERMISSION_DENIED: actor is not the author, or the edit window has passed
//   - NOT_FOUND: page, comment or user does not exist
//   - AUTHENTICATION_ERROR: missing or invalid credentials
//   - CONFLICT: unique constraint lost to a concurrent writer
//   - DATABASE_ERROR: storage failure
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SignupRequest creates an account.
type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest exchanges credentials for a token.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

// LoginResponse is returned by signup and login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	UserID    int64     `json:"user_id"`
}

// CreatePageRequest is the body of POST /api/v1/pages.
type CreatePageRequest struct {
	Title   string `json:"title" validate:"required,notblank,max=200"`
	Content string `json:"content" validate:"required,notblank"`
}

// UpdatePageRequest is the body of PUT /api/v1/pages/{id}.
type UpdatePageRequest struct {
	Title   string `json:"title" validate:"required,notblank,max=200"`
	Content string `json:"content" validate:"required,notblank"`
}

// CreateCommentRequest is the body of POST /api/v1/comments.
type CreateCommentRequest struct {
	PageID   int64  `json:"page_id" validate:"required,gt=0"`
	Content  string `json:"content" validate:"required,notblank"`
	ParentID *int64 `json:"parent_id" validate:"omitempty,gt=0"`
}

// EditCommentRequest is the body of PUT /api/v1/comments/{id}.
type EditCommentRequest struct {
	Content string `json:"content" validate:"required,notblank"`
}

// VoteRequest is the body of POST /api/v1/comments/{id}/vote.
type VoteRequest struct {
	VoteType string `json:"vote_type" validate:"required,votetype"`
}

// VoteResponse reports the ledger outcome and fresh tallies.
type VoteResponse struct {
	Status        string     `json:"status"`
	Action        VoteAction `json:"action"`
	CommentID     int64      `json:"comment_id"`
	UpvoteCount   int        `json:"upvote_count"`
	DownvoteCount int        `json:"downvote_count"`
	Score         int        `json:"score"`
	UserVote      VoteType   `json:"user_vote"`
}
