// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package models

import "time"

// Page is a discussion page. Pages are never hard deleted.
type Page struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Body         string    `json:"content"`
	AuthorID     int64     `json:"author_id"`
	AuthorName   string    `json:"author"`
	CommentCount int       `json:"comments_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Comment is a stored comment. ParentID is nil for top-level comments.
type Comment struct {
	ID         int64     `json:"id"`
	PageID     int64     `json:"page_id"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author"`
	Content    string    `json:"content"`
	ParentID   *int64    `json:"parent_id"`
	IsDeleted  bool      `json:"is_deleted"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsTopLevel reports whether the comment has no parent.
func (c *Comment) IsTopLevel() bool {
	return c.ParentID == nil
}

// CommentView is a comment as returned by read paths: the stored row plus
// per-request tallies and the viewer's own vote.
type CommentView struct {
	Comment
	Upvotes      int      `json:"upvotes"`
	Downvotes    int      `json:"downvotes"`
	NetVotes     int      `json:"net_votes"`
	UserVote     VoteType `json:"user_vote"`
	RepliesCount int      `json:"replies_count"`
}

// User is an account known to the auth collaborator.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
