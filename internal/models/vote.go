// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package models

import "time"

// VoteType is the direction of a vote. The empty value means "no vote".
type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
	VoteNone VoteType = ""
)

// Valid reports whether t is up or down.
func (t VoteType) Valid() bool {
	return t == VoteUp || t == VoteDown
}

// VoteAction is the outcome of casting a vote.
type VoteAction string

const (
	VoteAdded   VoteAction = "added"
	VoteChanged VoteAction = "changed"
	VoteRemoved VoteAction = "removed"
)

// StatusText is the human-readable status used in API responses.
func (a VoteAction) StatusText() string {
	return "vote " + string(a)
}

// Vote is one user's vote on one comment.
type Vote struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	CommentID int64     `json:"comment_id"`
	VoteType  VoteType  `json:"vote_type"`
	VotedAt   time.Time `json:"voted_at"`
}

// Tally is the derived vote state of a comment for one viewer.
type Tally struct {
	Upvotes   int      `json:"upvotes"`
	Downvotes int      `json:"downvotes"`
	UserVote  VoteType `json:"user_vote"`
}

// Score is upvotes minus downvotes.
func (t Tally) Score() int {
	return t.Upvotes - t.Downvotes
}

// MarshalJSON encodes VoteNone as null.
func (t VoteType) MarshalJSON() ([]byte, error) {
	if t == VoteNone {
		return []byte("null"), nil
	}
	return []byte(`"` + string(t) + `"`), nil
}
