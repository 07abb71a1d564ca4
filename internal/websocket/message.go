// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package websocket

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/threadline/internal/models"
)

// Wire message types
const (
	TypeConnectionEstablished = "connection_established"
	TypeError                 = "error"
	TypeNewComment            = "new_comment"
	TypeNotification          = "notification"
	TypeVoteUpdate            = "vote_update"
	TypeTyping                = "typing"
)

// Message is one outbound wire variant. Every variant marshals to a flat
// JSON object carrying a "type" field.
type Message interface {
	MessageType() string
}

// ConnectionEstablished acknowledges a join.
type ConnectionEstablished struct {
	Message string `json:"message"`
}

func (ConnectionEstablished) MessageType() string { return TypeConnectionEstablished }

func (m ConnectionEstablished) MarshalJSON() ([]byte, error) {
	type alias ConnectionEstablished
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{m.MessageType(), alias(m)})
}

// ErrorMessage reports a refused connection.
type ErrorMessage struct {
	Message string `json:"message"`
}

func (ErrorMessage) MessageType() string { return TypeError }

func (m ErrorMessage) MarshalJSON() ([]byte, error) {
	type alias ErrorMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{m.MessageType(), alias(m)})
}

// CommentSummary is the comment payload of new_comment.
type CommentSummary struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	ParentID  *int64    `json:"parent_id"`
}

// SummarizeComment projects a stored comment onto its wire summary.
func SummarizeComment(c *models.Comment) CommentSummary {
	return CommentSummary{
		ID:        c.ID,
		Author:    c.AuthorName,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		ParentID:  c.ParentID,
	}
}

// NewComment announces a comment to its page room.
type NewComment struct {
	Comment CommentSummary `json:"comment"`
}

func (NewComment) MessageType() string { return TypeNewComment }

func (m NewComment) MarshalJSON() ([]byte, error) {
	type alias NewComment
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{m.MessageType(), alias(m)})
}

// Notification is delivered to a single user's channel.
type Notification struct {
	Message   string `json:"message"`
	CommentID *int64 `json:"comment_id"`
	PageID    *int64 `json:"page_id"`
}

func (Notification) MessageType() string { return TypeNotification }

func (m Notification) MarshalJSON() ([]byte, error) {
	type alias Notification
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{m.MessageType(), alias(m)})
}

// ReplyNotification builds the notice sent to a parent comment's author.
func ReplyNotification(replier string, commentID, pageID int64) Notification {
	return Notification{
		Message:   fmt.Sprintf("%s replied to your comment", replier),
		CommentID: &commentID,
		PageID:    &pageID,
	}
}

// VoteUpdate carries a comment's new net score.
type VoteUpdate struct {
	CommentID int64 `json:"comment_id"`
	NetVotes  int   `json:"net_votes"`
}

func (VoteUpdate) MessageType() string { return TypeVoteUpdate }

func (m VoteUpdate) MarshalJSON() ([]byte, error) {
	type alias VoteUpdate
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{m.MessageType(), alias(m)})
}

// Typing signals that someone in the room started or stopped typing.
type Typing struct {
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

func (Typing) MessageType() string { return TypeTyping }

func (m Typing) MarshalJSON() ([]byte, error) {
	type alias Typing
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{m.MessageType(), alias(m)})
}

// Encode serializes a message for the wire.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", m.MessageType(), err)
	}
	return data, nil
}

// Inbound is a client-to-server frame. Only typing is acted on.
type Inbound struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// DecodeInbound parses a client frame.
func DecodeInbound(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("decode inbound message: %w", err)
	}
	return in, nil
}
