// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

// Package discussion is the write boundary: it runs page, comment and vote
// writes against storage, keeps the page cache coherent and broadcasts
// each successful write after it commits.
package discussion

import (
	"context"
	"fmt"

	"github.com/tomtom215/threadline/internal/cache"
	"github.com/tomtom215/threadline/internal/comments"
	"github.com/tomtom215/threadline/internal/database"
	"github.com/tomtom215/threadline/internal/logging"
	"github.com/tomtom215/threadline/internal/metrics"
	"github.com/tomtom215/threadline/internal/models"
	"github.com/tomtom215/threadline/internal/votes"
)

// Broadcaster receives committed domain events.
// Satisfied by *websocket.Engine.
type Broadcaster interface {
	CommentCreated(ctx context.Context, c *models.Comment, parent *models.Comment)
	VoteChanged(ctx context.Context, pageID, commentID int64, netVotes int)
}

// Service coordinates storage, cache and broadcast for every write.
type Service struct {
	db       *database.DB
	comments *comments.Store
	ledger   *votes.Ledger
	cache    cache.Cacher
	events   Broadcaster
}

// NewService wires the write boundary. A nil cache disables caching.
func NewService(db *database.DB, store *comments.Store, ledger *votes.Ledger, c cache.Cacher, events Broadcaster) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	return &Service{db: db, comments: store, ledger: ledger, cache: c, events: events}
}

// Ping reports whether storage is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// ListPages returns every page, newest first.
func (s *Service) ListPages(ctx context.Context) ([]models.Page, error) {
	return s.db.ListPages(ctx)
}

// GetPage reads a page through the cache. The bool reports a cache hit.
func (s *Service) GetPage(ctx context.Context, id int64) (*models.Page, bool, error) {
	key := cache.PageKey(id)

	var page models.Page
	if cache.GetJSON(ctx, s.cache, key, &page) {
		return &page, true, nil
	}

	p, err := s.db.GetPage(ctx, id)
	if err != nil {
		return nil, false, err
	}
	cache.SetJSON(ctx, s.cache, key, p)
	return p, false, nil
}

// PageExists reports whether id names a page.
func (s *Service) PageExists(ctx context.Context, id int64) (bool, error) {
	return s.db.PageExists(ctx, id)
}

// CreatePage stores a page authored by actorID.
func (s *Service) CreatePage(ctx context.Context, actorID int64, title, body string) (*models.Page, error) {
	page, err := s.db.CreatePage(context.WithoutCancel(ctx), actorID, title, body)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Int64("page_id", page.ID).Int64("author_id", actorID).Msg("page created")
	return page, nil
}

// UpdatePage edits a page. Only its author may do so.
func (s *Service) UpdatePage(ctx context.Context, id, actorID int64, title, body string) (*models.Page, error) {
	ctx = context.WithoutCancel(ctx)
	page, err := s.db.UpdatePage(ctx, id, actorID, title, body)
	if err != nil {
		return nil, err
	}
	s.invalidatePage(ctx, id)
	return page, nil
}

// CreateComment stores a comment or reply, then announces it to the page
// room and, for replies to someone else, to the parent's author.
func (s *Service) CreateComment(ctx context.Context, actorID, pageID int64, content string, parentID *int64) (*models.CommentView, error) {
	ctx = context.WithoutCancel(ctx)

	// Creates on one page commit and broadcast in order.
	unlock := s.db.LockKey(commentsLockKey(pageID))
	defer unlock()

	res, err := s.comments.Create(ctx, pageID, actorID, content, parentID)
	if err != nil {
		return nil, err
	}
	metrics.RecordCommentWrite("create")
	s.invalidatePage(ctx, pageID)

	if s.events != nil {
		s.events.CommentCreated(ctx, &res.Comment.Comment, res.Parent)
	}
	return res.Comment, nil
}

// EditComment replaces a comment's content within the edit window.
func (s *Service) EditComment(ctx context.Context, actorID, commentID int64, content string) (*models.CommentView, error) {
	ctx = context.WithoutCancel(ctx)

	view, err := s.comments.Edit(ctx, commentID, actorID, content)
	if err != nil {
		return nil, err
	}
	metrics.RecordCommentWrite("edit")
	s.invalidatePage(ctx, view.PageID)
	return view, nil
}

// DeleteComment soft-deletes a comment. Its replies stay readable.
func (s *Service) DeleteComment(ctx context.Context, actorID, commentID int64) error {
	ctx = context.WithoutCancel(ctx)

	c, err := s.comments.SoftDelete(ctx, commentID, actorID)
	if err != nil {
		return err
	}
	metrics.RecordCommentWrite("delete")
	s.invalidatePage(ctx, c.PageID)
	return nil
}

// GetComment returns one comment, tombstones included.
func (s *Service) GetComment(ctx context.Context, commentID, viewerID int64) (*models.CommentView, error) {
	return s.comments.Get(ctx, commentID, viewerID)
}

// ListTopLevel returns a page's live top-level comments, newest first.
func (s *Service) ListTopLevel(ctx context.Context, pageID, viewerID int64) ([]models.CommentView, error) {
	return s.comments.ListTopLevel(ctx, pageID, viewerID)
}

// ListReplies returns a comment's live replies, oldest first.
func (s *Service) ListReplies(ctx context.Context, commentID, viewerID int64) ([]models.CommentView, error) {
	return s.comments.ListReplies(ctx, commentID, viewerID)
}

// ListComments returns live comments matching f.
func (s *Service) ListComments(ctx context.Context, f comments.Filter, viewerID int64) ([]models.CommentView, error) {
	return s.comments.List(ctx, f, viewerID)
}

// CastVote toggles, adds or changes the actor's vote and announces the new
// net score to the page room. Votes on one comment commit and broadcast
// under one lock, so the last vote_update a room sees is the committed score.
func (s *Service) CastVote(ctx context.Context, actorID, commentID int64, voteType models.VoteType) (*models.VoteResponse, error) {
	ctx = context.WithoutCancel(ctx)

	unlock := s.db.LockKey(votes.LockKey(commentID))
	defer unlock()

	res, err := s.ledger.CastLocked(ctx, actorID, commentID, voteType)
	if err != nil {
		return nil, err
	}
	metrics.RecordVote(string(res.Action))

	// Re-read after commit; a writer in another process may have landed
	// since the transaction's snapshot.
	tally := res.Tally
	if fresh, err := s.ledger.Tallies(ctx, []int64{commentID}, actorID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("comment_id", commentID).Msg("re-reading tally after vote failed")
	} else {
		tally = fresh[commentID]
	}

	score := tally.Score()
	if s.events != nil {
		s.events.VoteChanged(ctx, res.PageID, res.CommentID, score)
	}

	return &models.VoteResponse{
		Status:        res.Action.StatusText(),
		Action:        res.Action,
		CommentID:     res.CommentID,
		UpvoteCount:   tally.Upvotes,
		DownvoteCount: tally.Downvotes,
		Score:         score,
		UserVote:      tally.UserVote,
	}, nil
}

func commentsLockKey(pageID int64) string {
	return fmt.Sprintf("comments:page:%d", pageID)
}

func (s *Service) invalidatePage(ctx context.Context, pageID int64) {
	s.cache.Delete(ctx, cache.PageKey(pageID))
}
