// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

// Package comments stores threaded comments. Replies reference a parent on
// the same page; deletion is soft so replies stay attached to a tombstone.
package comments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tomtom215/threadline/internal/config"
	"github.com/tomtom215/threadline/internal/database"
	"github.com/tomtom215/threadline/internal/database/query"
	"github.com/tomtom215/threadline/internal/metrics"
	"github.com/tomtom215/threadline/internal/models"
)

// TallyReader supplies vote tallies for a batch of comments.
type TallyReader interface {
	Tallies(ctx context.Context, commentIDs []int64, viewerID int64) (map[int64]models.Tally, error)
}

// Store is the comment tree store.
type Store struct {
	db          *database.DB
	tallies     TallyReader
	editTimeout time.Duration
	maxLength   int
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for edit-window checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store.
func NewStore(db *database.DB, tallies TallyReader, cfg config.DiscussionConfig, opts ...Option) *Store {
	s := &Store{
		db:          db,
		tallies:     tallies,
		editTimeout: cfg.EditTimeout,
		maxLength:   cfg.MaxCommentLength,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Filter selects comments for List. A nil PageID matches every page.
// TopLevel restricts to comments without a parent; otherwise a non-nil
// ParentID restricts to that parent's replies.
type Filter struct {
	PageID   *int64
	ParentID *int64
	TopLevel bool
}

// CreateResult is a new comment plus the parent it replied to, if any.
type CreateResult struct {
	Comment *models.CommentView
	Parent  *models.Comment
}

func (s *Store) validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", models.NewValidationError("content", "content is required")
	}
	if s.maxLength > 0 && utf8.RuneCountInString(content) > s.maxLength {
		return "", models.NewValidationError("content", fmt.Sprintf("content must be at most %d characters", s.maxLength))
	}
	return content, nil
}

// Create inserts a comment. When parentID is set the parent must exist, be
// on the same page and not be deleted.
func (s *Store) Create(ctx context.Context, pageID, authorID int64, content string, parentID *int64) (*CreateResult, error) {
	content, err := s.validateContent(content)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin comment transaction: %w", err)
	}

	c, parent, err := createTx(ctx, tx, pageID, authorID, content, parentID)
	if err != nil {
		database.RollbackQuietly(tx)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit comment: %w", err)
	}

	// The view is built from the committed row: a new comment has no votes
	// and no replies yet, so there is nothing left to read back.
	return &CreateResult{Comment: &models.CommentView{Comment: *c}, Parent: parent}, nil
}

func createTx(ctx context.Context, tx *sql.Tx, pageID, authorID int64, content string, parentID *int64) (*models.Comment, *models.Comment, error) {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE id = $1`, pageID).Scan(&n); err != nil {
		return nil, nil, fmt.Errorf("failed to check page: %w", err)
	}
	if n == 0 {
		return nil, nil, &models.NotFoundError{Resource: "page", ID: pageID}
	}

	var parent *models.Comment
	if parentID != nil {
		p, err := loadComment(ctx, tx, *parentID)
		if err != nil {
			if models.IsNotFound(err) {
				return nil, nil, models.NewValidationError("parent_id", "parent comment does not exist")
			}
			return nil, nil, err
		}
		if p.PageID != pageID {
			return nil, nil, models.NewValidationError("parent_id", "parent comment belongs to a different page")
		}
		if p.IsDeleted {
			return nil, nil, models.NewValidationError("parent_id", "cannot reply to a deleted comment")
		}
		parent = p
	}

	c := &models.Comment{
		PageID:    pageID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: database.Now(),
	}
	c.UpdatedAt = c.CreatedAt
	if parentID != nil {
		pid := *parentID
		c.ParentID = &pid
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO comments (page_id, author_id, content, parent_id, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, $5, $5)
		RETURNING id`, pageID, authorID, content, nullableID(parentID), c.CreatedAt).Scan(&c.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	err = tx.QueryRowContext(ctx, `SELECT username FROM users WHERE id = $1`, authorID).Scan(&c.AuthorName)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("failed to load author: %w", err)
	}
	return c, parent, nil
}

// Edit replaces the content. Only the author may edit, only while the
// comment is live and no later than created_at + edit timeout.
func (s *Store) Edit(ctx context.Context, commentID, actorID int64, content string) (*models.CommentView, error) {
	content, err := s.validateContent(content)
	if err != nil {
		return nil, err
	}

	unlock := s.db.LockKey(lockKey(commentID))
	defer unlock()

	tx, err := s.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin edit transaction: %w", err)
	}
	if err := s.editTx(ctx, tx, commentID, actorID, content); err != nil {
		database.RollbackQuietly(tx)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit edit: %w", err)
	}
	return s.Get(ctx, commentID, actorID)
}

func (s *Store) editTx(ctx context.Context, tx *sql.Tx, commentID, actorID int64, content string) error {
	c, err := loadComment(ctx, tx, commentID)
	if err != nil {
		return err
	}
	if c.AuthorID != actorID {
		return &models.PermissionError{Action: "edit comment", Message: "only the author can edit this comment"}
	}
	if c.IsDeleted {
		return errEditDeleted
	}
	if s.now().After(c.CreatedAt.Add(s.editTimeout)) {
		return &models.PermissionError{Action: "edit comment", Message: "edit window has expired"}
	}
	return updateLiveContent(ctx, tx, commentID, content)
}

var errEditDeleted = &models.PermissionError{Action: "edit comment", Message: "comment has been deleted"}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// updateLiveContent rewrites a comment that is not deleted. A tombstone is
// never modified, even by a writer that checked liveness earlier.
func updateLiveContent(ctx context.Context, q execer, commentID int64, content string) error {
	res, err := q.ExecContext(ctx,
		`UPDATE comments SET content = $1, updated_at = $2 WHERE id = $3 AND is_deleted = FALSE`,
		content, database.Now(), commentID)
	if err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update comment: %w", err)
	}
	if n == 0 {
		return errEditDeleted
	}
	return nil
}

// SoftDelete marks a comment deleted. Replies are left in place.
func (s *Store) SoftDelete(ctx context.Context, commentID, actorID int64) (*models.Comment, error) {
	unlock := s.db.LockKey(lockKey(commentID))
	defer unlock()

	c, err := loadComment(ctx, s.db.Conn(), commentID)
	if err != nil {
		return nil, err
	}
	if c.AuthorID != actorID {
		return nil, &models.PermissionError{Action: "delete comment", Message: "only the author can delete this comment"}
	}
	alreadyDeleted := &models.PermissionError{Action: "delete comment", Message: "comment is already deleted"}
	if c.IsDeleted {
		return nil, alreadyDeleted
	}

	now := database.Now()
	res, err := s.db.Conn().ExecContext(ctx,
		`UPDATE comments SET is_deleted = TRUE, updated_at = $1 WHERE id = $2 AND is_deleted = FALSE`, now, commentID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete comment: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to delete comment: %w", err)
	} else if n == 0 {
		return nil, alreadyDeleted
	}
	c.IsDeleted = true
	c.UpdatedAt = now
	return c, nil
}

// lockKey serializes edits and deletes of one comment in-process.
func lockKey(commentID int64) string {
	return fmt.Sprintf("comment:%d", commentID)
}

// Get returns one comment with tallies for viewerID. Deleted comments are
// returned as tombstones.
func (s *Store) Get(ctx context.Context, commentID, viewerID int64) (*models.CommentView, error) {
	views, err := s.list(ctx, query.NewWhereBuilder().Eq("c.id", commentID), "", viewerID)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, &models.NotFoundError{Resource: "comment", ID: commentID}
	}
	return &views[0], nil
}

// ListTopLevel returns the page's live top-level comments, newest first.
func (s *Store) ListTopLevel(ctx context.Context, pageID, viewerID int64) ([]models.CommentView, error) {
	ok, err := s.db.PageExists(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &models.NotFoundError{Resource: "page", ID: pageID}
	}
	return s.List(ctx, Filter{PageID: &pageID, TopLevel: true}, viewerID)
}

// ListReplies returns the live direct replies of a comment, oldest first.
func (s *Store) ListReplies(ctx context.Context, commentID, viewerID int64) ([]models.CommentView, error) {
	if _, err := loadComment(ctx, s.db.Conn(), commentID); err != nil {
		return nil, err
	}
	return s.List(ctx, Filter{ParentID: &commentID}, viewerID)
}

// List returns live comments matching f. Replies are ordered oldest first,
// everything else newest first.
func (s *Store) List(ctx context.Context, f Filter, viewerID int64) ([]models.CommentView, error) {
	wb := query.NewWhereBuilder().Raw("c.is_deleted = FALSE")
	if f.PageID != nil {
		wb.Eq("c.page_id", *f.PageID)
	}
	order := "c.created_at DESC, c.id DESC"
	switch {
	case f.TopLevel:
		wb.IsNull("c.parent_id")
	case f.ParentID != nil:
		wb.Eq("c.parent_id", *f.ParentID)
		order = "c.created_at ASC, c.id ASC"
	}
	return s.list(ctx, wb, order, viewerID)
}

const commentSelect = `
	SELECT c.id, c.page_id, c.author_id, COALESCE(u.username, ''), c.content,
		c.parent_id, c.is_deleted, c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM comments r WHERE r.parent_id = c.id AND r.is_deleted = FALSE)
	FROM comments c
	LEFT JOIN users u ON u.id = c.author_id`

func (s *Store) list(ctx context.Context, wb *query.WhereBuilder, order string, viewerID int64) (views []models.CommentView, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("select", "comments", start, err)
	}()

	where, args := wb.BuildWithPrefix()
	q := commentSelect + " " + where
	if order != "" {
		q += " ORDER BY " + order
	}

	rows, err := s.db.Conn().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	views = []models.CommentView{}
	for rows.Next() {
		var (
			v      models.CommentView
			parent sql.NullInt64
		)
		if err := rows.Scan(&v.ID, &v.PageID, &v.AuthorID, &v.AuthorName, &v.Content,
			&parent, &v.IsDeleted, &v.CreatedAt, &v.UpdatedAt, &v.RepliesCount); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		if parent.Valid {
			id := parent.Int64
			v.ParentID = &id
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}

	if len(views) == 0 {
		return views, nil
	}
	ids := make([]int64, len(views))
	for i := range views {
		ids[i] = views[i].ID
	}
	tallies, err := s.tallies.Tallies(ctx, ids, viewerID)
	if err != nil {
		return nil, err
	}
	for i := range views {
		t := tallies[views[i].ID]
		views[i].Upvotes = t.Upvotes
		views[i].Downvotes = t.Downvotes
		views[i].NetVotes = t.Score()
		views[i].UserVote = t.UserVote
	}
	return views, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func loadComment(ctx context.Context, q rowQuerier, id int64) (*models.Comment, error) {
	var (
		c      models.Comment
		parent sql.NullInt64
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, page_id, author_id, content, parent_id, is_deleted, created_at, updated_at
		FROM comments WHERE id = $1`, id).
		Scan(&c.ID, &c.PageID, &c.AuthorID, &c.Content, &parent, &c.IsDeleted, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "comment", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load comment: %w", err)
	}
	if parent.Valid {
		pid := parent.Int64
		c.ParentID = &pid
	}
	return &c, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
