// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

// Package votes records one up or down vote per (user, comment) and derives
// tallies from the stored rows. Scores are never persisted.
package votes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/threadline/internal/database"
	"github.com/tomtom215/threadline/internal/database/query"
	"github.com/tomtom215/threadline/internal/metrics"
	"github.com/tomtom215/threadline/internal/models"
)

// ErrVoteConflict is returned when a concurrent writer in another process
// won the race for the same (user, comment) row. It is not retried.
var ErrVoteConflict = errors.New("conflicting concurrent vote")

// Result describes the effect of a Cast.
type Result struct {
	Action    models.VoteAction
	CommentID int64
	PageID    int64
	Tally     models.Tally
}

// Ledger is the vote store.
type Ledger struct {
	db *database.DB
}

// NewLedger creates a Ledger over db.
func NewLedger(db *database.DB) *Ledger {
	return &Ledger{db: db}
}

// LockKey names the in-process lock that serializes every vote on one
// comment. Callers that must order work after a Cast (broadcasts) hold it
// around both.
func LockKey(commentID int64) string {
	return fmt.Sprintf("vote:%d", commentID)
}

// Cast toggles the user's vote on a comment:
//
//	no vote        -> insert   (added)
//	same type      -> delete   (removed)
//	different type -> update   (changed)
//
// The read and the write run in one transaction. Casts on the same comment
// are serialized in-process, so two casts never both observe "no vote" and
// the returned tally includes every earlier committed vote. Cast takes the
// lock itself unless the caller already holds it (see CastLocked).
func (l *Ledger) Cast(ctx context.Context, userID, commentID int64, voteType models.VoteType) (*Result, error) {
	unlock := l.db.LockKey(LockKey(commentID))
	defer unlock()
	return l.CastLocked(ctx, userID, commentID, voteType)
}

// CastLocked is Cast for callers already holding LockKey(commentID).
func (l *Ledger) CastLocked(ctx context.Context, userID, commentID int64, voteType models.VoteType) (res *Result, err error) {
	if !voteType.Valid() {
		return nil, models.NewValidationError("vote_type", "vote_type must be 'up' or 'down'")
	}

	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("cast", "votes", start, err)
	}()

	tx, err := l.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin vote transaction: %w", err)
	}

	res, err = castTx(ctx, tx, userID, commentID, voteType)
	if err != nil {
		database.RollbackQuietly(tx)
		return nil, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("failed to commit vote: %w", err))
	}
	return res, nil
}

func classify(err error) error {
	if database.IsUniqueConstraintError(err) || database.IsTransactionConflict(err) {
		return fmt.Errorf("%w: %v", ErrVoteConflict, err)
	}
	return err
}

func castTx(ctx context.Context, tx *sql.Tx, userID, commentID int64, voteType models.VoteType) (*Result, error) {
	var (
		pageID  int64
		deleted bool
	)
	err := tx.QueryRowContext(ctx,
		`SELECT page_id, is_deleted FROM comments WHERE id = $1`, commentID).Scan(&pageID, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Resource: "comment", ID: commentID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load comment: %w", err)
	}
	if deleted {
		return nil, models.NewValidationError("comment_id", "cannot vote on a deleted comment")
	}

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT vote_type FROM votes WHERE user_id = $1 AND comment_id = $2`, userID, commentID).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load vote: %w", err)
	}

	res := &Result{CommentID: commentID, PageID: pageID}
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO votes (user_id, comment_id, vote_type, voted_at)
			VALUES ($1, $2, $3, $4)`, userID, commentID, string(voteType), database.Now())
		res.Action = models.VoteAdded
	case models.VoteType(existing) == voteType:
		_, err = tx.ExecContext(ctx,
			`DELETE FROM votes WHERE user_id = $1 AND comment_id = $2`, userID, commentID)
		res.Action = models.VoteRemoved
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE votes SET vote_type = $1, voted_at = $2
			WHERE user_id = $3 AND comment_id = $4`, string(voteType), database.Now(), userID, commentID)
		res.Action = models.VoteChanged
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s vote: %w", res.Action, err)
	}

	tallies, err := tallies(ctx, tx, []int64{commentID}, userID)
	if err != nil {
		return nil, err
	}
	res.Tally = tallies[commentID]
	return res, nil
}

// Score returns upvotes minus downvotes for a comment.
func (l *Ledger) Score(ctx context.Context, commentID int64) (int, error) {
	t, err := tallies(ctx, l.db.Conn(), []int64{commentID}, 0)
	if err != nil {
		return 0, err
	}
	return t[commentID].Score(), nil
}

// UserVote returns the user's vote on a comment, or VoteNone.
func (l *Ledger) UserVote(ctx context.Context, userID, commentID int64) (models.VoteType, error) {
	var vt string
	err := l.db.Conn().QueryRowContext(ctx,
		`SELECT vote_type FROM votes WHERE user_id = $1 AND comment_id = $2`, userID, commentID).Scan(&vt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.VoteNone, nil
	}
	if err != nil {
		return models.VoteNone, fmt.Errorf("failed to query vote: %w", err)
	}
	return models.VoteType(vt), nil
}

// Tallies aggregates votes for commentIDs in one query. Every requested id
// is present in the result. viewerID 0 means anonymous.
func (l *Ledger) Tallies(ctx context.Context, commentIDs []int64, viewerID int64) (map[int64]models.Tally, error) {
	return tallies(ctx, l.db.Conn(), commentIDs, viewerID)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func tallies(ctx context.Context, q querier, commentIDs []int64, viewerID int64) (map[int64]models.Tally, error) {
	out := make(map[int64]models.Tally, len(commentIDs))
	if len(commentIDs) == 0 {
		return out, nil
	}
	for _, id := range commentIDs {
		out[id] = models.Tally{}
	}

	wb := query.NewWhereBuilder()
	viewer := wb.Arg(viewerID)
	wb.In("comment_id", commentIDs)
	where, args := wb.BuildWithPrefix()

	rows, err := q.QueryContext(ctx, `
		SELECT comment_id,
			COUNT(*) FILTER (WHERE vote_type = 'up'),
			COUNT(*) FILTER (WHERE vote_type = 'down'),
			MAX(CASE WHEN user_id = `+viewer+` THEN vote_type END)
		FROM votes `+where+`
		GROUP BY comment_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate votes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       int64
			t        models.Tally
			userVote sql.NullString
		)
		if err := rows.Scan(&id, &t.Upvotes, &t.Downvotes, &userVote); err != nil {
			return nil, fmt.Errorf("failed to scan tally: %w", err)
		}
		t.UserVote = models.VoteType(userVote.String)
		out[id] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tallies: %w", err)
	}
	return out, nil
}
