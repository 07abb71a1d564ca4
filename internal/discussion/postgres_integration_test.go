// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

//go:build integration

package discussion

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/threadline/internal/cache"
	"github.com/tomtom215/threadline/internal/comments"
	"github.com/tomtom215/threadline/internal/config"
	"github.com/tomtom215/threadline/internal/database"
	"github.com/tomtom215/threadline/internal/models"
	"github.com/tomtom215/threadline/internal/testinfra"
	"github.com/tomtom215/threadline/internal/votes"
)

// TestPostgresRedisStack runs the write path against real Postgres and Redis.
func TestPostgresRedisStack(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	pg, err := testinfra.NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	testinfra.CleanupContainer(t, pg.Container)

	rc, err := testinfra.NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	testinfra.CleanupContainer(t, rc.Container)

	db, err := database.New(&config.DatabaseConfig{Driver: database.DriverPostgres, DSN: pg.DSN, MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// A second open must find the schema already in place.
	again, err := database.New(&config.DatabaseConfig{Driver: database.DriverPostgres, DSN: pg.DSN})
	if err != nil {
		t.Fatalf("reopen postgres: %v", err)
	}
	_ = again.Close()

	backend, err := cache.New(ctx, &config.CacheConfig{Backend: cache.BackendRedis, RedisAddr: rc.Addr, TTL: time.Minute})
	if err != nil {
		t.Fatalf("open redis cache: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	alice := testinfra.SeedUser(t, db, "alice")
	bob := testinfra.SeedUser(t, db, "bob")
	page := testinfra.SeedPage(t, db, alice.ID, "Postgres")

	ledger := votes.NewLedger(db)
	store := comments.NewStore(db, ledger, config.DiscussionConfig{EditTimeout: 15 * time.Minute})
	pageCache := cache.NewInstrumented(backend)
	events := &recorder{}
	svc := NewService(db, store, ledger, pageCache, events)

	if _, cached, err := svc.GetPage(ctx, page.ID); err != nil || cached {
		t.Fatalf("first GetPage() cached=%v err=%v", cached, err)
	}
	if _, cached, err := svc.GetPage(ctx, page.ID); err != nil || !cached {
		t.Fatalf("second GetPage() cached=%v err=%v", cached, err)
	}

	root, err := svc.CreateComment(ctx, alice.ID, page.ID, "root", nil)
	if err != nil {
		t.Fatalf("CreateComment(root): %v", err)
	}
	reply, err := svc.CreateComment(ctx, bob.ID, page.ID, "reply", &root.ID)
	if err != nil {
		t.Fatalf("CreateComment(reply): %v", err)
	}
	if len(events.created) != 2 || events.created[1].parent == nil || events.created[1].parent.AuthorID != alice.ID {
		t.Errorf("created events = %+v", events.created)
	}

	p, cached, err := svc.GetPage(ctx, page.ID)
	if err != nil || cached {
		t.Fatalf("GetPage() after write cached=%v err=%v", cached, err)
	}
	// Replies are not counted.
	if p.CommentCount != 1 {
		t.Errorf("CommentCount = %d, want 1", p.CommentCount)
	}

	resp, err := svc.CastVote(ctx, bob.ID, root.ID, models.VoteUp)
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if resp.Action != models.VoteAdded || resp.Score != 1 {
		t.Errorf("vote response = %+v", resp)
	}

	if err := svc.DeleteComment(ctx, alice.ID, root.ID); err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}
	replies, err := svc.ListReplies(ctx, root.ID, bob.ID)
	if err != nil {
		t.Fatalf("ListReplies: %v", err)
	}
	if len(replies) != 1 || replies[0].ID != reply.ID {
		t.Errorf("replies of tombstone = %+v", replies)
	}
	if _, err := svc.CreateComment(ctx, bob.ID, page.ID, "late", &root.ID); !models.IsValidation(err) {
		t.Errorf("reply to deleted comment error = %v", err)
	}
}
