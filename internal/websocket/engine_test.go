// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package websocket

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/threadline/internal/auth"
	"github.com/tomtom215/threadline/internal/config"
	"github.com/tomtom215/threadline/internal/models"
)

func anonymous() auth.Identity { return auth.Anonymous }

func user(id int64, name string) auth.Identity {
	return auth.Identity{UserID: id, Username: name}
}

// frame reads the next queued frame from s and decodes it.
func frame(t *testing.T, s *Session) map[string]any {
	t.Helper()
	select {
	case payload := <-s.Send():
		var m map[string]any
		if err := json.Unmarshal(payload, &m); err != nil {
			t.Fatalf("decode frame %s: %v", payload, err)
		}
		return m
	case <-time.After(time.Second):
		t.Fatalf("session %d: no frame queued", s.ID())
		return nil
	}
}

func expectNoFrame(t *testing.T, s *Session) {
	t.Helper()
	select {
	case payload := <-s.Send():
		t.Fatalf("session %d: unexpected frame %s", s.ID(), payload)
	default:
	}
}

func openPage(t *testing.T, e *Engine, id auth.Identity, pageID int64) *Session {
	t.Helper()
	s, err := e.OpenPage(nil, id, pageID)
	if err != nil {
		t.Fatalf("OpenPage() error = %v", err)
	}
	if got := frame(t, s); got["type"] != TypeConnectionEstablished || got["message"] != "Connected to comment room" {
		t.Fatalf("ack = %v", got)
	}
	return s
}

func openNotifications(t *testing.T, e *Engine, id auth.Identity) *Session {
	t.Helper()
	s, err := e.OpenNotifications(nil, id)
	if err != nil {
		t.Fatalf("OpenNotifications() error = %v", err)
	}
	if got := frame(t, s); got["type"] != TypeConnectionEstablished || got["message"] != "Connected to notifications" {
		t.Fatalf("ack = %v", got)
	}
	return s
}

func TestOpenPage(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})
	s := openPage(t, e, anonymous(), 5)

	if s.State() != StateJoined {
		t.Errorf("state = %v, want joined", s.State())
	}
	if members := e.Registry().MembersOf(PageKey(5)); len(members) != 1 || members[0] != s {
		t.Errorf("page:5 members = %v", members)
	}
	if st := e.Stats(); st.PageSessions != 1 || st.Rooms != 1 {
		t.Errorf("Stats() = %+v", st)
	}

	for _, bad := range []int64{0, -3} {
		if _, err := e.OpenPage(nil, anonymous(), bad); !models.IsValidation(err) {
			t.Errorf("OpenPage(%d) error = %v, want ValidationError", bad, err)
		}
	}
}

func TestOpenNotifications_Anonymous(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})

	s, err := e.OpenNotifications(nil, anonymous())
	var authErr *models.AuthRequiredError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthRequiredError", err)
	}

	got := frame(t, s)
	if got["type"] != TypeError || got["message"] != "Authentication required for notifications" {
		t.Errorf("frame = %v", got)
	}
	if s.State() != StateClosed {
		t.Errorf("state = %v, want closed", s.State())
	}
	if e.Registry().Rooms() != 0 || len(s.Keys()) != 0 {
		t.Error("anonymous notification session left a registry entry")
	}
	if st := e.Stats(); st.NotificationSessions != 0 {
		t.Errorf("NotificationSessions = %d, want 0", st.NotificationSessions)
	}
}

func TestCommentCreated_ReplyNotifiesParentAuthor(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})
	alice, bob := user(1, "alice"), user(2, "bob")

	viewer := openPage(t, e, anonymous(), 1)
	alicePage := openPage(t, e, alice, 1)
	aliceInbox := openNotifications(t, e, alice)
	bobInbox := openNotifications(t, e, bob)

	parentID := int64(10)
	parent := &models.Comment{ID: parentID, PageID: 1, AuthorID: alice.UserID, AuthorName: "alice"}
	reply := &models.Comment{ID: 11, PageID: 1, AuthorID: bob.UserID, AuthorName: "bob", Content: "agreed", ParentID: &parentID}

	e.CommentCreated(context.Background(), reply, parent)

	for _, s := range []*Session{viewer, alicePage} {
		got := frame(t, s)
		if got["type"] != TypeNewComment {
			t.Fatalf("room frame type = %v", got["type"])
		}
		comment := got["comment"].(map[string]any)
		if comment["id"] != float64(11) || comment["author"] != "bob" || comment["parent_id"] != float64(10) {
			t.Errorf("comment = %v", comment)
		}
	}

	note := frame(t, aliceInbox)
	if note["type"] != TypeNotification {
		t.Fatalf("notification type = %v", note["type"])
	}
	if msg, _ := note["message"].(string); !strings.Contains(msg, "bob") {
		t.Errorf("notification message = %q, want it to name bob", msg)
	}
	if note["comment_id"] != float64(11) || note["page_id"] != float64(1) {
		t.Errorf("notification ids = %v", note)
	}
	expectNoFrame(t, bobInbox)
}

func TestCommentCreated_SelfReplyAndTopLevel(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})
	alice := user(1, "alice")
	inbox := openNotifications(t, e, alice)
	room := openPage(t, e, alice, 1)

	parentID := int64(10)
	parent := &models.Comment{ID: parentID, PageID: 1, AuthorID: alice.UserID}
	self := &models.Comment{ID: 11, PageID: 1, AuthorID: alice.UserID, AuthorName: "alice", ParentID: &parentID}
	top := &models.Comment{ID: 12, PageID: 1, AuthorID: 2, AuthorName: "bob"}

	e.CommentCreated(context.Background(), self, parent)
	e.CommentCreated(context.Background(), top, nil)

	if got := frame(t, room); got["comment"].(map[string]any)["id"] != float64(11) {
		t.Errorf("first room frame = %v", got)
	}
	if got := frame(t, room); got["comment"].(map[string]any)["id"] != float64(12) {
		t.Errorf("second room frame = %v", got)
	}
	expectNoFrame(t, inbox)
}

func TestCommentCreated_NoListeners(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})
	parentID := int64(1)
	c := &models.Comment{ID: 2, PageID: 3, AuthorID: 2, AuthorName: "bob", ParentID: &parentID}

	// Nobody is connected; delivery is dropped silently.
	e.CommentCreated(context.Background(), c, &models.Comment{ID: 1, AuthorID: 1})
}

func TestVoteChanged(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})
	room := openPage(t, e, anonymous(), 4)
	other := openPage(t, e, anonymous(), 5)

	e.VoteChanged(context.Background(), 4, 9, 3)

	got := frame(t, room)
	if got["type"] != TypeVoteUpdate || got["comment_id"] != float64(9) || got["net_votes"] != float64(3) {
		t.Errorf("frame = %v", got)
	}
	expectNoFrame(t, other)
}

func TestTyping_ExcludesSender(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})
	x := openPage(t, e, user(1, "xavier"), 5)
	y := openPage(t, e, anonymous(), 5)

	x.handleInbound([]byte(`{"type":"typing","is_typing":true}`))

	got := frame(t, y)
	if got["type"] != TypeTyping || got["username"] != "xavier" || got["is_typing"] != true {
		t.Errorf("frame = %v", got)
	}
	expectNoFrame(t, x)
}

func TestTyping_Username(t *testing.T) {
	tests := []struct {
		name     string
		identity auth.Identity
		frame    string
		want     string
	}{
		{"authenticated wins", user(1, "alice"), `{"type":"typing","username":"mallory","is_typing":true}`, "alice"},
		{"anonymous claimed", anonymous(), `{"type":"typing","username":"  guest ","is_typing":true}`, "guest"},
		{"anonymous blank", anonymous(), `{"type":"typing","is_typing":true}`, "Someone"},
		{"anonymous long", anonymous(), `{"type":"typing","username":"` + strings.Repeat("a", 80) + `","is_typing":true}`, strings.Repeat("a", 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEngine(config.RealtimeConfig{})
			sender := openPage(t, e, tt.identity, 1)
			listener := openPage(t, e, anonymous(), 1)

			sender.handleInbound([]byte(tt.frame))

			if got := frame(t, listener); got["username"] != tt.want {
				t.Errorf("username = %v, want %q", got["username"], tt.want)
			}
		})
	}
}

func TestHandleInbound_IgnoresOtherFrames(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})
	sender := openPage(t, e, anonymous(), 1)
	listener := openPage(t, e, anonymous(), 1)
	inbox := openNotifications(t, e, user(3, "carol"))

	sender.handleInbound([]byte(`{"type":"vote","comment_id":1}`))
	sender.handleInbound([]byte(`not json`))
	inbox.handleInbound([]byte(`{"type":"typing","is_typing":true}`))

	expectNoFrame(t, listener)
	if sender.State() != StateJoined {
		t.Error("unknown frames must not close the session")
	}
}

func TestTyping_Throttled(t *testing.T) {
	e := testEngine(config.RealtimeConfig{TypingRate: 0.001, TypingBurst: 2})
	sender := openPage(t, e, anonymous(), 1)
	listener := openPage(t, e, anonymous(), 1)

	for i := 0; i < 5; i++ {
		sender.handleInbound([]byte(`{"type":"typing","is_typing":true}`))
	}

	frame(t, listener)
	frame(t, listener)
	expectNoFrame(t, listener)
}

func TestSessionClose_Idempotent(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})
	s := openPage(t, e, user(1, "alice"), 2)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()

	if s.State() != StateClosed {
		t.Errorf("state = %v", s.State())
	}
	if len(e.Registry().MembersOf(PageKey(2))) != 0 {
		t.Error("closed session still joined")
	}
	if st := e.Stats(); st.PageSessions != 0 {
		t.Errorf("PageSessions = %d after close", st.PageSessions)
	}
	if err := s.enqueue([]byte("x")); !errors.Is(err, errSessionClosed) {
		t.Errorf("enqueue after close error = %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done() not closed")
	}
}

func TestPublish_SlowSessionIsolated(t *testing.T) {
	e := testEngine(config.RealtimeConfig{SendBuffer: 1})
	slow, err := e.OpenPage(nil, anonymous(), 1) // ack fills its buffer
	if err != nil {
		t.Fatal(err)
	}
	fast := openPage(t, e, anonymous(), 1)

	delivered := e.Publish(context.Background(), PageKey(1), VoteUpdate{CommentID: 1, NetVotes: 1}, nil)
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	if got := frame(t, fast); got["type"] != TypeVoteUpdate {
		t.Errorf("fast session frame = %v", got)
	}
	if slow.State() != StateClosed {
		t.Error("slow session was not closed")
	}
	if members := e.Registry().MembersOf(PageKey(1)); len(members) != 1 || members[0] != fast {
		t.Errorf("members after slow close = %v", members)
	}
}

func TestPublish_OrderPerSession(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})
	s := openPage(t, e, anonymous(), 1)

	for i := 1; i <= 20; i++ {
		e.VoteChanged(context.Background(), 1, int64(i), i)
	}
	for i := 1; i <= 20; i++ {
		if got := frame(t, s); got["comment_id"] != float64(i) {
			t.Fatalf("frame %d = %v", i, got)
		}
	}
}

type recordingRelay struct {
	mu   sync.Mutex
	envs []Envelope
	err  error
}

func (r *recordingRelay) Publish(_ context.Context, env Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return r.err
}

func TestRelay(t *testing.T) {
	a := testEngine(config.RealtimeConfig{})
	b := testEngine(config.RealtimeConfig{})
	relay := &recordingRelay{}
	a.SetRelay(relay)

	remote := openPage(t, b, anonymous(), 7)
	a.VoteChanged(context.Background(), 7, 1, 2)

	if len(relay.envs) != 1 {
		t.Fatalf("relayed %d envelopes, want 1", len(relay.envs))
	}
	env := relay.envs[0]
	if env.Origin != a.InstanceID() || env.Key != PageKey(7) || env.Type != TypeVoteUpdate {
		t.Errorf("envelope = %+v", env)
	}

	if n := a.DeliverRelayed(env); n != 0 {
		t.Errorf("own envelope delivered to %d sessions", n)
	}
	if n := b.DeliverRelayed(env); n != 1 {
		t.Errorf("remote delivered = %d, want 1", n)
	}
	if got := frame(t, remote); got["type"] != TypeVoteUpdate || got["net_votes"] != float64(2) {
		t.Errorf("remote frame = %v", got)
	}

	relay.err = errors.New("nats down")
	if n := a.Publish(context.Background(), PageKey(7), VoteUpdate{CommentID: 1}, nil); n != 0 {
		t.Errorf("delivered = %d with no local members", n)
	}
}

func TestRunWithContext_ClosesSessions(t *testing.T) {
	e := testEngine(config.RealtimeConfig{StatsInterval: 10 * time.Millisecond})
	page := openPage(t, e, anonymous(), 1)
	inbox := openNotifications(t, e, user(1, "alice"))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.RunWithContext(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}

	for _, s := range []*Session{page, inbox} {
		if s.State() != StateClosed {
			t.Errorf("session %d state = %v after shutdown", s.ID(), s.State())
		}
	}
	if e.Registry().Rooms() != 0 {
		t.Errorf("Rooms() = %d after shutdown", e.Registry().Rooms())
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateConnecting: "connecting",
		StateJoined:     "joined",
		StateClosed:     "closed",
		State(9):        "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

// A session joining a busy room still sees its acknowledgement first.
func TestOpenPage_AckPrecedesRoomTraffic(t *testing.T) {
	e := testEngine(config.RealtimeConfig{SendBuffer: 4096})
	ctx := context.Background()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			e.VoteChanged(ctx, 1, 7, i)
		}
	}()

	for i := 0; i < 50; i++ {
		s, err := e.OpenPage(nil, anonymous(), 1)
		if err != nil {
			t.Fatalf("OpenPage() error = %v", err)
		}
		if got := frame(t, s); got["type"] != TypeConnectionEstablished {
			t.Errorf("session %d first frame = %v", i, got)
		}
		s.Close()
	}
	close(stop)
	wg.Wait()
}
