// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/threadline/internal/auth"
	"github.com/tomtom215/threadline/internal/config"
)

// socketServer upgrades /page?id=N and /notifications?user=N&name=X.
func socketServer(t *testing.T, e *Engine) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		q := r.URL.Query()
		var identity auth.Identity
		if uid, _ := strconv.ParseInt(q.Get("user"), 10, 64); uid > 0 {
			identity = auth.Identity{UserID: uid, Username: q.Get("name")}
		}
		switch r.URL.Path {
		case "/page":
			id, _ := strconv.ParseInt(q.Get("id"), 10, 64)
			if _, err := e.OpenPage(conn, identity, id); err != nil {
				_ = conn.Close()
			}
		case "/notifications":
			_, _ = e.OpenNotifications(conn, identity)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSocket_PageRoom(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})
	srv := socketServer(t, e)

	x := dial(t, srv, "/page?id=5&user=1&name=xavier")
	y := dial(t, srv, "/page?id=5")

	for _, conn := range []*websocket.Conn{x, y} {
		if got := readFrame(t, conn); got["type"] != TypeConnectionEstablished {
			t.Fatalf("ack = %v", got)
		}
	}

	if err := x.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing","is_typing":true}`)); err != nil {
		t.Fatal(err)
	}
	got := readFrame(t, y)
	if got["type"] != TypeTyping || got["username"] != "xavier" {
		t.Errorf("typing frame = %v", got)
	}

	e.VoteChanged(context.Background(), 5, 3, 1)
	// x sees the vote update and never its own typing echo.
	if got := readFrame(t, x); got["type"] != TypeVoteUpdate {
		t.Errorf("x frame = %v, want vote_update", got)
	}
	if got := readFrame(t, y); got["type"] != TypeVoteUpdate {
		t.Errorf("y frame = %v, want vote_update", got)
	}
}

func TestSocket_DisconnectLeavesRoom(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})
	srv := socketServer(t, e)

	conn := dial(t, srv, "/page?id=8")
	readFrame(t, conn)
	waitFor(t, "join", func() bool { return len(e.Registry().MembersOf(PageKey(8))) == 1 })

	_ = conn.Close()
	waitFor(t, "leave", func() bool { return len(e.Registry().MembersOf(PageKey(8))) == 0 })
	waitFor(t, "detach", func() bool { return e.Stats().PageSessions == 0 })
}

func TestSocket_AnonymousNotifications(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})
	srv := socketServer(t, e)

	conn := dial(t, srv, "/notifications")
	got := readFrame(t, conn)
	if got["type"] != TypeError || got["message"] != "Authentication required for notifications" {
		t.Errorf("frame = %v", got)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection stayed open after rejection")
	}
	if e.Registry().Rooms() != 0 {
		t.Error("rejected session left a registry entry")
	}
}

func TestSocket_Notifications(t *testing.T) {
	e := testEngine(config.RealtimeConfig{})
	srv := socketServer(t, e)

	conn := dial(t, srv, "/notifications?user=4&name=dana")
	if got := readFrame(t, conn); got["message"] != "Connected to notifications" {
		t.Fatalf("ack = %v", got)
	}
	waitFor(t, "join", func() bool { return len(e.Registry().MembersOf(UserKey(4))) == 1 })

	e.Publish(context.Background(), UserKey(4), ReplyNotification("erin", 12, 2), nil)
	got := readFrame(t, conn)
	if got["type"] != TypeNotification || got["message"] != "erin replied to your comment" {
		t.Errorf("frame = %v", got)
	}
}
