// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package api

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

func (f *apiFixture) dial(t *testing.T, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func readSocketFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func TestPageSocket_UnknownPage(t *testing.T) {
	f := newAPIFixture(t)

	_, resp, err := f.dial(t, "/ws/pages/404")
	if err == nil {
		t.Fatal("upgrade to unknown page succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %v, want 404", resp)
	}
}

func TestPageSocket_ReceivesCommentsAndVotes(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.signup(t, "alice")
	bob := f.signup(t, "bob")
	page := f.createPage(t, alice.Token, "Live")

	conn, _, err := f.dial(t, fmt.Sprintf("/ws/pages/%d", page.ID))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if ack := readSocketFrame(t, conn); ack["type"] != "connection_established" || ack["message"] != "Connected to comment room" {
		t.Fatalf("ack = %v", ack)
	}

	c := f.createComment(t, bob.Token, page.ID, "hello room", nil)
	got := readSocketFrame(t, conn)
	if got["type"] != "new_comment" {
		t.Fatalf("frame = %v, want new_comment", got)
	}
	comment, _ := got["comment"].(map[string]interface{})
	if comment["content"] != "hello room" || comment["author"] != "bob" {
		t.Errorf("comment = %v", comment)
	}

	f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/comments/%d/vote", c.ID), alice.Token, map[string]string{"vote_type": "up"})
	got = readSocketFrame(t, conn)
	if got["type"] != "vote_update" || got["net_votes"] != float64(1) {
		t.Errorf("frame = %v, want vote_update with net_votes 1", got)
	}
}

func TestNotificationSocket(t *testing.T) {
	f := newAPIFixture(t)
	alice := f.signup(t, "alice")
	bob := f.signup(t, "bob")
	page := f.createPage(t, alice.Token, "Replies")
	parent := f.createComment(t, alice.Token, page.ID, "question?", nil)

	conn, _, err := f.dial(t, "/ws/notifications?token="+alice.Token)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if ack := readSocketFrame(t, conn); ack["message"] != "Connected to notifications" {
		t.Fatalf("ack = %v", ack)
	}

	f.createComment(t, bob.Token, page.ID, "answer", &parent.ID)
	got := readSocketFrame(t, conn)
	if got["type"] != "notification" || got["message"] != "bob replied to your comment" {
		t.Errorf("frame = %v", got)
	}
}

func TestNotificationSocket_Anonymous(t *testing.T) {
	f := newAPIFixture(t)

	conn, _, err := f.dial(t, "/ws/notifications")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	got := readSocketFrame(t, conn)
	if got["type"] != "error" || got["message"] != "Authentication required for notifications" {
		t.Errorf("frame = %v", got)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("anonymous notification socket stayed open")
	}
	if st := f.engine.Stats(); st.NotificationSessions != 0 {
		t.Errorf("notification sessions = %d, want 0", st.NotificationSessions)
	}
}
