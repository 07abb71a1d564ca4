// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package websocket

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/threadline/internal/auth"
	"github.com/tomtom215/threadline/internal/logging"
	"github.com/tomtom215/threadline/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxTypingNameLength = 64
	anonymousTypist     = "Someone"
)

var (
	errSessionClosed  = errors.New("session closed")
	errSendBufferFull = errors.New("send buffer full")
)

// sessionIDCounter gives sessions a stable order for fan-out.
var sessionIDCounter atomic.Uint64

// Kind distinguishes page room sockets from notification sockets.
type Kind string

const (
	KindPage          Kind = "page"
	KindNotifications Kind = "notifications"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one physical connection. A session with a nil conn is valid:
// it never starts its pumps and its outbound frames stay in Send.
type Session struct {
	id       uint64
	kind     Kind
	identity auth.Identity
	pageID   int64
	engine   *Engine
	conn     *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32

	mu   sync.Mutex
	keys []string

	typing *rate.Limiter
}

func newSession(e *Engine, conn *websocket.Conn, kind Kind, identity auth.Identity, pageID int64) *Session {
	return &Session{
		id:       sessionIDCounter.Add(1),
		kind:     kind,
		identity: identity,
		pageID:   pageID,
		engine:   e,
		conn:     conn,
		send:     make(chan []byte, e.cfg.SendBuffer),
		done:     make(chan struct{}),
		typing:   rate.NewLimiter(rate.Limit(e.cfg.TypingRate), e.cfg.TypingBurst),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() uint64 { return s.id }

// Kind returns whether this is a page or notification socket.
func (s *Session) Kind() Kind { return s.kind }

// Identity returns the caller that opened the session.
func (s *Session) Identity() auth.Identity { return s.identity }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Send exposes queued outbound frames.
func (s *Session) Send() <-chan []byte { return s.send }

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} { return s.done }

// Keys returns the registry keys the session has joined.
func (s *Session) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

func (s *Session) join(key string) {
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	s.engine.registry.Join(key, s)
}

// enqueue queues a frame without blocking. A closed session or a full
// buffer rejects it.
func (s *Session) enqueue(payload []byte) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}

	select {
	case s.send <- payload:
		return nil
	case <-s.done:
		return errSessionClosed
	default:
		return errSendBufferFull
	}
}

// Close leaves every joined key and releases the connection. Safe to call
// any number of times from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)

		s.mu.Lock()
		keys := s.keys
		s.keys = nil
		s.mu.Unlock()

		for _, key := range keys {
			s.engine.registry.Leave(key, s)
		}
		s.engine.detach(s)

		if s.conn != nil {
			_ = s.conn.Close() // Best-effort; the peer may already be gone
		}
	})
}

// start launches the pumps for a live connection.
func (s *Session) start() {
	if s.conn == nil {
		return
	}
	go s.writePump()
	go s.readPump()
}

// readPump consumes client frames until the connection fails.
func (s *Session) readPump() {
	defer s.Close()

	s.conn.SetReadLimit(s.engine.cfg.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Uint64("session_id", s.id).Msg("failed to set read deadline")
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug().Err(err).Uint64("session_id", s.id).Msg("unexpected websocket close")
			}
			return
		}
		s.handleInbound(data)
	}
}

// handleInbound acts on typing frames from joined page sessions and
// ignores everything else.
func (s *Session) handleInbound(data []byte) {
	in, err := DecodeInbound(data)
	if err != nil {
		metrics.WSMessagesReceived.WithLabelValues("malformed").Inc()
		return
	}
	if in.Type != TypeTyping {
		metrics.WSMessagesReceived.WithLabelValues("ignored").Inc()
		return
	}
	metrics.WSMessagesReceived.WithLabelValues(TypeTyping).Inc()

	if s.kind != KindPage || s.State() != StateJoined {
		return
	}
	if !s.typing.Allow() {
		metrics.WSTypingThrottled.Inc()
		return
	}
	s.engine.Typing(s, s.typistName(in.Username), in.IsTyping)
}

// typistName prefers the authenticated username over whatever the client
// claims.
func (s *Session) typistName(claimed string) string {
	if s.identity.IsAuthenticated() {
		return s.identity.Username
	}
	claimed = strings.TrimSpace(claimed)
	if claimed == "" {
		return anonymousTypist
	}
	if utf8.RuneCountInString(claimed) > maxTypingNameLength {
		claimed = string([]rune(claimed)[:maxTypingNameLength])
	}
	return claimed
}

// writePump drains the send buffer to the connection and keeps it alive
// with pings. Frames still queued when the session closes are dropped.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case payload := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Uint64("session_id", s.id).Msg("failed to set write deadline")
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				metrics.RecordDeliveryFailure("write")
				logging.Debug().Err(err).Uint64("session_id", s.id).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reject writes a final error frame and closes the session without ever
// joining a key.
func (s *Session) reject(msg Message) {
	payload, err := Encode(msg)
	if err != nil {
		logging.Error().Err(err).Msg("failed to encode rejection")
		s.Close()
		return
	}

	if s.conn == nil {
		_ = s.enqueue(payload)
		s.Close()
		return
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		logging.Debug().Err(err).Uint64("session_id", s.id).Msg("failed to write rejection")
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"))
	s.Close()
}
