// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/threadline/internal/auth"
	"github.com/tomtom215/threadline/internal/config"
	"github.com/tomtom215/threadline/internal/logging"
	"github.com/tomtom215/threadline/internal/metrics"
	"github.com/tomtom215/threadline/internal/models"
)

// ShutdownReason identifies why the engine stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Envelope is an encoded broadcast as it travels between instances.
type Envelope struct {
	Origin  string `json:"origin"`
	Key     string `json:"key"`
	Type    string `json:"type"`
	Payload []byte `json:"payload"`
}

// Relay forwards local broadcasts to other instances.
type Relay interface {
	Publish(ctx context.Context, env Envelope) error
}

// Engine turns domain events into wire messages and fans them out to the
// sessions joined to the matching registry key.
type Engine struct {
	registry   *Registry
	cfg        config.RealtimeConfig
	instanceID string

	relayMu sync.RWMutex
	relay   Relay

	sessions    sync.Map // uint64 -> *Session
	pageCount   atomic.Int64
	notifyCount atomic.Int64
}

// NewEngine creates an engine over registry. Zero-valued realtime settings
// fall back to their defaults.
func NewEngine(registry *Registry, cfg config.RealtimeConfig) *Engine {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if cfg.TypingRate <= 0 {
		cfg.TypingRate = 5
	}
	if cfg.TypingBurst <= 0 {
		cfg.TypingBurst = 10
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 30 * time.Second
	}
	return &Engine{
		registry:   registry,
		cfg:        cfg,
		instanceID: uuid.NewString(),
	}
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *Registry { return e.registry }

// InstanceID identifies this process on the relay.
func (e *Engine) InstanceID() string { return e.instanceID }

// SetRelay attaches a cross-instance relay. A nil relay disables it.
func (e *Engine) SetRelay(r Relay) {
	e.relayMu.Lock()
	e.relay = r
	e.relayMu.Unlock()
}

// OpenPage joins a session to a page room and acknowledges it. The page
// must already be known to exist.
func (e *Engine) OpenPage(conn *websocket.Conn, identity auth.Identity, pageID int64) (*Session, error) {
	if pageID <= 0 {
		return nil, models.NewValidationError("page_id", "page id must be a positive integer")
	}
	s := newSession(e, conn, KindPage, identity, pageID)
	e.attach(s)
	// The ack is queued before the join so no room broadcast can precede it.
	e.ack(s, "Connected to comment room")
	s.join(PageKey(pageID))
	s.state.Store(int32(StateJoined))
	s.start()

	logging.Debug().
		Uint64("session_id", s.id).
		Int64("page_id", pageID).
		Int64("user_id", identity.UserID).
		Msg("page session joined")
	return s, nil
}

// OpenNotifications joins an authenticated session to its user channel.
// Anonymous callers receive an error frame, the session is closed and
// AuthRequiredError is returned.
func (e *Engine) OpenNotifications(conn *websocket.Conn, identity auth.Identity) (*Session, error) {
	s := newSession(e, conn, KindNotifications, identity, 0)
	if !identity.IsAuthenticated() {
		authErr := &models.AuthRequiredError{Message: "Authentication required for notifications"}
		s.reject(ErrorMessage{Message: authErr.Message})
		return s, authErr
	}

	e.attach(s)
	e.ack(s, "Connected to notifications")
	s.join(UserKey(identity.UserID))
	s.state.Store(int32(StateJoined))
	s.start()

	logging.Debug().
		Uint64("session_id", s.id).
		Int64("user_id", identity.UserID).
		Msg("notification session joined")
	return s, nil
}

func (e *Engine) ack(s *Session, text string) {
	payload, err := Encode(ConnectionEstablished{Message: text})
	if err != nil {
		logging.Error().Err(err).Msg("failed to encode acknowledgement")
		return
	}
	if err := s.enqueue(payload); err != nil {
		e.reportDeliveryError(&models.DeliveryError{SessionID: s.id, Key: "ack", Err: err})
	}
}

// CommentCreated announces c to its page room and, when it replies to
// someone else's comment, notifies the parent's author. The room message is
// always enqueued before the notification.
func (e *Engine) CommentCreated(ctx context.Context, c *models.Comment, parent *models.Comment) {
	e.Publish(ctx, PageKey(c.PageID), NewComment{Comment: SummarizeComment(c)}, nil)

	if parent == nil || parent.AuthorID == c.AuthorID {
		return
	}
	e.Publish(ctx, UserKey(parent.AuthorID), ReplyNotification(c.AuthorName, c.ID, c.PageID), nil)
}

// VoteChanged announces a comment's new net score to its page room.
func (e *Engine) VoteChanged(ctx context.Context, pageID, commentID int64, netVotes int) {
	e.Publish(ctx, PageKey(pageID), VoteUpdate{CommentID: commentID, NetVotes: netVotes}, nil)
}

// Typing forwards a typing signal to everyone else in the sender's room.
func (e *Engine) Typing(from *Session, username string, isTyping bool) {
	e.Publish(context.Background(), PageKey(from.pageID), Typing{Username: username, IsTyping: isTyping}, from)
}

// Publish encodes msg once and delivers it to every local member of key
// except exclude, then hands it to the relay. It returns the number of
// local sessions that accepted the frame.
func (e *Engine) Publish(ctx context.Context, key string, msg Message, exclude *Session) int {
	payload, err := Encode(msg)
	if err != nil {
		logging.Error().Err(err).Str("key", key).Msg("failed to encode broadcast")
		metrics.RecordDeliveryFailure("encode")
		return 0
	}

	delivered := e.deliver(key, msg.MessageType(), payload, exclude)
	e.forward(ctx, Envelope{Origin: e.instanceID, Key: key, Type: msg.MessageType(), Payload: payload})
	return delivered
}

// DeliverRelayed hands an envelope from another instance to local members.
// Envelopes this instance published are ignored.
func (e *Engine) DeliverRelayed(env Envelope) int {
	if env.Origin == e.instanceID || env.Key == "" {
		return 0
	}
	metrics.RelayConsumed.Inc()
	return e.deliver(env.Key, env.Type, env.Payload, nil)
}

// deliver enqueues payload for each member while holding the key's lock.
// Sessions that cannot accept it are closed afterwards, outside the lock.
func (e *Engine) deliver(key, msgType string, payload []byte, exclude *Session) int {
	delivered := 0
	var slow []*Session

	e.registry.withMembers(key, func(members []*Session) {
		for _, s := range members {
			if s == exclude {
				continue
			}
			if err := s.enqueue(payload); err != nil {
				e.reportDeliveryError(&models.DeliveryError{SessionID: s.id, Key: key, Err: err})
				if errors.Is(err, errSendBufferFull) {
					slow = append(slow, s)
				}
				continue
			}
			delivered++
		}
	})

	for _, s := range slow {
		s.Close()
	}

	metrics.RecordBroadcast(msgType, delivered)
	return delivered
}

func (e *Engine) forward(ctx context.Context, env Envelope) {
	e.relayMu.RLock()
	r := e.relay
	e.relayMu.RUnlock()
	if r == nil {
		return
	}
	if err := r.Publish(context.WithoutCancel(ctx), env); err != nil {
		metrics.RelayErrors.WithLabelValues("publish").Inc()
		logging.Warn().Err(err).Str("key", env.Key).Str("type", env.Type).Msg("relay publish failed")
		return
	}
	metrics.RelayPublished.Inc()
}

func (e *Engine) reportDeliveryError(err *models.DeliveryError) {
	reason := "closed"
	if errors.Is(err.Err, errSendBufferFull) {
		reason = "buffer_full"
	}
	metrics.RecordDeliveryFailure(reason)
	logging.Warn().
		Err(err.Err).
		Uint64("session_id", err.SessionID).
		Str("key", err.Key).
		Msg("websocket delivery failed")
}

func (e *Engine) attach(s *Session) {
	e.sessions.Store(s.id, s)
	if s.kind == KindPage {
		e.pageCount.Add(1)
	} else {
		e.notifyCount.Add(1)
	}
}

func (e *Engine) detach(s *Session) {
	if _, loaded := e.sessions.LoadAndDelete(s.id); !loaded {
		return
	}
	if s.kind == KindPage {
		e.pageCount.Add(-1)
	} else {
		e.notifyCount.Add(-1)
	}
}

// Stats is a point-in-time view of live sessions.
type Stats struct {
	PageSessions         int
	NotificationSessions int
	Rooms                int
}

// Stats returns current session and room counts.
func (e *Engine) Stats() Stats {
	return Stats{
		PageSessions:         int(e.pageCount.Load()),
		NotificationSessions: int(e.notifyCount.Load()),
		Rooms:                e.registry.Rooms(),
	}
}

// RunWithContext publishes gauges until ctx is canceled, then closes every
// live session.
func (e *Engine) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logGracefulShutdown(ctx)
			return ctx.Err()
		case <-ticker.C:
			st := e.Stats()
			metrics.UpdateRealtimeGauges(st.PageSessions, st.NotificationSessions, st.Rooms)
		}
	}
}

func (e *Engine) logGracefulShutdown(ctx context.Context) {
	closed := e.closeAll()
	metrics.UpdateRealtimeGauges(0, 0, e.registry.Rooms())

	logging.Info().
		Str("component", "broadcast-engine").
		Str("reason", string(getShutdownReason(ctx))).
		Int("sessions_closed", closed).
		Msg("broadcast engine stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// closeAll closes sessions in id order and returns how many were open.
func (e *Engine) closeAll() int {
	var open []*Session
	e.sessions.Range(func(_, v any) bool {
		open = append(open, v.(*Session))
		return true
	})
	sort.Slice(open, func(i, j int) bool {
		return open[i].id < open[j].id
	})
	for _, s := range open {
		s.Close()
	}
	return len(open)
}
