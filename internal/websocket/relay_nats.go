// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

//go:build nats

package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsserver "github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/threadline/internal/config"
	"github.com/tomtom215/threadline/internal/logging"
	"github.com/tomtom215/threadline/internal/metrics"
)

var errRelayClosed = errors.New("relay closed")

// NATSRelay mirrors broadcasts across instances over a core NATS subject.
// Every instance subscribes without a queue group so each one delivers
// relayed events to its own local members.
type NATSRelay struct {
	cfg        config.NATSConfig
	engine     *Engine
	server     *natsserver.Server
	publisher  message.Publisher
	subscriber message.Subscriber
	clientURL  string

	mu     sync.RWMutex
	closed bool
}

// NewNATSRelay connects to cfg.URL, starting an embedded server first when
// cfg.EmbeddedServer is set.
func NewNATSRelay(cfg config.NATSConfig, engine *Engine) (*NATSRelay, error) {
	logger := watermill.NewSlogLogger(logging.NewSlogLogger())
	r := &NATSRelay{cfg: cfg, engine: engine, clientURL: cfg.URL}

	if cfg.EmbeddedServer {
		ns, err := startEmbeddedServer(cfg.URL)
		if err != nil {
			return nil, err
		}
		r.server = ns
		r.clientURL = ns.ClientURL()
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("threadline-relay"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS relay disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS relay reconnected")
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         r.clientURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		r.shutdownServer()
		return nil, fmt.Errorf("create relay publisher: %w", err)
	}
	r.publisher = pub

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              r.clientURL,
		SubscribersCount: 1,
		AckWaitTimeout:   5 * time.Second,
		CloseTimeout:     5 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		r.shutdownServer()
		return nil, fmt.Errorf("create relay subscriber: %w", err)
	}
	r.subscriber = sub

	logging.Info().
		Str("url", r.clientURL).
		Str("subject", cfg.Subject).
		Bool("embedded", r.server != nil).
		Msg("NATS relay ready")
	return r, nil
}

// startEmbeddedServer runs an in-process NATS server on the host and port
// named by rawURL.
func startEmbeddedServer(rawURL string) (*natsserver.Server, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse NATS url: %w", err)
	}
	port := natsserver.RANDOM_PORT
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("parse NATS port: %w", err)
		}
	}

	ns, err := natsserver.NewServer(&natsserver.Options{
		ServerName: "threadline-relay",
		Host:       u.Hostname(),
		Port:       port,
		NoLog:      true,
		NoSigs:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("NATS server not ready within timeout")
	}
	return ns, nil
}

// ClientURL returns the URL the relay connected to.
func (r *NATSRelay) ClientURL() string { return r.clientURL }

// Publish sends env to every instance, this one included.
func (r *NATSRelay) Publish(ctx context.Context, env Envelope) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return errRelayClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)
	if err := r.publisher.Publish(r.cfg.Subject, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", r.cfg.Subject, err)
	}
	return nil
}

// Serve consumes relayed envelopes until ctx is canceled.
func (r *NATSRelay) Serve(ctx context.Context) error {
	msgs, err := r.subscriber.Subscribe(ctx, r.cfg.Subject)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.cfg.Subject, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("relay subscription on %s closed", r.cfg.Subject)
			}
			r.handle(msg)
		}
	}
}

func (r *NATSRelay) handle(msg *message.Message) {
	defer msg.Ack()

	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		metrics.RelayErrors.WithLabelValues("decode").Inc()
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping malformed relay envelope")
		return
	}
	r.engine.DeliverRelayed(env)
}

// Close releases the NATS connections and any embedded server.
func (r *NATSRelay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	var errs []error
	if err := r.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	if err := r.subscriber.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close subscriber: %w", err))
	}
	r.shutdownServer()
	return errors.Join(errs...)
}

func (r *NATSRelay) shutdownServer() {
	if r.server == nil {
		return
	}
	r.server.Shutdown()
	r.server.WaitForShutdown()
}

// String implements fmt.Stringer for supervisor logs.
func (r *NATSRelay) String() string { return "nats-relay" }
