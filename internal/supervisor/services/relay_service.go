// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/threadline/internal/logging"
)

// Relay consumes broadcasts from other instances.
// Satisfied by *websocket.NATSRelay.
type Relay interface {
	Serve(ctx context.Context) error
	Close() error
}

// RelayService supervises the cross-instance relay's subscription. A failed
// subscription is returned to the supervisor and retried; the relay's
// connections are released only on shutdown.
type RelayService struct {
	relay Relay
}

// NewRelayService wraps relay.
func NewRelayService(relay Relay) *RelayService {
	return &RelayService{relay: relay}
}

// Serve implements suture.Service.
func (s *RelayService) Serve(ctx context.Context) error {
	err := s.relay.Serve(ctx)
	if ctx.Err() == nil {
		if err == nil {
			err = errors.New("relay stopped unexpectedly")
		}
		return fmt.Errorf("relay: %w", err)
	}

	if closeErr := s.relay.Close(); closeErr != nil {
		logging.Warn().Err(closeErr).Msg("relay close failed")
	}
	return ctx.Err()
}

func (s *RelayService) String() string {
	return "nats-relay"
}
