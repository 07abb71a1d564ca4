// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

//go:build !nats

package websocket

import (
	"context"
	"errors"

	"github.com/tomtom215/threadline/internal/config"
)

var errNATSDisabled = errors.New("NATS support not enabled (build with -tags nats)")

// NATSRelay is a stub for non-NATS builds.
type NATSRelay struct{}

// NewNATSRelay always fails in non-NATS builds.
func NewNATSRelay(_ config.NATSConfig, _ *Engine) (*NATSRelay, error) {
	return nil, errNATSDisabled
}

// ClientURL is empty in non-NATS builds.
func (r *NATSRelay) ClientURL() string { return "" }

// Publish returns an error in non-NATS builds.
func (r *NATSRelay) Publish(_ context.Context, _ Envelope) error { return errNATSDisabled }

// Serve blocks until ctx is canceled.
func (r *NATSRelay) Serve(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Close is a no-op stub.
func (r *NATSRelay) Close() error { return nil }

func (r *NATSRelay) String() string { return "nats-relay" }
