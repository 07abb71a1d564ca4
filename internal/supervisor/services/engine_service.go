// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package services

import (
	"context"
)

// ContextRunner runs until its context is canceled.
// Satisfied by *websocket.Engine.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// BroadcastEngineService supervises the broadcast engine's housekeeping
// loop. Stopping it closes every live websocket session.
type BroadcastEngineService struct {
	engine ContextRunner
}

// NewBroadcastEngineService wraps engine.
func NewBroadcastEngineService(engine ContextRunner) *BroadcastEngineService {
	return &BroadcastEngineService{engine: engine}
}

// Serve implements suture.Service.
func (s *BroadcastEngineService) Serve(ctx context.Context) error {
	return s.engine.RunWithContext(ctx)
}

func (s *BroadcastEngineService) String() string {
	return "broadcast-engine"
}
