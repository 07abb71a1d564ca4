// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

/*
Package services adapts Threadline components to suture's Serve pattern.

	HTTPServerService       ListenAndServe/Shutdown with a drain timeout
	BroadcastEngineService  websocket.Engine.RunWithContext
	RelayService            websocket.NATSRelay Serve, then Close on shutdown

Each service returns ctx.Err() on a clean stop, so suture does not count a
shutdown as a failure, and any other error to trigger a restart.
*/
package services
