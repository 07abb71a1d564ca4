// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

/*
Package supervisor runs Threadline's long-lived services under a suture v4
supervisor tree.

	threadline
	├── messaging-layer
	│   ├── broadcast-engine  (gauges, closes sockets on shutdown)
	│   └── nats-relay        (if NATS_ENABLED, build tag: nats)
	└── api-layer
	    └── http-server

Crashed services restart with backoff. Supervisor events are logged through
sutureslog into the zerolog pipeline (logging.NewSlogLogger).

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddMessagingService(services.NewBroadcastEngineService(engine))
	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, cfg.Server.ShutdownTimeout))
	errCh := tree.ServeBackground(ctx)

After the context is canceled, UnstoppedServiceReport lists anything that
missed its shutdown timeout.
*/
package supervisor
