// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

/*
Package middleware provides the HTTP instrumentation shared by every route.

Key Components:

  - RequestID: accepts or generates X-Request-ID and seeds the logging
    context with request and correlation IDs
  - PrometheusMetrics: request count, latency and in-flight gauge, labeled
    by chi route pattern
  - AccessLog: one structured zerolog line per request

Wrapped response writers keep http.Hijacker, so websocket upgrades pass
through unchanged.
*/
package middleware
