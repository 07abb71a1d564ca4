// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

// Package metrics registers Threadline's Prometheus collectors. They are
// exposed at /metrics by the API router.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threadline_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_db_query_errors_total",
			Help: "Total number of database query errors",
		},
		[]string{"operation", "table"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threadline_api_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threadline_api_active_requests",
			Help: "Number of in-flight API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_api_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"scope"},
	)

	// Discussion Metrics
	VotesCast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_votes_total",
			Help: "Votes cast by resulting action",
		},
		[]string{"action"}, // added, changed, removed
	)

	CommentWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_comment_writes_total",
			Help: "Comment writes by operation",
		},
		[]string{"op"}, // create, edit, delete
	)

	// Page Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_cache_hits_total",
			Help: "Page cache hits",
		},
		[]string{"backend"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_cache_misses_total",
			Help: "Page cache misses",
		},
		[]string{"backend"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_cache_errors_total",
			Help: "Page cache backend errors (treated as misses)",
		},
		[]string{"backend", "op"},
	)

	// WebSocket Metrics
	WSSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "threadline_ws_sessions",
			Help: "Open websocket sessions",
		},
		[]string{"kind"}, // page, notifications
	)

	WSRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "threadline_ws_rooms",
			Help: "Registry keys with at least one member",
		},
	)

	WSBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_ws_broadcasts_total",
			Help: "Broadcasts published by message type",
		},
		[]string{"type"},
	)

	WSDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_ws_deliveries_total",
			Help: "Messages enqueued to sessions by message type",
		},
		[]string{"type"},
	)

	WSDeliveryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_ws_delivery_failures_total",
			Help: "Per-recipient delivery failures",
		},
		[]string{"reason"}, // buffer_full, closed, write
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_ws_messages_received_total",
			Help: "Inbound websocket messages by type",
		},
		[]string{"type"},
	)

	WSTypingThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threadline_ws_typing_throttled_total",
			Help: "Typing events dropped by the per-session rate limiter",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "threadline_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Relay Metrics
	RelayPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threadline_relay_published_total",
			Help: "Broadcasts published to the cross-instance relay",
		},
	)

	RelayConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threadline_relay_consumed_total",
			Help: "Relayed broadcasts delivered locally",
		},
	)

	RelayErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threadline_relay_errors_total",
			Help: "Relay publish or decode failures",
		},
		[]string{"op"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "threadline_app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordCacheLookup counts a page cache hit or miss.
func RecordCacheLookup(backend string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(backend).Inc()
	} else {
		CacheMisses.WithLabelValues(backend).Inc()
	}
}

// RecordBroadcast counts one published message and its enqueued deliveries.
func RecordBroadcast(msgType string, delivered int) {
	WSBroadcasts.WithLabelValues(msgType).Inc()
	if delivered > 0 {
		WSDeliveries.WithLabelValues(msgType).Add(float64(delivered))
	}
}

// RecordDeliveryFailure counts a failed per-recipient delivery.
func RecordDeliveryFailure(reason string) {
	WSDeliveryFailures.WithLabelValues(reason).Inc()
}

// RecordVote counts a vote by action.
func RecordVote(action string) {
	VotesCast.WithLabelValues(action).Inc()
}

// RecordCommentWrite counts a comment write by operation.
func RecordCommentWrite(op string) {
	CommentWrites.WithLabelValues(op).Inc()
}

// UpdateRealtimeGauges sets the session and room gauges.
func UpdateRealtimeGauges(pageSessions, notificationSessions, rooms int) {
	WSSessions.WithLabelValues("page").Set(float64(pageSessions))
	WSSessions.WithLabelValues("notifications").Set(float64(notificationSessions))
	WSRooms.Set(float64(rooms))
}
