// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/threadline/internal/logging"
	"github.com/tomtom215/threadline/internal/metrics"
)

func instrumentedRouter(status int) *chi.Mux {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics)
	r.Get("/api/v1/pages/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	r.Get("/plain", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	return r
}

func TestPrometheusMetrics_LabelsByRoutePattern(t *testing.T) {
	statuses := []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError}

	for _, status := range statuses {
		t.Run(http.StatusText(status), func(t *testing.T) {
			counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/pages/{id}", strconv.Itoa(status))
			before := testutil.ToFloat64(counter)

			router := instrumentedRouter(status)
			for _, id := range []string{"1", "2", "3"} {
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pages/"+id, nil))
				if rec.Code != status {
					t.Fatalf("status = %d, want %d", rec.Code, status)
				}
			}

			if got := testutil.ToFloat64(counter) - before; got != 3 {
				t.Errorf("counter delta = %v, want 3 (one label for all ids)", got)
			}
		})
	}
}

func TestPrometheusMetrics_DefaultsTo200(t *testing.T) {
	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/plain", "200")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	instrumentedRouter(http.StatusOK).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plain", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("counter delta = %v, want 1", got)
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestPrometheusMetrics_Unmatched(t *testing.T) {
	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	instrumentedRouter(http.StatusOK).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("counter delta = %v, want 1", got)
	}
}

func TestPrometheusMetrics_ActiveRequestsSettle(t *testing.T) {
	before := testutil.ToFloat64(metrics.APIActiveRequests)

	rec := httptest.NewRecorder()
	instrumentedRouter(http.StatusOK).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/plain", nil))

	if got := testutil.ToFloat64(metrics.APIActiveRequests); got != before {
		t.Errorf("active requests = %v after completion, want %v", got, before)
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(logging.Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() {
		logging.Init(logging.Config{Level: "info", Format: "json", Output: &bytes.Buffer{}})
	})

	r := chi.NewRouter()
	r.Use(RequestID, AccessLog)
	r.Post("/api/v1/comments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{}`))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/comments", nil))

	out := buf.String()
	for _, want := range []string{`"route":"/api/v1/comments"`, `"status":201`, `"bytes":2`, `"request_id":"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log %s missing %s", out, want)
		}
	}
}
