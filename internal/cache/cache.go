// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

// Package cache provides the page read cache. Entries are opaque byte
// slices keyed by string; callers encode with GetJSON and SetJSON.
//
// A cache failure is never an application failure: backends log and count
// errors, then behave as a miss.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/threadline/internal/config"
	"github.com/tomtom215/threadline/internal/logging"
	"github.com/tomtom215/threadline/internal/metrics"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendNone   = "none"
)

// Cacher is a TTL key-value cache.
type Cacher interface {
	// Get returns the value and true on a hit.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value with the cache's default TTL.
	Set(ctx context.Context, key string, value []byte)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string)

	// Close releases backend resources.
	Close() error

	// Name identifies the backend in logs and metrics.
	Name() string
}

// PageKey is the cache key for a page detail.
func PageKey(pageID int64) string {
	return "page:" + strconv.FormatInt(pageID, 10)
}

// New builds the configured backend.
func New(ctx context.Context, cfg *config.CacheConfig) (Cacher, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemory(cfg.Size, ttl), nil
	case BackendRedis:
		return NewRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      ttl,
		})
	case BackendBadger:
		return NewBadger(cfg.BadgerPath, ttl)
	case BackendNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// Stats counts lookups through an Instrumented cache.
type Stats struct {
	Hits   int64
	Misses int64
}

// HitRate returns the hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Instrumented wraps a Cacher with hit/miss accounting.
type Instrumented struct {
	Cacher
	hits   atomic.Int64
	misses atomic.Int64
}

// NewInstrumented wraps c.
func NewInstrumented(c Cacher) *Instrumented {
	return &Instrumented{Cacher: c}
}

// Get records the lookup outcome.
func (i *Instrumented) Get(ctx context.Context, key string) ([]byte, bool) {
	v, ok := i.Cacher.Get(ctx, key)
	if ok {
		i.hits.Add(1)
	} else {
		i.misses.Add(1)
	}
	metrics.RecordCacheLookup(i.Name(), ok)
	return v, ok
}

// Stats returns a snapshot of the counters.
func (i *Instrumented) Stats() Stats {
	return Stats{Hits: i.hits.Load(), Misses: i.misses.Load()}
}

// GetJSON decodes a cached value into dst. A decode failure evicts the
// entry and reports a miss.
func GetJSON(ctx context.Context, c Cacher, key string, dst interface{}) bool {
	data, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Evicting undecodable cache entry")
		c.Delete(ctx, key)
		return false
	}
	return true
}

// SetJSON encodes value and stores it.
func SetJSON(ctx context.Context, c Cacher, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("Failed to encode cache entry")
		return
	}
	c.Set(ctx, key, data)
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Noop) Set(context.Context, string, []byte)        {}
func (Noop) Delete(context.Context, string)             {}
func (Noop) Close() error                               { return nil }
func (Noop) Name() string                               { return BackendNone }

// cacheError logs and counts a backend failure.
func cacheError(backend, op, key string, err error) {
	metrics.CacheErrors.WithLabelValues(backend, op).Inc()
	logging.Warn().Err(err).Str("backend", backend).Str("op", op).Str("key", key).Msg("Cache operation failed")
}
