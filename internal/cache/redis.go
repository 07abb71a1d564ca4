// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/threadline/internal/logging"
	"github.com/tomtom215/threadline/internal/metrics"
)

const redisBreakerName = "redis-cache"

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	Prefix   string

	// Breaker tuning; zero values take the defaults below.
	BreakerTimeout  time.Duration
	BreakerFailures uint32
}

// Redis stores entries in Redis behind a circuit breaker. While the breaker
// is open every call is an immediate miss.
type Redis struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker[[]byte]
	ttl    time.Duration
	prefix string
}

// NewRedis connects to Redis. An unreachable server fails construction so
// misconfiguration is caught at startup.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return newRedisWithClient(client, opts), nil
}

func newRedisWithClient(client *redis.Client, opts RedisOptions) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "threadline:"
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}

	metrics.CircuitBreakerState.WithLabelValues(redisBreakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        redisBreakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})

	return &Redis{client: client, cb: cb, ttl: opts.TTL, prefix: opts.Prefix}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	v, err := r.cb.Execute(func() ([]byte, error) {
		b, err := r.client.Get(ctx, r.prefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		r.report("get", key, err)
		return nil, false
	}
	return v, v != nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte) {
	_, err := r.cb.Execute(func() ([]byte, error) {
		return nil, r.client.Set(ctx, r.prefix+key, value, r.ttl).Err()
	})
	if err != nil {
		r.report("set", key, err)
	}
}

func (r *Redis) Delete(ctx context.Context, key string) {
	_, err := r.cb.Execute(func() ([]byte, error) {
		return nil, r.client.Del(ctx, r.prefix+key).Err()
	})
	if err != nil {
		r.report("delete", key, err)
	}
}

// report skips the per-call log line while the breaker is rejecting calls.
func (r *Redis) report(op, key string, err error) {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.CacheErrors.WithLabelValues(BackendRedis, "rejected").Inc()
		return
	}
	cacheError(BackendRedis, op, key, err)
}

// State exposes the breaker state.
func (r *Redis) State() gobreaker.State {
	return r.cb.State()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Name() string { return BackendRedis }
