// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/threadline/internal/api"
	"github.com/tomtom215/threadline/internal/auth"
	"github.com/tomtom215/threadline/internal/cache"
	"github.com/tomtom215/threadline/internal/comments"
	"github.com/tomtom215/threadline/internal/config"
	"github.com/tomtom215/threadline/internal/database"
	"github.com/tomtom215/threadline/internal/discussion"
	"github.com/tomtom215/threadline/internal/logging"
	"github.com/tomtom215/threadline/internal/supervisor"
	"github.com/tomtom215/threadline/internal/supervisor/services"
	"github.com/tomtom215/threadline/internal/votes"
	ws "github.com/tomtom215/threadline/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("driver", cfg.Database.Driver).
		Str("cache", cfg.Cache.Backend).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Starting Threadline")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pageCache, err := cache.New(ctx, &cfg.Cache)
	if err != nil {
		logging.Warn().Err(err).Str("backend", cfg.Cache.Backend).Msg("Cache unavailable, falling back to in-memory")
		pageCache = cache.NewMemory(cfg.Cache.Size, cfg.Cache.TTL)
	}
	defer func() {
		if err := pageCache.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cache")
		}
	}()

	engine := ws.NewEngine(ws.NewRegistry(), cfg.Realtime)

	ledger := votes.NewLedger(db)
	store := comments.NewStore(db, ledger, cfg.Discussion)
	svc := discussion.NewService(db, store, ledger, cache.NewInstrumented(pageCache), engine)

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}
	accounts := auth.NewService(db, jwtManager)

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	if cfg.HasWildcardCORS() {
		logging.Warn().Msg("CORS is configured with wildcard origin (CORS_ORIGINS=*); set explicit origins in production")
	}

	handler := api.NewHandler(svc, accounts, engine, cfg)
	router := api.NewRouter(handler, auth.NewMiddleware(jwtManager), cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.SetupChi(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	tree.AddMessagingService(services.NewBroadcastEngineService(engine))
	if cfg.NATS.Enabled {
		relay, err := ws.NewNATSRelay(cfg.NATS, engine)
		if err != nil {
			logging.Warn().Err(err).Msg("NATS relay unavailable, broadcasts stay local to this instance")
		} else {
			engine.SetRelay(relay)
			tree.AddMessagingService(services.NewRelayService(relay))
			logging.Info().
				Str("url", relay.ClientURL()).
				Str("subject", cfg.NATS.Subject).
				Str("instance_id", engine.InstanceID()).
				Msg("NATS relay enabled")
		}
	}
	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := tree.ServeBackground(ctx)

	// ServeBackground delivers exactly one result and never closes the channel.
	var serveErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		serveErr = <-errCh
	case serveErr = <-errCh:
	}
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		logging.Error().Err(serveErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Threadline stopped gracefully")
}
