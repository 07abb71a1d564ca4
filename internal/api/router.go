// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/threadline/internal/auth"
	"github.com/tomtom215/threadline/internal/config"
	"github.com/tomtom215/threadline/internal/middleware"
)

// Router wires handlers to routes.
type Router struct {
	handler       *Handler
	auth          *auth.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. cfg may be nil, in which case middleware
// defaults apply.
func NewRouter(handler *Handler, authMiddleware *auth.Middleware, cfg *config.Config) *Router {
	var sec *config.SecurityConfig
	if cfg != nil {
		sec = &cfg.Security
	}
	return &Router{
		handler:       handler,
		auth:          authMiddleware,
		chiMiddleware: NewChiMiddleware(ChiMiddlewareConfigFromSecurity(sec)),
	}
}

// SetupChi builds the HTTP handler.
//
// Middleware order: request id, real IP, panic recovery, CORS, metrics,
// access log and identity are global. Rate limits and security headers are
// applied per route group. Writes additionally require authentication.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.AccessLog)
	r.Use(router.auth.Identify)

	h := router.handler

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitLogin())
		r.Use(APISecurityHeaders())
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())

		r.Route("/pages", func(r chi.Router) {
			r.Get("/", h.ListPages)
			r.Get("/{id}", h.GetPage)
			r.Get("/{id}/comments", h.PageComments)
			r.With(auth.RequireAuth).Post("/", h.CreatePage)
			r.With(auth.RequireAuth).Put("/{id}", h.UpdatePage)
		})

		r.Route("/comments", func(r chi.Router) {
			r.Get("/", h.ListComments)
			r.Get("/{id}", h.GetComment)
			r.Get("/{id}/replies", h.CommentReplies)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAuth)
				r.Post("/", h.CreateComment)
				r.Put("/{id}", h.EditComment)
				r.Delete("/{id}", h.DeleteComment)
				r.Post("/{id}/vote", h.VoteComment)
			})
		})
	})

	r.Route("/ws", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitWebSocket())
		r.Get("/pages/{id}", h.PageSocket)
		r.Get("/notifications", h.NotificationSocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return r
}
