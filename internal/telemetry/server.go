/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HealthFunc reports the daemon's current health snapshot. The boolean
// decides the HTTP status; the map is rendered as the response body.
type HealthFunc func() (bool, map[string]any)

// Server exposes /metrics and /healthz on a dedicated listener.
type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer builds the observability listener. health may be nil, in which
// case /healthz always reports ok.
func NewServer(bind string, health HealthFunc, logger zerolog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(MetricsMiddleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ok := true
		detail := map[string]any{}
		if health != nil {
			ok, detail = health()
		}
		detail["status"] = "ok"
		status := http.StatusOK
		if !ok {
			detail["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(detail)
	})

	router.Handle("/metrics", promhttp.Handler())

	return &Server{
		httpServer: &http.Server{
			Addr:              bind,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until Shutdown. It runs the listener in the calling goroutine.
func (s *Server) Start() error {
	s.logger.Info().Str("bind", s.httpServer.Addr).Msg("metrics listener starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
