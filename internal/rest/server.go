// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-docvault.
//
// go-docvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-docvault/pkg/cloud"
	"github.com/jeremyhahn/go-docvault/pkg/health"
	"github.com/jeremyhahn/go-docvault/pkg/identity"
	"github.com/jeremyhahn/go-docvault/pkg/logger"
	"github.com/jeremyhahn/go-docvault/pkg/metrics"
	"github.com/jeremyhahn/go-docvault/pkg/ratelimit"
)

// maxBodyBytes bounds an upsert request body.
const maxBodyBytes = 16 << 20

// Server represents the sync server.
type Server struct {
	server    *http.Server
	store     *cloud.Store
	verifier  *identity.JWT
	limiter   *ratelimit.Limiter
	health    *health.Checker
	tlsConfig *tls.Config
	version   string
	logger    logger.Logger
}

// Config holds the sync server configuration.
type Config struct {
	// Host is the interface to bind (default: all interfaces)
	Host string

	// Port is the HTTP port to listen on (default: 8480)
	Port int

	// Store holds the uploaded ciphertext records (required)
	Store *cloud.Store

	// Verifier enables bearer token authentication when set
	Verifier *identity.JWT

	// Limiter throttles requests per user (optional)
	Limiter *ratelimit.Limiter

	// Health runs readiness checks for /health (optional)
	Health *health.Checker

	// MetricsPath exposes Prometheus metrics when non-empty
	MetricsPath string

	// Version is reported by /health
	Version string

	// TLSConfig enables HTTPS (optional)
	TLSConfig *tls.Config

	// Logger is the logging adapter (optional)
	Logger logger.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new sync server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("record store is required")
	}

	port := cfg.Port
	if port == 0 {
		port = 8480
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 15 * time.Second
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 60 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	checker := cfg.Health
	if checker == nil {
		checker = health.NewChecker()
	}

	s := &Server{
		store:     cfg.Store,
		verifier:  cfg.Verifier,
		limiter:   cfg.Limiter,
		health:    checker,
		tlsConfig: cfg.TLSConfig,
		version:   cfg.Version,
		logger:    log.With(logger.String("component", "syncd")),
	}

	s.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", port)),
		Handler:      s.setupRouter(cfg.MetricsPath),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}
	return s, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter(metricsPath string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", s.HealthHandler)
	r.Head("/health", s.HealthHandler)
	if metricsPath != "" {
		r.Handle(metricsPath, promhttp.Handler())
	}

	r.Route("/v1/users/{userID}", func(r chi.Router) {
		r.Use(s.AuthenticationMiddleware())
		r.Use(s.RateLimitMiddleware())

		r.Get("/records/{category}", s.ListRecordsHandler)
		r.Put("/records/{category}/{id}", s.UpsertRecordHandler)
		r.Get("/records/{category}/{id}", s.GetRecordHandler)
	})

	return r
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	if s.tlsConfig != nil {
		s.logger.Info("Starting HTTPS server",
			logger.String("addr", s.server.Addr),
			logger.Bool("auth", s.verifier != nil))

		if err := s.server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
		return nil
	}

	s.logger.Info("Starting HTTP server",
		logger.String("addr", s.server.Addr),
		logger.Bool("auth", s.verifier != nil))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", logger.Error(err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
