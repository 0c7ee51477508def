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
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeremyhahn/go-docvault/pkg/identity"
	"github.com/jeremyhahn/go-docvault/pkg/logger"
	"github.com/jeremyhahn/go-docvault/pkg/ratelimit"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write ensures WriteHeader is called.
func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// LoggingMiddleware logs HTTP requests. Record payloads are never logged.
func (s *Server) LoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)
			ctx := r.Context()

			s.logger.DebugContext(ctx, "Request started",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path))

			next.ServeHTTP(wrapped, r)

			s.logger.InfoContext(ctx, "Request completed",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.Int("status", wrapped.statusCode),
				logger.Duration("duration", time.Since(start)))
		})
	}
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func (s *Server) RecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					s.logger.Error("Panic recovered",
						logger.String("method", r.Method),
						logger.String("path", r.URL.Path),
						logger.Any("error", err))
					writeErrorWithMessage(w, ErrInternalError, "An unexpected error occurred", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// AuthenticationMiddleware verifies the bearer token and requires its
// subject to own the {userID} path segment. It is a pass-through when the
// server has no verifier.
func (s *Server) AuthenticationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := chi.URLParam(r, "userID")
			if s.verifier == nil {
				next.ServeHTTP(w, r.WithContext(identity.WithUserID(r.Context(), userID)))
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				writeErrorWithMessage(w, ErrUnauthorized, "Missing bearer token", http.StatusUnauthorized)
				return
			}
			subject, err := s.verifier.Verify(token)
			if err != nil {
				s.logger.WarnContext(r.Context(), "Authentication failed",
					logger.String("path", r.URL.Path),
					logger.String("remote_addr", r.RemoteAddr),
					logger.Error(err))
				writeErrorWithMessage(w, ErrUnauthorized, "Authentication failed", http.StatusUnauthorized)
				return
			}
			if subject != userID {
				s.logger.WarnContext(r.Context(), "Token subject does not own path",
					logger.String("path", r.URL.Path))
				writeErrorWithMessage(w, ErrForbidden, "Token does not grant access to this user", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(identity.WithUserID(r.Context(), subject)))
		})
	}
}

// RateLimitMiddleware throttles per authenticated user.
func (s *Server) RateLimitMiddleware() func(http.Handler) http.Handler {
	if s.limiter == nil || !s.limiter.IsEnabled() {
		return func(next http.Handler) http.Handler { return next }
	}
	return ratelimit.Middleware(s.limiter, func(r *http.Request) string {
		if userID, ok := (identity.Context{}).UserID(r.Context()); ok {
			return "user:" + userID
		}
		return "ip:" + ratelimit.ClientIP(r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
