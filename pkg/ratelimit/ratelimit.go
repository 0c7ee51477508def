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

// Package ratelimit provides keyed token-bucket limiting. The sync server
// limits uploads per user; the sync service throttles its own flushes.
package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket limiter with one bucket per key.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	enabled  bool

	maxIdle  time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// Config holds rate limiter configuration.
type Config struct {
	// Enabled controls whether rate limiting is active.
	Enabled bool

	// RequestsPerMinute sets the sustained rate per key.
	RequestsPerMinute int

	// Burst allows short bursts above the sustained rate.
	// Defaults to RequestsPerMinute.
	Burst int

	// CleanupInterval controls how often idle keys are dropped.
	// Defaults to 10 minutes.
	CleanupInterval time.Duration

	// MaxIdle is how long a key can be idle before it is dropped.
	// Defaults to 30 minutes.
	MaxIdle time.Duration
}

// New creates a limiter. A nil or disabled config allows everything.
func New(config *Config) *Limiter {
	if config == nil {
		config = &Config{}
	}

	burst := config.Burst
	if burst == 0 {
		burst = config.RequestsPerMinute
	}
	cleanupInterval := config.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 10 * time.Minute
	}
	maxIdle := config.MaxIdle
	if maxIdle == 0 {
		maxIdle = 30 * time.Minute
	}

	enabled := config.Enabled && config.RequestsPerMinute > 0
	l := &Limiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		burst:    burst,
		enabled:  enabled,
		maxIdle:  maxIdle,
		stop:     make(chan struct{}),
	}

	if enabled {
		go l.cleanupWorker(cleanupInterval)
	}
	return l
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	l.lastSeen[key] = time.Now()
	return limiter
}

// Allow reports whether an event for key may happen now.
func (l *Limiter) Allow(key string) bool {
	if l == nil || !l.enabled {
		return true
	}
	return l.get(key).Allow()
}

// Wait blocks until an event for key is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l == nil || !l.enabled {
		return nil
	}
	return l.get(key).Wait(ctx)
}

func (l *Limiter) cleanupWorker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stop:
			return
		}
	}
}

// cleanup drops keys idle for longer than maxIdle.
func (l *Limiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, seen := range l.lastSeen {
		if now.Sub(seen) > l.maxIdle {
			delete(l.limiters, key)
			delete(l.lastSeen, key)
		}
	}
}

// Stop stops the cleanup worker. Safe to call more than once.
func (l *Limiter) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
}

// Stats returns current limiter statistics.
func (l *Limiter) Stats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	return map[string]interface{}{
		"enabled":      l.enabled,
		"active_keys":  len(l.limiters),
		"rate_per_min": float64(l.rate) * 60,
		"burst":        l.burst,
	}
}

// IsEnabled returns whether rate limiting is enabled.
func (l *Limiter) IsEnabled() bool {
	return l != nil && l.enabled
}

// KeyFunc extracts the limiting key from a request.
type KeyFunc func(r *http.Request) string

// Middleware rejects requests over the limit with 429. A nil keyFn keys
// by client IP.
func Middleware(limiter *Limiter, keyFn KeyFunc) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(keyFn(r)) {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the originating client address, honoring
// X-Forwarded-For and X-Real-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
