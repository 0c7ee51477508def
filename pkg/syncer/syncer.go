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

// Package syncer schedules best-effort uploads of encrypted records.
//
// Each category runs its own debounce state machine:
//
//	Idle --Schedule--> Pending(deadline) --timer--> Flushing --> Idle
//	Pending --Schedule--> Pending(new deadline)
//	Flushing --Schedule--> Flushing, then Pending when the flush ends
//
// N calls to Schedule inside the window produce one flush, delay after
// the last call. Flush failures are logged and audited; the failed
// records stay dirty for the next flush. Nothing here ever fails a local
// write.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jeremyhahn/go-docvault/pkg/cloud"
	"github.com/jeremyhahn/go-docvault/pkg/identity"
	"github.com/jeremyhahn/go-docvault/pkg/logger"
	"github.com/jeremyhahn/go-docvault/pkg/metrics"
	"github.com/jeremyhahn/go-docvault/pkg/prefs"
	"github.com/jeremyhahn/go-docvault/pkg/ratelimit"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

const (
	// DefaultDelay is the debounce window used when a caller passes zero.
	DefaultDelay = 5 * time.Second

	// DefaultFlushTimeout bounds a timer-driven flush.
	DefaultFlushTimeout = 2 * time.Minute
)

// State is the debounce state of one category.
type State int

const (
	StateIdle State = iota
	StatePending
	StateFlushing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFlushing:
		return "flushing"
	default:
		return "idle"
	}
}

// ErrClosed is returned by operations on a closed service.
var ErrClosed = errors.New("syncer: service closed")

// Reader reads encrypted records from local storage. *local.Adapter
// satisfies it.
type Reader interface {
	ReadEncrypted(ctx context.Context, category, id string) (*types.EncryptedPayload, error)
}

// Auditor records sync outcomes. *audit.Log satisfies it.
type Auditor interface {
	LogEvent(ctx context.Context, event *types.AuditEvent) error
}

// Config configures a Service.
type Config struct {
	Local Reader
	Cloud cloud.Adapter
	Prefs prefs.PreferencesService
	Users identity.CurrentUserProvider

	// Auditor records sync and sync_failed events (optional)
	Auditor Auditor

	// Limiter throttles uploads per user (optional)
	Limiter *ratelimit.Limiter

	// Clock drives the debounce timers. Defaults to the real clock.
	Clock clockwork.Clock

	// RetryDelay schedules another flush after a partial failure.
	// Zero leaves failed records for the next Schedule.
	RetryDelay time.Duration

	// FlushTimeout bounds timer-driven flushes (default: 2m)
	FlushTimeout time.Duration

	Logger logger.Logger
}

// Status is a snapshot of one category.
type Status struct {
	Category string
	State    State
	Deadline time.Time
	Dirty    int
}

// Service is the cloud sync service.
type Service struct {
	local        Reader
	cloud        cloud.Adapter
	prefs        prefs.PreferencesService
	users        identity.CurrentUserProvider
	auditor      Auditor
	limiter      *ratelimit.Limiter
	clock        clockwork.Clock
	retryDelay   time.Duration
	flushTimeout time.Duration
	logger       logger.Logger

	mu         sync.Mutex
	categories map[string]*category
	closed     bool
}

// category holds the state machine for one category. Fields are guarded
// by Service.mu.
type category struct {
	timer    clockwork.Timer
	gen      uint64
	deadline time.Time
	flushing bool
	rerun    bool
	dirty    map[string]struct{}
}

func (c *category) state() State {
	switch {
	case c.flushing:
		return StateFlushing
	case c.timer != nil:
		return StatePending
	default:
		return StateIdle
	}
}

// New creates a sync service.
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("syncer: config is required")
	}
	if cfg.Local == nil || cfg.Cloud == nil {
		return nil, fmt.Errorf("syncer: local reader and cloud adapter are required")
	}
	if cfg.Prefs == nil || cfg.Users == nil {
		return nil, fmt.Errorf("syncer: preferences and user provider are required")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	flushTimeout := cfg.FlushTimeout
	if flushTimeout == 0 {
		flushTimeout = DefaultFlushTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	return &Service{
		local:        cfg.Local,
		cloud:        cfg.Cloud,
		prefs:        cfg.Prefs,
		users:        cfg.Users,
		auditor:      cfg.Auditor,
		limiter:      cfg.Limiter,
		clock:        clk,
		retryDelay:   cfg.RetryDelay,
		flushTimeout: flushTimeout,
		logger:       log.With(logger.String("component", "syncer"), logger.String("adapter", cfg.Cloud.Name())),
		categories:   make(map[string]*category),
	}, nil
}

// Enqueue marks (category, id) dirty and schedules a flush.
func (s *Service) Enqueue(categoryName, id string, delay time.Duration) error {
	if err := types.ValidateRecordKey(categoryName, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	c := s.category(categoryName)
	c.dirty[id] = struct{}{}
	metrics.SetPendingRecords(categoryName, len(c.dirty))
	s.scheduleLocked(categoryName, c, delay)
	return nil
}

// Schedule (re)starts the debounce timer for category. Any pending timer
// is cancelled, so the flush fires delay after the most recent call.
func (s *Service) Schedule(categoryName string, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.scheduleLocked(categoryName, s.category(categoryName), delay)
	return nil
}

func (s *Service) scheduleLocked(name string, c *category, delay time.Duration) {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.deadline = s.clock.Now().Add(delay)
	c.timer = s.clock.AfterFunc(delay, func() { s.fire(name, gen) })
}

// fire runs when a debounce timer expires.
func (s *Service) fire(name string, gen uint64) {
	s.mu.Lock()
	c, ok := s.categories[name]
	if !ok || s.closed || c.gen != gen {
		s.mu.Unlock()
		return
	}
	c.timer = nil
	c.deadline = time.Time{}
	if c.flushing {
		c.rerun = true
		s.mu.Unlock()
		return
	}
	c.flushing = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
	defer cancel()
	if err := s.run(ctx, name); err != nil && !skipped(err) {
		s.logger.WarnContext(ctx, "scheduled flush incomplete",
			logger.String("category", name), logger.Error(err))
	}
}

// Flush cancels any pending timer for category and flushes now. The
// returned error describes uploads that failed; those records stay dirty.
// A flush that uploads nothing because the preferences exclude category
// or no user is authenticated returns types.ErrSyncDisabled or
// types.ErrNoUser.
func (s *Service) Flush(ctx context.Context, categoryName string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	c := s.category(categoryName)
	if c.flushing {
		s.mu.Unlock()
		return fmt.Errorf("syncer: flush already in progress for %s", categoryName)
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
		c.deadline = time.Time{}
		c.gen++
	}
	c.flushing = true
	s.mu.Unlock()

	return s.run(ctx, categoryName)
}

// run performs a flush, repeating it if a timer expired meanwhile. The
// caller has set c.flushing.
func (s *Service) run(ctx context.Context, name string) error {
	err := s.flush(ctx, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.categories[name]
	for c.rerun && !s.closed {
		c.rerun = false
		s.mu.Unlock()
		err = s.flush(ctx, name)
		s.mu.Lock()
	}
	c.rerun = false
	c.flushing = false
	metrics.SetPendingRecords(name, len(c.dirty))

	if s.closed || c.timer != nil {
		return err
	}
	if err != nil && !skipped(err) && s.retryDelay > 0 && len(c.dirty) > 0 {
		s.scheduleLocked(name, c, s.retryDelay)
	}
	return err
}

func (s *Service) flush(ctx context.Context, name string) error {
	p, err := s.prefs.Get(ctx)
	if err != nil {
		metrics.RecordFlush(name, metrics.StatusError)
		return fmt.Errorf("syncer: failed to read preferences: %w", err)
	}
	if !p.AllowsSync(name) {
		s.logger.DebugContext(ctx, "sync disabled by preferences", logger.String("category", name))
		metrics.RecordFlush(name, "skipped")
		return types.ErrSyncDisabled
	}
	userID, ok := s.users.UserID(ctx)
	if !ok {
		s.logger.DebugContext(ctx, "no authenticated user, skipping flush", logger.String("category", name))
		metrics.RecordFlush(name, "skipped")
		return types.ErrNoUser
	}

	ids := s.takeDirty(name)
	if len(ids) == 0 {
		metrics.RecordFlush(name, metrics.StatusSuccess)
		return nil
	}

	start := time.Now()
	var failed []string
	var errs []error
	for _, id := range ids {
		if err := s.upload(ctx, userID, name, id); err != nil {
			failed = append(failed, id)
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}

	if len(failed) > 0 {
		s.markDirty(name, failed)
		metrics.RecordFlush(name, metrics.StatusError)
		s.logger.WarnContext(ctx, "flush completed with failures",
			logger.String("category", name),
			logger.Int("uploaded", len(ids)-len(failed)),
			logger.Int("failed", len(failed)),
			logger.Duration("elapsed", time.Since(start)))
		return errors.Join(errs...)
	}

	metrics.RecordFlush(name, metrics.StatusSuccess)
	s.logger.InfoContext(ctx, "flush completed",
		logger.String("category", name),
		logger.Int("uploaded", len(ids)),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// skipped reports whether err is a flush that never attempted an upload.
func skipped(err error) bool {
	return errors.Is(err, types.ErrSyncDisabled) || errors.Is(err, types.ErrNoUser)
}

func (s *Service) upload(ctx context.Context, userID, name, id string) error {
	if err := s.limiter.Wait(ctx, userID); err != nil {
		return fmt.Errorf("%w: rate limit: %v", types.ErrSync, err)
	}

	payload, err := s.local.ReadEncrypted(ctx, name, id)
	if err != nil {
		s.audit(ctx, types.AuditSyncFailed, name, id)
		return err
	}
	if payload == nil {
		// Deleted locally since it was enqueued.
		return nil
	}

	if err := s.cloud.UpsertEncrypted(ctx, userID, name, id, payload); err != nil {
		s.audit(ctx, types.AuditSyncFailed, name, id)
		return err
	}
	s.audit(ctx, types.AuditSync, name, id)
	return nil
}

func (s *Service) audit(ctx context.Context, t types.AuditEventType, name, id string) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.LogEvent(ctx, &types.AuditEvent{Type: t, Category: name, Key: id}); err != nil {
		s.logger.WarnContext(ctx, "failed to record audit event",
			logger.String("type", t.String()), logger.Error(err))
	}
}

func (s *Service) takeDirty(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.categories[name]
	ids := make([]string, 0, len(c.dirty))
	for id := range c.dirty {
		ids = append(ids, id)
	}
	c.dirty = make(map[string]struct{})
	sort.Strings(ids)
	return ids
}

func (s *Service) markDirty(name string, ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.categories[name]
	for _, id := range ids {
		c.dirty[id] = struct{}{}
	}
}

// category returns the state for name, creating it. Caller holds s.mu.
func (s *Service) category(name string) *category {
	c, ok := s.categories[name]
	if !ok {
		c = &category{dirty: make(map[string]struct{})}
		s.categories[name] = c
	}
	return c
}

// Status returns a snapshot of category.
func (s *Service) Status(categoryName string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Category: categoryName}
	if c, ok := s.categories[categoryName]; ok {
		st.State = c.state()
		st.Deadline = c.deadline
		st.Dirty = len(c.dirty)
	}
	return st
}

// State returns the debounce state of category.
func (s *Service) State(categoryName string) State {
	return s.Status(categoryName).State
}

// Categories returns the categories the service has seen, sorted.
func (s *Service) Categories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.categories))
	for name := range s.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close cancels all pending timers. Dirty records are dropped; they remain
// in local storage and are picked up again when next enqueued.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, c := range s.categories {
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
	}
	return nil
}
