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

package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-docvault/pkg/cloud"
	"github.com/jeremyhahn/go-docvault/pkg/identity"
	"github.com/jeremyhahn/go-docvault/pkg/local"
	"github.com/jeremyhahn/go-docvault/pkg/logger"
	"github.com/jeremyhahn/go-docvault/pkg/prefs"
	"github.com/jeremyhahn/go-docvault/pkg/storage"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

type upsertCall struct {
	at       time.Time
	userID   string
	category string
	id       string
}

// recordingCloud wraps a memory store, recording calls and failing ids
// on demand.
type recordingCloud struct {
	store *cloud.Store
	clock clockwork.Clock

	mu    sync.Mutex
	calls []upsertCall
	fail  map[string]bool
}

func (r *recordingCloud) Name() string { return "recording" }

func (r *recordingCloud) UpsertEncrypted(ctx context.Context, userID, category, id string, p *types.EncryptedPayload) error {
	r.mu.Lock()
	r.calls = append(r.calls, upsertCall{at: r.clock.Now(), userID: userID, category: category, id: id})
	fail := r.fail[id]
	r.mu.Unlock()
	if fail {
		return types.ErrSync
	}
	return r.store.UpsertEncrypted(ctx, userID, category, id, p)
}

func (r *recordingCloud) recorded() []upsertCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]upsertCall(nil), r.calls...)
}

func (r *recordingCloud) setFail(id string, fail bool) {
	r.mu.Lock()
	r.fail[id] = fail
	r.mu.Unlock()
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []types.AuditEvent
}

func (a *recordingAuditor) LogEvent(ctx context.Context, e *types.AuditEvent) error {
	a.mu.Lock()
	a.events = append(a.events, *e)
	a.mu.Unlock()
	return nil
}

func (a *recordingAuditor) count(t types.AuditEventType) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	clock   *clockwork.FakeClock
	local   *local.Adapter
	cloud   *recordingCloud
	prefs   *prefs.Static
	auditor *recordingAuditor
	svc     *Service
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	clk := clockwork.NewFakeClockAt(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	la, err := local.New(storage.NewMemory(), logger.NewNoOp())
	require.NoError(t, err)

	f := &fixture{
		clock:   clk,
		local:   la,
		cloud:   &recordingCloud{store: cloud.NewMemoryStore(), clock: clk, fail: map[string]bool{}},
		prefs:   &prefs.Static{Prefs: prefs.Preferences{CloudSyncEnabled: true, SyncDocuments: true}},
		auditor: &recordingAuditor{},
	}
	cfg := &Config{
		Local:   la,
		Cloud:   f.cloud,
		Prefs:   f.prefs,
		Users:   identity.Static{ID: "user-1"},
		Auditor: f.auditor,
		Clock:   clk,
		Logger:  logger.NewNoOp(),
	}
	if mutate != nil {
		mutate(cfg)
	}
	f.svc, err = New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.svc.Close() })
	return f
}

func (f *fixture) save(t *testing.T, category, id string) {
	t.Helper()
	require.NoError(t, f.local.SaveEncrypted(context.Background(), category, id, &types.EncryptedPayload{
		IV:         make([]byte, 12),
		CipherText: []byte("ct-" + id),
		Alg:        types.AlgAES256GCM,
		Ver:        types.PayloadVersion,
	}))
}

// advance moves the fake clock by d and waits until every debounce timer
// that expired has run its flush.
func (f *fixture) advance(t *testing.T, d time.Duration) {
	t.Helper()
	f.clock.Advance(d)
	now := f.clock.Now()
	require.Eventually(t, func() bool {
		for _, name := range f.svc.Categories() {
			st := f.svc.Status(name)
			if st.State == StateFlushing {
				return false
			}
			if st.State == StatePending && !st.Deadline.After(now) {
				return false
			}
		}
		return true
	}, 2*time.Second, time.Millisecond)
}

// timers waits until exactly n timers are armed on the fake clock.
func (f *fixture) timers(t *testing.T, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, n))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
	_, err = New(&Config{})
	assert.Error(t, err)
	_, err = New(&Config{Local: &local.Adapter{}, Cloud: cloud.NewMemoryStore()})
	assert.Error(t, err)
}

func TestDebounce_CoalescesBurst(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, "documents", "doc-1")
	start := f.clock.Now()

	require.NoError(t, f.svc.Enqueue("documents", "doc-1", 5000*time.Millisecond))
	f.advance(t, 400*time.Millisecond)
	require.NoError(t, f.svc.Enqueue("documents", "doc-1", 5000*time.Millisecond))
	f.advance(t, 500*time.Millisecond)
	require.NoError(t, f.svc.Enqueue("documents", "doc-1", 5000*time.Millisecond))
	lastCall := f.clock.Now()

	assert.Equal(t, StatePending, f.svc.State("documents"))
	assert.Equal(t, lastCall.Add(5*time.Second), f.svc.Status("documents").Deadline)
	f.timers(t, 1)

	f.advance(t, 4999*time.Millisecond)
	assert.Empty(t, f.cloud.recorded())

	f.advance(t, time.Millisecond)
	calls := f.cloud.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, lastCall.Add(5*time.Second), calls[0].at)
	assert.Equal(t, start.Add(5900*time.Millisecond), calls[0].at)
	assert.Equal(t, "user-1", calls[0].userID)

	assert.Equal(t, StateIdle, f.svc.State("documents"))
	assert.Equal(t, 1, f.auditor.count(types.AuditSync))

	f.advance(t, time.Minute)
	assert.Len(t, f.cloud.recorded(), 1)
}

func TestSchedule_PerCategoryTimers(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, "documents", "doc-1")
	f.save(t, "notes", "n-1")

	require.NoError(t, f.svc.Enqueue("documents", "doc-1", 5*time.Second))
	require.NoError(t, f.svc.Enqueue("notes", "n-1", 2*time.Second))
	f.timers(t, 2)

	f.advance(t, 2*time.Second)
	calls := f.cloud.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "notes", calls[0].category)
	assert.Equal(t, StatePending, f.svc.State("documents"))

	f.advance(t, 3*time.Second)
	assert.Len(t, f.cloud.recorded(), 2)
	assert.Equal(t, []string{"documents", "notes"}, f.svc.Categories())
}

func TestFlush_GatedByPreferences(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, "documents", "doc-1")
	f.prefs.Prefs = prefs.Preferences{CloudSyncEnabled: true, SyncDocuments: false}

	require.NoError(t, f.svc.Enqueue("documents", "doc-1", time.Second))
	f.advance(t, time.Second)
	assert.Empty(t, f.cloud.recorded())
	assert.Equal(t, 1, f.svc.Status("documents").Dirty)

	f.prefs.Prefs.SyncDocuments = true
	require.NoError(t, f.svc.Flush(context.Background(), "documents"))
	assert.Len(t, f.cloud.recorded(), 1)
	assert.Equal(t, 0, f.svc.Status("documents").Dirty)
}

func TestFlush_RequiresUser(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.Users = identity.Static{} })
	f.save(t, "notes", "n-1")

	require.NoError(t, f.svc.Enqueue("notes", "n-1", time.Second))
	f.advance(t, time.Second)
	assert.Empty(t, f.cloud.recorded())
	assert.Equal(t, 1, f.svc.Status("notes").Dirty)

	err := f.svc.Flush(context.Background(), "notes")
	assert.ErrorIs(t, err, types.ErrNoUser)
	assert.ErrorIs(t, err, types.ErrSync)
	assert.Empty(t, f.cloud.recorded())
	assert.Equal(t, 1, f.svc.Status("notes").Dirty)
}

func TestFlush_DisabledByPreferences(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.RetryDelay = 30 * time.Second })
	f.save(t, "notes", "n-1")
	f.prefs.Prefs.CloudSyncEnabled = false

	require.NoError(t, f.svc.Enqueue("notes", "n-1", time.Second))
	f.advance(t, time.Second)
	// No retry is armed for a skipped flush.
	assert.Equal(t, StateIdle, f.svc.State("notes"))

	err := f.svc.Flush(context.Background(), "notes")
	assert.ErrorIs(t, err, types.ErrSyncDisabled)
	assert.ErrorIs(t, err, types.ErrSync)
	assert.Equal(t, StateIdle, f.svc.State("notes"))
	assert.Equal(t, 1, f.svc.Status("notes").Dirty)
	assert.Empty(t, f.cloud.recorded())
}

func TestFlush_FailuresStayDirty(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, "notes", "a")
	f.save(t, "notes", "b")
	f.cloud.setFail("b", true)

	require.NoError(t, f.svc.Enqueue("notes", "a", time.Second))
	require.NoError(t, f.svc.Enqueue("notes", "b", time.Second))

	err := f.svc.Flush(context.Background(), "notes")
	assert.ErrorIs(t, err, types.ErrSync)
	assert.Equal(t, 1, f.svc.Status("notes").Dirty)
	assert.Equal(t, 1, f.auditor.count(types.AuditSync))
	assert.Equal(t, 1, f.auditor.count(types.AuditSyncFailed))
	assert.Equal(t, StateIdle, f.svc.State("notes"))

	f.cloud.setFail("b", false)
	require.NoError(t, f.svc.Flush(context.Background(), "notes"))
	assert.Equal(t, 0, f.svc.Status("notes").Dirty)

	calls := f.cloud.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, "b", calls[2].id)
}

func TestFlush_RetryDelay(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.RetryDelay = 30 * time.Second })
	f.save(t, "notes", "a")
	f.cloud.setFail("a", true)

	require.NoError(t, f.svc.Enqueue("notes", "a", time.Second))
	f.advance(t, time.Second)
	require.Len(t, f.cloud.recorded(), 1)
	assert.Equal(t, StatePending, f.svc.State("notes"))
	f.timers(t, 1)

	f.cloud.setFail("a", false)
	f.advance(t, 30*time.Second)
	assert.Len(t, f.cloud.recorded(), 2)
	assert.Equal(t, StateIdle, f.svc.State("notes"))
}

func TestFlush_SkipsDeletedRecords(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.svc.Enqueue("notes", "gone", time.Second))
	f.advance(t, time.Second)
	assert.Empty(t, f.cloud.recorded())
	assert.Equal(t, 0, f.svc.Status("notes").Dirty)
}

func TestFlush_CancelsPendingTimer(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, "notes", "a")

	require.NoError(t, f.svc.Enqueue("notes", "a", 5*time.Second))
	require.NoError(t, f.svc.Flush(context.Background(), "notes"))
	assert.Equal(t, StateIdle, f.svc.State("notes"))

	f.advance(t, 10*time.Second)
	assert.Len(t, f.cloud.recorded(), 1)
}

func TestClose_CancelsTimers(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, "notes", "a")

	require.NoError(t, f.svc.Enqueue("notes", "a", time.Second))
	require.NoError(t, f.svc.Close())
	f.timers(t, 0)

	f.advance(t, time.Minute)
	assert.Empty(t, f.cloud.recorded())

	assert.True(t, errors.Is(f.svc.Schedule("notes", time.Second), ErrClosed))
	assert.ErrorIs(t, f.svc.Enqueue("notes", "a", time.Second), ErrClosed)
	assert.ErrorIs(t, f.svc.Flush(context.Background(), "notes"), ErrClosed)
	assert.NoError(t, f.svc.Close())
}

func TestEnqueue_InvalidKey(t *testing.T) {
	f := newFixture(t, nil)
	assert.ErrorIs(t, f.svc.Enqueue("notes", "", time.Second), types.ErrInvalidRecordKey)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "flushing", StateFlushing.String())
}
