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

// Package audit provides the append-only audit log.
//
// Events record what happened to which (category, key) and when. They
// never contain payload data or key material. Each event is stored under
// a zero-padded sequence number so a prefix listing returns events in
// append order, and the log resumes numbering after a restart.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jeremyhahn/go-docvault/pkg/metrics"
	"github.com/jeremyhahn/go-docvault/pkg/storage"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

// Query filters events. Zero values match everything.
type Query struct {
	// Types restricts to the listed event types
	Types []types.AuditEventType

	// Category and Key restrict to one record or category
	Category string
	Key      string

	// Since and Until bound the timestamp (inclusive)
	Since *time.Time
	Until *time.Time

	// AfterSeq returns only events appended after this sequence number
	AfterSeq uint64

	// Limit caps the number of results (0 = unlimited)
	Limit int

	// Newest returns events newest first
	Newest bool
}

// Log is a storage-backed audit log.
type Log struct {
	backend storage.Backend
	clock   clockwork.Clock

	mu  sync.Mutex
	seq uint64
}

// New opens the audit log in backend, resuming after the highest stored
// sequence number. A nil clk uses the real clock.
func New(backend storage.Backend, clk clockwork.Clock) (*Log, error) {
	if backend == nil {
		return nil, fmt.Errorf("audit: storage backend is required")
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	keys, err := backend.List(storage.AuditPrefix())
	if err != nil {
		return nil, fmt.Errorf("audit: failed to scan log: %w", err)
	}

	var last uint64
	for _, k := range keys {
		n, err := strconv.ParseUint(strings.TrimPrefix(k, storage.AuditPrefix()), 10, 64)
		if err == nil && n > last {
			last = n
		}
	}

	return &Log{backend: backend, clock: clk, seq: last}, nil
}

// LogEvent appends event, assigning its ID, sequence number and, when
// unset, its timestamp. The event is updated in place.
func (l *Log) LogEvent(ctx context.Context, event *types.AuditEvent) (err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpAudit, "audit", start, err) }()

	if event == nil {
		return fmt.Errorf("audit: event cannot be nil")
	}
	if event.Type == "" {
		return fmt.Errorf("audit: event type is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := *event
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.clock.Now().UTC()
	}
	e.Seq = l.seq + 1

	raw, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("audit: failed to encode event: %w", err)
	}
	if err := l.backend.Put(storage.AuditPath(e.Seq), raw, storage.DefaultOptions()); err != nil {
		return fmt.Errorf("%w: audit: %v", types.ErrStorageWrite, err)
	}

	l.seq = e.Seq
	*event = e
	return nil
}

// Events returns the events matching query in append order, or newest
// first when query.Newest is set.
func (l *Log) Events(ctx context.Context, query *Query) ([]*types.AuditEvent, error) {
	if query == nil {
		query = &Query{}
	}

	keys, err := l.backend.List(storage.AuditPrefix())
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list events: %w", err)
	}
	if query.Newest {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}

	results := make([]*types.AuditEvent, 0)
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := l.backend.Get(k)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", k, err)
		}
		var e types.AuditEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%w: audit event %s: %v", types.ErrCorruptPayload, k, err)
		}
		if !query.matches(&e) {
			continue
		}
		results = append(results, &e)
		if query.Limit > 0 && len(results) == query.Limit {
			break
		}
	}
	return results, nil
}

// LastSeq returns the sequence number of the most recent event.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

func (q *Query) matches(e *types.AuditEvent) bool {
	if e.Seq <= q.AfterSeq {
		return false
	}
	if q.Category != "" && e.Category != q.Category {
		return false
	}
	if q.Key != "" && e.Key != q.Key {
		return false
	}
	if q.Since != nil && e.Timestamp.Before(*q.Since) {
		return false
	}
	if q.Until != nil && e.Timestamp.After(*q.Until) {
		return false
	}
	if len(q.Types) > 0 {
		found := false
		for _, t := range q.Types {
			if e.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
