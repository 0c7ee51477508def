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

// Package local persists encrypted records on the device.
//
// Each (category, id) pair maps to one JSON-encoded EncryptedPayload in a
// storage.Backend. Writes fully replace the previous value. Operations on
// the same key are serialized; different keys proceed independently.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jeremyhahn/go-docvault/pkg/logger"
	"github.com/jeremyhahn/go-docvault/pkg/metrics"
	"github.com/jeremyhahn/go-docvault/pkg/storage"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

const component = "local"

// Adapter is the local data adapter.
type Adapter struct {
	backend storage.Backend
	logger  logger.Logger

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// New creates an adapter over backend. A nil log uses the default logger.
func New(backend storage.Backend, log logger.Logger) (*Adapter, error) {
	if backend == nil {
		return nil, fmt.Errorf("local: storage backend is required")
	}
	if log == nil {
		log = logger.Default()
	}
	return &Adapter{
		backend: backend,
		logger:  log.With(logger.String("component", component)),
		locks:   make(map[string]*keyLock),
	}, nil
}

// SaveEncrypted replaces the record at (category, id). Failures wrap
// types.ErrStorageWrite.
func (a *Adapter) SaveEncrypted(ctx context.Context, category, id string, payload *types.EncryptedPayload) (err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpLocalSave, component, start, err) }()

	if err := types.ValidateRecordKey(category, id); err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageWrite, err)
	}

	path := storage.RecordPath(category, id)
	unlock := a.lock(path)
	defer unlock()

	if err := a.backend.Put(path, raw, storage.DefaultOptions()); err != nil {
		a.logger.ErrorContext(ctx, "local write failed",
			logger.String("category", category), logger.String("id", id), logger.Error(err))
		return fmt.Errorf("%w: %v", types.ErrStorageWrite, err)
	}
	return nil
}

// ReadEncrypted returns the record at (category, id), or (nil, nil) if it
// does not exist. Unparsable bytes return types.ErrCorruptPayload.
func (a *Adapter) ReadEncrypted(ctx context.Context, category, id string) (payload *types.EncryptedPayload, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpLocalRead, component, start, err) }()

	if err := types.ValidateRecordKey(category, id); err != nil {
		return nil, err
	}

	path := storage.RecordPath(category, id)
	unlock := a.lock(path)
	raw, err := a.backend.Get(path)
	unlock()

	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("local: failed to read %s/%s: %w", category, id, err)
	}

	var p types.EncryptedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCorruptPayload, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteEncrypted removes the record at (category, id). Deleting a missing
// record is not an error.
func (a *Adapter) DeleteEncrypted(ctx context.Context, category, id string) (err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpLocalDelete, component, start, err) }()

	if err := types.ValidateRecordKey(category, id); err != nil {
		return err
	}

	path := storage.RecordPath(category, id)
	unlock := a.lock(path)
	defer unlock()

	err = a.backend.Delete(path)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %v", types.ErrStorageWrite, err)
	}
	return nil
}

// List returns the ids stored in category in lexical order.
func (a *Adapter) List(ctx context.Context, category string) ([]string, error) {
	if err := types.ValidateRecordKey(category, "_"); err != nil {
		return nil, err
	}
	ids, err := storage.ListRecordIDs(a.backend, category)
	if err != nil {
		return nil, fmt.Errorf("local: failed to list %s: %w", category, err)
	}
	return ids, nil
}

// Categories returns the categories that hold at least one record.
func (a *Adapter) Categories(ctx context.Context) ([]string, error) {
	categories, err := storage.ListCategories(a.backend)
	if err != nil {
		return nil, fmt.Errorf("local: failed to list categories: %w", err)
	}
	return categories, nil
}

// lock acquires the per-key mutex for path and returns its release func.
func (a *Adapter) lock(path string) func() {
	a.mu.Lock()
	l, ok := a.locks[path]
	if !ok {
		l = &keyLock{}
		a.locks[path] = l
	}
	l.refs++
	a.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		a.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(a.locks, path)
		}
		a.mu.Unlock()
	}
}
