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

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jeremyhahn/go-docvault/pkg/storage"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

const storePrefix = "cloud/"

// Store keeps remote records in a storage.Backend. It backs the sync
// server and, over a memory backend, serves as the in-process adapter.
type Store struct {
	backend storage.Backend
	clock   clockwork.Clock
}

// NewStore creates a store over backend. A nil clk uses the real clock.
func NewStore(backend storage.Backend, clk clockwork.Clock) *Store {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Store{backend: backend, clock: clk}
}

// NewMemoryStore creates a store over a fresh memory backend.
func NewMemoryStore() *Store {
	return NewStore(storage.NewMemory(), nil)
}

// Name returns "store".
func (s *Store) Name() string { return "store" }

// UpsertEncrypted writes the record, replacing any previous version.
func (s *Store) UpsertEncrypted(ctx context.Context, userID, category, id string, payload *types.EncryptedPayload) (err error) {
	start := time.Now()
	defer func() { observe(s.Name(), start, err) }()

	if err := checkUpsert(userID, category, id, payload); err != nil {
		return err
	}

	rec := Record{
		UserID:        userID,
		Category:      category,
		ID:            id,
		Payload:       *payload,
		UpdatedAt:     s.clock.Now().UTC(),
		SchemaVersion: payload.Ver,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return syncErr(s.Name(), err)
	}
	if err := s.backend.Put(recordKey(userID, category, id), raw, storage.DefaultOptions()); err != nil {
		return syncErr(s.Name(), err)
	}
	return nil
}

// Get returns the stored record, or types.ErrNotFound.
func (s *Store) Get(ctx context.Context, userID, category, id string) (*Record, error) {
	if err := types.ValidateRecordKey(category, id); err != nil {
		return nil, err
	}
	if err := types.ValidateRecordKey(userID, category); err != nil {
		return nil, err
	}
	raw, err := s.backend.Get(recordKey(userID, category, id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cloud: failed to read record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCorruptPayload, err)
	}
	return &rec, nil
}

// List returns the record ids a user has in category.
func (s *Store) List(ctx context.Context, userID, category string) ([]string, error) {
	if err := types.ValidateRecordKey(userID, category); err != nil {
		return nil, err
	}
	prefix := storePrefix + userID + "/" + category + "/"
	keys, err := s.backend.List(prefix)
	if err != nil {
		return nil, fmt.Errorf("cloud: failed to list records: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id := strings.TrimPrefix(k, prefix); id != "" && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func recordKey(userID, category, id string) string {
	return storePrefix + userID + "/" + category + "/" + id
}

var _ Adapter = (*Store)(nil)
