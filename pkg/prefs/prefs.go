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

// Package prefs provides the user preference and device identity
// collaborators. Neither ever sees key material.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-docvault/pkg/storage"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

const (
	preferencesKey = "settings/preferences"
	deviceIDKey    = "settings/device_id"
)

// Preferences are the sync-related user settings.
type Preferences struct {
	CloudSyncEnabled bool `json:"cloudSyncEnabled"`
	SyncDocuments    bool `json:"syncDocuments"`
}

// AllowsSync reports whether records in category may be uploaded.
// The documents category additionally requires SyncDocuments.
func (p *Preferences) AllowsSync(category string) bool {
	if p == nil || !p.CloudSyncEnabled {
		return false
	}
	if category == types.CategoryDocuments {
		return p.SyncDocuments
	}
	return true
}

// PreferencesService reads user preferences.
type PreferencesService interface {
	Get(ctx context.Context) (*Preferences, error)
}

// DeviceService provides a stable per-installation device identifier.
type DeviceService interface {
	GetOrCreateDeviceID(ctx context.Context) (string, error)
}

// Static returns fixed preferences.
type Static struct {
	Prefs Preferences
}

// Get returns a copy of the fixed preferences.
func (s *Static) Get(ctx context.Context) (*Preferences, error) {
	p := s.Prefs
	return &p, nil
}

// Store keeps preferences and the device id in a storage backend.
type Store struct {
	backend  storage.Backend
	defaults Preferences
	mu       sync.Mutex
}

// NewStore returns a storage-backed preferences and device service.
// defaults is returned until preferences are first saved.
func NewStore(backend storage.Backend, defaults Preferences) *Store {
	return &Store{backend: backend, defaults: defaults}
}

// Get returns the saved preferences or the defaults.
func (s *Store) Get(ctx context.Context) (*Preferences, error) {
	raw, err := s.backend.Get(preferencesKey)
	if errors.Is(err, storage.ErrNotFound) {
		p := s.defaults
		return &p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: failed to read preferences: %w", err)
	}

	var p Preferences
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("prefs: %w: %v", types.ErrCorruptPayload, err)
	}
	return &p, nil
}

// Set saves preferences.
func (s *Store) Set(ctx context.Context, p *Preferences) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("prefs: failed to encode preferences: %w", err)
	}
	if err := s.backend.Put(preferencesKey, raw, nil); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageWrite, err)
	}
	return nil
}

// GetOrCreateDeviceID returns the persisted device id, generating and
// saving a random UUID on first use.
func (s *Store) GetOrCreateDeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.backend.Get(deviceIDKey)
	if err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id, nil
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("prefs: failed to read device id: %w", err)
	}

	id := uuid.New().String()
	if err := s.backend.Put(deviceIDKey, []byte(id), nil); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrStorageWrite, err)
	}
	return id, nil
}

// StaticDevice returns a fixed device id.
type StaticDevice string

// GetOrCreateDeviceID returns the fixed id.
func (d StaticDevice) GetOrCreateDeviceID(ctx context.Context) (string, error) {
	return string(d), nil
}

var (
	_ PreferencesService = (*Static)(nil)
	_ PreferencesService = (*Store)(nil)
	_ DeviceService      = (*Store)(nil)
	_ DeviceService      = StaticDevice("")
)
