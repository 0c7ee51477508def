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

package prefs

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-docvault/pkg/storage"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

func TestPreferences_AllowsSync(t *testing.T) {
	tests := []struct {
		name     string
		prefs    *Preferences
		category string
		want     bool
	}{
		{"nil", nil, "notes", false},
		{"disabled", &Preferences{}, "notes", false},
		{"enabled other", &Preferences{CloudSyncEnabled: true}, "notes", true},
		{"documents gated", &Preferences{CloudSyncEnabled: true}, types.CategoryDocuments, false},
		{"documents allowed", &Preferences{CloudSyncEnabled: true, SyncDocuments: true}, types.CategoryDocuments, true},
		{"documents without master switch", &Preferences{SyncDocuments: true}, types.CategoryDocuments, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.prefs.AllowsSync(tt.category))
		})
	}
}

func TestStore_DefaultsThenSaved(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemory(), Preferences{CloudSyncEnabled: true})

	p, err := s.Get(ctx)
	require.NoError(t, err)
	assert.True(t, p.CloudSyncEnabled)
	assert.False(t, p.SyncDocuments)

	require.NoError(t, s.Set(ctx, &Preferences{CloudSyncEnabled: true, SyncDocuments: true}))
	p, err = s.Get(ctx)
	require.NoError(t, err)
	assert.True(t, p.SyncDocuments)
}

func TestStore_CorruptPreferences(t *testing.T) {
	backend := storage.NewMemory()
	require.NoError(t, backend.Put(preferencesKey, []byte("nope"), nil))

	_, err := NewStore(backend, Preferences{}).Get(context.Background())
	assert.ErrorIs(t, err, types.ErrCorruptPayload)
}

func TestStore_DeviceIDStable(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemory()
	s := NewStore(backend, Preferences{})

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id, err := s.GetOrCreateDeviceID(ctx)
			assert.NoError(t, err)
			ids[n] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	_, err := uuid.Parse(ids[0])
	assert.NoError(t, err)

	again, err := NewStore(backend, Preferences{}).GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[0], again)
}

func TestStatic(t *testing.T) {
	s := &Static{Prefs: Preferences{CloudSyncEnabled: true}}
	p, err := s.Get(context.Background())
	require.NoError(t, err)
	p.CloudSyncEnabled = false
	assert.True(t, s.Prefs.CloudSyncEnabled)

	id, err := StaticDevice("device-1").GetOrCreateDeviceID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "device-1", id)
}
