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

package keys

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeremyhahn/go-docvault/pkg/crypto/kdf"
	"github.com/jeremyhahn/go-docvault/pkg/storage"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

// Material is the persisted key material for one key version.
type Material struct {
	Wrapped    *types.WrappedDEK
	Salt       []byte
	Iterations int
}

// Store persists wrapped key material under the versioned key layout:
//
//	wrappedDEK_v{N}  JSON {iv, salt, cipherText, alg, ver, iterations}
//	kekSalt_v{N}     base64 salt
//	iterCount_v{N}   decimal iteration count
type Store struct {
	backend storage.Backend
	version int
}

// NewStore returns a Store for the given key version.
func NewStore(backend storage.Backend, version int) *Store {
	if version <= 0 {
		version = types.WrapVersion
	}
	return &Store{backend: backend, version: version}
}

// Version returns the key version this store reads and writes.
func (s *Store) Version() int {
	return s.version
}

// Exists reports whether a wrapped DEK has been persisted.
func (s *Store) Exists() (bool, error) {
	ok, err := s.backend.Exists(storage.WrappedDEKKey(s.version))
	if err != nil {
		return false, fmt.Errorf("keys: failed to check wrapped key: %w", err)
	}
	return ok, nil
}

// Load reads the key material. It returns types.ErrNoPassphrase when no
// wrapped DEK exists and types.ErrCorruptPayload when it cannot be parsed.
//
// The salt and iteration count inside the wrapped blob are authoritative.
// kekSalt_v{N} is a copy for introspection and is not read. iterCount_v{N}
// is only consulted for blobs written without an iteration count; if that
// is missing or unparsable too, the default applies.
func (s *Store) Load() (*Material, error) {
	raw, err := s.backend.Get(storage.WrappedDEKKey(s.version))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, types.ErrNoPassphrase
	}
	if err != nil {
		return nil, fmt.Errorf("keys: failed to read wrapped key: %w", err)
	}

	var wrapped types.WrappedDEK
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCorruptPayload, err)
	}
	if err := wrapped.Validate(); err != nil {
		return nil, err
	}

	m := &Material{
		Wrapped:    &wrapped,
		Salt:       wrapped.Salt,
		Iterations: wrapped.Iterations,
	}
	if m.Iterations > 0 {
		return m, nil
	}

	m.Iterations = kdf.DefaultPBKDF2Iterations
	if encoded, err := s.backend.Get(storage.IterCountKey(s.version)); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(string(encoded))); err == nil && n > 0 {
			m.Iterations = n
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("keys: failed to read iteration count: %w", err)
	}

	return m, nil
}

// Save writes all three keys. Backends implementing storage.BatchWriter
// apply the write atomically. Elsewhere the keys are written in sorted
// order, wrapped DEK last; a failure before that write leaves the previous
// blob, which carries its own salt and iteration count, fully usable.
func (s *Store) Save(m *Material) error {
	blob, err := json.Marshal(m.Wrapped)
	if err != nil {
		return fmt.Errorf("keys: failed to encode wrapped key: %w", err)
	}

	entries := map[string][]byte{
		storage.WrappedDEKKey(s.version): blob,
		storage.KEKSaltKey(s.version):    []byte(base64.StdEncoding.EncodeToString(m.Salt)),
		storage.IterCountKey(s.version):  []byte(strconv.Itoa(m.Iterations)),
	}
	if err := storage.PutAll(s.backend, entries, storage.DefaultOptions()); err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageWrite, err)
	}
	return nil
}
