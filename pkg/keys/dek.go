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
	"errors"

	"github.com/awnumar/memguard"

	"github.com/jeremyhahn/go-docvault/pkg/crypto/aead"
)

// ErrDEKUnavailable is returned when the enclave holding a DEK cannot be
// opened.
var ErrDEKUnavailable = errors.New("keys: DEK unavailable")

// DEK is the data-encryption key. The raw bytes live in a memguard
// Enclave and are only decrypted into a locked buffer for the duration of
// a Use callback.
//
// A DEK is immutable. Locking a session drops the session's reference but
// leaves a DEK captured by an in-flight operation usable until it returns.
type DEK struct {
	enclave *memguard.Enclave
}

// NewRandomDEK generates a fresh 256-bit DEK directly inside an enclave.
func NewRandomDEK() *DEK {
	return &DEK{enclave: memguard.NewEnclaveRandom(aead.KeySize)}
}

// NewDEKFromBytes seals raw into an enclave. raw is wiped.
func NewDEKFromBytes(raw []byte) (*DEK, error) {
	if len(raw) != aead.KeySize {
		memguard.WipeBytes(raw)
		return nil, aead.ErrInvalidKeyLength
	}
	return &DEK{enclave: memguard.NewEnclave(raw)}, nil
}

// Use opens the enclave and passes the raw key to fn. The key slice is
// destroyed when fn returns and must not be retained.
func (d *DEK) Use(fn func(key []byte) error) error {
	if d == nil || d.enclave == nil {
		return ErrDEKUnavailable
	}

	buf, err := d.enclave.Open()
	if err != nil {
		return ErrDEKUnavailable
	}
	defer buf.Destroy()

	return fn(buf.Bytes())
}
