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
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-docvault/pkg/crypto/aead"
)

func TestNewDEKFromBytes_WipesSource(t *testing.T) {
	raw := bytes.Repeat([]byte{0xAB}, aead.KeySize)
	dek, err := NewDEKFromBytes(raw)
	require.NoError(t, err)

	assert.Equal(t, make([]byte, aead.KeySize), raw)

	require.NoError(t, dek.Use(func(k []byte) error {
		assert.Equal(t, bytes.Repeat([]byte{0xAB}, aead.KeySize), k)
		return nil
	}))
}

func TestNewDEKFromBytes_WrongLength(t *testing.T) {
	_, err := NewDEKFromBytes([]byte("short"))
	assert.ErrorIs(t, err, aead.ErrInvalidKeyLength)
}

func TestNewRandomDEK_Distinct(t *testing.T) {
	a := rawKey(t, NewRandomDEK())
	b := rawKey(t, NewRandomDEK())
	assert.Len(t, a, aead.KeySize)
	assert.NotEqual(t, a, b)
}

func TestDEK_UsePropagatesError(t *testing.T) {
	want := errors.New("boom")
	err := NewRandomDEK().Use(func([]byte) error { return want })
	assert.ErrorIs(t, err, want)
}

func TestDEK_NilUnavailable(t *testing.T) {
	var dek *DEK
	assert.ErrorIs(t, dek.Use(func([]byte) error { return nil }), ErrDEKUnavailable)
}
