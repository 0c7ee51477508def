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

package aead

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)
	require.Len(t, key, KeySize)

	ct, iv, err := Encrypt(key, []byte("Last Will"), nil)
	require.NoError(t, err)
	assert.Len(t, iv, IVSize)
	assert.Len(t, ct, len("Last Will")+TagSize)

	pt, err := Decrypt(key, ct, iv, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("Last Will"), pt)
}

func TestEncrypt_FreshIVPerCall(t *testing.T) {
	key, err := NewKey()
	require.NoError(t, err)

	ct1, iv1, err := Encrypt(key, []byte("same"), nil)
	require.NoError(t, err)
	ct2, iv2, err := Encrypt(key, []byte("same"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, iv1, iv2)
	assert.NotEqual(t, ct1, ct2)
}

func TestDecrypt_WrongKey(t *testing.T) {
	k1, _ := NewKey()
	k2, _ := NewKey()

	ct, iv, err := Encrypt(k1, []byte("secret"), nil)
	require.NoError(t, err)

	_, err = Decrypt(k2, ct, iv, nil)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_Tampered(t *testing.T) {
	key, _ := NewKey()
	ct, iv, err := Encrypt(key, []byte("secret"), nil)
	require.NoError(t, err)

	ct[0] ^= 0xff
	_, err = Decrypt(key, ct, iv, nil)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_AdditionalDataMismatch(t *testing.T) {
	key, _ := NewKey()
	ct, iv, err := Encrypt(key, []byte("secret"), []byte("documents"))
	require.NoError(t, err)

	_, err = Decrypt(key, ct, iv, []byte("contacts"))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestInvalidInputs(t *testing.T) {
	_, _, err := Encrypt([]byte("short"), []byte("x"), nil)
	assert.ErrorIs(t, err, ErrInvalidKeyLength)

	key, _ := NewKey()
	_, err = Decrypt(key, make([]byte, 32), []byte("bad"), nil)
	assert.ErrorIs(t, err, ErrInvalidIV)

	_, err = Decrypt(key, []byte("tiny"), make([]byte, IVSize), nil)
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3}
	Wipe(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}
