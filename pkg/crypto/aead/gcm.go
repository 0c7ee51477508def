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

// Package aead provides the AES-256-GCM primitives used for both key
// wrapping and record encryption.
//
// Every call to Encrypt draws a fresh random 96-bit IV. The returned
// ciphertext carries the 128-bit GCM tag appended, so Decrypt fails with
// ErrDecryptionFailed on any tampering or when the wrong key is supplied.
//
// Example usage:
//
//	key, _ := aead.NewKey()
//	ct, iv, _ := aead.Encrypt(key, []byte("hello"), nil)
//	pt, err := aead.Decrypt(key, ct, iv, nil)
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// Algorithm is the persisted algorithm identifier.
	Algorithm = "AES-256-GCM"

	// KeySize is the AES-256 key size in bytes.
	KeySize = 32

	// IVSize is the GCM nonce size in bytes.
	IVSize = 12

	// TagSize is the GCM authentication tag size in bytes.
	TagSize = 16
)

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("aead: failed to read random bytes: %w", err)
	}
	return b, nil
}

// NewKey generates a random 256-bit key.
func NewKey() ([]byte, error) {
	return RandomBytes(KeySize)
}

// Encrypt seals plaintext under key with a freshly generated IV.
// additionalData is authenticated but not encrypted and may be nil.
func Encrypt(key, plaintext, additionalData []byte) (ciphertext, iv []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	iv, err = RandomBytes(IVSize)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = gcm.Seal(nil, iv, plaintext, additionalData)
	return ciphertext, iv, nil
}

// Decrypt opens ciphertext produced by Encrypt.
func Decrypt(key, ciphertext, iv, additionalData []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(iv) != IVSize {
		return nil, ErrInvalidIV
	}
	if len(ciphertext) < TagSize {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, iv, ciphertext, additionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Wipe overwrites b with zeros. Best effort only: the runtime may have
// copied the buffer elsewhere.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aead: failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aead: failed to create GCM: %w", err)
	}
	return gcm, nil
}
