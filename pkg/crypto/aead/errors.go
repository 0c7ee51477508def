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

import "errors"

var (
	// ErrInvalidKeyLength is returned when a key is not exactly KeySize bytes.
	ErrInvalidKeyLength = errors.New("aead: invalid key length")

	// ErrInvalidIV is returned when an IV is not exactly IVSize bytes.
	ErrInvalidIV = errors.New("aead: invalid iv length")

	// ErrCiphertextTooShort is returned when the ciphertext cannot hold a tag.
	ErrCiphertextTooShort = errors.New("aead: ciphertext too short")

	// ErrDecryptionFailed is returned when the authentication tag does not
	// verify. The key may be wrong or the data may have been tampered with.
	ErrDecryptionFailed = errors.New("aead: decryption failed")
)
