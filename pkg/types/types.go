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

// Package types defines the persisted and exchanged data model shared by
// the key service, the envelope service, the local store, cloud sync and
// the audit log.
//
// Binary fields are []byte and therefore serialize to standard base64 in
// JSON, which is the on-disk and on-wire representation.
package types

import (
	"fmt"
	"strings"
	"time"
)

const (
	// AlgAES256GCM is the only supported algorithm identifier.
	AlgAES256GCM = "AES-256-GCM"

	// WrapVersion is the current WrappedDEK schema version.
	WrapVersion = 1

	// PayloadVersion is the current EncryptedPayload schema version.
	PayloadVersion = 1

	// SecurePayloadVersion is the current plaintext envelope schema version.
	SecurePayloadVersion = 1

	// CategoryDocuments is the category gated by the syncDocuments preference.
	CategoryDocuments = "documents"

	maxRecordKeyLength = 256
)

// WrappedDEK is the DEK encrypted under a passphrase-derived KEK.
// Exactly one exists per profile. Salt and Iterations are the KDF inputs
// that produced the KEK; they are written in the same record as the
// ciphertext so a rotation can never pair them with another wrapping.
type WrappedDEK struct {
	IV         []byte `json:"iv"`
	Salt       []byte `json:"salt"`
	CipherText []byte `json:"cipherText"`
	Alg        string `json:"alg"`
	Ver        int    `json:"ver"`
	Iterations int    `json:"iterations,omitempty"`
}

// Validate checks the structural integrity of a wrapped DEK.
func (w *WrappedDEK) Validate() error {
	if w == nil {
		return fmt.Errorf("%w: wrapped key is nil", ErrCorruptPayload)
	}
	if w.Alg != AlgAES256GCM {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrCorruptPayload, w.Alg)
	}
	if len(w.IV) == 0 || len(w.Salt) == 0 || len(w.CipherText) == 0 {
		return fmt.Errorf("%w: wrapped key is missing fields", ErrCorruptPayload)
	}
	return nil
}

// EncryptedPayload is the ciphertext form of a SecurePayload. It is the
// only representation that leaves the encryption service.
type EncryptedPayload struct {
	IV         []byte `json:"iv"`
	CipherText []byte `json:"cipherText"`
	Alg        string `json:"alg"`
	Ver        int    `json:"ver"`
}

// Validate checks the structural integrity of an encrypted payload.
func (p *EncryptedPayload) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: payload is nil", ErrCorruptPayload)
	}
	if p.Alg != AlgAES256GCM {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrCorruptPayload, p.Alg)
	}
	if len(p.IV) == 0 || len(p.CipherText) == 0 {
		return fmt.Errorf("%w: payload is missing fields", ErrCorruptPayload)
	}
	return nil
}

// Meta carries non-sensitive provenance for a SecurePayload.
type Meta struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// TZOffset is the device's offset from UTC in minutes east.
	TZOffset   int    `json:"tzOffset"`
	DeviceID   string `json:"deviceId"`
	AppVersion string `json:"appVersion"`
}

// SecurePayload is the plaintext envelope that gets encrypted as a whole.
type SecurePayload[T any] struct {
	Version  int    `json:"version"`
	Category string `json:"category"`
	Data     T      `json:"data"`
	Meta     Meta   `json:"meta"`
}

// ValidateRecordKey checks a (category, id) pair. Both parts must be
// non-empty path-safe segments.
func ValidateRecordKey(category, id string) error {
	if err := validateSegment("category", category); err != nil {
		return err
	}
	return validateSegment("id", id)
}

func validateSegment(name, s string) error {
	switch {
	case s == "":
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidRecordKey, name)
	case len(s) > maxRecordKeyLength:
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidRecordKey, name, maxRecordKeyLength)
	case s == "." || s == "..":
		return fmt.Errorf("%w: %s cannot be %q", ErrInvalidRecordKey, name, s)
	case strings.ContainsAny(s, "/\\\x00"):
		return fmt.Errorf("%w: %s contains a reserved character", ErrInvalidRecordKey, name)
	case strings.HasSuffix(s, ".tmp"):
		return fmt.Errorf("%w: %s uses a reserved suffix", ErrInvalidRecordKey, name)
	}
	return nil
}
