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

// Package storage provides the key/value persistence layer shared by the
// key service, the local record store and the audit log. Backends only ever
// see opaque bytes: wrapped key material, ciphertext envelopes and
// content-free audit events.
package storage

import (
	"io/fs"
)

// Backend defines the interface for a key/value storage backend.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get retrieves the value for the given key.
	// Returns ErrNotFound if the key does not exist.
	Get(key string) ([]byte, error)

	// Put stores the value for the given key with optional metadata.
	// If the key already exists, it will be overwritten.
	Put(key string, value []byte, opts *Options) error

	// Delete removes the key and its value from storage.
	// Returns ErrNotFound if the key does not exist.
	Delete(key string) error

	// List returns all keys with the given prefix in lexical order.
	// If prefix is empty, all keys are returned.
	List(prefix string) ([]string, error)

	// Exists checks if a key exists in storage.
	Exists(key string) (bool, error)

	// Close releases any resources held by the backend.
	Close() error
}

// BatchWriter is implemented by backends that can write several keys as a
// single atomic unit. Either every entry becomes visible or none does.
type BatchWriter interface {
	PutBatch(entries map[string][]byte, opts *Options) error
}

// PutAll writes entries atomically when the backend implements BatchWriter
// and falls back to sequential puts in sorted key order otherwise.
func PutAll(backend Backend, entries map[string][]byte, opts *Options) error {
	if bw, ok := backend.(BatchWriter); ok {
		return bw.PutBatch(entries, opts)
	}
	for _, key := range sortedKeys(entries) {
		if err := backend.Put(key, entries[key], opts); err != nil {
			return err
		}
	}
	return nil
}

// Options contains optional parameters for storage operations.
type Options struct {
	// Permissions sets the file permissions for file-based storage
	Permissions fs.FileMode

	// Metadata contains additional key-value pairs for storage operations
	Metadata map[string]string
}

// DefaultOptions returns the default storage options.
func DefaultOptions() *Options {
	return &Options{
		Permissions: 0600, // Read/write for owner only
		Metadata:    make(map[string]string),
	}
}
