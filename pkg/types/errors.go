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

package types

import (
	"errors"
	"fmt"
)

var (
	// ErrLocked is returned when an operation needs the DEK and none is
	// loaded, and for every unlock failure.
	ErrLocked = errors.New("docvault: locked")

	// ErrInvalidPassphrase marks a KEK that failed to unwrap the DEK.
	// Unlock never surfaces it; callers see ErrLocked.
	ErrInvalidPassphrase = errors.New("docvault: invalid passphrase")

	// ErrEmptyPassphrase is returned when an empty passphrase is supplied.
	ErrEmptyPassphrase = errors.New("docvault: empty passphrase")

	// ErrNoPassphrase is returned when key material has not been set up.
	ErrNoPassphrase = errors.New("docvault: no passphrase configured")

	// ErrCorruptPayload is returned when stored bytes cannot be parsed or
	// fail authentication.
	ErrCorruptPayload = errors.New("docvault: corrupt payload")

	// ErrStorageWrite wraps a failed local persistence write.
	ErrStorageWrite = errors.New("docvault: storage write failure")

	// ErrSync wraps a failed cloud operation.
	ErrSync = errors.New("docvault: sync failure")

	// ErrSyncDisabled is returned by an explicit flush of a category the
	// sync preferences exclude.
	ErrSyncDisabled = fmt.Errorf("%w: disabled by preferences", ErrSync)

	// ErrNoUser is returned by an explicit flush when no user is
	// authenticated.
	ErrNoUser = fmt.Errorf("%w: no authenticated user", ErrSync)

	// ErrInvalidRecordKey is returned for an unusable category or id.
	ErrInvalidRecordKey = errors.New("docvault: invalid record key")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("docvault: not found")
)
