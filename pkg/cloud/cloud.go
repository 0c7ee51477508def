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

// Package cloud provides zero-knowledge remote stores for encrypted
// records. Every adapter receives ciphertext only; none ever sees a key.
//
// Upserts are idempotent create-or-replace operations keyed by
// (userID, category, id). Failures wrap types.ErrSync.
package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-docvault/pkg/metrics"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

// Adapter uploads encrypted records.
type Adapter interface {
	// UpsertEncrypted creates or replaces the record at (userID, category, id).
	UpsertEncrypted(ctx context.Context, userID, category, id string, payload *types.EncryptedPayload) error

	// Name identifies the adapter in logs and metrics.
	Name() string
}

// Record is the remote representation of an encrypted record. It carries
// the ciphertext plus metadata that reveals nothing about the content.
type Record struct {
	UserID        string                 `json:"userId" bson:"userId"`
	Category      string                 `json:"category" bson:"category"`
	ID            string                 `json:"id" bson:"id"`
	Payload       types.EncryptedPayload `json:"payload" bson:"payload"`
	UpdatedAt     time.Time              `json:"updatedAt" bson:"updatedAt"`
	SchemaVersion int                    `json:"schemaVersion" bson:"schemaVersion"`
}

// checkUpsert validates the arguments shared by every adapter.
func checkUpsert(userID, category, id string, payload *types.EncryptedPayload) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", types.ErrSync)
	}
	if err := types.ValidateRecordKey(category, id); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSync, err)
	}
	if err := types.ValidateRecordKey(userID, category); err != nil {
		return fmt.Errorf("%w: invalid user id", types.ErrSync)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSync, err)
	}
	return nil
}

// syncErr wraps a backend failure in types.ErrSync.
func syncErr(adapter string, err error) error {
	return fmt.Errorf("%w: %s: %v", types.ErrSync, adapter, err)
}

func observe(adapter string, start time.Time, err error) {
	metrics.Observe(metrics.OpUpsert, "cloud_"+adapter, start, err)
}
