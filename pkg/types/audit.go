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

import "time"

// AuditEventType identifies what happened.
type AuditEventType string

const (
	AuditCreate              AuditEventType = "create"
	AuditUpdate              AuditEventType = "update"
	AuditDelete              AuditEventType = "delete"
	AuditSync                AuditEventType = "sync"
	AuditSyncFailed          AuditEventType = "sync_failed"
	AuditKeySetPassphrase    AuditEventType = "key.set_passphrase"
	AuditKeyChangePassphrase AuditEventType = "key.change_passphrase"
	AuditKeyUnlock           AuditEventType = "key.unlock"
	AuditKeyUnlockFailed     AuditEventType = "key.unlock_failed"
	AuditKeyLock             AuditEventType = "key.lock"
)

// String returns the string form of the event type.
func (t AuditEventType) String() string {
	return string(t)
}

// AuditEvent is a content-free record of an operation. It never carries
// payload data or key material.
type AuditEvent struct {
	ID        string         `json:"id"`
	Seq       uint64         `json:"seq"`
	Type      AuditEventType `json:"type"`
	Category  string         `json:"category,omitempty"`
	Key       string         `json:"key,omitempty"`
	Timestamp time.Time      `json:"ts"`
}
