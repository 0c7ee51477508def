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

package rest

import (
	"time"

	"github.com/jeremyhahn/go-docvault/pkg/health"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

// UpsertRecordRequest is the body of a record PUT.
type UpsertRecordRequest struct {
	Payload *types.EncryptedPayload `json:"payload"`
}

// RecordResponse is a stored ciphertext record.
type RecordResponse struct {
	UserID        string                 `json:"userId"`
	Category      string                 `json:"category"`
	ID            string                 `json:"id"`
	Payload       types.EncryptedPayload `json:"payload"`
	UpdatedAt     time.Time              `json:"updatedAt"`
	SchemaVersion int                    `json:"schemaVersion"`
}

// ListRecordsResponse lists the ids of a category.
type ListRecordsResponse struct {
	Category string   `json:"category"`
	IDs      []string `json:"ids"`
}

// HealthCheckResponse represents the response for the health endpoint.
type HealthCheckResponse struct {
	Status  health.Status        `json:"status"`
	Version string               `json:"version,omitempty"`
	Checks  []health.CheckResult `json:"checks,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
