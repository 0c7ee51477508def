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

package storage

import (
	"fmt"
	"sort"
	"strings"
)

const (
	recordsPrefix = "records/"
	auditPrefix   = "audit/"
)

// WrappedDEKKey returns the storage key of the wrapped DEK for a key version.
// The path follows the convention: wrappedDEK_v{N}
func WrappedDEKKey(version int) string {
	return fmt.Sprintf("wrappedDEK_v%d", version)
}

// KEKSaltKey returns the storage key of the base64 KEK salt.
// The path follows the convention: kekSalt_v{N}
func KEKSaltKey(version int) string {
	return fmt.Sprintf("kekSalt_v%d", version)
}

// IterCountKey returns the storage key of the decimal PBKDF2 iteration count.
// The path follows the convention: iterCount_v{N}
func IterCountKey(version int) string {
	return fmt.Sprintf("iterCount_v%d", version)
}

// RecordPath returns the storage path for an encrypted record.
// The path follows the convention: records/{category}/{id}
func RecordPath(category, id string) string {
	return recordsPrefix + category + "/" + id
}

// RecordPrefix returns the listing prefix for a category.
func RecordPrefix(category string) string {
	return recordsPrefix + category + "/"
}

// AuditPath returns the storage path for the audit event with the given
// sequence number. Sequence numbers are zero padded so lexical order
// matches append order.
func AuditPath(seq uint64) string {
	return fmt.Sprintf("%s%020d", auditPrefix, seq)
}

// AuditPrefix returns the listing prefix for audit events.
func AuditPrefix() string {
	return auditPrefix
}

// ListRecordIDs returns the ids of every record stored in a category.
// Returns an empty slice if the category holds no records.
func ListRecordIDs(backend Backend, category string) ([]string, error) {
	prefix := RecordPrefix(category)
	keys, err := backend.List(prefix)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id := strings.TrimPrefix(k, prefix)
		if id != "" && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ListCategories returns the sorted, distinct categories that hold at
// least one record.
func ListCategories(backend Backend) ([]string, error) {
	keys, err := backend.List(recordsPrefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	categories := make([]string, 0)
	for _, k := range keys {
		rest := strings.TrimPrefix(k, recordsPrefix)
		category, _, ok := strings.Cut(rest, "/")
		if !ok || category == "" {
			continue
		}
		if _, dup := seen[category]; !dup {
			seen[category] = struct{}{}
			categories = append(categories, category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}
