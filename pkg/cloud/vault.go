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

package cloud

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/jonboulle/clockwork"

	"github.com/jeremyhahn/go-docvault/pkg/types"
)

// VaultConfig configures a VaultKVStore.
type VaultConfig struct {
	// Address is the Vault server URL
	Address string

	// Token authenticates requests
	Token string

	// Mount is the KV v2 mount path (default: "secret")
	Mount string

	// Namespace is the Vault Enterprise namespace (optional)
	Namespace string

	// Timeout bounds each request (default: 30s)
	Timeout time.Duration
}

// VaultKVStore writes encrypted records into a HashiCorp Vault KV v2
// engine at <mount>/data/<user>/<category>/<id>. Each write creates a new
// KV version, so history is kept by Vault.
type VaultKVStore struct {
	client *vault.Client
	mount  string
	clock  clockwork.Clock
}

// NewVaultKVStore creates a Vault-backed store.
func NewVaultKVStore(cfg *VaultConfig) (*VaultKVStore, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("cloud: vault address is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("cloud: vault token is required")
	}

	vc := vault.DefaultConfig()
	vc.Address = cfg.Address
	vc.Timeout = cfg.Timeout
	if vc.Timeout == 0 {
		vc.Timeout = 30 * time.Second
	}

	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("cloud: failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}

	return &VaultKVStore{client: client, mount: mount, clock: clockwork.NewRealClock()}, nil
}

// Name returns "vault".
func (v *VaultKVStore) Name() string { return "vault" }

// UpsertEncrypted writes the record as the latest KV version.
func (v *VaultKVStore) UpsertEncrypted(ctx context.Context, userID, category, id string, payload *types.EncryptedPayload) (err error) {
	start := time.Now()
	defer func() { observe(v.Name(), start, err) }()

	if err := checkUpsert(userID, category, id, payload); err != nil {
		return err
	}

	data := map[string]interface{}{
		"data": map[string]interface{}{
			"iv":            base64.StdEncoding.EncodeToString(payload.IV),
			"cipherText":    base64.StdEncoding.EncodeToString(payload.CipherText),
			"alg":           payload.Alg,
			"ver":           payload.Ver,
			"updatedAt":     v.clock.Now().UTC().Format(time.RFC3339Nano),
			"schemaVersion": payload.Ver,
		},
	}

	if _, err := v.client.Logical().WriteWithContext(ctx, v.secretPath(userID, category, id), data); err != nil {
		return syncErr(v.Name(), err)
	}
	return nil
}

func (v *VaultKVStore) secretPath(userID, category, id string) string {
	return path.Join(v.mount, "data", userID, category, id)
}

var _ Adapter = (*VaultKVStore)(nil)
