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

// Package vault wires the key session, envelope encryption, local
// storage, the audit log and cloud sync into one document vault.
//
// A Save encrypts the record under the session DEK, writes the ciphertext
// locally, appends an audit event and, if preferences allow, enqueues the
// record for a debounced upload. The local write is authoritative: its
// failure is returned to the caller. Audit and sync are best-effort and
// only logged.
//
// Example Usage:
//
//	v, err := vault.New(&vault.Config{Storage: backend})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer v.Close()
//
//	if _, err := v.Session().SetPassphrase(ctx, "correct-horse-battery"); err != nil {
//	    log.Fatal(err)
//	}
//	err = vault.Save(ctx, v, "documents", "doc-1", Will{Name: "Last Will"})
//	doc, err := vault.Load[Will](ctx, v, "documents", "doc-1")
package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jeremyhahn/go-docvault/pkg/audit"
	"github.com/jeremyhahn/go-docvault/pkg/cloud"
	"github.com/jeremyhahn/go-docvault/pkg/envelope"
	"github.com/jeremyhahn/go-docvault/pkg/identity"
	"github.com/jeremyhahn/go-docvault/pkg/keys"
	"github.com/jeremyhahn/go-docvault/pkg/local"
	"github.com/jeremyhahn/go-docvault/pkg/logger"
	"github.com/jeremyhahn/go-docvault/pkg/prefs"
	"github.com/jeremyhahn/go-docvault/pkg/ratelimit"
	"github.com/jeremyhahn/go-docvault/pkg/storage"
	"github.com/jeremyhahn/go-docvault/pkg/syncer"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

// Config configures a Vault.
type Config struct {
	// Storage holds key material, records, audit events and settings
	Storage storage.Backend

	// Iterations for new key wrappings (0 = environment or default)
	Iterations int

	// Cloud enables sync when set
	Cloud cloud.Adapter

	// Prefs and Device default to a store over Storage
	Prefs  prefs.PreferencesService
	Device prefs.DeviceService

	// Users identifies the cloud partition (default: anonymous)
	Users identity.CurrentUserProvider

	// Limiter throttles uploads (optional)
	Limiter *ratelimit.Limiter

	// SyncDelay is the debounce window (default: syncer.DefaultDelay)
	SyncDelay time.Duration

	// RetryDelay re-flushes after failed uploads (0 = wait for next save)
	RetryDelay time.Duration

	AppVersion string
	Clock      clockwork.Clock
	Logger     logger.Logger
}

// Vault is the document vault.
type Vault struct {
	session   *keys.Session
	envelope  *envelope.Service
	local     *local.Adapter
	audit     *audit.Log
	syncer    *syncer.Service
	prefs     prefs.PreferencesService
	syncDelay time.Duration
	logger    logger.Logger
}

// New assembles a vault over cfg.Storage.
func New(cfg *Config) (*Vault, error) {
	if cfg == nil || cfg.Storage == nil {
		return nil, fmt.Errorf("vault: storage backend is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	settings := prefs.NewStore(cfg.Storage, prefs.Preferences{})
	preferences := cfg.Prefs
	if preferences == nil {
		preferences = settings
	}
	device := cfg.Device
	if device == nil {
		device = settings
	}
	users := cfg.Users
	if users == nil {
		users = identity.Static{}
	}

	auditLog, err := audit.New(cfg.Storage, clk)
	if err != nil {
		return nil, err
	}

	session, err := keys.NewSession(&keys.Config{
		Storage:    cfg.Storage,
		Iterations: cfg.Iterations,
		Auditor:    auditLog,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	env, err := envelope.NewService(&envelope.Config{
		Keys:       session,
		Device:     device,
		AppVersion: cfg.AppVersion,
		Clock:      clk,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	localAdapter, err := local.New(cfg.Storage, log)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		session:   session,
		envelope:  env,
		local:     localAdapter,
		audit:     auditLog,
		prefs:     preferences,
		syncDelay: cfg.SyncDelay,
		logger:    log.With(logger.String("component", "vault")),
	}

	if cfg.Cloud != nil {
		v.syncer, err = syncer.New(&syncer.Config{
			Local:      localAdapter,
			Cloud:      cfg.Cloud,
			Prefs:      preferences,
			Users:      users,
			Auditor:    auditLog,
			Limiter:    cfg.Limiter,
			Clock:      clk,
			RetryDelay: cfg.RetryDelay,
			Logger:     log,
		})
		if err != nil {
			return nil, err
		}
	}

	return v, nil
}

// Session returns the key session.
func (v *Vault) Session() *keys.Session { return v.session }

// Audit returns the audit log.
func (v *Vault) Audit() *audit.Log { return v.audit }

// Syncer returns the sync service, or nil when no cloud adapter is set.
func (v *Vault) Syncer() *syncer.Service { return v.syncer }

// Save encrypts data and stores it at (category, id), replacing any
// previous version. An existing record keeps its creation time.
func Save[T any](ctx context.Context, v *Vault, category, id string, data T) error {
	if err := types.ValidateRecordKey(category, id); err != nil {
		return err
	}
	if v.session.DEK() == nil {
		return types.ErrLocked
	}

	payload, err := envelope.NewPayload(ctx, v.envelope, category, data)
	if err != nil {
		return err
	}

	event := types.AuditCreate
	existing, err := v.local.ReadEncrypted(ctx, category, id)
	if err != nil {
		v.logger.WarnContext(ctx, "existing record unreadable, replacing",
			logger.String("category", category), logger.String("id", id), logger.Error(err))
	}
	if existing != nil {
		event = types.AuditUpdate
		if prev := envelope.DecryptObject[T](ctx, v.envelope, existing); prev != nil {
			payload.Meta.CreatedAt = prev.Meta.CreatedAt
		}
	}

	enc, err := envelope.EncryptObject(ctx, v.envelope, payload)
	if err != nil {
		return err
	}
	if err := v.local.SaveEncrypted(ctx, category, id, enc); err != nil {
		return err
	}

	v.record(ctx, event, category, id)
	v.enqueue(ctx, category, id)
	return nil
}

// Load reads and decrypts the record at (category, id). Returns
// types.ErrNotFound when absent, types.ErrLocked when no DEK is loaded and
// types.ErrCorruptPayload when the record does not decrypt.
func Load[T any](ctx context.Context, v *Vault, category, id string) (*types.SecurePayload[T], error) {
	enc, err := v.local.ReadEncrypted(ctx, category, id)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, types.ErrNotFound
	}
	if v.session.DEK() == nil {
		return nil, types.ErrLocked
	}

	payload := envelope.DecryptObject[T](ctx, v.envelope, enc)
	if payload == nil {
		return nil, fmt.Errorf("%w: %s/%s does not decrypt", types.ErrCorruptPayload, category, id)
	}
	return payload, nil
}

// Delete removes the local record. The cloud copy is left in place.
func (v *Vault) Delete(ctx context.Context, category, id string) error {
	existing, err := v.local.ReadEncrypted(ctx, category, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return types.ErrNotFound
	}
	if err := v.local.DeleteEncrypted(ctx, category, id); err != nil {
		return err
	}
	v.record(ctx, types.AuditDelete, category, id)
	return nil
}

// List returns the ids stored in category.
func (v *Vault) List(ctx context.Context, category string) ([]string, error) {
	return v.local.List(ctx, category)
}

// Categories returns the categories that hold at least one local record.
func (v *Vault) Categories(ctx context.Context) ([]string, error) {
	return v.local.Categories(ctx)
}

// Sync enqueues every local record in category and flushes immediately.
// It fails with types.ErrSyncDisabled or types.ErrNoUser when nothing can
// be uploaded.
func (v *Vault) Sync(ctx context.Context, category string) error {
	if v.syncer == nil {
		return fmt.Errorf("%w: no cloud adapter configured", types.ErrSync)
	}
	ids, err := v.local.List(ctx, category)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := v.syncer.Enqueue(category, id, v.syncDelay); err != nil {
			return err
		}
	}
	return v.syncer.Flush(ctx, category)
}

// Close stops sync timers and locks the session.
func (v *Vault) Close() error {
	if v.syncer != nil {
		_ = v.syncer.Close()
	}
	return v.session.Close()
}

func (v *Vault) record(ctx context.Context, t types.AuditEventType, category, id string) {
	if err := v.audit.LogEvent(ctx, &types.AuditEvent{Type: t, Category: category, Key: id}); err != nil {
		v.logger.WarnContext(ctx, "failed to record audit event",
			logger.String("type", t.String()), logger.Error(err))
	}
}

func (v *Vault) enqueue(ctx context.Context, category, id string) {
	if v.syncer == nil {
		return
	}
	p, err := v.prefs.Get(ctx)
	if err != nil {
		v.logger.WarnContext(ctx, "failed to read preferences", logger.Error(err))
		return
	}
	if !p.AllowsSync(category) {
		return
	}
	if err := v.syncer.Enqueue(category, id, v.syncDelay); err != nil {
		v.logger.WarnContext(ctx, "failed to enqueue sync",
			logger.String("category", category), logger.String("id", id), logger.Error(err))
	}
}
