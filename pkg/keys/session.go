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

// Package keys manages the DEK lifecycle: generation, wrapping under a
// passphrase-derived KEK, persistence, rotation and the in-memory
// Locked/Unlocked session.
//
// A Session is an explicit object owned by the caller. There is no
// package-level key state; two sessions over two backends are fully
// independent.
package keys

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jeremyhahn/go-docvault/pkg/crypto/aead"
	"github.com/jeremyhahn/go-docvault/pkg/crypto/kdf"
	"github.com/jeremyhahn/go-docvault/pkg/logger"
	"github.com/jeremyhahn/go-docvault/pkg/metrics"
	"github.com/jeremyhahn/go-docvault/pkg/storage"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

const component = "keys"

// State is the session lock state.
type State int

const (
	StateLocked State = iota
	StateUnlocked
)

// String returns the state name.
func (s State) String() string {
	if s == StateUnlocked {
		return "unlocked"
	}
	return "locked"
}

// Auditor receives key lifecycle events. audit.Log satisfies it.
type Auditor interface {
	LogEvent(ctx context.Context, event *types.AuditEvent) error
}

// Config configures a Session.
type Config struct {
	// Storage holds the wrapped key material. Required.
	Storage storage.Backend

	// KDF derives KEKs. Defaults to PBKDF2-SHA256.
	KDF kdf.KDFAdapter

	// Iterations is the PBKDF2 iteration count used for new wrappings.
	// Zero reads DOCVAULT_PBKDF2_ITERATIONS and falls back to the default.
	// Values below kdf.MinPBKDF2Iterations are replaced by the default.
	Iterations int

	// Version selects the key layout version. Defaults to 1.
	Version int

	// Auditor optionally records key lifecycle events.
	Auditor Auditor

	// Logger defaults to the slog adapter.
	Logger logger.Logger
}

// Session owns the in-memory DEK for one profile.
type Session struct {
	store      *Store
	kdf        kdf.KDFAdapter
	iterations int
	auditor    Auditor
	logger     logger.Logger

	// opMu serializes key-changing operations. PBKDF2 is slow, so readers
	// of the current DEK use mu and are never blocked behind a derivation.
	opMu sync.Mutex
	mu   sync.RWMutex
	dek  *DEK
}

// NewSession creates a locked session.
func NewSession(cfg *Config) (*Session, error) {
	if cfg == nil || cfg.Storage == nil {
		return nil, fmt.Errorf("keys: storage backend is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	log = log.With(logger.String("component", component))

	adapter := cfg.KDF
	if adapter == nil {
		adapter = kdf.NewPBKDF2Adapter()
	}

	iterations := cfg.Iterations
	switch {
	case iterations == 0:
		var ok bool
		iterations, ok = kdf.IterationsFromEnv()
		if raw, set := os.LookupEnv(kdf.IterationsEnvVar); set && !ok && strings.TrimSpace(raw) != "" {
			log.Warn("invalid iteration count in environment, using default",
				logger.String("env", kdf.IterationsEnvVar),
				logger.Int("default", kdf.DefaultPBKDF2Iterations))
		}
	case iterations < kdf.MinPBKDF2Iterations:
		log.Warn("iteration count below minimum, using default",
			logger.Int("configured", iterations),
			logger.Int("default", kdf.DefaultPBKDF2Iterations))
		iterations = kdf.DefaultPBKDF2Iterations
	}

	metrics.SetSessionUnlocked(false)

	return &Session{
		store:      NewStore(cfg.Storage, cfg.Version),
		kdf:        adapter,
		iterations: iterations,
		auditor:    cfg.Auditor,
		logger:     log,
	}, nil
}

// Iterations returns the iteration count used for new wrappings.
func (s *Session) Iterations() int {
	return s.iterations
}

// HasPassphrase reports whether a wrapped DEK exists.
func (s *Session) HasPassphrase(ctx context.Context) (bool, error) {
	return s.store.Exists()
}

// SetPassphrase generates a fresh DEK, wraps it under passphrase and
// persists it, replacing any existing wrapping. Data encrypted under a
// previous DEK becomes unreadable. The session is unlocked on success.
func (s *Session) SetPassphrase(ctx context.Context, passphrase string) (*DEK, error) {
	if passphrase == "" {
		return nil, types.ErrEmptyPassphrase
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	dek := NewRandomDEK()
	if err := s.wrapAndStore(dek, passphrase); err != nil {
		return nil, err
	}

	s.setDEK(dek)
	s.logger.InfoContext(ctx, "passphrase set", logger.Int("iterations", s.iterations))
	s.audit(ctx, types.AuditKeySetPassphrase)
	return dek, nil
}

// Unlock derives the KEK from passphrase and unwraps the stored DEK.
// Every failure (no key material, wrong passphrase, corrupt record)
// returns types.ErrLocked and leaves the session locked.
func (s *Session) Unlock(ctx context.Context, passphrase string) (*DEK, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	dek, err := s.unlock(passphrase)
	if err != nil {
		s.clear()
		s.logger.DebugContext(ctx, "unlock failed", logger.Error(err))
		s.audit(ctx, types.AuditKeyUnlockFailed)
		return nil, types.ErrLocked
	}

	s.setDEK(dek)
	s.logger.DebugContext(ctx, "session unlocked")
	s.audit(ctx, types.AuditKeyUnlock)
	return dek, nil
}

// ChangePassphrase unlocks with oldPassphrase and re-wraps the same DEK
// under newPassphrase with a fresh salt and IV. Existing ciphertext stays
// readable. On failure to unlock the session is locked and
// types.ErrLocked is returned.
func (s *Session) ChangePassphrase(ctx context.Context, oldPassphrase, newPassphrase string) error {
	if newPassphrase == "" {
		return types.ErrEmptyPassphrase
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	dek, err := s.unlock(oldPassphrase)
	if err != nil {
		s.clear()
		s.logger.DebugContext(ctx, "passphrase change rejected", logger.Error(err))
		s.audit(ctx, types.AuditKeyUnlockFailed)
		return types.ErrLocked
	}
	s.setDEK(dek)

	if err := s.wrapAndStore(dek, newPassphrase); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "passphrase changed", logger.Int("iterations", s.iterations))
	s.audit(ctx, types.AuditKeyChangePassphrase)
	return nil
}

// Lock drops the session's DEK. It is idempotent.
func (s *Session) Lock() {
	if s.clear() {
		s.logger.Debug("session locked")
		s.audit(context.Background(), types.AuditKeyLock)
	}
}

// Close locks the session.
func (s *Session) Close() error {
	s.Lock()
	return nil
}

// DEK returns the current DEK, or nil when locked.
func (s *Session) DEK() *DEK {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dek
}

// State returns the current lock state.
func (s *Session) State() State {
	if s.DEK() == nil {
		return StateLocked
	}
	return StateUnlocked
}

func (s *Session) unlock(passphrase string) (*DEK, error) {
	if passphrase == "" {
		return nil, types.ErrEmptyPassphrase
	}

	m, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	kek, err := s.deriveKEK(passphrase, m.Salt, m.Iterations)
	if err != nil {
		return nil, err
	}
	defer aead.Wipe(kek)

	start := time.Now()
	raw, err := aead.Decrypt(kek, m.Wrapped.CipherText, m.Wrapped.IV, nil)
	metrics.Observe(metrics.OpUnwrap, component, start, err)
	if err != nil {
		if errors.Is(err, aead.ErrDecryptionFailed) {
			return nil, types.ErrInvalidPassphrase
		}
		return nil, fmt.Errorf("%w: %v", types.ErrCorruptPayload, err)
	}

	dek, err := NewDEKFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrCorruptPayload, err)
	}
	return dek, nil
}

func (s *Session) wrapAndStore(dek *DEK, passphrase string) error {
	salt, err := aead.RandomBytes(kdf.DefaultSaltLength)
	if err != nil {
		return err
	}

	kek, err := s.deriveKEK(passphrase, salt, s.iterations)
	if err != nil {
		return err
	}
	defer aead.Wipe(kek)

	var ct, iv []byte
	start := time.Now()
	err = dek.Use(func(raw []byte) error {
		var encErr error
		ct, iv, encErr = aead.Encrypt(kek, raw, nil)
		return encErr
	})
	metrics.Observe(metrics.OpWrap, component, start, err)
	if err != nil {
		return fmt.Errorf("keys: failed to wrap DEK: %w", err)
	}

	return s.store.Save(&Material{
		Wrapped: &types.WrappedDEK{
			IV:         iv,
			Salt:       salt,
			CipherText: ct,
			Alg:        types.AlgAES256GCM,
			Ver:        types.WrapVersion,
			Iterations: s.iterations,
		},
		Salt:       salt,
		Iterations: s.iterations,
	})
}

func (s *Session) deriveKEK(passphrase string, salt []byte, iterations int) ([]byte, error) {
	ikm := []byte(passphrase)
	defer aead.Wipe(ikm)

	start := time.Now()
	kek, err := s.kdf.DeriveKey(ikm, kdf.DefaultParams(salt, iterations))
	metrics.Observe(metrics.OpDerive, component, start, err)
	if err != nil {
		return nil, fmt.Errorf("keys: failed to derive KEK: %w", err)
	}
	return kek, nil
}

func (s *Session) setDEK(dek *DEK) {
	s.mu.Lock()
	s.dek = dek
	s.mu.Unlock()
	metrics.SetSessionUnlocked(true)
}

// clear drops the DEK and reports whether one was loaded.
func (s *Session) clear() bool {
	s.mu.Lock()
	had := s.dek != nil
	s.dek = nil
	s.mu.Unlock()
	metrics.SetSessionUnlocked(false)
	return had
}

func (s *Session) audit(ctx context.Context, t types.AuditEventType) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.LogEvent(ctx, &types.AuditEvent{Type: t}); err != nil {
		s.logger.WarnContext(ctx, "failed to record key audit event",
			logger.String("type", t.String()), logger.Error(err))
	}
}
