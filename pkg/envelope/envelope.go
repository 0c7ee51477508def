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

// Package envelope encrypts typed records under the session DEK.
//
// A record is wrapped in a types.SecurePayload, serialized to JSON and
// sealed with AES-256-GCM as a whole, so the category and provenance
// metadata are as confidential as the data itself. The resulting
// types.EncryptedPayload is the only form that leaves this package.
package envelope

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jeremyhahn/go-docvault/pkg/crypto/aead"
	"github.com/jeremyhahn/go-docvault/pkg/keys"
	"github.com/jeremyhahn/go-docvault/pkg/logger"
	"github.com/jeremyhahn/go-docvault/pkg/metrics"
	"github.com/jeremyhahn/go-docvault/pkg/prefs"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

const component = "envelope"

// KeyProvider supplies the current DEK, or nil when locked.
// *keys.Session satisfies it.
type KeyProvider interface {
	DEK() *keys.DEK
}

// Config configures a Service.
type Config struct {
	// Keys provides the DEK (required)
	Keys KeyProvider

	// Device stamps the device id into payload metadata (optional)
	Device prefs.DeviceService

	// AppVersion is stamped into payload metadata
	AppVersion string

	// Clock defaults to the real clock
	Clock clockwork.Clock

	// Logger defaults to a slog adapter
	Logger logger.Logger
}

// Service is the encryption service.
type Service struct {
	keys       KeyProvider
	device     prefs.DeviceService
	appVersion string
	clock      clockwork.Clock
	log        logger.Logger
}

// NewService creates an encryption service.
func NewService(cfg *Config) (*Service, error) {
	if cfg == nil || cfg.Keys == nil {
		return nil, fmt.Errorf("envelope: key provider is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		keys:       cfg.Keys,
		device:     cfg.Device,
		appVersion: cfg.AppVersion,
		clock:      clk,
		log:        log,
	}, nil
}

// Seal encrypts plaintext under dek with a fresh IV.
func Seal(dek *keys.DEK, plaintext []byte) (*types.EncryptedPayload, error) {
	if dek == nil {
		return nil, types.ErrLocked
	}

	var ct, iv []byte
	err := dek.Use(func(key []byte) error {
		var err error
		ct, iv, err = aead.Encrypt(key, plaintext, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &types.EncryptedPayload{
		IV:         iv,
		CipherText: ct,
		Alg:        types.AlgAES256GCM,
		Ver:        types.PayloadVersion,
	}, nil
}

// Open decrypts payload under dek.
func Open(dek *keys.DEK, payload *types.EncryptedPayload) ([]byte, error) {
	if dek == nil {
		return nil, types.ErrLocked
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	var plaintext []byte
	err := dek.Use(func(key []byte) error {
		var err error
		plaintext, err = aead.Decrypt(key, payload.CipherText, payload.IV, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// NewPayload builds a SecurePayload for data, stamping timestamps, the
// local timezone offset, the device id and the app version.
func NewPayload[T any](ctx context.Context, s *Service, category string, data T) (*types.SecurePayload[T], error) {
	now := s.clock.Now()
	_, offset := now.Zone()

	var deviceID string
	if s.device != nil {
		id, err := s.device.GetOrCreateDeviceID(ctx)
		if err != nil {
			return nil, fmt.Errorf("envelope: failed to resolve device id: %w", err)
		}
		deviceID = id
	}

	return &types.SecurePayload[T]{
		Version:  types.SecurePayloadVersion,
		Category: category,
		Data:     data,
		Meta: types.Meta{
			CreatedAt:  now.UTC(),
			UpdatedAt:  now.UTC(),
			TZOffset:   offset / 60,
			DeviceID:   deviceID,
			AppVersion: s.appVersion,
		},
	}, nil
}

// EncryptObject serializes and encrypts payload. The DEK is captured once,
// so a concurrent Lock cannot affect an operation already in progress.
// Returns types.ErrLocked when no DEK is available.
func EncryptObject[T any](ctx context.Context, s *Service, payload *types.SecurePayload[T]) (enc *types.EncryptedPayload, err error) {
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpEncrypt, component, start, err) }()

	dek := s.keys.DEK()
	if dek == nil {
		return nil, types.ErrLocked
	}
	if payload == nil {
		return nil, fmt.Errorf("envelope: payload is nil")
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: failed to encode payload: %w", err)
	}
	defer aead.Wipe(plaintext)

	enc, err = Seal(dek, plaintext)
	if err != nil {
		s.log.ErrorContext(ctx, "payload encryption failed",
			logger.String("category", payload.Category), logger.Error(err))
		return nil, fmt.Errorf("envelope: encryption failed: %w", err)
	}
	return enc, nil
}

// DecryptObject decrypts and parses payload. It returns nil on any
// failure: locked session, wrong key, tampering or malformed content.
func DecryptObject[T any](ctx context.Context, s *Service, payload *types.EncryptedPayload) *types.SecurePayload[T] {
	var err error
	start := time.Now()
	defer func() { metrics.Observe(metrics.OpDecrypt, component, start, err) }()

	dek := s.keys.DEK()
	if dek == nil {
		err = types.ErrLocked
		return nil
	}

	plaintext, err := Open(dek, payload)
	if err != nil {
		s.log.DebugContext(ctx, "payload decryption failed", logger.Error(err))
		return nil
	}
	defer aead.Wipe(plaintext)

	var out types.SecurePayload[T]
	if err = json.Unmarshal(plaintext, &out); err != nil {
		s.log.DebugContext(ctx, "decrypted payload is malformed", logger.Error(err))
		return nil
	}
	return &out
}
