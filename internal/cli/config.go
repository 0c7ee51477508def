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

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-docvault/internal/config"
	"github.com/jeremyhahn/go-docvault/pkg/cloud"
	"github.com/jeremyhahn/go-docvault/pkg/identity"
	"github.com/jeremyhahn/go-docvault/pkg/logger"
	"github.com/jeremyhahn/go-docvault/pkg/prefs"
	"github.com/jeremyhahn/go-docvault/pkg/ratelimit"
	"github.com/jeremyhahn/go-docvault/pkg/storage"
	"github.com/jeremyhahn/go-docvault/pkg/storage/badger"
	"github.com/jeremyhahn/go-docvault/pkg/storage/file"
	"github.com/jeremyhahn/go-docvault/pkg/vault"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the YAML configuration file
	ConfigFile string

	// DataDir overrides storage.path
	DataDir string

	// Storage overrides storage.backend (file, badger, memory)
	Storage string

	// OutputFormat controls output formatting (text, json)
	OutputFormat string

	// Verbose enables debug logging
	Verbose bool

	// PassphraseEnv names an environment variable holding the passphrase.
	// When empty the passphrase is prompted for.
	PassphraseEnv string

	// Stdin is read for record data and non-interactive passphrases
	Stdin io.Reader

	// Stderr receives logs and prompts
	Stderr io.Writer

	viper *viper.Viper
	stdin *bufio.Reader
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	v := viper.New()
	v.SetEnvPrefix("DOCVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return &Config{
		OutputFormat: "text",
		Stdin:        os.Stdin,
		Stderr:       os.Stderr,
		viper:        v,
	}
}

// Settings loads the configuration file and applies flag overrides.
// Flags bound through viper win over the file and DOCVAULT_* variables.
func (c *Config) Settings() (*config.Config, error) {
	path := c.ConfigFile
	if c.viper.IsSet("config") {
		path = c.viper.GetString("config")
	}

	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if c.viper.IsSet("data-dir") {
		settings.Storage.Path = c.viper.GetString("data-dir")
	}
	if c.viper.IsSet("storage") {
		settings.Storage.Backend = c.viper.GetString("storage")
	}
	if c.viper.GetBool("verbose") {
		settings.Logging.Level = "debug"
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}

// CreateLogger builds the slog logger described by settings.
func (c *Config) CreateLogger(settings *config.Config) logger.Logger {
	level, err := logger.ParseLevel(settings.Logging.Level)
	if err != nil {
		level = logger.LevelInfo
	}
	return logger.NewSlogAdapter(&logger.SlogConfig{
		Level:  level,
		Format: settings.Logging.Format,
		Output: c.Stderr,
	})
}

// CreateStorage opens the local storage backend.
func (c *Config) CreateStorage(settings *config.Config) (storage.Backend, error) {
	switch settings.Storage.Backend {
	case config.StorageFile:
		return file.New(settings.Storage.Path)
	case config.StorageBadger:
		return badger.New(settings.Storage.Path)
	case config.StorageMemory:
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", settings.Storage.Backend)
	}
}

// CreateCloud builds the configured cloud adapter. Returns a nil adapter
// when sync is not configured. The close func is never nil.
func (c *Config) CreateCloud(ctx context.Context, settings *config.Config, backend storage.Backend) (cloud.Adapter, func() error, error) {
	noop := func() error { return nil }
	s := settings.Sync

	switch s.Adapter {
	case "", config.AdapterNone:
		return nil, noop, nil

	case config.AdapterLocal:
		return cloud.NewStore(backend, nil), noop, nil

	case config.AdapterMongo:
		mc := &cloud.MongoConfig{URI: s.Mongo.URI, Database: s.Mongo.Database, Collection: s.Mongo.Collection}
		if mc.Database == "" {
			mc.Database = "docvault"
		}
		if mc.Collection == "" {
			mc.Collection = "records"
		}
		store, err := cloud.NewMongoStore(ctx, mc)
		if err != nil {
			return nil, noop, err
		}
		return store, func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return store.Close(closeCtx)
		}, nil

	case config.AdapterVault:
		store, err := cloud.NewVaultKVStore(&cloud.VaultConfig{
			Address:   s.Vault.Address,
			Token:     s.Vault.Token,
			Mount:     s.Vault.Mount,
			Namespace: s.Vault.Namespace,
		})
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil

	case config.AdapterHTTP:
		store, err := cloud.NewHTTPStore(&cloud.HTTPConfig{
			BaseURL: s.HTTP.URL,
			Tokens:  &identity.TokenProvider{Token: s.HTTP.Token},
		})
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown sync adapter: %s", s.Adapter)
	}
}

// CreateUsers returns the identity used to partition cloud records. An
// explicit user id wins over the subject of the sync token.
func (c *Config) CreateUsers(settings *config.Config) identity.CurrentUserProvider {
	if settings.Sync.UserID != "" {
		return identity.Static{ID: settings.Sync.UserID}
	}
	if settings.Sync.HTTP != nil && settings.Sync.HTTP.Token != "" {
		return &identity.TokenProvider{Token: settings.Sync.HTTP.Token}
	}
	return identity.Static{}
}

// OpenVault assembles a vault from the loaded settings. The returned
// close func releases the vault, the cloud adapter and the storage backend.
func (c *Config) OpenVault(ctx context.Context) (*vault.Vault, *config.Config, func() error, error) {
	settings, err := c.Settings()
	if err != nil {
		return nil, nil, nil, err
	}
	log := c.CreateLogger(settings)

	backend, err := c.CreateStorage(settings)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}

	adapter, closeCloud, err := c.CreateCloud(ctx, settings, backend)
	if err != nil {
		_ = backend.Close()
		return nil, nil, nil, fmt.Errorf("failed to create sync adapter: %w", err)
	}

	var limiter *ratelimit.Limiter
	if settings.Sync.RequestsPerMin > 0 {
		limiter = ratelimit.New(&ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: settings.Sync.RequestsPerMin,
		})
	}

	v, err := vault.New(&vault.Config{
		Storage:    backend,
		Iterations: settings.Crypto.PBKDF2Iterations,
		Cloud:      adapter,
		Prefs: &prefs.Static{Prefs: prefs.Preferences{
			CloudSyncEnabled: settings.Sync.Enabled,
			SyncDocuments:    settings.Sync.SyncDocuments,
		}},
		Users:      c.CreateUsers(settings),
		Limiter:    limiter,
		SyncDelay:  settings.Sync.Delay,
		RetryDelay: settings.Sync.RetryDelay,
		AppVersion: Version,
		Logger:     log,
	})
	if err != nil {
		_ = closeCloud()
		_ = backend.Close()
		return nil, nil, nil, err
	}

	closeAll := func() error {
		errs := []error{v.Close(), closeCloud()}
		if limiter != nil {
			limiter.Stop()
		}
		errs = append(errs, backend.Close())
		return errors.Join(errs...)
	}
	return v, settings, closeAll, nil
}
