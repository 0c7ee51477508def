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

package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-docvault/pkg/crypto/kdf"
)

// Storage backend names
const (
	StorageFile   = "file"
	StorageBadger = "badger"
	StorageMemory = "memory"
)

// Sync adapter names
const (
	AdapterNone  = "none"
	AdapterLocal = "local"
	AdapterMongo = "mongo"
	AdapterVault = "vault"
	AdapterHTTP  = "http"
)

// Config represents the complete docvault configuration. The CLI uses
// every section except Server; syncd uses Logging, Storage and Server.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Storage StorageConfig `yaml:"storage"`
	Crypto  CryptoConfig  `yaml:"crypto"`
	Sync    SyncConfig    `yaml:"sync"`
	Server  ServerConfig  `yaml:"server"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig selects the local storage backend
type StorageConfig struct {
	Backend string `yaml:"backend"` // file, badger, memory
	Path    string `yaml:"path"`
}

// CryptoConfig controls key derivation
type CryptoConfig struct {
	// PBKDF2Iterations for new key wrappings. Zero uses the default.
	PBKDF2Iterations int `yaml:"pbkdf2_iterations"`
}

// SyncConfig controls cloud backup
type SyncConfig struct {
	Enabled        bool          `yaml:"enabled"`
	SyncDocuments  bool          `yaml:"sync_documents"`
	Adapter        string        `yaml:"adapter"` // none, local, mongo, vault, http
	UserID         string        `yaml:"user_id"`
	Delay          time.Duration `yaml:"delay"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	RequestsPerMin int           `yaml:"requests_per_min"`

	Mongo *MongoConfig `yaml:"mongo,omitempty"`
	Vault *VaultConfig `yaml:"vault,omitempty"`
	HTTP  *HTTPConfig  `yaml:"http,omitempty"`
}

// MongoConfig contains MongoDB adapter settings
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// VaultConfig contains HashiCorp Vault KV adapter settings
type VaultConfig struct {
	Address   string `yaml:"address"`
	Token     string `yaml:"token"`
	Namespace string `yaml:"namespace"`
	Mount     string `yaml:"mount"`
}

// HTTPConfig contains sync server adapter settings
type HTTPConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// ServerConfig contains sync server settings
type ServerConfig struct {
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	TLS       TLSConfig       `yaml:"tls"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// TLSConfig contains TLS settings for the sync server
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	CAFile     string `yaml:"ca_file"`
	ClientAuth string `yaml:"client_auth"` // none, request, require, verify, require_and_verify
	MinVersion string `yaml:"min_version"` // TLS1.2, TLS1.3
}

// AuthConfig controls bearer token authentication
type AuthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// RateLimitConfig controls per-user rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultDataDir returns ~/.docvault, or ./.docvault when the home
// directory cannot be determined.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docvault"
	}
	return filepath.Join(home, ".docvault")
}

// Default returns a configuration with local-only defaults.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Storage: StorageConfig{Backend: StorageFile, Path: DefaultDataDir()},
		Sync: SyncConfig{
			Adapter: AdapterNone,
			Delay:   5 * time.Second,
		},
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    8480,
			Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
			RateLimit: RateLimitConfig{
				Enabled:        true,
				RequestsPerMin: 600,
			},
		},
	}
}

// Load reads configuration from a YAML file over the defaults and applies
// environment variable overrides. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by the user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies DOCVAULT_* and VAULT_* environment variables.
// Invalid values are logged and ignored.
func applyEnvOverrides(cfg *Config) {
	if level := os.Getenv("DOCVAULT_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("DOCVAULT_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if backend := os.Getenv("DOCVAULT_STORAGE"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if dataDir := os.Getenv("DOCVAULT_DATA_DIR"); dataDir != "" {
		cfg.Storage.Path = dataDir
	}

	if raw := os.Getenv(kdf.IterationsEnvVar); raw != "" {
		n, err := kdf.ParseIterations(raw)
		if err != nil {
			log.Printf("Warning: invalid %s value %q, using default %d: %v",
				kdf.IterationsEnvVar, raw, kdf.DefaultPBKDF2Iterations, err)
			cfg.Crypto.PBKDF2Iterations = kdf.DefaultPBKDF2Iterations
		} else {
			cfg.Crypto.PBKDF2Iterations = n
		}
	}

	if adapter := os.Getenv("DOCVAULT_SYNC_ADAPTER"); adapter != "" {
		cfg.Sync.Adapter = adapter
	}
	if userID := os.Getenv("DOCVAULT_USER_ID"); userID != "" {
		cfg.Sync.UserID = userID
	}
	if raw := os.Getenv("DOCVAULT_SYNC_DELAY"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			log.Printf("Warning: invalid DOCVAULT_SYNC_DELAY value %q, using %s", raw, cfg.Sync.Delay)
		} else {
			cfg.Sync.Delay = d
		}
	}
	if uri := os.Getenv("DOCVAULT_MONGO_URI"); uri != "" {
		if cfg.Sync.Mongo == nil {
			cfg.Sync.Mongo = &MongoConfig{}
		}
		cfg.Sync.Mongo.URI = uri
	}
	if url := os.Getenv("DOCVAULT_SYNC_URL"); url != "" {
		if cfg.Sync.HTTP == nil {
			cfg.Sync.HTTP = &HTTPConfig{}
		}
		cfg.Sync.HTTP.URL = url
	}
	if token := os.Getenv("DOCVAULT_SYNC_TOKEN"); token != "" {
		if cfg.Sync.HTTP == nil {
			cfg.Sync.HTTP = &HTTPConfig{}
		}
		cfg.Sync.HTTP.Token = token
	}

	if cfg.Sync.Vault != nil {
		if addr := os.Getenv("VAULT_ADDR"); addr != "" {
			cfg.Sync.Vault.Address = addr
		}
		if token := os.Getenv("VAULT_TOKEN"); token != "" {
			cfg.Sync.Vault.Token = token
		}
		if namespace := os.Getenv("VAULT_NAMESPACE"); namespace != "" {
			cfg.Sync.Vault.Namespace = namespace
		}
	}

	if host := os.Getenv("DOCVAULT_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if raw := os.Getenv("DOCVAULT_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			log.Printf("Warning: invalid DOCVAULT_PORT value %q, using default %d: %v",
				raw, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid DOCVAULT_PORT value %q (out of range 1-65535), using default %d",
				raw, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}
	if secret := os.Getenv("DOCVAULT_JWT_SECRET"); secret != "" {
		cfg.Server.Auth.Secret = secret
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	switch c.Storage.Backend {
	case StorageFile, StorageBadger:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path must be specified for %s backend", c.Storage.Backend)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid storage backend: %q (must be file, badger, or memory)", c.Storage.Backend)
	}

	if n := c.Crypto.PBKDF2Iterations; n != 0 && n < kdf.MinPBKDF2Iterations {
		return fmt.Errorf("pbkdf2_iterations must be at least %d", kdf.MinPBKDF2Iterations)
	}

	if err := c.Sync.validate(); err != nil {
		return err
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("tls cert_file and key_file are required when TLS is enabled")
	}
	if c.Server.Auth.Enabled && len(c.Server.Auth.Secret) < 32 {
		return fmt.Errorf("auth secret must be at least 32 bytes when auth is enabled")
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerMin < 1 {
		return fmt.Errorf("requests_per_min must be positive when rate limiting is enabled")
	}
	return nil
}

func (s *SyncConfig) validate() error {
	if s.Delay < 0 || s.RetryDelay < 0 {
		return fmt.Errorf("sync delays cannot be negative")
	}

	switch s.Adapter {
	case "", AdapterNone, AdapterLocal:
	case AdapterMongo:
		if s.Mongo == nil || s.Mongo.URI == "" {
			return fmt.Errorf("sync.mongo.uri is required for the mongo adapter")
		}
	case AdapterVault:
		if s.Vault == nil || s.Vault.Address == "" || s.Vault.Token == "" {
			return fmt.Errorf("sync.vault address and token are required for the vault adapter")
		}
	case AdapterHTTP:
		if s.HTTP == nil || s.HTTP.URL == "" {
			return fmt.Errorf("sync.http.url is required for the http adapter")
		}
	default:
		return fmt.Errorf("invalid sync adapter: %q (must be none, local, mongo, vault, or http)", s.Adapter)
	}

	if s.Enabled && s.Adapter != "" && s.Adapter != AdapterNone && s.UserID == "" {
		if s.Adapter != AdapterHTTP || s.HTTP.Token == "" {
			return fmt.Errorf("sync.user_id is required when sync is enabled")
		}
	}
	return nil
}
