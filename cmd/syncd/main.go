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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-docvault/internal/config"
	"github.com/jeremyhahn/go-docvault/internal/rest"
	"github.com/jeremyhahn/go-docvault/pkg/cloud"
	"github.com/jeremyhahn/go-docvault/pkg/health"
	"github.com/jeremyhahn/go-docvault/pkg/identity"
	"github.com/jeremyhahn/go-docvault/pkg/logger"
	"github.com/jeremyhahn/go-docvault/pkg/metrics"
	"github.com/jeremyhahn/go-docvault/pkg/ratelimit"
	"github.com/jeremyhahn/go-docvault/pkg/storage"
	"github.com/jeremyhahn/go-docvault/pkg/storage/badger"
	"github.com/jeremyhahn/go-docvault/pkg/storage/file"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("docvault sync server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	if envConfig := os.Getenv("DOCVAULT_CONFIG"); envConfig != "" && *configPath == "" {
		*configPath = envConfig
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "syncd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logger.LevelInfo
	}
	log := logger.NewSlogAdapter(&logger.SlogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	backend, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backend.Close()

	checker := health.NewChecker()
	checker.RegisterCheck("storage", health.StorageCheck(backend))

	tlsConfig, err := cfg.Server.TLS.LoadTLSConfig()
	if err != nil {
		return err
	}

	var verifier *identity.JWT
	if cfg.Server.Auth.Enabled {
		verifier, err = identity.NewJWT(&identity.JWTConfig{
			Secret:   []byte(cfg.Server.Auth.Secret),
			Issuer:   cfg.Server.Auth.Issuer,
			Audience: cfg.Server.Auth.Audience,
		})
		if err != nil {
			return err
		}
	} else {
		log.Warn("Authentication is disabled; any client can write any user's records")
	}

	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit.Enabled {
		limiter = ratelimit.New(&ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMin,
			Burst:             cfg.Server.RateLimit.Burst,
		})
		defer limiter.Stop()
	}

	metricsPath := ""
	if cfg.Server.Metrics.Enabled {
		metricsPath = cfg.Server.Metrics.Path
	} else {
		metrics.Disable()
	}

	server, err := rest.NewServer(&rest.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		Store:       cloud.NewStore(backend, nil),
		Verifier:    verifier,
		Limiter:     limiter,
		Health:      checker,
		MetricsPath: metricsPath,
		Version:     version,
		TLSConfig:   tlsConfig,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errChan:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func openStorage(cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case config.StorageFile:
		return file.New(cfg.Storage.Path)
	case config.StorageBadger:
		return badger.New(cfg.Storage.Path)
	case config.StorageMemory:
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}
}
