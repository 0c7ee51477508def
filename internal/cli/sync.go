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
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-docvault/internal/config"
	"github.com/jeremyhahn/go-docvault/pkg/vault"
)

func newSyncCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [category...]",
		Short: "Upload encrypted records to the cloud",
		Long: `Upload every record in the given categories, or in all categories
when none are given. Only ciphertext leaves the device, so the vault
does not need to be unlocked. Uploads still honor the sync preferences.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cmd, cfg, func(ctx context.Context, v *vault.Vault, p *Printer) error {
				categories := args
				if len(categories) == 0 {
					all, err := v.Categories(ctx)
					if err != nil {
						return err
					}
					categories = all
				}

				var errs []error
				for _, category := range categories {
					if err := v.Sync(ctx, category); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", category, err))
					}
				}
				if err := errors.Join(errs...); err != nil {
					return err
				}
				return p.PrintSuccess(fmt.Sprintf("Synced %d categories", len(categories)))
			})
		},
	}
}

func newStatusCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show vault status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			v, settings, closeVault, err := cfg.OpenVault(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closeVault() }()

			initialized, err := v.Session().HasPassphrase(ctx)
			if err != nil {
				return err
			}

			report := &StatusReport{
				Initialized: initialized,
				Storage:     settings.Storage.Backend,
				Iterations:  v.Session().Iterations(),
				SyncEnabled: settings.Sync.Enabled,
				SyncAdapter: settings.Sync.Adapter,
				Records:     make(map[string]int),
				AuditSeq:    v.Audit().LastSeq(),
			}
			if settings.Storage.Backend != config.StorageMemory {
				report.Path = settings.Storage.Path
			}

			categories, err := v.Categories(ctx)
			if err != nil {
				return err
			}
			for _, category := range categories {
				ids, err := v.List(ctx, category)
				if err != nil {
					return err
				}
				report.Records[category] = len(ids)
			}

			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintStatus(report)
		},
	}
}
