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

	"github.com/jeremyhahn/go-docvault/pkg/types"
	"github.com/jeremyhahn/go-docvault/pkg/vault"
)

func newInitCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the vault with a passphrase",
		Long: `Generate a new data encryption key and wrap it under a key derived
from the passphrase. Fails if the vault is already initialized; use
passwd to change the passphrase.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cmd, cfg, func(ctx context.Context, v *vault.Vault, p *Printer) error {
				initialized, err := v.Session().HasPassphrase(ctx)
				if err != nil {
					return err
				}
				if initialized {
					return fmt.Errorf("vault is already initialized")
				}

				passphrase, err := cfg.readNewPassphrase(cfg.PassphraseEnv, "New passphrase: ")
				if err != nil {
					return err
				}
				if _, err := v.Session().SetPassphrase(ctx, passphrase); err != nil {
					return err
				}
				return p.PrintSuccess(fmt.Sprintf("Vault initialized (%d PBKDF2 iterations)", v.Session().Iterations()))
			})
		},
	}
}

func newPasswdCmd(cfg *Config) *cobra.Command {
	var newPassphraseEnv string

	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the vault passphrase",
		Long: `Re-wrap the data encryption key under a new passphrase. Records are
not re-encrypted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cmd, cfg, func(ctx context.Context, v *vault.Vault, p *Printer) error {
				current, err := cfg.readPassphrase(cfg.PassphraseEnv, "Current passphrase: ")
				if err != nil {
					return err
				}
				next, err := cfg.readNewPassphrase(newPassphraseEnv, "New passphrase: ")
				if err != nil {
					return err
				}
				if err := v.Session().ChangePassphrase(ctx, current, next); err != nil {
					if errors.Is(err, types.ErrLocked) {
						return fmt.Errorf("unable to change passphrase: wrong passphrase or vault not initialized")
					}
					return err
				}
				return p.PrintSuccess("Passphrase changed")
			})
		},
	}

	cmd.Flags().StringVar(&newPassphraseEnv, "new-passphrase-env", "",
		"read the new passphrase from this environment variable")
	return cmd
}
