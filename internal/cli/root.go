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
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-docvault/pkg/types"
	"github.com/jeremyhahn/go-docvault/pkg/vault"
)

// NewRootCmd builds the docvault command tree around a fresh Config.
func NewRootCmd() *cobra.Command {
	cfg := NewConfig()

	rootCmd := &cobra.Command{
		Use:   "docvault",
		Short: "go-docvault CLI - Encrypted personal document vault",
		Long: `docvault stores personal records encrypted under a key derived from
your passphrase and, when enabled, backs up the ciphertext to a cloud
store. The cloud only ever receives encrypted payloads.

Supported local storage:
  - file:   one file per record under the data directory
  - badger: embedded BadgerDB database
  - memory: in-process only (testing)

Supported sync adapters:
  - local:  loopback store inside the local backend (testing)
  - mongo:  MongoDB collection
  - vault:  HashiCorp Vault KV v2
  - http:   docvault sync server (syncd)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.ConfigFile, "config", "",
		"config file (YAML)")
	flags.StringVar(&cfg.DataDir, "data-dir", "",
		"data directory (default is $HOME/.docvault)")
	flags.StringVar(&cfg.Storage, "storage", "",
		"storage backend (file, badger, memory)")
	flags.StringVarP(&cfg.OutputFormat, "output", "o", "text",
		"output format (text, json, table)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false,
		"verbose output")
	flags.StringVar(&cfg.PassphraseEnv, "passphrase-env", "",
		"read the passphrase from this environment variable instead of prompting")

	for _, name := range []string{"config", "data-dir", "storage", "output", "verbose", "passphrase-env"} {
		_ = cfg.viper.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cfg.Stdin = cmd.InOrStdin()
		cfg.Stderr = cmd.ErrOrStderr()
		cfg.OutputFormat = cfg.viper.GetString("output")
		cfg.PassphraseEnv = cfg.viper.GetString("passphrase-env")
	}

	rootCmd.AddCommand(
		newInitCmd(cfg),
		newPasswdCmd(cfg),
		newPutCmd(cfg),
		newGetCmd(cfg),
		newListCmd(cfg),
		newRmCmd(cfg),
		newAuditCmd(cfg),
		newStatusCmd(cfg),
		newSyncCmd(cfg),
		newVersionCmd(cfg),
	)
	return rootCmd
}

// Execute runs the root command and prints any error
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		format, _ := rootCmd.PersistentFlags().GetString("output")
		_ = NewPrinter(format, os.Stderr).PrintError(err) // best-effort
		return err
	}
	return nil
}

// withVault opens the vault for the duration of fn.
func withVault(cmd *cobra.Command, cfg *Config, fn func(ctx context.Context, v *vault.Vault, p *Printer) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	v, _, closeVault, err := cfg.OpenVault(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeVault(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	return fn(ctx, v, NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()))
}

// unlock prompts for the passphrase and loads the DEK.
func unlock(ctx context.Context, cfg *Config, v *vault.Vault) error {
	passphrase, err := cfg.readPassphrase(cfg.PassphraseEnv, "Passphrase: ")
	if err != nil {
		return err
	}
	if _, err := v.Session().Unlock(ctx, passphrase); err != nil {
		if errors.Is(err, types.ErrLocked) {
			return fmt.Errorf("unable to unlock vault: wrong passphrase or vault not initialized")
		}
		return err
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
