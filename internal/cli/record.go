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
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-docvault/pkg/vault"
)

func newPutCmd(cfg *Config) *cobra.Command {
	var (
		data     string
		dataFile string
		syncNow  bool
	)

	cmd := &cobra.Command{
		Use:   "put <category> <id>",
		Short: "Encrypt and store a JSON record",
		Long: `Encrypt a JSON value and store it at category/id, replacing any
previous version. The value comes from --data, --file, or stdin when
neither is given.

Examples:
  docvault put documents will --data '{"name":"Last Will"}'
  docvault put contacts lawyer --file lawyer.json
  cat note.json | docvault put notes n-1 --passphrase-env DOCVAULT_PASSPHRASE`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, id := args[0], args[1]

			return withVault(cmd, cfg, func(ctx context.Context, v *vault.Vault, p *Printer) error {
				if err := unlock(ctx, cfg, v); err != nil {
					return err
				}

				raw, err := readRecordData(cfg, data, dataFile)
				if err != nil {
					return err
				}
				if err := vault.Save(ctx, v, category, id, raw); err != nil {
					return err
				}

				if syncNow && v.Syncer() != nil {
					if err := v.Syncer().Flush(ctx, category); err != nil {
						return fmt.Errorf("saved locally, sync failed: %w", err)
					}
				}
				return p.PrintSuccess(fmt.Sprintf("Stored %s/%s", category, id))
			})
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON value to store")
	cmd.Flags().StringVarP(&dataFile, "file", "f", "", "read the JSON value from a file")
	cmd.Flags().BoolVar(&syncNow, "sync", false, "upload the category immediately")
	return cmd
}

// readRecordData returns the record value as validated JSON.
func readRecordData(cfg *Config, data, dataFile string) (json.RawMessage, error) {
	var raw []byte
	switch {
	case data != "" && dataFile != "":
		return nil, fmt.Errorf("--data and --file are mutually exclusive")
	case data != "":
		raw = []byte(data)
	case dataFile != "":
		// #nosec G304 - path supplied by the user
		b, err := os.ReadFile(dataFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", dataFile, err)
		}
		raw = b
	default:
		b, err := io.ReadAll(cfg.input())
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		raw = b
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("record data is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func newGetCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get <category> <id>",
		Short: "Decrypt and print a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, id := args[0], args[1]

			return withVault(cmd, cfg, func(ctx context.Context, v *vault.Vault, p *Printer) error {
				if err := unlock(ctx, cfg, v); err != nil {
					return err
				}
				payload, err := vault.Load[json.RawMessage](ctx, v, category, id)
				if err != nil {
					return err
				}
				return p.PrintRecord(id, payload)
			})
		},
	}
}

func newListCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list [category]",
		Short: "List record ids, or categories when none is given",
		Long: `List the ids stored in a category. Listing reads only storage keys,
so the vault does not need to be unlocked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cmd, cfg, func(ctx context.Context, v *vault.Vault, p *Printer) error {
				if len(args) == 0 {
					categories, err := v.Categories(ctx)
					if err != nil {
						return err
					}
					return p.PrintList("", categories)
				}
				ids, err := v.List(ctx, args[0])
				if err != nil {
					return err
				}
				return p.PrintList(args[0], ids)
			})
		},
	}
}

func newRmCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <category> <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a local record",
		Long:    `Delete a record from local storage. Cloud backups are not removed.`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, id := args[0], args[1]
			return withVault(cmd, cfg, func(ctx context.Context, v *vault.Vault, p *Printer) error {
				if err := v.Delete(ctx, category, id); err != nil {
					return err
				}
				return p.PrintSuccess(fmt.Sprintf("Deleted %s/%s", category, id))
			})
		},
	}
}
