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
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-docvault/pkg/audit"
	"github.com/jeremyhahn/go-docvault/pkg/types"
	"github.com/jeremyhahn/go-docvault/pkg/vault"
)

func newAuditCmd(cfg *Config) *cobra.Command {
	var (
		category   string
		key        string
		eventTypes []string
		since      time.Duration
		limit      int
		newest     bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log",
		Long: `Show audit events. Events record which operation happened to which
record and when; they never contain record contents.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cmd, cfg, func(ctx context.Context, v *vault.Vault, p *Printer) error {
				query := &audit.Query{
					Category: category,
					Key:      key,
					Limit:    limit,
					Newest:   newest,
				}
				for _, t := range eventTypes {
					query.Types = append(query.Types, types.AuditEventType(t))
				}
				if since > 0 {
					from := time.Now().Add(-since)
					query.Since = &from
				}

				events, err := v.Audit().Events(ctx, query)
				if err != nil {
					return err
				}
				return p.PrintAuditEvents(events)
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only events for this category")
	cmd.Flags().StringVar(&key, "key", "", "only events for this record id")
	cmd.Flags().StringSliceVar(&eventTypes, "type", nil, "only these event types (create, update, delete, sync, sync_failed, key.*)")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this duration")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of events (0 = all)")
	cmd.Flags().BoolVar(&newest, "newest", false, "newest events first")
	return cmd
}
