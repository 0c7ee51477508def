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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeremyhahn/go-docvault/pkg/types"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintList prints the ids of a category, or the categories themselves
// when category is empty
func (p *Printer) PrintList(category string, ids []string) error {
	switch p.format {
	case OutputFormatJSON:
		if category == "" {
			return p.printJSON(map[string]interface{}{
				"categories": ids,
			})
		}
		return p.printJSON(map[string]interface{}{
			"category": category,
			"ids":      ids,
		})
	case OutputFormatTable, OutputFormatText:
		if len(ids) == 0 {
			if category == "" {
				fmt.Fprintln(p.writer, "No records")
			} else {
				fmt.Fprintf(p.writer, "No records in %s\n", category)
			}
			return nil
		}
		for _, id := range ids {
			fmt.Fprintln(p.writer, id)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintRecord prints a decrypted record. Text output is the raw data so
// it can be piped; JSON output includes the metadata.
func (p *Printer) PrintRecord(id string, payload *types.SecurePayload[json.RawMessage]) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"id":       id,
			"category": payload.Category,
			"data":     payload.Data,
			"meta":     payload.Meta,
		})
	case OutputFormatTable:
		fmt.Fprintf(p.writer, "ID:          %s\n", id)
		fmt.Fprintf(p.writer, "Category:    %s\n", payload.Category)
		fmt.Fprintf(p.writer, "Created:     %s\n", payload.Meta.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(p.writer, "Updated:     %s\n", payload.Meta.UpdatedAt.Format(time.RFC3339))
		fmt.Fprintf(p.writer, "Device:      %s\n", payload.Meta.DeviceID)
		fmt.Fprintf(p.writer, "App version: %s\n", payload.Meta.AppVersion)
		fmt.Fprintf(p.writer, "Data:        %s\n", string(payload.Data))
		return nil
	case OutputFormatText:
		fmt.Fprintln(p.writer, string(payload.Data))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintAuditEvents prints audit events
func (p *Printer) PrintAuditEvents(events []*types.AuditEvent) error {
	switch p.format {
	case OutputFormatJSON:
		if events == nil {
			events = []*types.AuditEvent{}
		}
		return p.printJSON(map[string]interface{}{
			"events": events,
		})
	case OutputFormatTable, OutputFormatText:
		if len(events) == 0 {
			fmt.Fprintln(p.writer, "No audit events found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-6s %-25s %-22s %s\n", "SEQ", "TIME", "TYPE", "RECORD")
		fmt.Fprintln(p.writer, strings.Repeat("-", 72))
		for _, e := range events {
			record := ""
			if e.Category != "" {
				record = e.Category + "/" + e.Key
			}
			fmt.Fprintf(p.writer, "%-6d %-25s %-22s %s\n",
				e.Seq, e.Timestamp.Format(time.RFC3339), e.Type, record)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// StatusReport is the output of the status command
type StatusReport struct {
	Initialized bool           `json:"initialized"`
	Storage     string         `json:"storage"`
	Path        string         `json:"path,omitempty"`
	Iterations  int            `json:"iterations"`
	SyncEnabled bool           `json:"sync_enabled"`
	SyncAdapter string         `json:"sync_adapter"`
	Records     map[string]int `json:"records"`
	AuditSeq    uint64         `json:"audit_seq"`
}

// PrintStatus prints a status report
func (p *Printer) PrintStatus(report *StatusReport) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(report)
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Initialized:  %t\n", report.Initialized)
		fmt.Fprintf(p.writer, "Storage:      %s", report.Storage)
		if report.Path != "" {
			fmt.Fprintf(p.writer, " (%s)", report.Path)
		}
		fmt.Fprintln(p.writer)
		fmt.Fprintf(p.writer, "Iterations:   %d\n", report.Iterations)
		fmt.Fprintf(p.writer, "Cloud sync:   %t (%s)\n", report.SyncEnabled, report.SyncAdapter)
		fmt.Fprintf(p.writer, "Audit events: %d\n", report.AuditSeq)
		if len(report.Records) > 0 {
			fmt.Fprintln(p.writer, "Records:")
			for _, category := range sortedKeys(report.Records) {
				fmt.Fprintf(p.writer, "  %-20s %d\n", category, report.Records[category])
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
