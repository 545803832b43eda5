// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dbwarden/internal/backup"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
)

// ParseOutputFormat parses a string into an OutputFormat
func ParseOutputFormat(s string) OutputFormat {
	if strings.EqualFold(s, "json") {
		return FormatJSON
	}
	return FormatTable
}

// Printer handles output formatting
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format OutputFormat, writer io.Writer) *Printer {
	return &Printer{format: format, writer: writer}
}

// PrintResult prints a result message. It is suppressed in JSON mode so the
// output stays parseable.
func (p *Printer) PrintResult(format string, args ...interface{}) {
	if p.format == FormatJSON {
		return
	}
	fmt.Fprintf(p.writer, format+"\n", args...)
}

// PrintTable prints rows under headers, or data as JSON in JSON mode.
func (p *Printer) PrintTable(headers []string, rows [][]string, data interface{}) error {
	if p.format == FormatJSON {
		return p.PrintJSON(data)
	}

	w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}

// PrintJSON prints data as indented JSON.
func (p *Printer) PrintJSON(data interface{}) error {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Fprintln(p.writer, string(output))
	return nil
}

// PrintBackups prints backup records newest first as returned by the engine.
func (p *Printer) PrintBackups(records []*backup.Record) error {
	headers := []string{"ID", "CREATED", "TYPE", "STATUS", "SIZE", "LOCATIONS", "DESCRIPTION"}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ID,
			rec.CreatedAt.UTC().Format(time.RFC3339),
			string(rec.Type),
			string(rec.Status),
			FormatSize(rec.Size),
			strings.Join(rec.StorageLocations, ","),
			rec.Description,
		})
	}
	if records == nil {
		records = []*backup.Record{}
	}
	return p.PrintTable(headers, rows, records)
}

// FormatSize formats bytes into human-readable size
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
