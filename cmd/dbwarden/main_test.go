// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dbwarden/internal/backup"
	"github.com/tomtom215/dbwarden/internal/restore"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "dbwarden dev") {
		t.Errorf("unexpected version output %q", out.String())
	}
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"verify without id", []string{"backup", "verify"}},
		{"delete with two ids", []string{"backup", "delete", "a", "b"}},
		{"restore without id", []string{"restore"}},
		{"list with args", []string{"backup", "list", "extra"}},
		{"serve with args", []string{"serve", "now"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newRootCmd()
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			root.SetArgs(tt.args)
			if err := root.Execute(); err == nil {
				t.Error("expected argument error")
			}
		})
	}
}

func TestCreateFlagsValidation(t *testing.T) {
	tests := []struct {
		name    string
		flags   createFlags
		wantErr bool
	}{
		{"defaults", createFlags{}, false},
		{"valid", createFlags{Description: "pre-release", Locations: []string{"local", "s3"}, Format: "custom"}, false},
		{"unknown location", createFlags{Locations: []string{"ftp"}}, true},
		{"bad format", createFlags{Format: "tar"}, true},
		{"long description", createFlags{Description: strings.Repeat("x", 501)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := tt.flags.request()
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if err == nil && req.Type != backup.TypeManual {
				t.Errorf("expected manual backup, got %s", req.Type)
			}
		})
	}
}

func TestRestoreFlagsOptions(t *testing.T) {
	opts := restoreFlags{confirm: restore.ConfirmationText, dropDatabase: true, email: "ops@example.com"}.options()
	if opts.ConfirmationText != restore.ConfirmationText || !opts.DropDatabase || opts.UserEmail != "ops@example.com" {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestPrintBackups(t *testing.T) {
	records := []*backup.Record{{
		ID:               "b1",
		Type:             backup.TypeScheduled,
		Status:           backup.StatusUploaded,
		Size:             3 * 1024 * 1024,
		CreatedAt:        time.Date(2026, 5, 1, 2, 30, 0, 0, time.UTC),
		StorageLocations: []string{"local", "s3"},
	}}

	var table bytes.Buffer
	if err := NewPrinter(FormatTable, &table).PrintBackups(records); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"ID", "b1", "2026-05-01T02:30:00Z", "3.0 MB", "local,s3"} {
		if !strings.Contains(table.String(), want) {
			t.Errorf("expected %q in table output:\n%s", want, table.String())
		}
	}

	var out bytes.Buffer
	if err := NewPrinter(FormatJSON, &out).PrintBackups(nil); err != nil {
		t.Fatal(err)
	}
	var decoded []backup.Record
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("expected JSON array, got %q: %v", out.String(), err)
	}
	if len(decoded) != 0 {
		t.Errorf("expected empty array, got %d", len(decoded))
	}
}

func TestPrintResultSuppressedForJSON(t *testing.T) {
	var out bytes.Buffer
	NewPrinter(FormatJSON, &out).PrintResult("Backup %s deleted", "b1")
	if out.Len() != 0 {
		t.Errorf("expected no text output in JSON mode, got %q", out.String())
	}
	NewPrinter(ParseOutputFormat("TABLE"), &out).PrintResult("Backup %s deleted", "b1")
	if out.String() != "Backup b1 deleted\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.in); got != tt.want {
			t.Errorf("FormatSize(%d): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
