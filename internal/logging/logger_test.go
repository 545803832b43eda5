// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// captureGlobal swaps the global logger for one writing to buf and restores it afterwards.
func captureGlobal(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	prev := Logger()
	prevLevel := zerolog.GlobalLevel()
	SetLogger(NewTestLogger(&buf))
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func TestInit(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger()
	defer SetLogger(prev)

	Init(Config{Level: "debug", Format: "json", Output: &buf})
	defer SetLevelString("info")

	Info().Str("backup_id", "b1").Msg("backup completed")

	output := buf.String()
	if !strings.Contains(output, "backup completed") {
		t.Errorf("expected output to contain message, got: %s", output)
	}
	if !strings.Contains(output, `"backup_id":"b1"`) {
		t.Errorf("expected output to contain backup_id field, got: %s", output)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestValidLevel(t *testing.T) {
	if !ValidLevel("warn") {
		t.Error("expected warn to be valid")
	}
	if ValidLevel("verbose") {
		t.Error("expected verbose to be invalid")
	}
}

func TestCtxAddsOperationFields(t *testing.T) {
	buf := captureGlobal(t)

	ctx := ContextWithCorrelationID(context.Background(), "abc12345")
	ctx = ContextWithOperation(ctx, "restore", "r-1")
	Ctx(ctx).Info().Msg("step")

	out := buf.String()
	for _, want := range []string{`"correlation_id":"abc12345"`, `"operation":"restore"`, `"operation_id":"r-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestOperationFromContextMissing(t *testing.T) {
	if _, ok := OperationFromContext(context.Background()); ok {
		t.Error("expected no operation in empty context")
	}
	if id := CorrelationIDFromContext(context.Background()); id != "" {
		t.Errorf("expected empty correlation id, got %q", id)
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	a, b := GenerateCorrelationID(), GenerateCorrelationID()
	if len(a) != 8 {
		t.Errorf("expected 8 character id, got %q", a)
	}
	if a == b {
		t.Error("expected distinct correlation ids")
	}
}

func TestSlogHandlerGroupsAndAttrs(t *testing.T) {
	buf := captureGlobal(t)

	logger := NewSlogLogger().With("supervisor", "root").WithGroup("svc")
	logger.Warn("service restarted", slog.Int("attempt", 2))

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("expected warn level, got %s", out)
	}
	if !strings.Contains(out, `"svc.attempt":2`) {
		t.Errorf("expected grouped attribute, got %s", out)
	}
	if !strings.Contains(out, `"supervisor":"root"`) {
		t.Errorf("expected pre-set attribute, got %s", out)
	}
}

func TestWatermillAdapter(t *testing.T) {
	buf := captureGlobal(t)

	adapter := NewWatermillAdapter().With(watermill.LogFields{"topic": "dbwarden.restore.progress"})
	adapter.Info("published", watermill.LogFields{"uuid": "m-1"})

	out := buf.String()
	if !strings.Contains(out, `"topic":"dbwarden.restore.progress"`) || !strings.Contains(out, `"uuid":"m-1"`) {
		t.Errorf("expected watermill fields in output, got %s", out)
	}
}

func TestInitAddsServiceAndInstance(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger()
	defer SetLogger(prev)

	Init(Config{Level: "info", Output: &buf, Instance: "primary-eu"})
	defer SetLevelString("info")

	Warn().Msg("low disk")

	out := buf.String()
	if !strings.Contains(out, `"service":"dbwarden"`) {
		t.Errorf("expected service field, got %s", out)
	}
	if !strings.Contains(out, `"instance":"primary-eu"`) {
		t.Errorf("expected instance field, got %s", out)
	}
}
