// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package validation

import (
	"strings"
	"testing"
)

func TestGetValidatorSingleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("expected the same validator instance")
	}
}

type createBackupRequest struct {
	Description      string   `json:"description" validate:"max=20"`
	DumpFormat       string   `json:"dump_format" validate:"omitempty,oneof=sql custom"`
	StorageLocations []string `json:"storage_locations" validate:"dive,storage_location"`
}

type scheduleRequest struct {
	ID   string `json:"id" validate:"required"`
	Time string `json:"time" validate:"clock"`
}

type restoreRequest struct {
	BackupID string `json:"backup_id" validate:"required,uuid"`
	Secret   string `json:"-" validate:"required"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		wantField string
		wantMsg   string
	}{
		{
			name:  "valid backup request",
			input: &createBackupRequest{DumpFormat: "sql", StorageLocations: []string{"local", "s3"}},
		},
		{
			name:      "unknown storage location",
			input:     &createBackupRequest{StorageLocations: []string{"local", "ftp"}},
			wantField: "storage_locations[1]",
			wantMsg:   "must be one of: local, s3, gcs, azure, google_drive",
		},
		{
			name:      "bad dump format",
			input:     &createBackupRequest{DumpFormat: "tar"},
			wantField: "dump_format",
			wantMsg:   "dump_format must be one of: sql custom",
		},
		{
			name:      "description too long",
			input:     &createBackupRequest{Description: strings.Repeat("x", 21)},
			wantField: "description",
			wantMsg:   "description must be at most 20 characters",
		},
		{
			name:  "valid schedule time",
			input: &scheduleRequest{ID: "nightly", Time: "23:59"},
		},
		{
			name:      "schedule hour out of range",
			input:     &scheduleRequest{ID: "nightly", Time: "24:00"},
			wantField: "time",
			wantMsg:   "time must be a time of day as HH:MM",
		},
		{
			name:      "schedule time without colon",
			input:     &scheduleRequest{ID: "nightly", Time: "0300"},
			wantField: "time",
		},
		{
			name:      "backup id not a uuid",
			input:     &restoreRequest{BackupID: "latest", Secret: "x"},
			wantField: "backup_id",
			wantMsg:   "backup_id must be a valid UUID",
		},
		{
			name:      "json dash falls back to field name",
			input:     &restoreRequest{BackupID: "7f9c3c52-9d55-4d43-9b8e-8f2a0f3d4c11"},
			wantField: "Secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(tt.input)
			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("expected no error, got %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			if len(verr.Fields) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(verr.Fields), verr)
			}
			got := verr.Fields[0]
			if got.Field != tt.wantField {
				t.Errorf("expected field %s, got %s", tt.wantField, got.Field)
			}
			if tt.wantMsg != "" && !strings.Contains(got.Message, tt.wantMsg) {
				t.Errorf("expected message containing %q, got %q", tt.wantMsg, got.Message)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		verr := ValidateStruct(&scheduleRequest{ID: "nightly", Time: "7pm"})
		apiErr := verr.ToAPIError()
		if apiErr.Code != "VALIDATION_ERROR" {
			t.Errorf("expected VALIDATION_ERROR, got %s", apiErr.Code)
		}
		if apiErr.Details["field"] != "time" {
			t.Errorf("expected field time, got %v", apiErr.Details["field"])
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		verr := ValidateStruct(&scheduleRequest{Time: "7pm"})
		apiErr := verr.ToAPIError()
		fields, ok := apiErr.Details["fields"].([]map[string]interface{})
		if !ok || len(fields) != 2 {
			t.Fatalf("expected 2 field entries, got %v", apiErr.Details["fields"])
		}
		if !strings.Contains(apiErr.Message, "id is required") {
			t.Errorf("expected combined message, got %q", apiErr.Message)
		}
	})

	t.Run("empty", func(t *testing.T) {
		apiErr := (&RequestValidationError{}).ToAPIError()
		if apiErr.Message != "Validation failed" {
			t.Errorf("expected default message, got %q", apiErr.Message)
		}
	})
}

func TestErr(t *testing.T) {
	if err := Err(&scheduleRequest{ID: "a", Time: "01:00"}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	if err := Err(&scheduleRequest{}); err == nil {
		t.Error("expected error")
	}
}
