// DBWarden - PostgreSQL Backup, Verification and Restore Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dbwarden

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed field. Field is the json name, or the Go field
// name when the json tag is "-" (config secrets such as database.url).
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

func (e FieldError) Error() string {
	return e.Message
}

// RequestValidationError collects every failed field of one struct.
type RequestValidationError struct {
	Fields []FieldError
}

func (ve *RequestValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(ve.Fields))
	for i, f := range ve.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// APIError is the body the API returns for validation failures.
type APIError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// ToAPIError converts to a VALIDATION_ERROR response. A single failure puts
// field and tag at the top of details; several are listed under "fields".
func (ve *RequestValidationError) ToAPIError() *APIError {
	apiErr := &APIError{Code: "VALIDATION_ERROR", Message: "Validation failed"}
	if len(ve.Fields) == 0 {
		return apiErr
	}
	if len(ve.Fields) == 1 {
		f := ve.Fields[0]
		apiErr.Message = f.Message
		apiErr.Details = map[string]interface{}{"field": f.Field, "tag": f.Tag}
		return apiErr
	}

	list := make([]map[string]interface{}, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		list = append(list, map[string]interface{}{
			"field":   f.Field,
			"tag":     f.Tag,
			"message": f.Message,
		})
	}
	apiErr.Message = ve.Error()
	apiErr.Details = map[string]interface{}{"fields": list}
	return apiErr
}

// GetValidator returns the shared validator with the clock and
// storage_location tags registered.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonName)

		// Registration only fails for empty tags or nil funcs.
		_ = v.RegisterValidation("clock", validateClock)
		_ = v.RegisterValidation("storage_location", validateStorageLocation)
		validate = v
	})
	return validate
}

func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// ValidateStruct validates s and returns nil or the collected field errors.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}

	out := &RequestValidationError{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: message(fe),
		})
	}
	return out
}

// Err is ValidateStruct returning a plain error, nil when valid.
func Err(s interface{}) error {
	if verr := ValidateStruct(s); verr != nil {
		return verr
	}
	return nil
}

var messages = map[string]string{
	"required":         "%[1]s is required",
	"required_if":      "%[1]s is required",
	"uuid":             "%[1]s must be a valid UUID",
	"url":              "%[1]s must be a valid URL",
	"email":            "%[1]s must be a valid email address",
	"clock":            "%[1]s must be a time of day as HH:MM",
	"storage_location": "%[1]s must be one of: local, s3, gcs, azure, google_drive",
	"oneof":            "%[1]s must be one of: %[2]s",
	"gte":              "%[1]s must be greater than or equal to %[2]s",
	"lte":              "%[1]s must be less than or equal to %[2]s",
}

func message(fe validator.FieldError) string {
	if tmpl, ok := messages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, fe.Field(), fe.Param())
	}

	unit := ""
	if fe.Kind() == reflect.String {
		unit = " characters"
	}
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be at least %s%s", fe.Field(), fe.Param(), unit)
	case "max":
		return fmt.Sprintf("%s must be at most %s%s", fe.Field(), fe.Param(), unit)
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
