package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "connection refused maps correctly",
			err:         errors.New("dial tcp: connection refused"),
			wantCode:    "DB001",
			wantMessage: "Unable to connect to database",
		},
		{
			name:        "check violation maps correctly",
			err:         errors.New(`new row for relation "readings" violates check constraint`),
			wantCode:    "DB004",
			wantMessage: "A reading ends before it starts",
		},
		{
			name:        "encoding error beats invalid csv",
			err:         readErrorf(fmt.Errorf("%w (byte offset 12)", ErrInvalidEncoding), "line 3"),
			wantCode:    "FILE003",
			wantMessage: "File contains invalid characters",
		},
		{
			name:        "invalid csv maps correctly",
			err:         readErrorf(errors.New("bare quote"), "invalid csv at line 7"),
			wantCode:    "FILE002",
			wantMessage: "File is not a valid delimited file",
		},
		{
			name:        "unparseable timestamp maps to row code",
			err:         readErrorf(errors.New(`invalid date "yesterday"`), "could not map line 4"),
			wantCode:    "ROW001",
			wantMessage: "A timestamp could not be parsed",
		},
		{
			name:        "wrong column count maps to row code",
			err:         readErrorf(errors.New("expected 3 columns, got 2"), "could not map line 2"),
			wantCode:    "ROW003",
			wantMessage: "A row does not match the meter's column layout",
		},
		{
			name:        "limiter rejection maps correctly",
			err:         ErrTooManyIngests,
			wantCode:    "ING001",
			wantMessage: "System is busy processing other files",
		},
		{
			name:        "missing meter maps correctly",
			err:         fmt.Errorf("%w: boiler", ErrMeterNotFound),
			wantCode:    "ING002",
			wantMessage: "Meter not found",
		},
		{
			name:        "deadline maps correctly",
			err:         context.DeadlineExceeded,
			wantCode:    "ING005",
			wantMessage: "Request timed out",
		},
		{
			name:        "fatal batch falls back to kind",
			err:         fatalErrorf("reading at row 3 starts before the previous reading ends"),
			wantCode:    "PIPE003",
			wantMessage: "The file was rejected and nothing was stored",
		},
		{
			name:        "validation failure falls back to kind",
			err:         newError(KindValidation, nil, "readings failed validation"),
			wantCode:    "PIPE004",
			wantMessage: "The readings failed validation and nothing was stored",
		},
		{
			name:        "wrapped config error falls back to kind",
			err:         fmt.Errorf("ingest: %w", configErrorf("invalid parameters")),
			wantCode:    "PIPE001",
			wantMessage: "The meter's parameters are invalid",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("DEADLOCK detected"),
			wantCode:    "DB003",
			wantMessage: "Database was busy with conflicting operations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrTooManyIngests)

	expected := "System is busy processing other files (Code: ING001). Please wait a moment and try again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known pattern is user facing", errors.New("invalid number \"x\""), true},
		{"pipeline kind is user facing", ErrCommit, true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}
