// # Error Codes Reference
//
// This file maps pipeline errors to user-facing messages with codes that
// operators can quote when asking for help.
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Connection refused: Unable to connect to database
//	        Patterns: "connection refused"
//
//	DB002 - Connection reset: Database connection was interrupted
//	        Patterns: "connection reset"
//
//	DB003 - Deadlock: Database was busy with conflicting operations
//	        Patterns: "deadlock"
//
//	DB004 - Check violation: A reading ends before it starts
//	        Patterns: "violates check constraint"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the configured size limit
//	          Patterns: "file too large", "request body too large"
//
//	FILE002 - Invalid CSV: File is not a valid delimited file
//	          Patterns: "invalid csv"
//
//	FILE003 - Encoding error: File contains invalid characters
//	          Patterns: "encoding error"
//
//	FILE004 - No file: No file was provided
//	          Patterns: "no source provided", "no file provided"
//
// # Row Errors (ROW001-ROW099)
//
//	ROW001 - Invalid date: A timestamp could not be parsed
//	         Patterns: "invalid date"
//
//	ROW002 - Invalid number: A reading value could not be parsed
//	         Patterns: "invalid number"
//
//	ROW003 - Wrong column count: A row does not match the meter's layout
//	         Patterns: "expected", "columns"
//
// # Ingest Errors (ING001-ING099)
//
//	ING001 - System busy: Too many ingests in progress
//	         Patterns: "too many ingests"
//
//	ING002 - Meter not found: The named meter has never been loaded
//	         Patterns: "meter not found"
//
//	ING003 - Unknown profile: No profile is configured for the meter
//	         Patterns: "unknown profile", "unknown mapper"
//
//	ING004 - Request cancelled: Request was cancelled
//	         Patterns: "context canceled"
//
//	ING005 - Request timeout: Request timed out
//	         Patterns: "context deadline exceeded"
//
// # Pipeline Errors (PIPE001-PIPE099)
//
// Matched on the error's Kind when no specific pattern applies.
//
//	PIPE001 - Configuration error    (KindConfig)
//	PIPE002 - Read error             (KindRead)
//	PIPE003 - File rejected          (KindFatalBatch)
//	PIPE004 - Validation failed      (KindValidation)
//	PIPE005 - Commit failed          (KindCommit)
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Check the logs for the technical error.
//
// # Pattern Matching
//
// Patterns are matched case-insensitively using strings.Contains, in
// order, before the Kind fallback. The first match wins.

package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	patterns []string // all must match
	msg      UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user
// messages. Specific patterns come before general ones.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Database (DB001-DB004)
	// =========================================================================
	{
		patterns: []string{"connection refused"},
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		patterns: []string{"connection reset"},
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		patterns: []string{"deadlock"},
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		patterns: []string{"violates check constraint"},
		msg: UserMessage{
			Message: "A reading ends before it starts",
			Action:  "Check the timestamp columns of the file",
			Code:    "DB004",
		},
	},

	// =========================================================================
	// File (FILE001-FILE004)
	// =========================================================================
	{
		patterns: []string{"file too large"},
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		patterns: []string{"request body too large"},
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		patterns: []string{"encoding error"},
		msg: UserMessage{
			Message: "File contains invalid characters",
			Action:  "Save the file as UTF-8",
			Code:    "FILE003",
		},
	},
	{
		patterns: []string{"invalid csv"},
		msg: UserMessage{
			Message: "File is not a valid delimited file",
			Action:  "Check the delimiter and quoting of the file",
			Code:    "FILE002",
		},
	},
	{
		patterns: []string{"no source provided"},
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Attach a CSV file to the request",
			Code:    "FILE004",
		},
	},
	{
		patterns: []string{"no file provided"},
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Attach a CSV file to the request",
			Code:    "FILE004",
		},
	},

	// =========================================================================
	// Row (ROW001-ROW003)
	// =========================================================================
	{
		patterns: []string{"invalid date"},
		msg: UserMessage{
			Message: "A timestamp could not be parsed",
			Action:  "Use YYYY-MM-DD HH:MM:SS or MM/DD/YYYY HH:MM timestamps",
			Code:    "ROW001",
		},
	},
	{
		patterns: []string{"invalid number"},
		msg: UserMessage{
			Message: "A reading value could not be parsed",
			Action:  "Remove units and use a standard decimal format",
			Code:    "ROW002",
		},
	},
	{
		patterns: []string{"expected", "columns"},
		msg: UserMessage{
			Message: "A row does not match the meter's column layout",
			Action:  "Check that the profile's mapper matches the file",
			Code:    "ROW003",
		},
	},

	// =========================================================================
	// Ingest (ING001-ING005)
	// =========================================================================
	{
		patterns: []string{"too many ingests"},
		msg: UserMessage{
			Message: "System is busy processing other files",
			Action:  "Please wait a moment and try again",
			Code:    "ING001",
		},
	},
	{
		patterns: []string{"meter not found"},
		msg: UserMessage{
			Message: "Meter not found",
			Action:  "Load a file for the meter first",
			Code:    "ING002",
		},
	},
	{
		patterns: []string{"unknown profile"},
		msg: UserMessage{
			Message: "No profile is configured for this meter",
			Action:  "Add the meter to the profiles file",
			Code:    "ING003",
		},
	},
	{
		patterns: []string{"unknown mapper"},
		msg: UserMessage{
			Message: "The meter's profile names an unknown mapper",
			Action:  "Fix the mapper name in the profiles file",
			Code:    "ING003",
		},
	},
	{
		patterns: []string{"context canceled"},
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "ING004",
		},
	},
	{
		patterns: []string{"context deadline exceeded"},
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "ING005",
		},
	},
}

// kindMessages is consulted when no pattern matches.
var kindMessages = map[Kind]UserMessage{
	KindConfig: {
		Message: "The meter's parameters are invalid",
		Action:  "Check the meter profile",
		Code:    "PIPE001",
	},
	KindRead: {
		Message: "The file could not be read",
		Action:  "Check the file and try again",
		Code:    "PIPE002",
	},
	KindFatalBatch: {
		Message: "The file was rejected and nothing was stored",
		Action:  "Review the diagnostics, fix the file and upload it again",
		Code:    "PIPE003",
	},
	KindValidation: {
		Message: "The readings failed validation and nothing was stored",
		Action:  "Review the diagnostics against the meter's conditions",
		Code:    "PIPE004",
	},
	KindCommit: {
		Message: "The readings could not be stored",
		Action:  "Please try again or contact support",
		Code:    "PIPE005",
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(err)
//	// msg.Code == "ROW001" for "read error: could not map line 4: invalid date ..."
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if containsAll(errStr, ep.patterns) {
			return ep.msg
		}
	}

	var e *Error
	if errors.As(err, &e) {
		if msg, ok := kindMessages[e.Kind]; ok {
			return msg
		}
	}

	return defaultMessage
}

func containsAll(s string, patterns []string) bool {
	for _, p := range patterns {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
