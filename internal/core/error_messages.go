package core

// error_messages.go maps technical errors to user-friendly messages with a
// support code. Users quote the code; support staff look it up here.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large          (ErrFileTooLarge, "request body too large")
//	FILE002 - Invalid CSV             (ErrInvalidCSV)
//	FILE003 - Not a CSV file          (ErrNotTabular)
//	FILE004 - No file                 (ErrNoFile)
//	FILE005 - Empty dataset           (ErrEmptyDataset)
//	FILE006 - Missing header row      (ErrMissingHeaderRow)
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Missing required column  (ErrMissingRequiredColumn)
//	VAL002 - Invalid job token        (ErrInvalidToken)
//	VAL003 - Invalid chunk size       ("invalid batch size")
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Import session expired   (ErrJobExpired)
//	JOB002 - Concurrent modification  (ErrConflict)
//	JOB003 - System busy              (ErrTooManyChunks)
//
// # Request Errors (UPL001-UPL099)
//
//	UPL001 - Request cancelled        (context.Canceled)
//	UPL002 - Request timeout          (context.DeadlineExceeded)
//
// # Store and Database Errors (DB001-DB099)
//
//	DB001 - Connection refused
//	DB002 - Connection reset
//	DB003 - Timeout
//
// # Rate Limiting
//
//	RATE001 - Too many requests
//
// # Default
//
//	ERR000 - Unknown error; check the application logs for the original error
//
// Sentinel errors are matched with errors.Is first. Anything else falls back
// to case-insensitive substring patterns; the first match wins.

import (
	"context"
	"errors"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgFileTooLarge = UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the file into smaller files and import them separately",
		Code:    "FILE001",
	}
	msgInvalidCSV = UserMessage{
		Message: "File is not a valid CSV",
		Action:  "Ensure the file is comma-separated with quoted fields where needed",
		Code:    "FILE002",
	}
	msgNotTabular = UserMessage{
		Message: "Please upload a CSV file",
		Action:  "Export your spreadsheet as .csv and try again",
		Code:    "FILE003",
	}
	msgNoFile = UserMessage{
		Message: "No file was uploaded",
		Action:  "Please select a CSV file to upload",
		Code:    "FILE004",
	}
	msgEmptyDataset = UserMessage{
		Message: "CSV has no data rows",
		Action:  "Add at least one row below the header line",
		Code:    "FILE005",
	}
	msgMissingHeader = UserMessage{
		Message: "CSV has no header row",
		Action:  "The first line must list the column names",
		Code:    "FILE006",
	}
	msgMissingColumn = UserMessage{
		Message: `CSV must have a "title" column`,
		Action:  "Add a title column or download the sample CSV",
		Code:    "VAL001",
	}
	msgInvalidToken = UserMessage{
		Message: "Invalid import ID",
		Action:  "Start a new import",
		Code:    "VAL002",
	}
	msgJobExpired = UserMessage{
		Message: "Import session expired. Please start over.",
		Action:  "Upload the file again to restart the import",
		Code:    "JOB001",
	}
	msgConflict = UserMessage{
		Message: "Import was advanced by another request",
		Action:  "Refresh the import progress and retry",
		Code:    "JOB002",
	}
	msgBusy = UserMessage{
		Message: "System is busy processing other imports",
		Action:  "Please wait a moment and try again",
		Code:    "JOB003",
	}
	msgCancelled = UserMessage{
		Message: "Request was cancelled",
		Action:  "Please try again",
		Code:    "UPL001",
	}
	msgTimeout = UserMessage{
		Message: "Request timed out",
		Action:  "Use a smaller batch size or check your connection",
		Code:    "UPL002",
	}
)

// sentinelMessages is checked in order with errors.Is.
var sentinelMessages = []struct {
	err error
	msg UserMessage
}{
	{ErrFileTooLarge, msgFileTooLarge},
	{ErrInvalidCSV, msgInvalidCSV},
	{ErrNotTabular, msgNotTabular},
	{ErrNoFile, msgNoFile},
	{ErrEmptyDataset, msgEmptyDataset},
	{ErrMissingHeaderRow, msgMissingHeader},
	{ErrMissingRequiredColumn, msgMissingColumn},
	{ErrInvalidToken, msgInvalidToken},
	{ErrJobExpired, msgJobExpired},
	{ErrConflict, msgConflict},
	{ErrTooManyChunks, msgBusy},
	{context.Canceled, msgCancelled},
	{context.DeadlineExceeded, msgTimeout},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns covers errors from outside this package that carry no
// sentinel, such as driver and network failures.
var errorPatterns = []errorPattern{
	{pattern: "request body too large", msg: msgFileTooLarge},
	{
		pattern: "invalid batch size",
		msg: UserMessage{
			Message: "Batch size must be a positive number",
			Action:  "Use the batch size returned when the import started",
			Code:    "VAL003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the job store",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Connection to the job store was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "i/o timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Please try again later",
			Code:    "DB003",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// A nil error maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}
