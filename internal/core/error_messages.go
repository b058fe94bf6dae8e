package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Run reports carry the code of every failed record, so an office
// user can quote it when asking for help.
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid layout: The feed layout is misconfigured
//	         Action: Check the feed file for the reported setting
//	VAL002 - Unreadable cell: A cell could not be read and was dropped
//	         Action: Correct the cell in the sheet and import again
//	VAL003 - Required field: A new record is missing a required field
//	         Action: Fill in the column or supply a default for the run
//
// # Relationship Errors (REL001-REL099)
//
//	REL001 - Already assigned: The driver already drives another vehicle
//	         Action: Unassign the driver from the other vehicle first
//
// # Record Store Errors (STORE001-STORE099)
//
//	STORE001 - Rejected: The record store refused the change
//	           Action: Review the message from the record store
//	STORE002 - Unreachable: The record store could not be reached
//	           Action: Check that the record store is running
//	STORE003 - Timeout: The record store did not answer in time
//	           Action: Please try again in a few moments
//	STORE004 - Store failure: The record store failed while handling the change
//	           Action: Please try again or contact support
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: File exceeds the maximum upload size
//	FILE002 - Unsupported format: Only .xlsx, .xlsm, .xls and .csv are read
//	FILE003 - Sheet not found: The workbook has no sheet with that name
//	FILE004 - No file: No file was selected
//	FILE005 - Empty sheet: The sheet has no rows
//	FILE006 - Unreadable workbook: The file is damaged or not a workbook
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - System busy: Too many imports in progress
//	RUN002 - Cancelled: The run was cancelled before it finished
//	RUN003 - Unknown feed: No feed is registered under that name
//	RUN004 - Run not found: No report exists for that run ID
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// # Matching
//
// Typed errors ([MissingFieldError], [StoreError], ...) are recognized with
// errors.As first. Everything else is matched case-insensitively against
// errorPatterns using strings.Contains; the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgInvalidLayout = UserMessage{
		Message: "The feed layout is misconfigured",
		Action:  "Check the feed file for the reported setting",
		Code:    "VAL001",
	}
	msgUnreadableCell = UserMessage{
		Message: "A cell could not be read and was dropped",
		Action:  "Correct the cell in the sheet and import again",
		Code:    "VAL002",
	}
	msgMissingField = UserMessage{
		Message: "A new record is missing a required field",
		Action:  "Fill in the column or supply a default for the run",
		Code:    "VAL003",
	}
	msgConflict = UserMessage{
		Message: "The driver is already assigned to another vehicle",
		Action:  "Unassign the driver from the other vehicle first",
		Code:    "REL001",
	}
	msgStoreRejected = UserMessage{
		Message: "The record store refused the change",
		Action:  "Review the message from the record store",
		Code:    "STORE001",
	}
	msgStoreUnreachable = UserMessage{
		Message: "The record store could not be reached",
		Action:  "Check that the record store is running and try again",
		Code:    "STORE002",
	}
	msgStoreTimeout = UserMessage{
		Message: "The record store did not answer in time",
		Action:  "Please try again in a few moments",
		Code:    "STORE003",
	}
	msgStoreFailure = UserMessage{
		Message: "The record store failed while handling the change",
		Action:  "Please try again or contact support",
		Code:    "STORE004",
	}
	msgBusy = UserMessage{
		Message: "Too many imports in progress",
		Action:  "Please wait a moment and try again",
		Code:    "RUN001",
	}
	msgCancelled = UserMessage{
		Message: "The run was cancelled before it finished",
		Action:  "Start the import again; finished records will be skipped",
		Code:    "RUN002",
	}
	msgUnknownFeed = UserMessage{
		Message: "No feed is registered under that name",
		Action:  "Pick one of the feeds listed on the dashboard",
		Code:    "RUN003",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// The first matching pattern wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	// File errors
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Remove unused sheets or split the workbook",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported spreadsheet format",
		msg: UserMessage{
			Message: "This file type cannot be read",
			Action:  "Save the workbook as .xlsx or export the sheet as .csv",
			Code:    "FILE002",
		},
	},
	{
		pattern: "sheet not found",
		msg: UserMessage{
			Message: "The workbook has no sheet with that name",
			Action:  "Check the sheet name, it is case sensitive",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a spreadsheet to import",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty sheet",
		msg: UserMessage{
			Message: "The sheet has no rows",
			Action:  "Check that you picked the right sheet",
			Code:    "FILE005",
		},
	},
	{
		pattern: "open workbook",
		msg: UserMessage{
			Message: "The file is damaged or not a workbook",
			Action:  "Open the file in a spreadsheet program and save it again",
			Code:    "FILE006",
		},
	},

	// Run errors
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "No report exists for that run",
			Action:  "The report may have been removed by retention",
			Code:    "RUN004",
		},
	},

	// Transport errors that reached us without a StoreError wrapper
	{pattern: "connection refused", msg: msgStoreUnreachable},
	{pattern: "no such host", msg: msgStoreUnreachable},
	{pattern: "connection reset", msg: msgStoreUnreachable},
	{pattern: "timeout", msg: msgStoreTimeout},
}

// defaultMessage is returned when nothing matches (ERR000).
// Support staff should check application logs for the original error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	err := &MissingFieldError{Kind: KindStudent, Field: "busId"}
//	msg := MapError(err)
//	// msg.Code == "VAL003"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var (
		missing  *MissingFieldError
		conflict *RelationshipConflict
		store    *StoreError
		invalid  ValidationError
		warning  ParseWarning
	)
	switch {
	case errors.As(err, &missing):
		return msgMissingField
	case errors.As(err, &conflict):
		return msgConflict
	case errors.As(err, &store):
		return mapStoreError(store)
	case errors.Is(err, ErrTooManyRuns):
		return msgBusy
	case errors.Is(err, ErrUnknownFeed):
		return msgUnknownFeed
	case errors.Is(err, context.Canceled):
		return msgCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return msgStoreTimeout
	case errors.As(err, &invalid):
		return msgInvalidLayout
	case errors.As(err, &warning):
		return msgUnreadableCell
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func mapStoreError(e *StoreError) UserMessage {
	switch {
	case e.Timeout():
		return msgStoreTimeout
	case e.Transport:
		return msgStoreUnreachable
	case e.Status >= http.StatusInternalServerError:
		return msgStoreFailure
	default:
		return msgStoreRejected
	}
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

// IsUserFacing reports whether err maps to a specific message rather than
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
