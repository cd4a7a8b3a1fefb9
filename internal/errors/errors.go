package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// MalformedHunk indicates hunk offsets violate the chaining invariant of one file transition
	MalformedHunk ErrorCode = "MALFORMED_HUNK"
	// ParseFailure indicates the structural parser could not produce a usable tree
	ParseFailure ErrorCode = "PARSE_FAILURE"
	// OutOfRange indicates a line or byte offset beyond the indexed buffer
	OutOfRange ErrorCode = "OUT_OF_RANGE"
	// GraphInvariantViolation indicates a cycle or a missing parent in the commit graph
	GraphInvariantViolation ErrorCode = "GRAPH_INVARIANT_VIOLATION"
	// UnsupportedLanguage indicates no grammar is registered for a language tag
	UnsupportedLanguage ErrorCode = "UNSUPPORTED_LANGUAGE"
	// GitError indicates a git plumbing command failed
	GitError ErrorCode = "GIT_ERROR"
	// Timeout indicates an operation timed out
	Timeout ErrorCode = "TIMEOUT"
	// StorageError indicates the history database rejected a read or write
	StorageError ErrorCode = "STORAGE_ERROR"
	// InvalidConfig indicates the configuration failed validation
	InvalidConfig ErrorCode = "INVALID_CONFIG"
	// NotInitialized indicates the repository has no .semhist directory yet
	NotInitialized ErrorCode = "NOT_INITIALIZED"
	// EntityNotFound indicates a queried entity does not exist
	EntityNotFound ErrorCode = "ENTITY_NOT_FOUND"
	// CommitNotFound indicates a queried commit was never ingested
	CommitNotFound ErrorCode = "COMMIT_NOT_FOUND"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// SemhistError represents an error with code, message, and suggestions
type SemhistError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a SemhistError with the default suggested fixes for its code
func New(code ErrorCode, message string, cause error) *SemhistError {
	return &SemhistError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Newf creates a SemhistError without a cause using a format string
func Newf(code ErrorCode, format string, args ...interface{}) *SemhistError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Error implements the error interface
func (e *SemhistError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *SemhistError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *SemhistError) WithDetails(details interface{}) *SemhistError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first SemhistError in err's chain,
// or the empty code if there is none.
func CodeOf(err error) ErrorCode {
	var se *SemhistError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var se *SemhistError
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.cause
	}
	return false
}

// IsFatalForRun reports whether err must abort a whole ingestion run.
// Per-file failures (hunks, parsing, offsets) are contained to their file.
func IsFatalForRun(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch CodeOf(err) {
	case MalformedHunk, ParseFailure, OutOfRange, UnsupportedLanguage:
		return false
	}
	return true
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	NotInitialized: {
		{
			Type:        RunCommand,
			Command:     "semhist init",
			Safe:        true,
			Description: "Create the .semhist directory and history database",
		},
	},
	GraphInvariantViolation: {
		{
			Type:        RunCommand,
			Command:     "semhist ingest --all",
			Safe:        true,
			Description: "Ingest the full ancestry so every parent is indexed before its children",
		},
	},
	InvalidConfig: {
		{
			Type:        RunCommand,
			Command:     "semhist init --force",
			Safe:        false,
			Description: "Rewrite .semhist/config.json with defaults",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
