// Package errors provides the error taxonomy for the lakesync pipeline.
//
// Errors carry a Kind so callers can decide between skipping a record,
// aborting a batch, or retrying a chunk without string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// =============================================================================
// Base Error Types
// =============================================================================

// Error is the base error type for all pipeline errors.
type Error struct {
	// Kind indicates the category of error
	Kind Kind

	// Op is the operation being performed (e.g., "store.Upsert")
	Op string

	// Message is a human-readable description
	Message string

	// Err is the underlying error
	Err error
}

// Kind represents the kind/category of error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindParse
	KindReference
	KindNotFound
	KindConflict
	KindIndex
	KindStore
	KindTimeout
	KindNetwork
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindParse:
		return "parse"
	case KindReference:
		return "reference"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindIndex:
		return "index"
	case KindStore:
		return "store"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Message != "" && e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s: %v", e.Op, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target.
// Two *Error values match when their kinds match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// =============================================================================
// Index Errors
// =============================================================================

// IndexError is an error response returned by the search cluster.
type IndexError struct {
	// StatusCode is the HTTP status code
	StatusCode int `json:"status"`

	// Type is the cluster error type (e.g. index_not_found_exception)
	Type string `json:"type"`

	// Reason is the error reason from the cluster
	Reason string `json:"reason"`

	// Index is the index the request addressed, when known
	Index string `json:"index,omitempty"`
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	if e.Index != "" {
		return fmt.Sprintf("[%s] %s: %s (index: %s)", e.Type, http.StatusText(e.StatusCode), e.Reason, e.Index)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, http.StatusText(e.StatusCode), e.Reason)
}

// BulkFailure describes a single document rejected by a bulk request.
type BulkFailure struct {
	DocumentID string
	Status     int
	Type       string
	Reason     string
}

// BulkError is returned when one or more documents of a bulk request fail.
type BulkError struct {
	Index    string
	Failures []BulkFailure
}

// Error implements the error interface.
func (e *BulkError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, fmt.Sprintf("%s (%d %s: %s)", f.DocumentID, f.Status, f.Type, f.Reason))
	}
	return fmt.Sprintf("bulk upsert into %s failed for %d document(s): %s",
		e.Index, len(e.Failures), strings.Join(ids, "; "))
}

// =============================================================================
// Constructors
// =============================================================================

// E constructs an Error from the given arguments.
// Arguments can be: Kind, string (Op first, then Message), error.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if e.Op == "" {
				e.Op = a
			} else {
				e.Message = a
			}
		case error:
			e.Err = a
		}
	}
	if e.Kind == KindUnknown && e.Err != nil {
		e.Kind = GetKind(e.Err)
	}
	return e
}

// New creates a new simple error.
func New(message string) error {
	return &Error{Message: message}
}

// Wrap wraps an error with the operation name. The kind of the wrapped
// error is preserved.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: GetKind(err), Op: op, Err: err}
}

// WrapWithMessage wraps an error with a message.
func WrapWithMessage(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: GetKind(err), Message: message, Err: err}
}

// =============================================================================
// Error Checkers
// =============================================================================

// GetKind returns the first known Kind in the error chain, or KindUnknown.
func GetKind(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind != KindUnknown {
			return e.Kind
		}
		err = errors.Unwrap(err)
	}
	return KindUnknown
}

// IsIndexError checks if err is an IndexError and returns it.
func IsIndexError(err error) (*IndexError, bool) {
	var idxErr *IndexError
	if errors.As(err, &idxErr) {
		return idxErr, true
	}
	return nil, false
}

// IsBulkError checks if err is a BulkError and returns it.
func IsBulkError(err error) (*BulkError, bool) {
	var bulkErr *BulkError
	if errors.As(err, &bulkErr) {
		return bulkErr, true
	}
	return nil, false
}

// IsNotFoundError checks if the error is a not found error.
func IsNotFoundError(err error) bool {
	if GetKind(err) == KindNotFound {
		return true
	}
	if idxErr, ok := IsIndexError(err); ok {
		return idxErr.StatusCode == http.StatusNotFound || idxErr.Type == "index_not_found_exception"
	}
	return false
}

// IsInvalidInput checks if the error is an invalid input error.
func IsInvalidInput(err error) bool {
	return GetKind(err) == KindInvalidInput
}

// IsRecordError reports whether err only invalidates the current record
// (parse or cross-reference failures) and the batch may continue.
func IsRecordError(err error) bool {
	switch GetKind(err) {
	case KindParse, KindReference:
		return true
	}
	return false
}

// IsNetworkError checks if the error is a network error.
func IsNetworkError(err error) bool {
	return GetKind(err) == KindNetwork
}

// IsTimeoutError checks if the error is a timeout error.
func IsTimeoutError(err error) bool {
	return GetKind(err) == KindTimeout
}

// IsRetryable checks if the error is worth retrying at chunk level.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsNetworkError(err) || IsTimeoutError(err) {
		return true
	}
	if _, ok := IsBulkError(err); ok {
		return true
	}
	if idxErr, ok := IsIndexError(err); ok {
		return idxErr.StatusCode == http.StatusTooManyRequests ||
			(idxErr.StatusCode >= 500 && idxErr.StatusCode != http.StatusNotImplemented)
	}
	return GetKind(err) == KindIndex
}

// =============================================================================
// Common Errors
// =============================================================================

var (
	// ErrMissingNaturalKey is returned when an entity is upserted without its key.
	ErrMissingNaturalKey = &Error{Kind: KindInvalidInput, Message: "natural key is required"}

	// ErrRowVanished is returned when a conflict-ignored insert is followed by
	// a lookup that finds no row.
	ErrRowVanished = &Error{Kind: KindNotFound, Message: "row not found after conflict-ignored insert"}

	// ErrInvalidConfig is returned for invalid configuration.
	ErrInvalidConfig = &Error{Kind: KindInvalidInput, Message: "invalid configuration"}
)
