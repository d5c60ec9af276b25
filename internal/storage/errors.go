package storage

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes storage failures.
type ErrorCode string

const (
	// CodeStorageNotFound indicates a read-only open against a missing
	// database file or namespace table.
	CodeStorageNotFound ErrorCode = "STORAGE_NOT_FOUND"

	// CodeInvalidNamespace indicates a namespace identifier that failed
	// validation. Reported before any statement is issued.
	CodeInvalidNamespace ErrorCode = "INVALID_NAMESPACE"

	// CodeReadOnly indicates a mutating call on a read-only store.
	CodeReadOnly ErrorCode = "READ_ONLY"

	// CodeKeyNotFound indicates a lookup of an absent key with no default.
	CodeKeyNotFound ErrorCode = "KEY_NOT_FOUND"

	// CodeConnection indicates the backing engine failed to open or to
	// execute a structural statement.
	CodeConnection ErrorCode = "CONNECTION"

	// CodeQueryExecution indicates a query failed inside the command-queue
	// worker. It is delivered in-band as the query's result payload, never
	// thrown at a producer.
	CodeQueryExecution ErrorCode = "QUERY_EXECUTION"
)

// Error is the typed failure shared by both storage engines.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Namespace identifies the affected namespace, when known.
	Namespace string

	// Key identifies the affected key (for KEY_NOT_FOUND).
	Key string

	// Err is the underlying driver error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Key != "":
		return fmt.Sprintf("%s: %s (key=%q)", e.Code, e.Message, e.Key)
	case e.Namespace != "":
		return fmt.Sprintf("%s: %s (namespace=%q)", e.Code, e.Message, e.Namespace)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap exposes the underlying driver error for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKeyNotFound reports whether err is a KEY_NOT_FOUND storage error.
// Uses errors.As to handle wrapped errors.
func IsKeyNotFound(err error) bool {
	return hasCode(err, CodeKeyNotFound)
}

// IsInvalidNamespace reports whether err is an INVALID_NAMESPACE storage error.
func IsInvalidNamespace(err error) bool {
	return hasCode(err, CodeInvalidNamespace)
}

// IsReadOnly reports whether err is a READ_ONLY storage error.
func IsReadOnly(err error) bool {
	return hasCode(err, CodeReadOnly)
}

// IsStorageNotFound reports whether err is a STORAGE_NOT_FOUND storage error.
func IsStorageNotFound(err error) bool {
	return hasCode(err, CodeStorageNotFound)
}

// IsConnection reports whether err is a CONNECTION storage error.
func IsConnection(err error) bool {
	return hasCode(err, CodeConnection)
}

// IsQueryExecution reports whether err is an in-band QUERY_EXECUTION error.
func IsQueryExecution(err error) bool {
	return hasCode(err, CodeQueryExecution)
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// NewKeyNotFound creates a KEY_NOT_FOUND error for the given key.
func NewKeyNotFound(namespace, key string) *Error {
	return &Error{
		Code:      CodeKeyNotFound,
		Message:   "storage key not found",
		Namespace: namespace,
		Key:       key,
	}
}

// NewInvalidNamespace creates an INVALID_NAMESPACE error.
func NewInvalidNamespace(namespace string) *Error {
	return &Error{
		Code:      CodeInvalidNamespace,
		Message:   "invalid namespace identifier: only alphanumerics and underscores are allowed",
		Namespace: namespace,
	}
}

// NewReadOnly creates a READ_ONLY error for the given namespace.
func NewReadOnly(namespace string) *Error {
	return &Error{
		Code:      CodeReadOnly,
		Message:   "storage is in read-only mode",
		Namespace: namespace,
	}
}

// NewStorageNotFound creates a STORAGE_NOT_FOUND error.
func NewStorageNotFound(namespace, detail string) *Error {
	return &Error{
		Code:      CodeStorageNotFound,
		Message:   detail,
		Namespace: namespace,
	}
}

// NewConnection wraps a driver failure as a CONNECTION error.
func NewConnection(detail string, err error) *Error {
	return &Error{
		Code:    CodeConnection,
		Message: detail,
		Err:     err,
	}
}

// NewQueryExecution wraps a worker-side query failure. The statement text is
// embedded in the message so producers inspecting the result payload can see
// what failed without access to the worker's log.
func NewQueryExecution(stmt string, err error) *Error {
	return &Error{
		Code:    CodeQueryExecution,
		Message: fmt.Sprintf("query returned error: %s", stmt),
		Err:     err,
	}
}
