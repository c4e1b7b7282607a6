// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// Error Kinds
// =============================================================================

// ErrorKind is a machine-readable label for a failure category.
//
// # Description
//
// Kinds split into two groups. External kinds cross the HTTP boundary and map
// to status codes via HTTPStatus. Internal kinds drive routing decisions
// inside the pipeline (SQL fallback, quality filtering, persistence warnings)
// and must never appear in a response body.
type ErrorKind string

// External kinds. These are the only kinds a client ever sees.
const (
	KindInvalidInput         ErrorKind = "invalid_input"
	KindConversationNotFound ErrorKind = "conversation_not_found"
	KindDeadlineExceeded     ErrorKind = "deadline_exceeded"
	KindUpstreamUnavailable  ErrorKind = "upstream_unavailable"
	KindInternalError        ErrorKind = "internal_error"
)

// Internal kinds. Consumed by the pipeline; sanitized before the boundary.
const (
	KindSQLSyntaxInvalid      ErrorKind = "sql_syntax_invalid"
	KindSQLForbiddenStatement ErrorKind = "sql_forbidden_statement"
	KindSQLExecutionError     ErrorKind = "sql_execution_error"
	KindSQLEmptyResult        ErrorKind = "sql_empty_result"
	KindVectorFilteredAll     ErrorKind = "vector_filtered_all"
	KindPersistenceFailure    ErrorKind = "persistence_failure"
)

// External reports whether the kind is safe to expose to clients.
func (k ErrorKind) External() bool {
	switch k {
	case KindInvalidInput, KindConversationNotFound, KindDeadlineExceeded,
		KindUpstreamUnavailable, KindInternalError:
		return true
	}
	return false
}

// HTTPStatus maps an external kind to its status code. Internal kinds map to
// 500 so an accidental leak still produces a sane response.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConversationNotFound:
		return http.StatusNotFound
	case KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// Typed Error
// =============================================================================

// Error is the service's typed error. It carries a kind for dispatch and a
// human-readable message; Err holds the wrapped cause when one exists.
//
// # Examples
//
//	if err := store.Get(ctx, id); err != nil {
//	    return datatypes.WrapError(datatypes.KindConversationNotFound,
//	        "conversation lookup failed", err)
//	}
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap supports errors.Is and errors.As over the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a typed error without a wrapped cause.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a typed error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a typed error wrapping a cause.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from an error chain.
//
// # Description
//
// Walks the chain with errors.As. Non-typed errors report KindInternalError
// so callers always get a mappable kind; a nil error reports the empty kind.
//
// # Inputs
//
//   - err: Any error, possibly wrapped.
//
// # Outputs
//
//   - ErrorKind: The kind of the outermost typed error, or KindInternalError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternalError
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Sanitize converts any error into one safe for the HTTP boundary.
//
// Internal kinds and untyped errors collapse to internal_error with a
// generic message; external kinds pass through with their message intact.
func Sanitize(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) && typed.Kind.External() {
		return typed
	}
	return &Error{Kind: KindInternalError, Message: "internal error"}
}
