// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Kinds
// =============================================================================

// ErrorKind classifies engine failures at step granularity.
//
// Description:
//
//	Every failure inside the dispatcher is reduced to one of these kinds
//	before it is written to the context store as an ErrorResult. The kind
//	travels with the result so that synthesis and callers can distinguish a
//	bad plan parameter from an upstream collaborator outage.
type ErrorKind string

const (
	// KindParameter indicates a required parameter was absent after alias
	// resolution.
	KindParameter ErrorKind = "parameter_error"

	// KindColumnNotFound indicates the column resolver exhausted all of its
	// strategies (exact, case-insensitive, domain alias, containment).
	KindColumnNotFound ErrorKind = "column_not_found"

	// KindTypeConversion indicates the two-tier numeric coercion policy
	// failed for a column an operation needed as numeric.
	KindTypeConversion ErrorKind = "type_conversion_error"

	// KindInsufficientData indicates too few valid rows remained for a
	// statistical operation (fewer than 2 paired observations).
	KindInsufficientData ErrorKind = "insufficient_data"

	// KindUpstreamTool indicates a collaborator call failed, or a step
	// depended on a context key holding an ErrorResult.
	KindUpstreamTool ErrorKind = "upstream_tool_error"

	// KindTimeout indicates the plan deadline expired before the step ran.
	KindTimeout ErrorKind = "timeout"

	// KindFormatting indicates model-assisted synthesis returned a value
	// that failed shape validation.
	KindFormatting ErrorKind = "formatting_error"
)

// =============================================================================
// EngineError
// =============================================================================

// EngineError is the error type carried by ErrorResults.
//
// Description:
//
//	Pairs an ErrorKind with a human-readable message and an optional wrapped
//	cause. Supports errors.Is on the kind sentinel and errors.As for
//	extraction.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type EngineError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *EngineError) Unwrap() error {
	return e.cause
}

// Errf creates a new EngineError with a formatted message.
//
// Inputs:
//
//	kind - The error classification.
//	format, args - Message format, fmt.Sprintf style.
//
// Outputs:
//
//	*EngineError - The constructed error.
func Errf(kind ErrorKind, format string, args ...any) *EngineError {
	return &EngineError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapErr wraps a cause with an EngineError kind and message.
func WrapErr(kind ErrorKind, cause error, format string, args ...any) *EngineError {
	return &EngineError{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		cause:   cause,
	}
}

// KindOf extracts the ErrorKind from an error chain.
//
// Description:
//
//	Walks the chain with errors.As. Errors that did not originate in the
//	engine (collaborator errors that escaped wrapping) are classified as
//	KindUpstreamTool so the dispatcher never writes an unkinded ErrorResult.
//
// Inputs:
//
//	err - Any error. Must not be nil.
//
// Outputs:
//
//	ErrorKind - The classification.
func KindOf(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindUpstreamTool
}

// AsEngineError converts any error into an *EngineError, wrapping foreign
// errors as KindUpstreamTool.
func AsEngineError(err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return &EngineError{Kind: KindUpstreamTool, Message: err.Error(), cause: err}
}
