// Package modelerr defines the canonical error taxonomy surfaced by the
// model data engine, across the document store, blob store, scene graph,
// multipart optimizer, clash pipeline, and commit manager.
package modelerr

import (
	"errors"
	"fmt"
	"strings"
)

// Code standardizes failure semantics across the engine's subsystems.
type Code string

const (
	// CodeInvalidInput covers malformed nodes, mismatched array lengths,
	// over-budget faces, and unsupported primitive kinds.
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound covers unknown databases, collections, revisions, or blobs.
	CodeNotFound Code = "not_found"
	// CodeConflict covers a commit attempted on a non-head revision or an id collision.
	CodeConflict Code = "conflict"
	// CodeStorageFailure covers the document store or blob store rejecting an operation.
	CodeStorageFailure Code = "storage_failure"
	// CodeCorruption covers a document referencing a blob that does not exist
	// or whose length disagrees with the reference.
	CodeCorruption Code = "corruption"
	// CodeResourceExhausted covers connection pool exhaustion after retries,
	// or an oversized document after blob extraction.
	CodeResourceExhausted Code = "resource_exhausted"
	// CodeCancelled is only ever surfaced at the binding boundary.
	CodeCancelled Code = "cancelled"
)

// Error is the canonical wrapper returned by engine subsystems.
type Error struct {
	Code    Code
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an engine error with an explicit code and operation name.
func New(code Code, op, message string, cause error) error {
	return &Error{Code: code, Op: strings.TrimSpace(op), Message: strings.TrimSpace(message), Cause: cause}
}

// Wrap annotates an existing error with engine error semantics. Returns nil
// unchanged so callers can use it directly on a returned err.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(code, op, err.Error(), err)
}

// Is reports whether err (or a wrapped err) carries the given code.
func Is(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// CodeOf extracts the engine error code when available.
func CodeOf(err error) Code {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}
