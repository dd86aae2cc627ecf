package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by the registry, the index layer, the store and the pipeline.
var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrAlreadyExists        = errors.New("document already exists")
	ErrDimensionMismatch    = errors.New("vector dimension mismatch")
	ErrPositionOutOfRange   = errors.New("chunk position out of range")
	ErrUnknownBackend       = errors.New("unknown index backend")
	ErrConsistencyViolation = errors.New("registry and index out of sync")
)

// Error wraps errors with operation and document context.
type Error struct {
	Op         string
	DocumentID string
	Err        error
}

func (e *Error) Error() string {
	if e.DocumentID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.DocumentID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with operation context.
func WrapError(op, documentID string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, DocumentID: documentID, Err: err}
}

var kinds = []struct {
	err  error
	name string
}{
	// ConsistencyViolation first: it may wrap one of the other kinds as its cause.
	{ErrConsistencyViolation, "ConsistencyViolation"},
	{ErrDocumentNotFound, "DocumentNotFound"},
	{ErrAlreadyExists, "AlreadyExists"},
	{ErrDimensionMismatch, "DimensionMismatch"},
	{ErrPositionOutOfRange, "PositionOutOfRange"},
	{ErrUnknownBackend, "UnknownBackend"},
}

// KindOf returns the name of the error kind carried by err, "" for nil and
// "Internal" for anything outside the known kinds.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}

// Inconsistent marks cause as a registry/index desynchronization.
func Inconsistent(op, documentID string, cause error) error {
	return &Error{
		Op:         op,
		DocumentID: documentID,
		Err:        fmt.Errorf("%w: %w", ErrConsistencyViolation, cause),
	}
}
