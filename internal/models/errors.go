// Package models defines the error taxonomy shared across the engine.
package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an engine error for propagation and HTTP mapping.
type ErrorKind string

const (
	// KindValidation marks malformed input. Never retried.
	KindValidation ErrorKind = "validation"
	// KindConflict marks an operation that lost to existing state (mission
	// already completed, enrollment already exists, plan finished). Never
	// retried; harmless from the caller's perspective.
	KindConflict ErrorKind = "conflict"
	// KindNotFound marks a missing plan or enrollment.
	KindNotFound ErrorKind = "not_found"
	// KindGeneration marks unusable plan generator output. Blocks plan
	// creation entirely.
	KindGeneration ErrorKind = "generation"
	// KindTransient marks a storage conflict or timeout that survived
	// bounded retry. Retryable by the caller with no partial state change.
	KindTransient ErrorKind = "transient_storage"
)

// DomainError is the engine's error type. All component errors that cross a
// package boundary are DomainErrors so callers can branch on Kind.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As chains.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Validationf builds a validation error from a format string.
func Validationf(format string, args ...any) error {
	return &DomainError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a conflict error from a format string.
func Conflictf(format string, args ...any) error {
	return &DomainError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a not-found error from a format string.
func NotFoundf(format string, args ...any) error {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Generationf builds a generation error wrapping the producer failure.
func Generationf(err error, format string, args ...any) error {
	return &DomainError{Kind: KindGeneration, Message: fmt.Sprintf(format, args...), Err: err}
}

// Transientf builds a transient storage error wrapping the storage failure.
func Transientf(err error, format string, args ...any) error {
	return &DomainError{Kind: KindTransient, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the ErrorKind of err, or an empty kind for non-domain errors.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsGeneration reports whether err is a generation error.
func IsGeneration(err error) bool { return KindOf(err) == KindGeneration }

// IsTransient reports whether err is a transient storage error.
func IsTransient(err error) bool { return KindOf(err) == KindTransient }
