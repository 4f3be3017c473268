package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConnectivity indicates the remote store could not be reached.
	ErrConnectivity = errors.New("could not reach server")
	// ErrSession indicates no write session could be established.
	ErrSession = errors.New("no write session available, working offline")
	// ErrValidation indicates a precondition failed before any I/O.
	ErrValidation = errors.New("validation failed")
	// ErrTransaction indicates an atomic commit did not happen.
	ErrTransaction = errors.New("operation did not complete")
	// ErrDocumentTooLarge occurs when a document exceeds the store ceiling.
	ErrDocumentTooLarge = errors.New("document exceeds size limit")
	// ErrVersionConflict occurs when a conditional replace lost a race.
	ErrVersionConflict = errors.New("document version conflict")
	// ErrForbidden indicates the actor lacks the privilege for the operation.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError describes a failed precondition on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Connectivity marks err as a remote reachability failure while keeping the cause.
func Connectivity(err error) error {
	if err == nil || errors.Is(err, ErrConnectivity) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConnectivity, err)
}

// IsOffline reports whether err should be absorbed on read paths.
func IsOffline(err error) bool {
	return errors.Is(err, ErrConnectivity) || errors.Is(err, ErrSession)
}
