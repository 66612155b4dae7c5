package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across the pipeline.
var (
	ErrNotFound            = errors.New("not found")
	ErrCollaboratorFailure = errors.New("collaborator failure")
	ErrMalformedSegment    = errors.New("malformed segment")
	ErrCancelled           = errors.New("cancelled")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrStaleAttempt        = errors.New("stale processing attempt")
)

// CollaboratorError records which external engine failed.
type CollaboratorError struct {
	Stage string // "recognition" or "segmentation"
	Err   error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s engine: %v", e.Stage, e.Err)
}

func (e *CollaboratorError) Unwrap() []error { return []error{ErrCollaboratorFailure, e.Err} }

// NewCollaboratorError wraps err as a failure of the given stage.
func NewCollaboratorError(stage string, err error) *CollaboratorError {
	return &CollaboratorError{Stage: stage, Err: err}
}

// MalformedSegmentf returns an error wrapping ErrMalformedSegment.
func MalformedSegmentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedSegment, fmt.Sprintf(format, args...))
}
