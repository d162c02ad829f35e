package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound          = errors.New("domain: not found")
	ErrConflict          = errors.New("domain: conflict")
	ErrPermissionDenied  = errors.New("domain: permission denied")
	ErrInvalidArgument   = errors.New("domain: invalid argument")
	ErrInvalidTransition = errors.New("task: invalid state transition")
	ErrAlreadyDeleted    = errors.New("task: already deleted")
	ErrStorage           = errors.New("domain: storage failure")
	ErrTimeout           = fmt.Errorf("domain: storage timeout: %w", ErrStorage)
)

// PermissionError reports a policy denial. Action and Reason are stable
// codes the API layer can surface without parsing the message.
type PermissionError struct {
	Action string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("domain: permission denied: %s (%s)", e.Action, e.Reason)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// ValidationError reports a malformed or missing input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("domain: invalid argument: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// TransitionError reports an illegal status edge.
type TransitionError struct {
	From TaskStatus
	To   TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task: invalid state transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// NotFoundError names the kind of entity that was missing.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("domain: %s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
