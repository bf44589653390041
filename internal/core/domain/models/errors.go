package models

import (
	"context"
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrKindConfig      ErrorKind = "config_validation"
	ErrKindAuth        ErrorKind = "authentication"
	ErrKindUnreachable ErrorKind = "source_unreachable"
	ErrKindPartialRead ErrorKind = "partial_read"
	ErrKindTimeout     ErrorKind = "timeout"
	ErrKindDegraded    ErrorKind = "degraded"
	ErrKindInternal    ErrorKind = "internal"
)

// CheckError classifies a failed check so the state machine and notifier can
// surface the failure without inspecting adapter internals.
type CheckError struct {
	Kind ErrorKind `json:"kind"`
	Err  error     `json:"-"`
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }

func (e *CheckError) Message() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func NewConfigError(err error) *CheckError {
	return &CheckError{Kind: ErrKindConfig, Err: err}
}

func NewAuthError(err error) *CheckError {
	return &CheckError{Kind: ErrKindAuth, Err: err}
}

func NewUnreachableError(err error) *CheckError {
	return &CheckError{Kind: ErrKindUnreachable, Err: err}
}

func NewTimeoutError(err error) *CheckError {
	return &CheckError{Kind: ErrKindTimeout, Err: err}
}

// ClassifyCheckError wraps err into a CheckError. Errors already classified
// by an adapter pass through unchanged; context deadline errors become
// timeouts, everything else is internal.
func ClassifyCheckError(err error) *CheckError {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}
	return &CheckError{Kind: ErrKindInternal, Err: err}
}
