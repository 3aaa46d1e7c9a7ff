package engine

import (
	"context"
	"errors"

	"scanq/internal/model"
)

// Engine is the opaque scan engine: it accepts a target and a scan
// mode and returns a structured result or fails. Nothing in this
// service looks inside it.
type Engine interface {
	Execute(ctx context.Context, target, mode string) (*model.ScanResult, error)
}

// PermanentError marks a failure that will not be fixed by retrying,
// such as malformed engine output. Anything not marked permanent is
// treated as transient and retry-eligible.
type PermanentError struct {
	err error
}

func (e *PermanentError) Error() string { return e.err.Error() }

func (e *PermanentError) Unwrap() error { return e.err }

// Permanent wraps an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{err: err}
}

// IsPermanent reports whether err carries the permanent marker.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
