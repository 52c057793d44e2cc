package dispatch

import (
	"errors"

	"github.com/mattjoyce/agentgw/internal/profile"
)

// ErrUnknownExecutorType matches every *UnknownExecutorTypeError.
var ErrUnknownExecutorType = errors.New("unknown executor type")

// UnknownExecutorTypeError reports a profile that did not resolve. No
// process was started. Retrying without a configuration change will fail
// the same way.
type UnknownExecutorTypeError struct {
	// ProfileID is the canonical "executor/variant" form of the request's profile.
	ProfileID string

	// Cause is the registry error: profile.ErrNotFound for a plain miss, or
	// the registry build failure.
	Cause error
}

func (e *UnknownExecutorTypeError) Error() string {
	msg := "unknown executor type: " + e.ProfileID
	if e.Cause != nil && !errors.Is(e.Cause, profile.ErrNotFound) {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *UnknownExecutorTypeError) Is(target error) bool {
	return target == ErrUnknownExecutorType
}

func (e *UnknownExecutorTypeError) Unwrap() error {
	return e.Cause
}
