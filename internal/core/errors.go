package core

import (
	"errors"
	"fmt"
)

const (
	CodeInvalidConfig     = "E_INVALID_CONFIG"
	CodeRunNotProgressing = "E_RUN_NOT_PROGRESSING"
	CodeDestinationFatal  = "E_DESTINATION_FATAL"
	CodeRunAborted        = "E_RUN_ABORTED"
	CodeUnknownConnector  = "E_UNKNOWN_CONNECTOR"
	CodeStore             = "E_STORE"
)

var (
	// ErrRunFatal is matched by every *FatalError.
	ErrRunFatal = errors.New("run fatal")

	// ErrRunAborted is returned when the host requests cancellation.
	ErrRunAborted = errors.New("run aborted: cancellation requested")
)

// Error wraps failures with a code and a retryability hint.
type Error struct {
	Code      string
	Retryable bool
	Err       error
}

// NewError builds a coded error.
func NewError(code string, retryable bool, err error) *Error {
	return &Error{Code: code, Retryable: retryable, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error         { return e.Err }
func (e *Error) CodeValue() string     { return e.Code }
func (e *Error) RetryableStatus() bool { return e.Retryable }

// FatalError is a structural destination failure that must end the run.
type FatalError struct {
	Reason  string
	Control *ControlMessage
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s", CodeDestinationFatal, e.Reason)
}

func (e *FatalError) Is(target error) bool { return target == ErrRunFatal }
