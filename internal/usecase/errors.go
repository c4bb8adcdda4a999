package usecase

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	// ErrorInvalidInput rejects a message that is empty after trimming.
	ErrorInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrorBusy rejects a send or clear while a reply is still pending.
	ErrorBusy     ErrorCode = "BUSY"
	ErrorInternal ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Classify returns the code and reason carried by err. Errors that did not
// come from a session are reported as ErrorInternal with no reason.
func Classify(err error) (ErrorCode, string) {
	var ucErr *Error
	if errors.As(err, &ucErr) && ucErr != nil {
		return ucErr.Code, ucErr.Reason
	}
	return ErrorInternal, ""
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
