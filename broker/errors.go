package broker

import (
	"errors"
	"fmt"
)

// ErrNoActiveSession means every resolution strategy was exhausted and
// the user has to reconnect their account before execution can proceed.
var ErrNoActiveSession = errors.New("no active broker session: reconnect required")

// AuthError marks a failure caused by bad credentials or an expired
// session. The session resolver treats it as a cue to re-authenticate
// rather than a user-facing failure.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth failed during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("auth failed during %s", e.Op)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// UnknownInstrumentError means a signal's symbol is not tradable on the
// target account. Fatal for that execution.
type UnknownInstrumentError struct {
	Symbol string
}

func (e *UnknownInstrumentError) Error() string {
	return fmt.Sprintf("instrument %q not found on broker", e.Symbol)
}

// RejectedError is a non-2xx answer to an order placement. The attempt
// failed; the signal stays approved and may be retried.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("broker rejected order (status %d): %s", e.Status, e.Body)
}
