// Package errors defines the stable error surface for mffs.
//
// Every public engine operation either succeeds or returns a single negative
// code, per the on-media/API compatibility requirements of the original
// implementation. Internally, operations work with wrapped DriverError
// values so callers can use errors.Is/errors.As; Code() recovers the bare
// negative integer for callers that still expect the C ABI's return
// convention.
package errors

import "fmt"

// DriverError is the common interface satisfied by every error mffs returns
// from a public operation.
type DriverError interface {
	error
	// Code returns the stable negative return code associated with this
	// error, for compatibility with the original C-style ABI.
	Code() int
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
	Unwrap() error
}

// FFSError is a sentinel error carrying a stable negative code. Comparing
// against one of the package-level sentinels with errors.Is works even after
// WithMessage or Wrap has decorated it.
type FFSError struct {
	code    int
	message string
}

func newSentinel(code int, message string) FFSError {
	return FFSError{code: code, message: message}
}

func (e FFSError) Error() string {
	return e.message
}

func (e FFSError) Code() int {
	return e.code
}

func (e FFSError) Unwrap() error {
	return nil
}

// WithMessage returns a copy of the sentinel with additional context
// appended to the message. The result still compares equal via errors.Is to
// the original sentinel.
func (e FFSError) WithMessage(message string) DriverError {
	return &wrappedError{
		sentinel: e,
		message:  fmt.Sprintf("%s: %s", e.message, message),
	}
}

// Wrap returns a copy of the sentinel that also unwraps to err, so
// errors.Is(result, err) and errors.Is(result, <sentinel>) both hold.
func (e FFSError) Wrap(err error) DriverError {
	return &wrappedError{
		sentinel: e,
		message:  fmt.Sprintf("%s: %s", e.message, err.Error()),
		cause:    err,
	}
}

type wrappedError struct {
	sentinel FFSError
	message  string
	cause    error
}

func (e *wrappedError) Error() string {
	return e.message
}

func (e *wrappedError) Code() int {
	return e.sentinel.code
}

func (e *wrappedError) Is(target error) bool {
	if sentinel, ok := target.(FFSError); ok {
		return sentinel.code == e.sentinel.code
	}
	return false
}

func (e *wrappedError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return e.sentinel
}

func (e *wrappedError) WithMessage(message string) DriverError {
	return &wrappedError{
		sentinel: e.sentinel,
		message:  fmt.Sprintf("%s: %s", e.message, message),
		cause:    e.cause,
	}
}

func (e *wrappedError) Wrap(err error) DriverError {
	return &wrappedError{
		sentinel: e.sentinel,
		message:  fmt.Sprintf("%s: %s", e.message, err.Error()),
		cause:    err,
	}
}

// FromCode converts a stable negative return code back into its sentinel
// DriverError, for boundary code that only has the bare integer (e.g. when
// replaying a recorded ABI-level return value). It returns nil for 0 and
// ErrUnknown for any code not in the table below.
func FromCode(code int) DriverError {
	if code == 0 {
		return nil
	}
	if sentinel, ok := byCode[code]; ok {
		return sentinel
	}
	return ErrUnknown.WithMessage(fmt.Sprintf("unrecognized code %d", code))
}
