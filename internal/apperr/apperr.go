// Package apperr defines the application error taxonomy shared by services
// and the HTTP façade.
//
// Services return *Error values with a stable Code; the façade maps codes to
// HTTP statuses in exactly one place. Background workers never propagate
// these errors — they log and continue.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies an error class with a fixed HTTP mapping.
type Code string

const (
	// CodeArgs — missing or ill-typed inputs. HTTP 400.
	CodeArgs Code = "ARGS"

	// CodeNotFound — lookup target absent. HTTP 404.
	CodeNotFound Code = "NOT_FOUND"

	// CodeStorage — database unavailable or constraint violation. HTTP 500.
	CodeStorage Code = "STORAGE"

	// CodeProvider — upstream API failed. HTTP 502 for audio fetch/playback;
	// translation endpoints carry provider errors in-band instead.
	CodeProvider Code = "PROVIDER"

	// CodeConfig — environment misconfiguration at startup. Process exits 1.
	CodeConfig Code = "CONFIG"
)

// Error is a structured application error.
type Error struct {
	Code    Code
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that wraps err, preserving it for errors.Is/As.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the Code from err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsNotFound reports whether err carries CodeNotFound.
func IsNotFound(err error) bool { return CodeOf(err) == CodeNotFound }

// IsArgs reports whether err carries CodeArgs.
func IsArgs(err error) bool { return CodeOf(err) == CodeArgs }
