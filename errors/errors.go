package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Error is a coded error carrying the operation that produced it.
type Error struct {
	// Code classifies the failure.
	Code ErrorCode

	// Op names the operation that failed (e.g. "grafico.Export").
	Op string

	// Message is an optional human readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Message != "" && e.Err != nil:
		b.WriteString(e.Message)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	default:
		b.WriteString(e.Code.String())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code. This lets
// callers test for a class of failure with errors.Is(err, &Error{Code: c}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Op == "" && t.Err == nil
}

// New creates a coded error without a cause.
func New(code ErrorCode, op, msg string) error {
	return &Error{Code: code, Op: op, Message: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code ErrorCode, op, format string, args ...any) error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and operation. It returns nil if err is nil.
func Wrap(err error, code ErrorCode, op, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Op: op, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost *Error in err's chain, or
// CodeUnknown when there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &Error{Code: code})
}

// RootCause walks the Unwrap chain of err and returns the innermost error.
// For joined errors the first member is followed.
func RootCause(err error) error {
	for err != nil {
		switch x := err.(type) {
		case interface{ Unwrap() []error }:
			errs := x.Unwrap()
			if len(errs) == 0 {
				return err
			}
			err = errs[0]
		case interface{ Unwrap() error }:
			next := x.Unwrap()
			if next == nil {
				return err
			}
			err = next
		default:
			return err
		}
	}
	return nil
}

// RootMessage returns the message of err's root cause, or an empty string.
func RootMessage(err error) string {
	root := RootCause(err)
	if root == nil {
		return ""
	}
	if e, ok := root.(*Error); ok && e.Message != "" {
		return e.Message
	}
	return root.Error()
}

// Is, As, Join and Unwrap forward to the standard library so callers only
// need to import this package.
var (
	Is     = stderrors.Is
	As     = stderrors.As
	Join   = stderrors.Join
	Unwrap = stderrors.Unwrap
)
