// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for hioload-coll.

package api

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeInvalidCount
	ErrCodeInvalidDatatype
	ErrCodeInvalidBuffer
	ErrCodeInvalidOp
	ErrCodeInvalidHandle
	ErrCodeBufferOverflowRisk
	ErrCodeAliasing
	ErrCodeTransportFailure
	ErrCodeAlreadyInProgress
	ErrCodeCanceled
	ErrCodeNotSupported
	ErrCodeRMASync
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeInvalidArgument:
		return "invalid argument"
	case ErrCodeInvalidCount:
		return "invalid count"
	case ErrCodeInvalidDatatype:
		return "invalid datatype"
	case ErrCodeInvalidBuffer:
		return "invalid buffer"
	case ErrCodeInvalidOp:
		return "invalid reduction op"
	case ErrCodeInvalidHandle:
		return "invalid handle"
	case ErrCodeBufferOverflowRisk:
		return "buffer overflow risk"
	case ErrCodeAliasing:
		return "aliased buffers"
	case ErrCodeTransportFailure:
		return "transport failure"
	case ErrCodeAlreadyInProgress:
		return "operation already in progress"
	case ErrCodeCanceled:
		return "canceled"
	case ErrCodeNotSupported:
		return "not supported"
	case ErrCodeRMASync:
		return "rma synchronization"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is matching. Any *Error with the same code matches.
var (
	ErrInvalidArgument   = NewError(ErrCodeInvalidArgument, "invalid argument")
	ErrInvalidCount      = NewError(ErrCodeInvalidCount, "invalid count")
	ErrInvalidDatatype   = NewError(ErrCodeInvalidDatatype, "invalid datatype")
	ErrInvalidBuffer     = NewError(ErrCodeInvalidBuffer, "invalid buffer")
	ErrInvalidOp         = NewError(ErrCodeInvalidOp, "invalid reduction op")
	ErrInvalidHandle     = NewError(ErrCodeInvalidHandle, "invalid handle")
	ErrBufferOverflow    = NewError(ErrCodeBufferOverflowRisk, "buffer overflow risk")
	ErrAliasing          = NewError(ErrCodeAliasing, "aliased buffers")
	ErrTransportFailure  = NewError(ErrCodeTransportFailure, "transport failure")
	ErrAlreadyInProgress = NewError(ErrCodeAlreadyInProgress, "operation already in progress")
	ErrCanceled          = NewError(ErrCodeCanceled, "canceled")
	ErrNotSupported      = NewError(ErrCodeNotSupported, "operation not supported")
	ErrRMASync           = NewError(ErrCodeRMASync, "rma synchronization error")
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if len(e.Context) > 0 {
		msg = fmt.Sprintf("%s (context: %+v)", msg, e.Context)
	}
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause, typically a transport error.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Errorf creates a structured error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// WrapError attaches cause to a new structured error.
func WrapError(code ErrorCode, cause error, message string) *Error {
	e := NewError(code, message)
	e.Cause = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the ErrorCode carried by err, ErrCodeOK for nil and
// ErrCodeInternal for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}
