package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported to callers
type ErrorKind string

// Error kinds
const (
	KindInvalidParams      ErrorKind = "InvalidParams"
	KindUnknownTool        ErrorKind = "UnknownTool"
	KindInvalidProjectPath ErrorKind = "InvalidProjectPath"
	KindUnknownProjectType ErrorKind = "UnknownProjectType"
	KindPortRangeExhausted ErrorKind = "PortRangeExhausted"
	KindSessionNotFound    ErrorKind = "SessionNotFound"
	KindSpawnFailure       ErrorKind = "SpawnFailure"
	KindAlreadyRunning     ErrorKind = "AlreadyRunning"
	KindInternalError      ErrorKind = "InternalError"
)

// Sentinel errors for errors.Is comparisons. Matching is by kind only.
var (
	ErrInvalidParams      = &Error{Kind: KindInvalidParams}
	ErrUnknownTool        = &Error{Kind: KindUnknownTool}
	ErrInvalidProjectPath = &Error{Kind: KindInvalidProjectPath}
	ErrUnknownProjectType = &Error{Kind: KindUnknownProjectType}
	ErrPortRangeExhausted = &Error{Kind: KindPortRangeExhausted}
	ErrSessionNotFound    = &Error{Kind: KindSessionNotFound}
	ErrSpawnFailure       = &Error{Kind: KindSpawnFailure}
	ErrAlreadyRunning     = &Error{Kind: KindAlreadyRunning}
	ErrInternal           = &Error{Kind: KindInternalError}
)

// Error is a classified failure with an optional cause
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// NewError creates a classified error with a formatted message
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a classified error that wraps a cause
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternalError
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternalError
}

// PublicMessage returns the text safe to show a caller. Internal failures are opaque.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindInternalError {
		return "internal error"
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}
