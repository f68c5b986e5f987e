package gsplat

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error category.
type Code string

const (
	// Source decoding
	ErrCodeHeaderMalformed   Code = "HEADER_MALFORMED"
	ErrCodeUnknownField      Code = "UNKNOWN_FIELD"
	ErrCodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	ErrCodeBodyTruncated     Code = "BODY_TRUNCATED"

	// Ingestion
	ErrCodeStreamFailed Code = "STREAM_FAILED"

	// Setup
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	ErrCodeCache         Code = "CACHE"
)

// Error carries a Code, a message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewError(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func WrapError(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether the first *Error in err's chain has the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
