// Structured errors shared by every stage of the degradation pipeline
package core

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error category.
type Code string

const (
	// Load phase, fatal to the whole run
	ErrCodeSourceNotFound Code = "SOURCE_NOT_FOUND"
	ErrCodeDecode         Code = "DECODE_ERROR"

	// Per-variant, isolated to the variant that raised them
	ErrCodeDegenerateSize Code = "DEGENERATE_SIZE"
	ErrCodeEncode         Code = "ENCODE_ERROR"
	ErrCodeWrite          Code = "WRITE_ERROR"

	ErrCodeInvalidParameter Code = "INVALID_PARAMETER"
	ErrCodeInvalidImage     Code = "INVALID_IMAGE"
	ErrCodeInternal         Code = "INTERNAL_ERROR"
)

// Error carries a code plus enough context (variant, stage, cause) to
// diagnose a failure without looking at internals.
type Error struct {
	Code    Code
	Variant string
	Stage   string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	prefix := string(e.Code)
	if e.Variant != "" {
		prefix += " [" + e.Variant
		if e.Stage != "" {
			prefix += "/" + e.Stage
		}
		prefix += "]"
	} else if e.Stage != "" {
		prefix += " [" + e.Stage + "]"
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error with a formatted message.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError creates an Error around an existing cause.
func WrapError(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// WithStage returns a copy of the error tagged with the stage name.
func (e *Error) WithStage(stage string) *Error {
	c := *e
	c.Stage = stage
	return &c
}

// WithVariant returns a copy of the error tagged with the variant name.
func (e *Error) WithVariant(variant string) *Error {
	c := *e
	c.Variant = variant
	return &c
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the code from err, or "" if err is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Tag attaches variant and stage context to err. Errors without a code are
// wrapped as INTERNAL_ERROR so every failure surfaced by the pipeline is
// categorized.
func Tag(err error, variant, stage string) error {
	if err == nil {
		return nil
	}

	var e *Error
	if !errors.As(err, &e) {
		e = WrapError(ErrCodeInternal, err, "unexpected failure")
	}

	tagged := e.WithVariant(variant)
	if tagged.Stage == "" {
		tagged.Stage = stage
	}
	return tagged
}

// IsFatal reports whether the error aborts the whole run rather than a
// single variant.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case ErrCodeSourceNotFound, ErrCodeDecode:
		return true
	}
	return false
}
