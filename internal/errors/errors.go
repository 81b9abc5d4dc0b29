// Package errors defines the failure taxonomy shared by the vault engine and
// its collaborators. Every failure carries a Code so callers can branch with
// errors.Is against the exported sentinels regardless of how deeply the
// original cause was wrapped.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// Code identifies a failure kind.
type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeInvalidAmount    Code = "INVALID_AMOUNT"
	CodeInvalidIdentity  Code = "INVALID_IDENTITY"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeInsufficientFund Code = "INSUFFICIENT_FUNDS"
	CodeIndexOutOfRange  Code = "INDEX_OUT_OF_RANGE"
	CodeUpkeepNotNeeded  Code = "UPKEEP_NOT_NEEDED"
	CodeSlippageExceeded Code = "SLIPPAGE_EXCEEDED"
	CodeTransferFailed   Code = "TRANSFER_FAILED"
	CodeStorageFailure   Code = "STORAGE_FAILURE"
)

// Attributes describes default behaviour for a code.
type Attributes struct {
	Message   string
	Retryable bool
}

var registry = map[Code]Attributes{
	CodeUnknown:          {Message: "unknown error"},
	CodeInvalidAmount:    {Message: "invalid amount"},
	CodeInvalidIdentity:  {Message: "invalid identity"},
	CodeUnauthorized:     {Message: "caller is not the owner"},
	CodeInsufficientFund: {Message: "insufficient funds"},
	CodeIndexOutOfRange:  {Message: "index out of range"},
	CodeUpkeepNotNeeded:  {Message: "upkeep not needed"},
	CodeSlippageExceeded: {Message: "slippage exceeded", Retryable: true},
	CodeTransferFailed:   {Message: "transfer failed", Retryable: true},
	CodeStorageFailure:   {Message: "storage failure", Retryable: true},
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidAmount     = New(CodeInvalidAmount, "")
	ErrInvalidIdentity   = New(CodeInvalidIdentity, "")
	ErrUnauthorized      = New(CodeUnauthorized, "")
	ErrInsufficientFunds = New(CodeInsufficientFund, "")
	ErrIndexOutOfRange   = New(CodeIndexOutOfRange, "")
	ErrUpkeepNotNeeded   = New(CodeUpkeepNotNeeded, "")
	ErrSlippageExceeded  = New(CodeSlippageExceeded, "")
	ErrTransferFailed    = New(CodeTransferFailed, "")
	ErrStorageFailure    = New(CodeStorageFailure, "")
)

// AttributesOf returns the attributes registered for code, falling back to UNKNOWN.
func AttributesOf(code Code) Attributes {
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error is the engine's error type.
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option customises an Error at construction.
type Option func(*Error)

// WithMetadata attaches a key/value pair, e.g. the asset or user involved.
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// New creates an Error. An empty message uses the code's default.
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Newf is New with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates an Error with cause as its underlying error.
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code returns the failure kind.
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message returns the human readable message without the cause.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata returns a copy of the attached metadata.
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Retryable reports whether a later invocation may succeed without caller changes.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return AttributesOf(e.code).Retryable
}

// From extracts the first *Error in err's chain.
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf returns err's code, or UNKNOWN when err carries none.
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// RetryableError reports whether any error in err's chain is retryable.
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return e.Retryable()
	}
	return false
}
