// Package cfu holds the error type shared by the target and host halves of
// the protocol engine, modeled on the teacher driver's status/error
// convention (see DESIGN.md).
package cfu

import "fmt"

// Code is a coarse-grained error classification, independent of the wire
// status/reason enums in pkg/wire (those are protocol outcomes; Code
// classifies failures in the Go API surface itself: bad arguments, closed
// transports, timeouts, and so on).
type Code int

const (
	CodeInvalidArgument Code = iota
	CodeNotFound
	CodeBusy
	CodeTimeout
	CodeTransportClosed
	CodeSequenceMismatch
	CodeNoOffer
	CodeCrcMismatch
	CodeSignatureFailure
	CodeInternal
)

var codeMessages = map[Code]string{
	CodeInvalidArgument:  "invalid argument",
	CodeNotFound:         "not found",
	CodeBusy:             "busy",
	CodeTimeout:          "timeout",
	CodeTransportClosed:  "transport closed",
	CodeSequenceMismatch: "sequence mismatch",
	CodeNoOffer:          "no offer in progress",
	CodeCrcMismatch:      "crc mismatch",
	CodeSignatureFailure: "signature verification failed",
	CodeInternal:         "internal error",
}

func (c Code) String() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return fmt.Sprintf("unknown code (%d)", int(c))
}

// Error is the error type returned by target and host engine operations.
type Error struct {
	Code    Code
	Context string
	Cause   error
}

func (e *Error) Error() string {
	if e.Context != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Context, e.Code, e.Cause)
		}
		return fmt.Sprintf("%s: %s", e.Context, e.Code)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Cause)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Code alone so callers can write errors.Is(err, cfu.ErrBusy).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == other.Code
}

// NewError creates an Error with no underlying cause.
func NewError(code Code, context string) *Error {
	return &Error{Code: code, Context: context}
}

// NewErrorWithCause creates an Error wrapping an underlying cause.
func NewErrorWithCause(code Code, context string, cause error) *Error {
	return &Error{Code: code, Context: context, Cause: cause}
}

// Sentinel errors for errors.Is comparisons against bare codes.
var (
	ErrBusy             = NewError(CodeBusy, "")
	ErrTimeout          = NewError(CodeTimeout, "")
	ErrTransportClosed  = NewError(CodeTransportClosed, "")
	ErrSequenceMismatch = NewError(CodeSequenceMismatch, "")
	ErrNoOffer          = NewError(CodeNoOffer, "")
	ErrCrcMismatch      = NewError(CodeCrcMismatch, "")
	ErrSignatureFailure = NewError(CodeSignatureFailure, "")
	ErrNotFound         = NewError(CodeNotFound, "")
)

// Logger is the minimal logging capability both engines accept, matching
// the teacher's log.Printf-based call sites. log.Logger satisfies this
// interface, as does any adapter a caller wants to supply.
type Logger interface {
	Printf(format string, args ...any)
}
