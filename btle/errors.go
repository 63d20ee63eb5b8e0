package btle

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure reported by the helper protocol stack
type Kind string

const (
	// KindValidation is a local argument check that failed before any transport I/O.
	KindValidation Kind = "validation"
	// KindDecode is malformed wire data; the session is torn down.
	KindDecode Kind = "decode"
	// KindDisconnected means the controller reported link loss.
	KindDisconnected Kind = "disconnected"
	// KindManagement is a privilege or management-layer failure; the session is torn down.
	KindManagement Kind = "management"
	// KindGatt is a remote ATT-layer failure; the session stays usable.
	KindGatt Kind = "gatt"
	// KindInternal means the helper is gone or was never started.
	KindInternal Kind = "internal"
	// KindProtocol is an unexpected but well-formed exchange.
	KindProtocol Kind = "protocol"
)

// Error is the single error type raised by the stack.
// Status and Detail carry the helper's estat/emsg fields when present.
type Error struct {
	Kind   Kind
	Msg    string
	Status string
	Detail string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Status != "" || e.Detail != "" {
		parts := make([]string, 0, 2)
		if e.Status != "" {
			parts = append(parts, "code: "+e.Status)
		}
		if e.Detail != "" {
			parts = append(parts, "error: "+e.Detail)
		}
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(parts, ", "))
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is checks, one per Kind
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrDecode       = &Error{Kind: KindDecode}
	ErrDisconnected = &Error{Kind: KindDisconnected}
	ErrManagement   = &Error{Kind: KindManagement}
	ErrGatt         = &Error{Kind: KindGatt}
	ErrInternal     = &Error{Kind: KindInternal}
	ErrProtocol     = &Error{Kind: KindProtocol}
)

// NewError builds an Error of the given kind
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WithStatus attaches the helper's estat/emsg values
func (e *Error) WithStatus(status, detail string) *Error {
	e.Status = status
	e.Detail = detail
	return e
}

// IsKind reports whether err is an Error of the given kind
func IsKind(err error, kind Kind) bool {
	var berr *Error
	if errors.As(err, &berr) {
		return berr.Kind == kind
	}
	return false
}

// IsFatal reports whether err leaves the session unusable.
// Validation and GATT failures are local to the failing call.
func IsFatal(err error) bool {
	var berr *Error
	if !errors.As(err, &berr) {
		return err != nil
	}
	switch berr.Kind {
	case KindValidation, KindGatt:
		return false
	default:
		return true
	}
}
