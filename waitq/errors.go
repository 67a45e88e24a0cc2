// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package waitq

import "fmt"

// Kind identifies one of the small number of ways a waitq-based primitive
// can fail. TimedOut is carried only by the sentinel Error that Await
// returns for an expired deadline: the primitives' bool-returning timeout
// waits report expiry as false, never as an error.
type Kind int

const (
	// Cancelled indicates the caller's context was done before the wait
	// was fulfilled.
	Cancelled Kind = iota
	// TimedOut indicates a wait's deadline elapsed. The only Error with
	// this Kind is the sentinel returned by Await (see IsTimedOut); callers
	// of the primitives observe it only via a false return.
	TimedOut
	// SemaphoreFull indicates a release would push a counter above its
	// configured maximum.
	SemaphoreFull
	// State indicates structural misuse of a primitive's state machine
	// (e.g. Signal on a zero-count countdown).
	State
	// Disposed indicates an operation on an already-disposed primitive.
	Disposed
	// OutOfRange indicates construction with invalid bounds.
	OutOfRange
	// FactoryFailure indicates a Lazy factory failed; the failure is
	// sticky and replayed to every observer.
	FactoryFailure
)

func (k Kind) String() string {
	switch k {
	case Cancelled:
		return "Cancelled"
	case TimedOut:
		return "TimedOut"
	case SemaphoreFull:
		return "SemaphoreFull"
	case State:
		return "State"
	case Disposed:
		return "Disposed"
	case OutOfRange:
		return "OutOfRange"
	case FactoryFailure:
		return "FactoryFailure"
	default:
		return "Unknown"
	}
}

// Error is the only error type this module constructs; the one error it
// passes through unchanged is the one a barrier's post-phase action
// returns. It carries a Kind so callers can branch on the failure taxonomy
// without depending on any particular primitive's concrete error type.
type Error struct {
	Kind Kind
	Msg  string
	// Err, if non-nil, is the underlying cause (e.g. the error a lazy
	// factory returned). It participates in errors.Is and errors.As via
	// Unwrap.
	Err error
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so that
// errors.Is(err, waitq.Cancelled) style comparisons against a bare Kind also
// work via errors.Is(err, waitq.NewKind(waitq.Cancelled)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds an *Error of the given Kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given Kind that wraps a causal error.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// NewKind returns a sentinel *Error carrying only kind, suitable for
// errors.Is comparisons, e.g. errors.Is(err, waitq.NewKind(waitq.Cancelled)).
func NewKind(kind Kind) *Error { return &Error{Kind: kind} }

// ErrDisposed is the canonical error returned by any operation (other than a
// second Dispose) on an already-disposed primitive.
var ErrDisposed = NewKind(Disposed)

// ErrCancelled is the canonical error returned by a non-bool-returning wait
// whose context was done before fulfillment.
var ErrCancelled = NewKind(Cancelled)
