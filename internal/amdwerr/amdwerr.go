// Package amdwerr defines the error kinds propagated by the storage and
// query engine (spec §7), wrapped as sentinel errors so callers can use
// errors.Is instead of string matching.
package amdwerr

import "errors"

// Kind classifies an error for logging and metrics labeling.
type Kind string

const (
	ConfigInvalid         Kind = "config_invalid"
	BackendTransport       Kind = "backend_transport"
	BackendThrottled       Kind = "backend_throttled"
	BackendNotFound        Kind = "backend_not_found"
	KeyDecodeError         Kind = "key_decode_error"
	QueryOutOfRange        Kind = "query_out_of_range"
	AuthRejected           Kind = "auth_rejected"
	UnsupportedAggregator  Kind = "unsupported_aggregator"
)

// Error wraps a Kind with its underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target carries the same Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New builds an *Error for the given kind and op, optionally wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// sentinels for direct errors.Is comparisons without constructing an Op string.
var (
	ErrTableNotFound  = errors.New("table not found")
	ErrTableNotActive = errors.New("table not active")
	ErrThrottled      = errors.New("throughput exceeded")
	ErrConflict       = errors.New("conflict")
	ErrTransport      = errors.New("transport error")
)
