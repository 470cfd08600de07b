// Package veles holds the types and error taxonomy shared across every
// VelesDB subsystem: the Point/Collection data model and the stable
// error Kind codes from the surface contract that every store and the
// query executor in pkg/query report through.
package veles

import (
	"errors"
	"fmt"
)

// Kind is a stable error classification code. Callers across process
// boundaries (REST, WASM, SDK bindings) switch on Kind rather than on
// error strings.
type Kind string

const (
	KindCollectionNotFound Kind = "CollectionNotFound"
	KindNodeExists         Kind = "NodeExists"
	KindOverflow           Kind = "Overflow"
	KindDimensionMismatch  Kind = "DimensionMismatch"
	KindNonFiniteVector    Kind = "NonFiniteVector"
	KindUnsupportedFeature Kind = "UnsupportedFeature"
	KindInvalidValue       Kind = "InvalidValue"
	KindCancelled          Kind = "Cancelled"
	KindIO                 Kind = "Io"
	KindCorruption         Kind = "Corruption"
	KindAggregationError   Kind = "AggregationError"
	KindParseError         Kind = "ParseError"
)

// ParseErrorKind refines KindParseError, per VelesQL's §4.H error model.
type ParseErrorKind string

const (
	ParseSyntaxError       ParseErrorKind = "SyntaxError"
	ParseInvalidValue      ParseErrorKind = "InvalidValue"
	ParseMissingCollection ParseErrorKind = "MissingCollection"
)

// Error is the one structured error type every VelesDB operation returns
// on failure. It carries a stable Kind, a human message, an optional
// hint, and a details bag for fields/endpoints/fragments — generalizing
// the teacher's set of per-concern sentinel errors into a single tagged
// type, since the surface contract requires a stable code rather than
// string-matched sentinels.
type Error struct {
	Kind    Kind
	Message string
	Hint    string
	Details map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Kind, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, veles.New(KindX, "")) to match purely on Kind,
// which is how callers are expected to branch on the taxonomy.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error that wraps an underlying cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithHint returns a copy of the error with a hint attached.
func (e *Error) WithHint(hint string) *Error {
	n := *e
	n.Hint = hint
	return &n
}

// WithDetail returns a copy of the error with a detail key/value attached.
func (e *Error) WithDetail(key, value string) *Error {
	n := *e
	if n.Details == nil {
		n.Details = make(map[string]string, 1)
	} else {
		cp := make(map[string]string, len(n.Details)+1)
		for k, v := range n.Details {
			cp[k] = v
		}
		n.Details = cp
	}
	n.Details[key] = value
	return &n
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error, and ok=false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
