package acdc

import "errors"

// ErrorKind is a stable category for programmatic error handling.
//
// These categories are intended to remain stable across versions.
// Callers should branch on Kind/RuleID rather than matching error strings.
//
// NOTE: Error() strings are intentionally kept human-readable and may evolve.
// Use errors.As to extract *Error for structured handling.
type ErrorKind string

const (
	// KindMalformedHeader: the version header does not parse.
	KindMalformedHeader ErrorKind = "MalformedHeader"
	// KindUnsupportedKind: the serialization code is not recognized.
	KindUnsupportedKind ErrorKind = "UnsupportedKind"
	// KindSizeMismatch: the declared size disagrees with the byte length.
	KindSizeMismatch ErrorKind = "SizeMismatch"
	// KindUnknownAlgorithm: the identifier's derivation code is not registered.
	KindUnknownAlgorithm ErrorKind = "UnknownAlgorithm"
	// KindDigestMismatch: the recomputed digest disagrees with the identifier.
	KindDigestMismatch ErrorKind = "DigestMismatch"
	// KindInvalidField: a required field is missing, mistyped, or malformed.
	KindInvalidField ErrorKind = "InvalidField"
	// KindCompactOnly: inline data was requested from a compact block.
	KindCompactOnly ErrorKind = "CompactOnly"
	// KindExpansionMismatch: supplied block data does not digest to the
	// compact identifier.
	KindExpansionMismatch ErrorKind = "ExpansionMismatch"
	// KindCycleDetected: an edge walk re-entered an identifier on the
	// current path.
	KindCycleDetected ErrorKind = "CycleDetected"
	// KindNotFound: an edge target could not be resolved.
	KindNotFound ErrorKind = "NotFound"
	// KindSchemaConstraintFailed: an edge target's schema disagrees with
	// the edge's constraint.
	KindSchemaConstraintFailed ErrorKind = "SchemaConstraintFailed"
	// KindHeaderSizeOverflow: the serialized size exceeds the header field.
	KindHeaderSizeOverflow ErrorKind = "HeaderSizeOverflow"
)

// Error is the library's structured error type.
//
// RuleID is a stable identifier (e.g., ACDC-HDR-001, ACDC-FLD-104) that
// names the violated invariant or validation rule.
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    ErrorKind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newError(kind ErrorKind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind ErrorKind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given ErrorKind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
