package rpc

import (
	"errors"
	"fmt"
)

// Kind discriminates the failures produced by the dispatch core itself.
//
// Errors returned by handlers are never converted to an *Error; they reach
// the caller unchanged.
type Kind int

const (
	// KindMethodUnknown means the router has no entry for the method.
	KindMethodUnknown Kind = iota + 1
	// KindMissingParams means params were required but absent.
	KindMissingParams
	// KindParamsParsing means params were present but did not fit the params type.
	KindParamsParsing
	// KindResourceExtraction means a declared resource was not in the bag.
	KindResourceExtraction
	// KindSerialization means the handler succeeded but its result could not be encoded.
	KindSerialization
)

func (k Kind) String() string {
	switch k {
	case KindMethodUnknown:
		return "method_unknown"
	case KindMissingParams:
		return "missing_params"
	case KindParamsParsing:
		return "params_parsing"
	case KindResourceExtraction:
		return "resource_extraction"
	case KindSerialization:
		return "serialization"
	}
	return "unknown"
}

// Error is a dispatch failure.
//
// Method is set for KindMethodUnknown. Type names the params or resource type
// involved, when there is one. Cause holds the underlying error, if any.
type Error struct {
	Kind   Kind
	Method string
	Type   string
	Cause  error
}

// Sentinels for use with errors.Is. They match any *Error of the same Kind.
var (
	ErrMethodUnknown      = &Error{Kind: KindMethodUnknown}
	ErrMissingParams      = &Error{Kind: KindMissingParams}
	ErrParamsParsing      = &Error{Kind: KindParamsParsing}
	ErrResourceExtraction = &Error{Kind: KindResourceExtraction}
	ErrSerialization      = &Error{Kind: KindSerialization}
)

func (e *Error) Error() string {
	if e == nil {
		return "rpc: error: <nil>"
	}
	var msg string
	switch e.Kind {
	case KindMethodUnknown:
		msg = fmt.Sprintf("rpc: method unknown: %q", e.Method)
	case KindMissingParams:
		msg = "rpc: missing params"
	case KindParamsParsing:
		msg = "rpc: invalid params"
	case KindResourceExtraction:
		msg = "rpc: resource not available"
	case KindSerialization:
		msg = "rpc: cannot encode result"
	default:
		msg = "rpc: error"
	}
	if e.Type != "" {
		msg += " (" + e.Type + ")"
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var re *Error
	if errors.As(err, &re) && re != nil {
		return re.Kind, true
	}
	return 0, false
}

func methodUnknown(method string) error {
	return &Error{Kind: KindMethodUnknown, Method: method}
}

func newError(kind Kind, typ string, cause error) error {
	// Avoid double-wrapping a core error raised by a custom decoder or extractor.
	var re *Error
	if errors.As(cause, &re) {
		return cause
	}
	return &Error{Kind: kind, Type: typ, Cause: cause}
}
