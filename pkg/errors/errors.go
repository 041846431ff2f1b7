// Package errors provides the structured error type shared by the query engine and the HTTP layer.
//
// Import it as perr to avoid clashing with the standard library package.
package errors

import (
	stderrs "errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies an error for the HTTP layer.
// Values are part of the JSON error payload; append new codes at the end.
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodeInvalidParameter is for request parameters failing format or range validation
	ErrorCodeInvalidParameter

	// ErrorCodeInvalidTimestamp is for timestamps that cannot be normalized to epoch seconds
	ErrorCodeInvalidTimestamp

	// ErrorCodeUnknownChain is for well-formed chains absent from the chain directory
	ErrorCodeUnknownChain

	// ErrorCodeUpstreamUnavailable is for an unreachable analytical store
	ErrorCodeUpstreamUnavailable

	// ErrorCodeMalformedResponse is for store output that cannot be reshaped
	ErrorCodeMalformedResponse

	// ErrorCodeIllegalQuery is for builder misuse (programming errors)
	ErrorCodeIllegalQuery

	// ErrorCodeDB is for errors reported by the store itself
	ErrorCodeDB
)

// String returns the wire name of the code.
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeInvalidParameter:
		return "invalid_parameter"
	case ErrorCodeInvalidTimestamp:
		return "invalid_timestamp"
	case ErrorCodeUnknownChain:
		return "unknown_chain"
	case ErrorCodeUpstreamUnavailable:
		return "upstream_unavailable"
	case ErrorCodeMalformedResponse:
		return "malformed_response"
	case ErrorCodeIllegalQuery:
		return "illegal_query"
	case ErrorCodeDB:
		return "database_error"
	default:
		return "unknown"
	}
}

// HTTPStatusCode turns an ErrorCode into an http status code
func HTTPStatusCode(c ErrorCode) int {
	switch c {
	case ErrorCodeInvalidParameter, ErrorCodeInvalidTimestamp:
		return http.StatusBadRequest
	case ErrorCodeUnknownChain:
		return http.StatusNotFound
	case ErrorCodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case ErrorCodeMalformedResponse, ErrorCodeIllegalQuery, ErrorCodeDB, ErrorCodeUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured error type.
// msg is client facing, code is machine facing, field names the offending
// request parameter and orig is the wrapped cause.
type Error struct {
	orig  error
	msg   string
	code  ErrorCode
	field string
}

// Wire is the JSON-serializable form returned by the API
type Wire struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Field returns the offending field, if any
func (e *Error) Field() string { return e.field }

// Message returns the client facing message without the wrapped cause.
func (e *Error) Message() string { return e.msg }

// ToWire converts an *Error to a Wire payload
func (e *Error) ToWire() Wire { return Wire{Code: e.code.String(), Message: e.msg, Field: e.field} }

// WireFrom converts any error into a Wire payload.
// Foreign errors are reported as unknown without leaking their text.
func WireFrom(err error) Wire {
	if err == nil {
		return Wire{}
	}
	if e, ok := As(err); ok {
		return e.ToWire()
	}
	return Wire{Code: ErrorCodeUnknown.String(), Message: "internal error"}
}

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// HTTPStatus returns the mapped HTTP status for any error
func HTTPStatus(err error) int { return HTTPStatusCode(CodeOf(err)) }

// WithField attaches a field to an *Error (copy-on-write). Foreign errors are returned unchanged.
func WithField(err error, field string) error {
	if e, ok := As(err); ok {
		c := *e
		c.field = field
		return &c
	}
	return err
}

// New returns a new *Error with the given code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// InvalidParamf returns an invalid parameter error bound to field.
func InvalidParamf(field, format string, a ...any) error {
	return &Error{code: ErrorCodeInvalidParameter, msg: fmt.Sprintf(format, a...), field: field}
}

// InvalidTimestampf returns an invalid timestamp error bound to field.
func InvalidTimestampf(field, format string, a ...any) error {
	return &Error{code: ErrorCodeInvalidTimestamp, msg: fmt.Sprintf(format, a...), field: field}
}

// UnknownChainf returns an unknown chain error.
func UnknownChainf(format string, a ...any) error {
	return &Error{code: ErrorCodeUnknownChain, msg: fmt.Sprintf(format, a...), field: "chain"}
}

// Unavailablef wraps a transport failure.
func Unavailablef(orig error, format string, a ...any) error {
	return Wrapf(orig, ErrorCodeUpstreamUnavailable, format, a...)
}

// Malformedf returns a malformed response error.
func Malformedf(format string, a ...any) error { return Newf(ErrorCodeMalformedResponse, format, a...) }

// IllegalQueryf returns a builder misuse error.
func IllegalQueryf(format string, a ...any) error { return Newf(ErrorCodeIllegalQuery, format, a...) }
