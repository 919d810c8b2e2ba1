// Package errors provides the error taxonomy for the aceorbit client.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure classes
var (
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrTransportFailure      = errors.New("transport failure")
	ErrMalformedResponse     = errors.New("malformed response")
	ErrPersistenceFailure    = errors.New("persistence failure")
)

// Capability names a host-provided feature that may be absent
type Capability string

const (
	CapabilityRecognition Capability = "speech recognition"
	CapabilitySynthesis   Capability = "speech synthesis"
	CapabilityClipboard   Capability = "clipboard"
)

// CapabilityError reports that the host lacks an optional feature
type CapabilityError struct {
	Capability Capability
}

func (e *CapabilityError) Error() string {
	switch e.Capability {
	case CapabilityRecognition:
		return "Speech Recognition not supported on this host."
	case CapabilitySynthesis:
		return "Speech Synthesis not supported on this host."
	}
	return fmt.Sprintf("%s not supported on this host.", e.Capability)
}

// Is allows comparison with sentinel errors
func (e *CapabilityError) Is(target error) bool {
	if target == ErrCapabilityUnavailable {
		return true
	}
	_, ok := target.(*CapabilityError)
	return ok
}

// NewCapabilityError creates a new CapabilityError
func NewCapabilityError(c Capability) *CapabilityError {
	return &CapabilityError{Capability: c}
}

// APIError represents a non-success response from the backend
type APIError struct {
	StatusCode int
	Endpoint   string
	Detail     string // "detail" field of the error body, if any
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("API error [%d] at %s: %s", e.StatusCode, e.Endpoint, e.Detail)
	}
	return fmt.Sprintf("API error [%d] at %s", e.StatusCode, e.Endpoint)
}

// Is allows comparison with sentinel errors
func (e *APIError) Is(target error) bool {
	if target == ErrTransportFailure {
		return true
	}
	_, ok := target.(*APIError)
	return ok
}

// NewAPIError creates a new APIError
func NewAPIError(statusCode int, endpoint, detail string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Endpoint:   endpoint,
		Detail:     detail,
	}
}

// NetworkError represents a failure to reach the backend
type NetworkError struct {
	Operation string
	Endpoint  string
	Err       error
}

func (e *NetworkError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("network error during %s at %s: %v", e.Operation, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("network error during %s: %v", e.Operation, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is allows comparison with sentinel errors
func (e *NetworkError) Is(target error) bool {
	if target == ErrTransportFailure {
		return true
	}
	_, ok := target.(*NetworkError)
	return ok
}

// NewNetworkError creates a new NetworkError
func NewNetworkError(operation, endpoint string, err error) *NetworkError {
	return &NetworkError{Operation: operation, Endpoint: endpoint, Err: err}
}

// TimeoutError represents a request timeout
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string {
	if e.Message == "" {
		return "request timed out"
	}
	return fmt.Sprintf("request timed out: %s", e.Message)
}

// Is allows comparison with sentinel errors
func (e *TimeoutError) Is(target error) bool {
	if target == ErrTransportFailure {
		return true
	}
	_, ok := target.(*TimeoutError)
	return ok
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(message string) *TimeoutError {
	return &TimeoutError{Message: message}
}

// ParseError represents a success response whose body could not be parsed
type ParseError struct {
	Message    string
	StatusCode int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s", e.Message)
}

// Is allows comparison with sentinel errors. A malformed response is
// handled as a transport failure.
func (e *ParseError) Is(target error) bool {
	if target == ErrMalformedResponse || target == ErrTransportFailure {
		return true
	}
	_, ok := target.(*ParseError)
	return ok
}

// NewParseError creates a new ParseError
func NewParseError(message string, statusCode int) *ParseError {
	return &ParseError{Message: message, StatusCode: statusCode}
}

// PersistenceError represents a store read or write failure
type PersistenceError struct {
	Op  string // "read", "write" or "delete"
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is allows comparison with sentinel errors
func (e *PersistenceError) Is(target error) bool {
	if target == ErrPersistenceFailure {
		return true
	}
	_, ok := target.(*PersistenceError)
	return ok
}

// NewPersistenceError creates a new PersistenceError
func NewPersistenceError(op, key string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Key: key, Err: err}
}

// IsCapabilityError reports whether err is a missing capability
func IsCapabilityError(err error) bool {
	return errors.Is(err, ErrCapabilityUnavailable)
}

// IsTransportError reports whether err is any outbound request failure
func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransportFailure)
}

// IsNetworkError reports whether err is a connectivity failure
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsTimeoutError reports whether err is a timeout
func IsTimeoutError(err error) bool {
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// IsPersistenceError reports whether err is a store failure
func IsPersistenceError(err error) bool {
	return errors.Is(err, ErrPersistenceFailure)
}

// GetHTTPStatus extracts the HTTP status code from err, or 0
func GetHTTPStatus(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return parseErr.StatusCode
	}
	return 0
}

// Describe converts err into the single-line message shown to the user.
// The backend's detail field wins, then a generic message carrying the
// status code.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if detail := strings.TrimSpace(apiErr.Detail); detail != "" {
			return detail
		}
		return fmt.Sprintf("Request failed: %d", apiErr.StatusCode)
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if parseErr.StatusCode > 0 {
			return fmt.Sprintf("Request failed: invalid response (%d)", parseErr.StatusCode)
		}
		return "Request failed: invalid response"
	}

	var capErr *CapabilityError
	if errors.As(err, &capErr) {
		return capErr.Error()
	}

	if IsTimeoutError(err) {
		return "Request failed: timed out"
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return fmt.Sprintf("Request failed: %v", netErr.Err)
	}

	return err.Error()
}
