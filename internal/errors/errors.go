package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid credentials/settings, raised before any network call
	ErrorTypeConfig ErrorType = iota
	// Validation errors - invalid input data or failed pre-flight checks
	ErrorTypeValidation
	// Authentication errors - credentials rejected by the identity provider
	ErrorTypeAuthentication
	// Authorization errors - caller lacks a required scope (HTTP 403)
	ErrorTypeAuthorization
	// Transport errors - network-level failures talking to the upstream API
	ErrorTypeTransport
	// API errors - non-403/404 HTTP failures after retries
	ErrorTypeAPI
	// Database errors - store connection or query failures
	ErrorTypeDatabase
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - informational, can be ignored
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not critical
	SeverityMedium
	// SeverityHigh - important, may affect functionality
	SeverityHigh
	// SeverityCritical - must be addressed, stops execution
	SeverityCritical
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Endpoint   string // Upstream endpoint, when the error came from an API call
	Status     int    // HTTP status code, 0 when not applicable
	Code       string // Provider error code (e.g. MISSING_API_PERMISSION)
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Sentinels for errors.Is matching by category.
var (
	ErrConfig         = &Error{Type: ErrorTypeConfig}
	ErrValidation     = &Error{Type: ErrorTypeValidation}
	ErrAuthentication = &Error{Type: ErrorTypeAuthentication}
	ErrAuthorization  = &Error{Type: ErrorTypeAuthorization}
	ErrTransport      = &Error{Type: ErrorTypeTransport}
	ErrAPI            = &Error{Type: ErrorTypeAPI}
	ErrDatabase       = &Error{Type: ErrorTypeDatabase}
	ErrInternal       = &Error{Type: ErrorTypeInternal}
)

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Endpoint != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Endpoint)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		e.Type.String(),
		e.Message))

	if e.Endpoint != "" {
		sb.WriteString(fmt.Sprintf("Endpoint: %s\n", e.Endpoint))
	}
	if e.Status != 0 {
		sb.WriteString(fmt.Sprintf("Status: %d\n", e.Status))
	}
	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

// String returns the category name
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeAuthentication:
		return "AUTHENTICATION"
	case ErrorTypeAuthorization:
		return "AUTHORIZATION"
	case ErrorTypeTransport:
		return "TRANSPORT"
	case ErrorTypeAPI:
		return "API"
	case ErrorTypeDatabase:
		return "DATABASE"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(3),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(3),
	}
}

// Convenience constructors for common error types

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// ValidationError creates a validation error
func ValidationError(message string) *Error {
	return New(ErrorTypeValidation, SeverityHigh, message)
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// WrapValidation wraps a failed pre-flight check as a validation error
func WrapValidation(err error, message string) *Error {
	return Wrap(err, ErrorTypeValidation, SeverityCritical, message)
}

// AuthenticationError wraps an identity provider rejection
func AuthenticationError(err error, message string) *Error {
	return Wrap(err, ErrorTypeAuthentication, SeverityCritical, message)
}

// AuthorizationError creates an error for a missing scope or an HTTP 403
func AuthorizationError(endpoint string, status int, code, message string) *Error {
	e := New(ErrorTypeAuthorization, SeverityHigh, message)
	e.Endpoint = endpoint
	e.Status = status
	e.Code = code
	return e
}

// TransportError wraps a network-level failure
func TransportError(err error, endpoint string) *Error {
	e := Wrap(err, ErrorTypeTransport, SeverityHigh, "transport failure calling upstream API")
	if e != nil {
		e.Endpoint = endpoint
	}
	return e
}

// APIError creates an error for a failed HTTP call that is neither 403 nor 404
func APIError(endpoint string, status int, code, message string) *Error {
	e := New(ErrorTypeAPI, SeverityCritical, message)
	e.Endpoint = endpoint
	e.Status = status
	e.Code = code
	return e
}

// DatabaseError wraps a database error
func DatabaseError(err error, message string) *Error {
	return Wrap(err, ErrorTypeDatabase, SeverityCritical, message)
}

// DatabaseErrorf wraps a database error with formatting
func DatabaseErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeDatabase, SeverityCritical, fmt.Sprintf(format, args...))
}

// InternalError creates an internal error
func InternalError(message string) *Error {
	return New(ErrorTypeInternal, SeverityCritical, message)
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}
	return false
}

// GetSeverity returns the severity of an error
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}

	var e *Error
	if stderrors.As(err, &e) {
		return e.Severity
	}

	return SeverityMedium
}

// GetType returns the type of the outermost structured error in the chain
func GetType(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// StatusCode returns the HTTP status carried by the error chain, or 0
func StatusCode(err error) int {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Status != 0 {
			return e.Status
		}
		err = stderrors.Unwrap(err)
	}
	return 0
}
