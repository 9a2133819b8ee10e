// Package errors classifies engine failures so callers can tell a fatal
// connection problem from a per-file hiccup.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrVanished     = errors.New("file vanished")
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	// CodeConnectivity covers DNS, authentication and login self-test failures.
	// Fatal at login time and never retried.
	CodeConnectivity ErrorCode = "connectivity"
	// CodeTransient is a single remote operation failing mid-cycle.
	CodeTransient ErrorCode = "transient"
	// CodeLocalRace is a local file disappearing between detection and use.
	CodeLocalRace ErrorCode = "local_race"
	// CodeInvariant flags possible state store corruption.
	CodeInvariant    ErrorCode = "invariant"
	CodeBadFilename  ErrorCode = "bad_filename"
	CodeInvalidInput ErrorCode = "invalid_input"
	CodeNotFound     ErrorCode = "not_found"
)

// AppError represents an application-specific error with context
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap implements the unwrap interface to support errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new AppError with the given code and message
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error in an AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Connectivity creates a login-time failure carrying a human readable reason.
func Connectivity(reason string, err error) *AppError {
	return Wrap(err, CodeConnectivity, reason)
}

// Transient creates a per-file remote operation failure.
func Transient(op, path string, err error) *AppError {
	return &AppError{
		Code:    CodeTransient,
		Message: fmt.Sprintf("%s %s failed", op, path),
		Err:     err,
		Context: map[string]interface{}{"operation": op, "path": path},
	}
}

// Vanished creates a local race error for a file that no longer exists.
func Vanished(path string, err error) *AppError {
	if err == nil {
		err = ErrVanished
	}
	return &AppError{
		Code:    CodeLocalRace,
		Message: fmt.Sprintf("local file %s vanished", path),
		Err:     err,
		Context: map[string]interface{}{"path": path},
	}
}

// Invariant creates a corruption signal error.
func Invariant(message string) *AppError {
	return New(CodeInvariant, message)
}

// InvalidInput creates a new invalid input error
func InvalidInput(details string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input: %s", details),
		Err:     ErrInvalidInput,
	}
}

// NotFound creates a new not found error
func NotFound(resourceType, identifier string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resourceType, identifier),
		Err:     ErrNotFound,
		Context: map[string]interface{}{
			"resourceType": resourceType,
			"identifier":   identifier,
		},
	}
}

// Is checks if the error is of the specified code
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsConnectivity reports whether err is a fatal login-time failure.
func IsConnectivity(err error) bool { return Is(err, CodeConnectivity) }

// IsTransient reports whether err is a per-file remote failure.
func IsTransient(err error) bool { return Is(err, CodeTransient) }

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return Is(err, CodeNotFound) || errors.Is(err, ErrNotFound)
}
