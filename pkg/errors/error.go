// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories, each mapping to a Kind:
//   - General errors (1-99): Unknown and general errors
//   - Configuration errors (100-199): KindConfig
//   - Session / authentication errors (200-299): KindAuth
//   - Market data feed errors (300-399): KindFeed
//   - Strategy errors (400-499): KindStrategy
//   - Order gateway errors (500-599): KindGateway
//   - Engine errors (600-699): KindEngine
//   - Journal errors (700-799): KindJournal
//   - Callback errors (800-899): KindCallback
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidParameter, "invalid parameter value")
//
//	// Wrap an existing error
//	err := errors.Wrap(errors.ErrCodeAuthFailed, "failed to authenticate account", originalErr)
//
//	// Check error category
//	if errors.IsAuthError(err) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Kind returns the category of the error code.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard errors.Is function.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard errors.As function.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	if IsInsufficientDataError(err) {
		return ErrCodeInsufficientData
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// KindOf returns the category of the outermost typed error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	return GetCode(err).Kind()
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool { return KindOf(err) == KindConfig }

// IsAuthError reports whether err is a session or authentication error.
func IsAuthError(err error) bool { return KindOf(err) == KindAuth }

// IsFeedError reports whether err is a market data feed error.
func IsFeedError(err error) bool { return KindOf(err) == KindFeed }

// IsStrategyError reports whether err is a strategy error.
func IsStrategyError(err error) bool { return KindOf(err) == KindStrategy }

// IsGatewayError reports whether err is an order gateway error.
func IsGatewayError(err error) bool { return KindOf(err) == KindGateway }

// Ensure wraps err with code unless it already carries a typed code.
// Collaborators may return plain errors; the engine uses Ensure so that every
// error leaving a setup phase is classified.
func Ensure(code ErrorCode, message string, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	return Wrap(code, message, err)
}

// InsufficientDataError represents an error when there is not enough data
// for a calculation (e.g., a channel requiring a minimum number of bars).
type InsufficientDataError struct {
	Required int    // Minimum data points required
	Actual   int    // Actual data points available
	Symbol   string // Optional: symbol context
	Message  string // Human-readable message
}

// NewInsufficientDataError creates a new InsufficientDataError.
func NewInsufficientDataError(required, actual int, symbol, message string) *InsufficientDataError {
	return &InsufficientDataError{
		Required: required,
		Actual:   actual,
		Symbol:   symbol,
		Message:  message,
	}
}

// NewInsufficientDataErrorf creates a new InsufficientDataError with a formatted message.
func NewInsufficientDataErrorf(required, actual int, symbol, format string, args ...any) *InsufficientDataError {
	return &InsufficientDataError{
		Required: required,
		Actual:   actual,
		Symbol:   symbol,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *InsufficientDataError) Error() string {
	return e.Message
}

// IsInsufficientDataError checks if an error is an InsufficientDataError.
// It uses errors.As to check the error chain.
func IsInsufficientDataError(err error) bool {
	var insufficientErr *InsufficientDataError

	return errors.As(err, &insufficientErr)
}
