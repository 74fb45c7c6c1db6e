// Package errors provides structured error handling for openvas-reporter.
// It defines error codes for every failure class of a report run and typed
// errors that carry the code, the failing operation and the underlying cause.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents different types of errors that can occur.
type ErrorCode string

const (
	// General errors.
	CodeUnknown       ErrorCode = "UNKNOWN"
	CodeValidation    ErrorCode = "VALIDATION"
	CodeConfiguration ErrorCode = "CONFIGURATION"
	CodeTimeout       ErrorCode = "TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodeNotFound      ErrorCode = "NOT_FOUND"

	// Scan engine errors.
	CodeAuthFailed        ErrorCode = "AUTH_FAILED"
	CodeEngine            ErrorCode = "ENGINE_ERROR"
	CodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"

	// Local network errors.
	CodeDiscoveryFailed ErrorCode = "DISCOVERY_FAILED"

	// Report output errors.
	CodeFileWrite      ErrorCode = "FILE_WRITE"
	CodeDeliveryFailed ErrorCode = "DELIVERY_FAILED"
)

// EngineError represents a failed exchange with the scan engine.
type EngineError struct {
	Code       ErrorCode
	Message    string
	Operation  string
	Status     string
	StatusText string
	Cause      error
	Context    map[string]interface{}
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Operation != "" {
		msg += fmt.Sprintf(" (operation: %s)", e.Operation)
	}
	if e.Status != "" {
		msg += fmt.Sprintf(": %s %s", e.Status, e.StatusText)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewEngineError creates a new engine error for the named operation.
func NewEngineError(code ErrorCode, operation, message string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Operation: operation,
		Context:   make(map[string]interface{}),
	}
}

// WrapEngineError wraps an existing error as an engine error.
func WrapEngineError(code ErrorCode, operation, message string, err error) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Operation: operation,
		Cause:     err,
		Context:   make(map[string]interface{}),
	}
}

// DiscoveryError represents local network discovery errors.
type DiscoveryError struct {
	Code    ErrorCode
	Message string
	Network string
	Cause   error
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	if e.Network != "" {
		return fmt.Sprintf("[%s] %s (network: %s)", e.Code, e.Message, e.Network)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DiscoveryError) Unwrap() error {
	return e.Cause
}

// NewDiscoveryError creates a new discovery error.
func NewDiscoveryError(code ErrorCode, message string) *DiscoveryError {
	return &DiscoveryError{
		Code:    code,
		Message: message,
	}
}

// WrapDiscoveryError wraps an existing error as a discovery error.
func WrapDiscoveryError(code ErrorCode, message string, err error) *DiscoveryError {
	return &DiscoveryError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// DeliveryError represents report output and mail delivery errors.
type DeliveryError struct {
	Code       ErrorCode
	Message    string
	Path       string
	Recipients []string
	Cause      error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (file: %s)", e.Path)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// WrapDeliveryError wraps an existing error as a delivery error.
func WrapDeliveryError(code ErrorCode, message, path string, err error) *DeliveryError {
	return &DeliveryError{
		Code:    code,
		Message: message,
		Path:    path,
		Cause:   err,
	}
}

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Code    ErrorCode
	Message string
	Field   string
	Value   interface{}
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new configuration error.
func NewConfigError(code ErrorCode, message string) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
	}
}

// NewConfigFieldError creates a configuration error for a specific field.
func NewConfigFieldError(code ErrorCode, message, field string, value interface{}) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Field:   field,
		Value:   value,
	}
}

// WrapConfigError wraps an existing error as a configuration error.
func WrapConfigError(code ErrorCode, message string, err error) *ConfigError {
	return &ConfigError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Utility functions for common error operations

// GetCode extracts the error code from the first typed error in the chain.
func GetCode(err error) ErrorCode {
	var engineErr *EngineError
	if stderrors.As(err, &engineErr) {
		return engineErr.Code
	}
	var discoveryErr *DiscoveryError
	if stderrors.As(err, &discoveryErr) {
		return discoveryErr.Code
	}
	var deliveryErr *DeliveryError
	if stderrors.As(err, &deliveryErr) {
		return deliveryErr.Code
	}
	var configErr *ConfigError
	if stderrors.As(err, &configErr) {
		return configErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetCode(err) == code
}

// IsFatal reports whether the error must abort a report run. Only delivery
// failures leave the run's artifacts in a usable state.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return GetCode(err) != CodeDeliveryFailed
}

// Common error creation functions

// ErrAuthRequired is returned by engine operations on a client that never
// authenticated or whose authentication failed.
func ErrAuthRequired(operation string) *EngineError {
	return NewEngineError(CodeAuthFailed, operation, "client is not authenticated")
}

// ErrMalformedResponse creates an error for engine responses missing an expected field.
func ErrMalformedResponse(operation, field string) *EngineError {
	return NewEngineError(CodeMalformedResponse, operation, "response is missing "+field)
}

// ErrConfigInvalid creates an error for invalid configuration.
func ErrConfigInvalid(field string, value interface{}) *ConfigError {
	return NewConfigFieldError(CodeValidation, "Invalid configuration value", field, value)
}

// ErrConfigMissing creates an error for missing required configuration.
func ErrConfigMissing(field string) *ConfigError {
	return NewConfigFieldError(CodeConfiguration, "Required configuration field missing", field, nil)
}
