// Package errors defines the structured error taxonomy used across modloader.
//
// Every failure surfaced by the registry, loader and navigation gate is a
// *ModuleError carrying a Type and a Code. Two ModuleErrors compare equal
// under errors.Is when both match, so callers can test against the exported
// sentinels (ErrUnknownModule, ErrLoadFailed, ...) without inspecting
// messages.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeLoad       ErrorType = "load"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeUnknownModule      = "ERR_UNKNOWN_MODULE"
	ErrCodeRouteMisconfigured = "ERR_ROUTE_MISCONFIGURED"
	ErrCodeLoadFailed         = "ERR_LOAD_FAILED"
	ErrCodeDuplicateModule    = "ERR_DUPLICATE_MODULE"
	ErrCodeInvalidDescriptor  = "ERR_INVALID_DESCRIPTOR"
	ErrCodeRegistrySealed     = "ERR_REGISTRY_SEALED"
	ErrCodeConfigInvalid      = "ERR_CONFIG_INVALID"
	ErrCodeInvalidPath        = "ERR_INVALID_PATH"
	ErrCodeFetchFailed        = "ERR_FETCH_FAILED"
	ErrCodeAlreadyStarted     = "ERR_ALREADY_STARTED"
	ErrCodeInternalError      = "ERR_INTERNAL"
)

// Sentinels for errors.Is comparisons.
var (
	ErrUnknownModule      = &ModuleError{Type: ErrorTypeConfig, Code: ErrCodeUnknownModule}
	ErrRouteMisconfigured = &ModuleError{Type: ErrorTypeConfig, Code: ErrCodeRouteMisconfigured}
	ErrLoadFailed         = &ModuleError{Type: ErrorTypeLoad, Code: ErrCodeLoadFailed}
	ErrDuplicateModule    = &ModuleError{Type: ErrorTypeValidation, Code: ErrCodeDuplicateModule}
	ErrInvalidDescriptor  = &ModuleError{Type: ErrorTypeValidation, Code: ErrCodeInvalidDescriptor}
	ErrRegistrySealed     = &ModuleError{Type: ErrorTypeValidation, Code: ErrCodeRegistrySealed}
)

// ModuleError is a structured error type with context.
type ModuleError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Key         string
	Route       string
	Attempt     int
	Recoverable bool
}

// Error implements the error interface.
func (e *ModuleError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Key != "" {
		parts = append(parts, "module:"+e.Key)
	}

	if e.Route != "" {
		parts = append(parts, "route:"+e.Route)
	}

	if e.Attempt > 0 {
		parts = append(parts, fmt.Sprintf("attempt:%d", e.Attempt))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ModuleError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *ModuleError) Is(target error) bool {
	var t *ModuleError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *ModuleError) WithContext(key string, value interface{}) *ModuleError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithKey adds module key context.
func (e *ModuleError) WithKey(key string) *ModuleError {
	e.Key = key

	return e
}

// Error creation functions

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *ModuleError {
	return &ModuleError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *ModuleError {
	return &ModuleError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *ModuleError {
	return &ModuleError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *ModuleError {
	return &ModuleError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Helper functions for the module taxonomy

// NewUnknownModuleError reports a request for a key that was never registered.
func NewUnknownModuleError(key string) *ModuleError {
	return &ModuleError{
		Type:    ErrorTypeConfig,
		Code:    ErrCodeUnknownModule,
		Message: "module is not registered",
		Key:     key,
	}
}

// NewRouteMisconfiguredError reports a route whose module is not registered.
func NewRouteMisconfiguredError(route, key string) *ModuleError {
	return &ModuleError{
		Type:    ErrorTypeConfig,
		Code:    ErrCodeRouteMisconfigured,
		Message: "route does not map to a registered module",
		Key:     key,
		Route:   route,
	}
}

// NewLoadError wraps a transport failure with the failing key and attempt.
// A load failure is recoverable: the next request retries it.
func NewLoadError(key string, attempt int, cause error) *ModuleError {
	return &ModuleError{
		Type:        ErrorTypeLoad,
		Code:        ErrCodeLoadFailed,
		Message:     "module load failed",
		Cause:       cause,
		Key:         key,
		Attempt:     attempt,
		Recoverable: true,
	}
}

// NewDuplicateModuleError reports a second registration of the same key.
func NewDuplicateModuleError(key string) *ModuleError {
	return &ModuleError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeDuplicateModule,
		Message: "module key already registered",
		Key:     key,
	}
}

// NewInvalidDescriptorError reports a descriptor that cannot be registered.
func NewInvalidDescriptorError(key, reason string) *ModuleError {
	return &ModuleError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeInvalidDescriptor,
		Message: "invalid module descriptor: " + reason,
		Key:     key,
	}
}

// NewRegistrySealedError reports a registration after startup completed.
func NewRegistrySealedError(key string) *ModuleError {
	return &ModuleError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeRegistrySealed,
		Message: "registry is sealed",
		Key:     key,
	}
}

// Error recovery and handling utilities

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var me *ModuleError
	if errors.As(err, &me) {
		return me.Recoverable
	}

	return false
}

// IsUnknownModule checks if an error reports an unregistered key.
func IsUnknownModule(err error) bool {
	return errors.Is(err, ErrUnknownModule)
}

// IsRouteMisconfigured checks if an error reports a misconfigured route.
func IsRouteMisconfigured(err error) bool {
	return errors.Is(err, ErrRouteMisconfigured)
}

// IsLoadError checks if an error is a transport-level load failure.
func IsLoadError(err error) bool {
	return errors.Is(err, ErrLoadFailed)
}

// IsConfigError checks if an error is configuration-related.
func IsConfigError(err error) bool {
	var me *ModuleError
	if errors.As(err, &me) {
		return me.Type == ErrorTypeConfig
	}

	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle processes an error with the log level its type calls for.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var me *ModuleError
	if !errors.As(err, &me) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch me.Type {
	case ErrorTypeLoad:
		h.logger.Warn(ctx, err, "Module load failed",
			"type", me.Type,
			"code", me.Code,
			"module", me.Key,
			"attempt", me.Attempt)
	case ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Validation error occurred",
			"type", me.Type,
			"code", me.Code,
			"module", me.Key)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", me.Type,
			"code", me.Code,
			"module", me.Key,
			"route", me.Route)
	}
}
