package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context, creating a ModuleError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *ModuleError {
	if err == nil {
		return nil
	}

	var me *ModuleError
	if errors.As(err, &me) {
		return &ModuleError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       me,
			Context:     me.Context,
			Key:         me.Key,
			Route:       me.Route,
			Attempt:     me.Attempt,
			Recoverable: me.Recoverable,
		}
	}

	return &ModuleError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeLoad || errType == ErrorTypeIO,
	}
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *ModuleError {
	me := Wrap(err, ErrorTypeConfig, code, message)
	if me != nil {
		me.Recoverable = false
	}
	return me
}

// WrapIO wraps an error as an I/O error for the given module
func WrapIO(err error, key, message string) *ModuleError {
	me := Wrap(err, ErrorTypeIO, ErrCodeFetchFailed, message)
	if me != nil {
		me.Key = key
	}
	return me
}

// FromPanic converts a recovered panic value into an internal error
func FromPanic(key string, recovered interface{}) *ModuleError {
	var cause error
	if err, ok := recovered.(error); ok {
		cause = err
	} else {
		cause = fmt.Errorf("%v", recovered)
	}
	return &ModuleError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: "loader panicked",
		Cause:   cause,
		Key:     key,
	}
}

// GetErrorCode extracts the code from a ModuleError, or "" for other errors
func GetErrorCode(err error) string {
	var me *ModuleError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// GetErrorContext extracts the context map from a ModuleError
func GetErrorContext(err error) map[string]interface{} {
	var me *ModuleError
	if errors.As(err, &me) {
		return me.Context
	}
	return nil
}

// IsTimeout reports whether err was caused by a deadline, either a load
// timeout or the caller's own
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// IsCanceled reports whether err was caused by context cancellation
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
