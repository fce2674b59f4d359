package common

import "errors"

// AppError represents a shopper-facing rejection with a stable code and a readable message.
type AppError struct {
	Code    string
	Message string
	Err     error
	Details any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// CodeOf returns the code of the first AppError in the chain, or an empty string.
func CodeOf(err error) string {
	var target *AppError
	if errors.As(err, &target) {
		return target.Code
	}
	return ""
}
