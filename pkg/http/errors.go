package http

import (
	"fmt"
	"net/http"
)

// Error codes of the proxy failure taxonomy.
const (
	CodeInvalidRequest = "ERR_INVALID_REQUEST"
	CodeConfiguration  = "ERR_CONFIGURATION"
	CodeUnexpected     = "ERR_UNEXPECTED"
	CodeNotFound       = "ERR_NOT_FOUND"
)

// AppError represents application-level error with HTTP status.
type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// WithError wraps an underlying error.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// InvalidRequestError is the caller's fault: missing or unknown parameters.
func InvalidRequestError(message string) *AppError {
	return NewAppError(CodeInvalidRequest, message, http.StatusBadRequest)
}

// InvalidRequestErrorf creates a 400 error with formatting.
func InvalidRequestErrorf(format string, a ...interface{}) *AppError {
	return InvalidRequestError(fmt.Sprintf(format, a...))
}

// ConfigurationError is the deployment's fault, e.g. a missing credential.
func ConfigurationError(message string) *AppError {
	return NewAppError(CodeConfiguration, message, http.StatusInternalServerError)
}

// ConfigurationErrorf creates a 500 configuration error with formatting.
func ConfigurationErrorf(format string, a ...interface{}) *AppError {
	return ConfigurationError(fmt.Sprintf(format, a...))
}

// UnexpectedError wraps any unclassified failure; the message is the cause itself.
func UnexpectedError(err error) *AppError {
	msg := "unexpected failure"
	if err != nil {
		msg = err.Error()
	}
	return NewAppError(CodeUnexpected, msg, http.StatusInternalServerError).WithError(err)
}

// NotFoundError creates a 404 error for unknown routes.
func NotFoundError(message string) *AppError {
	return NewAppError(CodeNotFound, message, http.StatusNotFound)
}
