package services

import (
	"errors"
	"fmt"
)

// ErrorCode classifies engine failures for callers.
type ErrorCode string

const (
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeInvalidInput         ErrorCode = "INVALID_INPUT"
	CodePreconditionFailed   ErrorCode = "PRECONDITION_FAILED"
	CodeExternalToolFailure  ErrorCode = "EXTERNAL_TOOL_FAILURE"
	CodeRecoverableExecution ErrorCode = "RECOVERABLE_EXECUTION_ERROR"
	CodeDataIntegrity        ErrorCode = "DATA_INTEGRITY_VIOLATION"
)

// ServiceError is a structured engine failure carrying the originating
// service and operation plus free-form diagnostic context.
type ServiceError struct {
	Code    ErrorCode
	Service string
	Op      string
	Message string
	Context map[string]any
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Service, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Service, e.Op, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

func newError(code ErrorCode, service, op, message string, context map[string]any) *ServiceError {
	return &ServiceError{Code: code, Service: service, Op: op, Message: message, Context: context}
}

func wrapError(code ErrorCode, service, op, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Service: service, Op: op, Message: message, Err: err}
}

// CodeOf extracts the ErrorCode from err, or empty when err is not a
// ServiceError.
func CodeOf(err error) ErrorCode {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
