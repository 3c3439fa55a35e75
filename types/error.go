package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Engine error codes
const (
	ErrSessionNotFound              ErrorCode = "SESSION_NOT_FOUND"
	ErrWorkflowNotFound             ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrNodeNotFound                 ErrorCode = "NODE_NOT_FOUND"
	ErrUnknownNodeType              ErrorCode = "UNKNOWN_NODE_TYPE"
	ErrAgentCommunicatorUnavailable ErrorCode = "AGENT_COMMUNICATOR_UNAVAILABLE"
	ErrNodeExecution                ErrorCode = "NODE_EXECUTION_ERROR"
	ErrIterationLimitExceeded       ErrorCode = "ITERATION_LIMIT_EXCEEDED"
	ErrInvalidSessionState          ErrorCode = "INVALID_SESSION_STATE"
	ErrInvalidWorkflow              ErrorCode = "INVALID_WORKFLOW"
)

// Transport error codes (agent communicator)
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrTimeout            ErrorCode = "TIMEOUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	AgentID    string    `json:"agent_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithAgent sets the agent the error originated from.
func (e *Error) WithAgent(agentID string) *Error {
	e.AgentID = agentID
	return e
}

// AsError extracts a *Error from anywhere in the error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
