// Package errors provides the structured error type shared by task handlers,
// the orchestrator and the HTTP front-ends.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Orchestration errors
const (
	ErrCodeTaskRunNotFound   ErrorCode = "TASK_RUN_NOT_FOUND"
	ErrCodeUnknownTask       ErrorCode = "UNKNOWN_TASK"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeSubmissionFailed  ErrorCode = "SUBMISSION_FAILED"
	ErrCodeResultNotReady    ErrorCode = "RESULT_NOT_READY"
	ErrCodeStoreUnavailable  ErrorCode = "STORE_UNAVAILABLE"
)

// Task handler errors
const (
	ErrCodeMailDeliveryFailed    ErrorCode = "MAIL_DELIVERY_FAILED"
	ErrCodeOnboardingFailed      ErrorCode = "ONBOARDING_FAILED"
	ErrCodeUserNotFound          ErrorCode = "USER_NOT_FOUND"
	ErrCodeAIRequestFailed       ErrorCode = "AI_REQUEST_FAILED"
	ErrCodeRandomFailure         ErrorCode = "RANDOM_FAILURE"
	ErrCodeContainerRuntimeError ErrorCode = "CONTAINER_RUNTIME_ERROR"
	ErrCodeArchiveFailed         ErrorCode = "ARCHIVE_FAILED"
)

// Generic errors
const (
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNotFound        ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeAuthentication  ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.cause }

// Summary renders the error the way it is recorded on a failed task run.
func (e *StandardError) Summary() string {
	if e.Details == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
}

// WithMetadata returns e with key set in its metadata.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ==========================
// 2. Error Constructors
// ==========================

// NewTaskRunNotFoundError wraps cause, usually the orchestrator's sentinel,
// so errors.Is keeps matching it.
func NewTaskRunNotFoundError(id string, cause error) *StandardError {
	return newError(ErrCodeTaskRunNotFound, "Task run not found", fmt.Sprintf("taskRunId: %s", id), false, cause)
}

func NewUnknownTaskError(taskKey string) *StandardError {
	return newError(ErrCodeUnknownTask, "Task is not registered", fmt.Sprintf("taskKey: %s", taskKey), false, nil)
}

// NewInvalidParametersError creates a non-retryable parameter validation error.
func NewInvalidParametersError(details string) *StandardError {
	return newError(ErrCodeInvalidParameters, "Invalid task parameters", details, false, nil)
}

// NewSubmissionFailedError reports that a run was stored but could not be queued.
func NewSubmissionFailedError(err error) *StandardError {
	return newError(ErrCodeSubmissionFailed, "Task run submission failed", detailsOf(err), true, err)
}

func NewResultNotReadyError(id, state string, cause error) *StandardError {
	return newError(ErrCodeResultNotReady, "Task run has no result yet", fmt.Sprintf("taskRunId: %s, state: %s", id, state), true, cause)
}

// NewStoreUnavailableError wraps a storage backend failure.
func NewStoreUnavailableError(store string, err error) *StandardError {
	return newError(ErrCodeStoreUnavailable, fmt.Sprintf("Store '%s' unavailable", store), detailsOf(err), true, err)
}

// NewMailDeliveryFailedError creates a retryable mail delivery error.
func NewMailDeliveryFailedError(recipient string, err error) *StandardError {
	return newError(ErrCodeMailDeliveryFailed, "Could not send email", fmt.Sprintf("to: %s, error: %s", recipient, detailsOf(err)), true, err)
}

// NewOnboardingFailedError creates a retryable onboarding enrollment error.
func NewOnboardingFailedError(userID string, err error) *StandardError {
	return newError(ErrCodeOnboardingFailed, "Could not enroll user in onboarding flow", fmt.Sprintf("userId: %s, error: %s", userID, detailsOf(err)), true, err)
}

func NewUserNotFoundError(userID string) *StandardError {
	return newError(ErrCodeUserNotFound, "User not found", fmt.Sprintf("userId: %s", userID), false, nil)
}

func NewAIRequestFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeAIRequestFailed, "AI request failed", fmt.Sprintf("operation: %s, error: %s", operation, detailsOf(err)), true, err)
}

// NewRandomFailureError is raised by the demo tasks that fail on purpose.
func NewRandomFailureError(message string) *StandardError {
	return newError(ErrCodeRandomFailure, message, "", true, nil)
}

func NewContainerRuntimeError(action string, err error) *StandardError {
	return newError(ErrCodeContainerRuntimeError, fmt.Sprintf("Container %s failed", action), detailsOf(err), true, err)
}

func NewArchiveFailedError(index string, err error) *StandardError {
	return newError(ErrCodeArchiveFailed, "Could not archive event", fmt.Sprintf("index: %s, error: %s", index, detailsOf(err)), true, err)
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), detailsOf(err), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), detailsOf(err), true, err)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeNotFound, fmt.Sprintf("Resource not found in %s", service), details, false, nil)
}

func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthentication, "Authentication failed", details, false, nil)
}

// ==========================
// 3. Utility Functions
// ==========================

// Normalize ensures we always have a StandardError. Unknown errors become a
// retryable INTERNAL_ERROR so plain Go errors from task handlers are retried.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), true, err)
}

// IsRetryable reports whether err should be retried when the task has
// attempts left.
func IsRetryable(err error) bool {
	return Normalize(err).Retryable
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	return stderrors.As(err, &stdErr) && stdErr.Code == code
}

// GetErrorCategory groups codes for logs and dashboards.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeTaskRunNotFound, ErrCodeUnknownTask, ErrCodeSubmissionFailed, ErrCodeResultNotReady:
		return "ORCHESTRATION"
	case ErrCodeStoreUnavailable, ErrCodeArchiveFailed:
		return "STORAGE"
	case ErrCodeMailDeliveryFailed, ErrCodeOnboardingFailed:
		return "NOTIFICATION"
	case ErrCodeAIRequestFailed:
		return "AI"
	case ErrCodeRandomFailure, ErrCodeContainerRuntimeError:
		return "CHAOS"
	case ErrCodeInvalidParameters:
		return "VALIDATION"
	case ErrCodeUserNotFound, ErrCodeNotFound:
		return "NOT_FOUND"
	case ErrCodeExternalService, ErrCodeTimeout:
		return "EXTERNAL"
	case ErrCodeAuthentication:
		return "AUTH"
	default:
		return "OTHER"
	}
}
