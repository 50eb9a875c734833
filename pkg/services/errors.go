// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/stepflow/pkg/validation"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidStatus        = errors.New("invalid workflow status")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrInvalidCron          = errors.New("invalid cron expression")
	ErrInvalidTimezone      = errors.New("invalid timezone")
	ErrInvalidWorkflow      = errors.New("workflow graph is invalid")

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowNotActive = errors.New("workflow is not active")
	ErrNoCurrentVersion  = errors.New("workflow has no published version")
	ErrScheduleInactive  = errors.New("schedule is not active")
	ErrWebhookInactive   = errors.New("webhook is not active")

	// Authentication Errors (401 Unauthorized).
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// InvalidWorkflowError carries the validation findings that blocked a save
// or publish.
type InvalidWorkflowError struct {
	Op     string
	Result *validation.Result
}

func (e *InvalidWorkflowError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrInvalidWorkflow, e.Result.Error())
}

func (e *InvalidWorkflowError) Unwrap() error {
	return ErrInvalidWorkflow
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrInvalidCron) ||
		errors.Is(err, ErrInvalidTimezone) ||
		errors.Is(err, ErrInvalidWorkflow)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowNotActive) ||
		errors.Is(err, ErrNoCurrentVersion) ||
		errors.Is(err, ErrScheduleInactive) ||
		errors.Is(err, ErrWebhookInactive)
}

// IsUnauthorizedError checks if an error should return HTTP 401.
func IsUnauthorizedError(err error) bool {
	return errors.Is(err, ErrInvalidSignature)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
