// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrVersionNotFound indicates a workflow version was not found.
	ErrVersionNotFound = errors.New("workflow version not found")

	// ErrRunNotFound indicates a run was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrScheduleNotFound indicates a schedule was not found by the given identifier.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrWebhookNotFound indicates a webhook was not found by id or token.
	ErrWebhookNotFound = errors.New("webhook not found")

	// ErrVersionConflict indicates a version number is already taken for the workflow.
	ErrVersionConflict = errors.New("workflow version already exists")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op     string // Operation being performed
	RunID  string // Run ID
	StepID string // Step ID when the operation targets one step
	Err    error  // Underlying error
}

func (e *RunError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s operation failed for step %s of run %s: %v", e.Op, e.StepID, e.RunID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{Op: op, RunID: runID, Err: err}
}

// ScheduleError wraps schedule-related errors with additional context.
type ScheduleError struct {
	Op         string
	ScheduleID string
	Err        error
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("%s operation failed for schedule %s: %v", e.Op, e.ScheduleID, e.Err)
}

func (e *ScheduleError) Unwrap() error {
	return e.Err
}

func (e *ScheduleError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// WebhookError wraps webhook-related errors with additional context.
type WebhookError struct {
	Op        string
	WebhookID string
	Err       error
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("%s operation failed for webhook %s: %v", e.Op, e.WebhookID, e.Err)
}

func (e *WebhookError) Unwrap() error {
	return e.Err
}

func (e *WebhookError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsNotFound checks if an error indicates any record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrWebhookNotFound)
}
