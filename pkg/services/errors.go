// Package services holds the operations behind the HTTP surface: workflow CRUD, trigger
// intake and run statistics.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/autoflow/pkg/persistence"
)

// Policy errors reject a trigger before any run is created.
var (
	ErrInvalidRequest = errors.New("invalid request")

	ErrWorkflowNotFound    = persistence.ErrWorkflowNotFound
	ErrWorkflowInactive    = errors.New("workflow is not active")
	ErrTriggerTypeMismatch = errors.New("workflow trigger type does not match")
	ErrTriggerNotConnected = errors.New("workflow does not have a connected trigger")
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

// IsValidationError checks if an error should be answered with HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrTriggerTypeMismatch) ||
		errors.Is(err, ErrTriggerNotConnected)
}

// IsNotFoundError checks if an error should be answered with HTTP 404. Inactive workflows
// are reported as missing.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) || errors.Is(err, ErrWorkflowInactive)
}

func newPolicyError(op, code, message string, err error) *ServiceError {
	return &ServiceError{Op: op, Code: code, Message: message, Err: err}
}
