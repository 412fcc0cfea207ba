// Package errors provides standardized error handling for the registration
// lifecycle engine.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidTransition       ErrorCode = "INVALID_TRANSITION"
	ErrCodeIneligibleForAcceptance ErrorCode = "INELIGIBLE_FOR_ACCEPTANCE"
	ErrCodeApplicationNotFound     ErrorCode = "APPLICATION_NOT_FOUND"
	ErrCodeQuestionNotFound        ErrorCode = "QUESTION_NOT_FOUND"

	ErrCodeDanglingCondition     ErrorCode = "DANGLING_CONDITION"
	ErrCodeSchemaLoadFailed      ErrorCode = "SCHEMA_LOAD_FAILED"
	ErrCodeInvalidAudienceFilter ErrorCode = "INVALID_AUDIENCE_FILTER"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeQueryTimeout             ErrorCode = "QUERY_TIMEOUT"

	ErrCodeAutomationClaimLost ErrorCode = "AUTOMATION_CLAIM_LOST"
	ErrCodeTemplateNotFound    ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeEmailSendFailed     ErrorCode = "EMAIL_SEND_FAILED"
	ErrCodeEventPublishFailed  ErrorCode = "EVENT_PUBLISH_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidTransitionError creates a non-retryable state machine error.
// The attempted transition is rejected and no state is mutated.
func NewInvalidTransitionError(from, trigger string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Transition not permitted from current state",
		Details:   fmt.Sprintf("from: %s, trigger: %s", from, trigger),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewIneligibleForAcceptanceError creates a non-retryable accept-guard error.
// Raised when the approval threshold is not met, or when the application left
// under_review before the conditional update landed (concurrent accept).
func NewIneligibleForAcceptanceError(applicationID string, approvedTeams int) *StandardError {
	return &StandardError{
		Code:      ErrCodeIneligibleForAcceptance,
		Message:   "Application is not eligible for acceptance",
		Details:   fmt.Sprintf("applicationId: %s, approvedTeams: %d", applicationID, approvedTeams),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewApplicationNotFoundError creates a non-retryable lookup error.
func NewApplicationNotFoundError(applicationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeApplicationNotFound,
		Message:   "Application not found",
		Details:   fmt.Sprintf("applicationId: %s", applicationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQuestionNotFoundError creates a non-retryable lookup error.
func NewQuestionNotFoundError(questionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQuestionNotFound,
		Message:   "Question not found in active schema",
		Details:   fmt.Sprintf("questionId: %s", questionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDanglingConditionError creates a non-retryable schema configuration error.
// The resolver fails open: the affected question is treated as always-active.
func NewDanglingConditionError(questionID, showIfQuestionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDanglingCondition,
		Message:   "Conditional visibility references an unknown question",
		Details:   fmt.Sprintf("questionId: %s, showIfQuestionId: %s", questionID, showIfQuestionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSchemaLoadFailedError creates a retryable schema repository error.
func NewSchemaLoadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSchemaLoadFailed,
		Message:   "Failed to load active question schema",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidAudienceFilterError creates a non-retryable automation configuration error.
func NewInvalidAudienceFilterError(automationID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidAudienceFilter,
		Message:   "Automation audience filter failed schema validation",
		Details:   fmt.Sprintf("automationId: %s, %s", automationID, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryTimeoutError creates a retryable query timeout error.
func NewQueryTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryTimeout,
		Message:   "Database query timeout",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewTemplateNotFoundError creates a non-retryable template error.
func NewTemplateNotFoundError(templateKey string) *StandardError {
	return &StandardError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "Email template not found in registry",
		Details:   fmt.Sprintf("templateKey: %s", templateKey),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEmailSendFailedError creates a retryable email delivery error.
// Per-recipient failures are logged and never abort a dispatch batch.
func NewEmailSendFailedError(recipient string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEmailSendFailed,
		Message:   "Email delivery failed",
		Details:   fmt.Sprintf("recipient: %s, error: %s", recipient, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewEventPublishFailedError creates a retryable notification event error.
func NewEventPublishFailedError(eventKey string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEventPublishFailed,
		Message:   "Notification event publish failed",
		Details:   fmt.Sprintf("event: %s, error: %s", eventKey, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return &StandardError{
		Code:      "BUSINESS_RULE_VIOLATION",
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsRetryable reports whether err is a retryable StandardError.
func IsRetryable(err error) bool {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Retryable
	}
	return false
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TRANSITION") || strings.Contains(codeStr, "ACCEPTANCE"):
		return "LIFECYCLE"
	case strings.Contains(codeStr, "SCHEMA") || strings.Contains(codeStr, "CONDITION") || strings.Contains(codeStr, "FILTER"):
		return "CONFIGURATION"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "EMAIL") || strings.Contains(codeStr, "TEMPLATE") || strings.Contains(codeStr, "AUTOMATION"):
		return "EMAIL"
	case strings.Contains(codeStr, "EVENT"):
		return "EVENTS"
	default:
		return "OTHER"
	}
}
