package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeExecution              = "EXECUTION_ERROR"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeMissingStartNode       = "MISSING_START_NODE"
	ErrCodeInvalidTransition      = "INVALID_TRANSITION"
	ErrCodeUnsupportedStepType    = "UNSUPPORTED_STEP_TYPE"
	ErrCodeConcurrentModification = "CONCURRENT_MODIFICATION"
	ErrCodeStalled                = "WORKFLOW_STALLED"
	ErrCodeInterpolation          = "INTERPOLATION_ERROR"
	ErrCodeStore                  = "STORE_ERROR"
)

// WorkflowError is the structured error type for all engine operations.
type WorkflowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StepID  string         `json:"step_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *WorkflowError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Code, e.StepID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new WorkflowError.
func NewError(code, message string) *WorkflowError {
	return &WorkflowError{Code: code, Message: message}
}

// NewErrorf creates a new WorkflowError with a formatted message.
func NewErrorf(code, format string, args ...any) *WorkflowError {
	return &WorkflowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithStep attaches a step ID to the error.
func (e *WorkflowError) WithStep(stepID string) *WorkflowError {
	e.StepID = stepID
	return e
}

// WithCause attaches an underlying cause.
func (e *WorkflowError) WithCause(err error) *WorkflowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *WorkflowError) WithDetails(details map[string]any) *WorkflowError {
	e.Details = details
	return e
}

// CodeOf returns the error code if err is a *WorkflowError, or "" otherwise.
func CodeOf(err error) string {
	if we, ok := err.(*WorkflowError); ok {
		return we.Code
	}
	return ""
}
