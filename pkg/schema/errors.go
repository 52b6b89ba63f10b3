package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeExecution          = "EXECUTION_ERROR"
	ErrCodeTimeout            = "TIMEOUT_ERROR"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeSchemaValidation   = "SCHEMA_VALIDATION_ERROR"
	ErrCodeUnknownAgentType   = "UNKNOWN_AGENT_TYPE"
	ErrCodeCoordinatorFault   = "COORDINATOR_FAULT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeBusy               = "BUSY"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeRetryExhausted     = "RETRY_EXHAUSTED"
	ErrCodeInterpolation      = "INTERPOLATION_ERROR"
	ErrCodeStore              = "STORE_ERROR"
	ErrCodeVault              = "VAULT_ERROR"
)

// DraftError is the structured error type for all orchestration operations.
type DraftError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *DraftError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *DraftError) Unwrap() error {
	return e.Cause
}

// NewError creates a new DraftError.
func NewError(code, message string) *DraftError {
	return &DraftError{Code: code, Message: message}
}

// NewErrorf creates a new DraftError with a formatted message.
func NewErrorf(code, format string, args ...any) *DraftError {
	return &DraftError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *DraftError) WithNode(nodeID string) *DraftError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *DraftError) WithCause(err error) *DraftError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *DraftError) WithDetails(details map[string]any) *DraftError {
	e.Details = details
	return e
}

// IsFatal reports whether the error code rules out any retry.
func (e *DraftError) IsFatal() bool {
	switch e.Code {
	case ErrCodeInvalidCredentials, ErrCodeUnknownAgentType, ErrCodeCoordinatorFault,
		ErrCodeValidation, ErrCodeInvalidTransition, ErrCodeBusy, ErrCodeNotFound:
		return true
	}
	return false
}
