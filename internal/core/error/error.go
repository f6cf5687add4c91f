package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Stable error codes returned to callers.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeToolNotFound    = "TOOL_NOT_FOUND"
	CodeModelInvocation = "MODEL_INVOCATION_FAILED"
	CodeTimeout         = "TURN_TIMEOUT"
	CodeToolTimeout     = "TOOL_TIMEOUT"
	CodeStorage         = "STORAGE_ERROR"
	CodeHistoryConflict = "HISTORY_CONFLICT"
	CodeInternal        = "INTERNAL_ERROR"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// StorageErrorMessage describes checkpointer backend failures.
	StorageErrorMessage = "conversation storage operation failed"
	// ModelErrorMessage describes model provider failures.
	ModelErrorMessage = "model invocation failed"
	// TimeoutErrorMessage is returned when a turn exceeds its deadline.
	TimeoutErrorMessage = "turn timed out"
)

// AppError wraps an underlying error with an HTTP status, a stable code and a safe message.
type AppError struct {
	Err     error
	Status  int
	Code    string
	Message string
	Details map[string]any
	Hints   []string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, code, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Code:    code,
		Message: message,
	}
}

// WithDetail attaches a key/value to the error details and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// WithHints appends troubleshooting hints and returns the receiver.
func (e *AppError) WithHints(hints ...string) *AppError {
	e.Hints = append(e.Hints, hints...)
	return e
}

// Validation reports malformed or missing caller input.
func Validation(message string) *AppError {
	return New(nil, http.StatusBadRequest, CodeValidation, message)
}

// ToolNotFound reports a direct invocation of an unregistered tool.
func ToolNotFound(name string) *AppError {
	return New(nil, http.StatusNotFound, CodeToolNotFound, fmt.Sprintf("tool '%s' not found", name)).
		WithDetail("tool", name)
}

// ModelInvocation wraps a model construction or invocation failure.
func ModelInvocation(err error) *AppError {
	return New(err, http.StatusBadGateway, CodeModelInvocation, ModelErrorMessage).
		WithHints(
			"check that the selected provider is reachable",
			"for the local provider make sure an OpenAI-compatible server is listening on LOCAL_BASE_URL",
		)
}

// Timeout wraps a deadline exceeded during a turn.
func Timeout(err error) *AppError {
	return New(err, http.StatusGatewayTimeout, CodeTimeout, TimeoutErrorMessage).
		WithHints("retry the turn or raise AGENT_TURN_TIMEOUT")
}

// ToolTimeout reports a direct tool invocation that exceeded the per-tool deadline.
func ToolTimeout(name string, after time.Duration, err error) *AppError {
	return New(err, http.StatusGatewayTimeout, CodeToolTimeout, fmt.Sprintf("tool '%s' timed out after %s", name, after)).
		WithDetail("tool", name).
		WithHints("retry the call or raise AGENT_TOOL_TIMEOUT")
}

// WrapStorage wraps a checkpointer backend error.
func WrapStorage(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return New(err, http.StatusBadGateway, CodeStorage, StorageErrorMessage)
}

// HistoryConflict reports a save that would rewrite persisted history.
func HistoryConflict(threadID string, stored, incoming int) *AppError {
	return New(nil, http.StatusConflict, CodeHistoryConflict, "conversation history can only be appended to").
		WithDetail("thread_id", threadID).
		WithDetail("stored_messages", stored).
		WithDetail("incoming_messages", incoming)
}

// From classifies any error into an AppError. Existing AppErrors in the chain win;
// deadline errors become timeouts; everything else is internal.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(err)
	}
	return New(err, http.StatusInternalServerError, CodeInternal, SystemErrorMessage)
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return t.Code != "" && t.Code == e.Code
	}
	return errors.Is(e.Err, target)
}

// ErrorResponse is the JSON body returned for every failed request.
type ErrorResponse struct {
	Error      string         `json:"error"`
	Code       string         `json:"code"`
	StatusCode int            `json:"statusCode"`
	Details    map[string]any `json:"details,omitempty"`
	Hints      []string       `json:"hints,omitempty"`
}

// Response renders the error with its stable message. The wrapped cause is only
// reported, under details.cause, for codes other than CodeInternal.
func (e *AppError) Response() ErrorResponse {
	details := e.Details
	if e.Code != CodeInternal && e.Err != nil {
		details = make(map[string]any, len(e.Details)+1)
		for k, v := range e.Details {
			details[k] = v
		}
		details["cause"] = e.Err.Error()
	}
	return ErrorResponse{
		Error:      e.Message,
		Code:       e.Code,
		StatusCode: e.Status,
		Details:    details,
		Hints:      e.Hints,
	}
}
