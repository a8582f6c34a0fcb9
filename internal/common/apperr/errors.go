// Package apperr provides the error taxonomy shared by the HTTP layer and the
// workflow engine's turn loop.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes as constants. Each names a distinct failure kind the engine or
// the HTTP layer must react to.
const (
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnknownModel        = "UNKNOWN_MODEL"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeTransportError      = "TRANSPORT_ERROR"
	CodeProviderRateLimit   = "PROVIDER_RATE_LIMIT"
	CodeProviderServerError = "PROVIDER_SERVER_ERROR"
	CodeProviderAuthError   = "PROVIDER_AUTH_ERROR"
	CodeProviderQuota       = "PROVIDER_QUOTA_EXHAUSTED"
	CodeMalformedResponse   = "MALFORMED_RESPONSE"
	CodeArtifactWriteFailed = "ARTIFACT_WRITE_FAILED"
	CodeTurnDeadline        = "TURN_DEADLINE_EXCEEDED"
	CodeWorkflowDeadline    = "WORKFLOW_DEADLINE_EXCEEDED"
	CodePublishFailed       = "PUBLISH_FAILED"
	CodePublishNameConflict = "PUBLISH_NAME_CONFLICT"
	CodeCancelled           = "CANCELLED"
)

// retryableCodes lists the kinds the engine is permitted to retry locally.
// provider_rate_limit and provider_server_error share transport_error's
// bounded-retry policy at the call site; malformed_response retries up to
// the same cap; publish_name_conflict gets exactly one retry.
var retryableCodes = map[string]bool{
	CodeTransportError:      true,
	CodeProviderRateLimit:   true,
	CodeProviderServerError: true,
	CodeMalformedResponse:   true,
	CodeTurnDeadline:        true,
	CodePublishNameConflict: true,
}

// AppError represents an application-specific error with additional context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the engine may retry the operation that produced
// this error.
func (e *AppError) Retryable() bool {
	return retryableCodes[e.Code]
}

// New constructs an AppError of the given code, message, and HTTP status.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrapf constructs an AppError of the given code, wrapping an underlying cause.
func Wrapf(code string, httpStatus int, err error, format string, args ...any) *AppError {
	return &AppError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// NotFound creates a new not found error for a resource.
func NotFound(resource string, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s with id '%s' not found", resource, id), http.StatusNotFound)
}

// InvalidRequest creates a submission-time validation error (§6.1).
func InvalidRequest(message string) *AppError {
	return New(CodeInvalidRequest, message, http.StatusUnprocessableEntity)
}

// UnknownModel creates the submission-time error for an unregistered model id.
func UnknownModel(modelID string) *AppError {
	return New(CodeUnknownModel, fmt.Sprintf("model %q is not registered", modelID), http.StatusUnprocessableEntity)
}

// Conflict creates a new conflict error.
func Conflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

// InternalError creates a new internal server error with a wrapped underlying error.
func InternalError(message string, err error) *AppError {
	return Wrapf(CodeInternalError, http.StatusInternalServerError, err, "%s", message)
}

// TransportError wraps a network-level failure calling an LLM provider.
func TransportError(err error) *AppError {
	return Wrapf(CodeTransportError, http.StatusBadGateway, err, "transport error calling provider")
}

// ProviderRateLimit reports a rate-limited provider response.
func ProviderRateLimit(detail string) *AppError {
	return New(CodeProviderRateLimit, detail, http.StatusTooManyRequests)
}

// ProviderServerError reports a 5xx-class provider response.
func ProviderServerError(detail string) *AppError {
	return New(CodeProviderServerError, detail, http.StatusBadGateway)
}

// ProviderAuthError reports a non-retryable authentication failure.
func ProviderAuthError(detail string) *AppError {
	return New(CodeProviderAuthError, detail, http.StatusUnauthorized)
}

// ProviderQuotaExhausted reports a non-retryable quota failure, with a hint
// to switch to an alternate model.
func ProviderQuotaExhausted(detail string) *AppError {
	return New(CodeProviderQuota, detail+"; consider switching to an alternate model", http.StatusPaymentRequired)
}

// MalformedResponse reports a provider response that could not be parsed.
func MalformedResponse(detail string) *AppError {
	return New(CodeMalformedResponse, detail, http.StatusBadGateway)
}

// ArtifactWriteFailed reports a dropped artifact write; the turn continues.
func ArtifactWriteFailed(path string, err error) *AppError {
	return Wrapf(CodeArtifactWriteFailed, http.StatusInternalServerError, err, "failed to write artifact %q", path)
}

// TurnDeadlineExceeded reports a per-turn wall-clock deadline expiry.
func TurnDeadlineExceeded() *AppError {
	return New(CodeTurnDeadline, "turn exceeded its per-turn deadline", http.StatusGatewayTimeout)
}

// WorkflowDeadlineExceeded reports the overall workflow deadline expiring.
func WorkflowDeadlineExceeded() *AppError {
	return New(CodeWorkflowDeadline, "workflow exceeded its overall deadline", http.StatusGatewayTimeout)
}

// PublishFailed reports a failed publication attempt.
func PublishFailed(detail string, err error) *AppError {
	return Wrapf(CodePublishFailed, http.StatusBadGateway, err, "%s", detail)
}

// PublishNameConflict reports a repository name collision on the remote host.
func PublishNameConflict(name string) *AppError {
	return New(CodePublishNameConflict, fmt.Sprintf("repository name %q already exists", name), http.StatusConflict)
}

// Cancelled reports that an operation was cancelled by the caller.
func Cancelled() *AppError {
	return New(CodeCancelled, "operation was cancelled", http.StatusGone)
}

// Wrap wraps an existing error with additional context, returning an AppError.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}

	return InternalError(message, err)
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsRetryable checks if the error is one the engine may retry.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable()
	}
	return false
}

// GetHTTPStatus returns the HTTP status code for an error.
// Returns 500 Internal Server Error if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
