package common

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode is the stable machine-readable identifier of an AppError.
type ErrorCode string

const (
	CodeConfigMissing      ErrorCode = "CONFIG_MISSING"
	CodeConfigInvalid      ErrorCode = "CONFIG_INVALID"
	CodeAuthInvalidAPIKey  ErrorCode = "AUTH_INVALID_API_KEY"
	CodeInputInvalidFormat ErrorCode = "INPUT_INVALID_FORMAT"
	CodeExtractionFailed   ErrorCode = "EXTRACTION_FAILED"
	CodeInsufficientText   ErrorCode = "EXTRACTION_INSUFFICIENT_TEXT"
	CodeParseTransport     ErrorCode = "PARSE_TRANSPORT"
	CodeParseEmptyResponse ErrorCode = "PARSE_EMPTY_RESPONSE"
	CodeParseMalformedJSON ErrorCode = "PARSE_MALFORMED_JSON"
	CodeParseUnexpected    ErrorCode = "PARSE_UNEXPECTED_SHAPE"
	CodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	CodePersistenceFailed  ErrorCode = "PERSISTENCE_FAILED"
	CodeResourceNotFound   ErrorCode = "RESOURCE_NOT_FOUND"
	CodeResourceUpload     ErrorCode = "RESOURCE_UPLOAD_FAILED"
	CodeAPIRequestFailed   ErrorCode = "API_REQUEST_FAILED"
	CodeAPITimeout         ErrorCode = "API_TIMEOUT"
	CodeAPIRateLimited     ErrorCode = "API_RATE_LIMITED"
	CodeAPIServerError     ErrorCode = "API_SERVER_ERROR"
	CodeAPIResponseInvalid ErrorCode = "API_RESPONSE_INVALID"
	CodeWorkflowFailed     ErrorCode = "WORKFLOW_EXECUTION_FAILED"
	CodeRubricNotFound     ErrorCode = "RUBRIC_NOT_FOUND"
	CodeRubricEmpty        ErrorCode = "RUBRIC_EMPTY"
	CodeRubricBuildFailed  ErrorCode = "RUBRIC_BUILD_FAILED"
	CodeUnknown            ErrorCode = "UNKNOWN_ERROR"
)

// AppError represents application-specific errors
type AppError struct {
	Code        ErrorCode
	Message     string
	Recoverable bool
	Details     map[string]any
	Cause       error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any *AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithDetail sets one detail entry and returns e.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// ToMap renders the error envelope returned to API callers.
func (e *AppError) ToMap() map[string]any {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return map[string]any{
		"error": map[string]any{
			"code":        string(e.Code),
			"message":     e.Message,
			"recoverable": e.Recoverable,
			"details":     details,
		},
	}
}

// GRPCStatus lets status.FromError / status.Code understand AppError.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(grpcCode(e.Code), e.Message)
	md := map[string]string{}
	for k, v := range e.Details {
		md[k] = fmt.Sprint(v)
	}
	if ds, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   string(e.Code),
		Domain:   "essaycoach",
		Metadata: md,
	}); err == nil {
		return ds
	}
	return st
}

func grpcCode(c ErrorCode) codes.Code {
	switch c {
	case CodeResourceNotFound, CodeRubricNotFound:
		return codes.NotFound
	case CodeInputInvalidFormat, CodeValidationFailed, CodeExtractionFailed:
		return codes.InvalidArgument
	case CodeInsufficientText, CodeRubricEmpty, CodeConfigMissing, CodeConfigInvalid:
		return codes.FailedPrecondition
	case CodeAPITimeout:
		return codes.DeadlineExceeded
	case CodeAPIRateLimited:
		return codes.ResourceExhausted
	case CodeAuthInvalidAPIKey:
		return codes.Unauthenticated
	case CodeParseTransport, CodeAPIServerError, CodeAPIRequestFailed, CodeResourceUpload, CodeRubricBuildFailed:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// Sentinels for errors.Is; matching is by code only.
var (
	ErrConfigMissing      = &AppError{Code: CodeConfigMissing}
	ErrInputInvalid       = &AppError{Code: CodeInputInvalidFormat}
	ErrExtractionFailed   = &AppError{Code: CodeExtractionFailed}
	ErrInsufficientText   = &AppError{Code: CodeInsufficientText}
	ErrParseTransport     = &AppError{Code: CodeParseTransport}
	ErrParseEmptyResponse = &AppError{Code: CodeParseEmptyResponse}
	ErrParseMalformedJSON = &AppError{Code: CodeParseMalformedJSON}
	ErrParseUnexpected    = &AppError{Code: CodeParseUnexpected}
	ErrValidation         = &AppError{Code: CodeValidationFailed}
	ErrPersistence        = &AppError{Code: CodePersistenceFailed}
	ErrNotFound           = &AppError{Code: CodeResourceNotFound}
	ErrUploadFailed       = &AppError{Code: CodeResourceUpload}
	ErrAPITimeout         = &AppError{Code: CodeAPITimeout}
	ErrAPIRateLimited     = &AppError{Code: CodeAPIRateLimited}
	ErrAPIServer          = &AppError{Code: CodeAPIServerError}
	ErrAPIResponseInvalid = &AppError{Code: CodeAPIResponseInvalid}
	ErrWorkflowFailed     = &AppError{Code: CodeWorkflowFailed}
	ErrRubricNotFound     = &AppError{Code: CodeRubricNotFound}
	ErrRubricEmpty        = &AppError{Code: CodeRubricEmpty}
	ErrRubricBuildFailed  = &AppError{Code: CodeRubricBuildFailed}
)

// Error constructors
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func ConfigurationError(message, key string) *AppError {
	return NewAppError(CodeConfigMissing, message, nil).WithDetail("config_key", key)
}

func InputValidationError(message, field string, value any) *AppError {
	e := NewAppError(CodeInputInvalidFormat, message, nil).WithDetail("field", field)
	if value != nil {
		e.WithDetail("value", value)
	}
	return e
}

func ResourceError(code ErrorCode, message, resourceType, resourceID string, cause error) *AppError {
	e := NewAppError(code, message, cause).WithDetail("resource_type", resourceType)
	if resourceID != "" {
		e.WithDetail("resource_id", resourceID)
	}
	return e
}

func APIError(code ErrorCode, message string, statusCode int, recoverable bool, cause error) *AppError {
	e := NewAppError(code, message, cause)
	e.Recoverable = recoverable
	if statusCode > 0 {
		e.WithDetail("status_code", statusCode)
	}
	return e
}

func APITimeoutError(message string, timeout time.Duration, cause error) *AppError {
	return APIError(CodeAPITimeout, message, 0, true, cause).
		WithDetail("timeout_seconds", int(timeout.Seconds()))
}

func APIRateLimitError(message string, retryAfter int) *AppError {
	e := APIError(CodeAPIRateLimited, message, 429, true, nil)
	if retryAfter > 0 {
		e.WithDetail("retry_after", retryAfter)
	}
	return e
}

// APIServerError is recoverable only for 5xx responses.
func APIServerError(message string, statusCode int, body string) *AppError {
	e := APIError(CodeAPIServerError, message, statusCode, statusCode >= 500, nil)
	if body != "" {
		e.WithDetail("response_body", truncate(body, 512))
	}
	return e
}

func WorkflowError(message, runID string, cause error) *AppError {
	e := NewAppError(CodeWorkflowFailed, message, cause)
	if runID != "" {
		e.WithDetail("workflow_run_id", runID)
	}
	return e
}

func RubricError(code ErrorCode, message, rubricID string, cause error) *AppError {
	e := NewAppError(code, message, cause)
	e.Recoverable = code == CodeRubricBuildFailed
	if rubricID != "" {
		e.WithDetail("rubric_id", rubricID)
	}
	return e
}

func ExtractionFailed(message string, cause error) *AppError {
	return NewAppError(CodeExtractionFailed, message, cause)
}

func InsufficientText(length, minimum int) *AppError {
	return NewAppError(CodeInsufficientText,
		fmt.Sprintf("extracted text too short: %d characters (minimum %d)", length, minimum), nil).
		WithDetail("text_length", length).
		WithDetail("min_length", minimum)
}

func ParseTransportError(message string, cause error) *AppError {
	e := NewAppError(CodeParseTransport, message, cause)
	e.Recoverable = true
	return e
}

func ParseEmptyResponse() *AppError {
	return NewAppError(CodeParseEmptyResponse, "model returned empty content", nil)
}

func ParseMalformedJSON(cause error) *AppError {
	return NewAppError(CodeParseMalformedJSON, "model reply is not valid JSON", cause)
}

func ParseUnexpectedShape(message string, cause error) *AppError {
	return NewAppError(CodeParseUnexpected, message, cause)
}

func ValidationFailed(message string) *AppError {
	return NewAppError(CodeValidationFailed, message, nil)
}

func PersistenceFailed(message string, cause error) *AppError {
	return NewAppError(CodePersistenceFailed, message, cause)
}

// IsRecoverable reports whether err is an AppError worth retrying.
func IsRecoverable(err error) bool {
	var ae *AppError
	return errors.As(err, &ae) && ae.Recoverable
}

// UserMessage returns text suitable for showing to an end user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ae *AppError
	if !errors.As(err, &ae) {
		return "An unexpected error occurred."
	}
	switch {
	case ae.Code == CodeValidationFailed:
		return ae.Message
	case ae.Recoverable:
		return "The AI service is temporarily unavailable. Please try again."
	default:
		return ae.Message
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
