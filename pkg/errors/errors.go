package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"jamlink/internal/core/domain"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeDuplicateName      ErrorCode = "DUPLICATE_NAME"
	ErrCodeIndexOutOfRange    ErrorCode = "INDEX_OUT_OF_RANGE"
	ErrCodeCapabilityDenied   ErrorCode = "CAPABILITY_DENIED"
	ErrCodeTransitionInFlight ErrorCode = "TRANSITION_IN_FLIGHT"
	ErrCodeConflict           ErrorCode = "CONFLICT"
	ErrCodeServerRejected     ErrorCode = "SERVER_REJECTED"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a detail to the error.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError keeps err as the cause.
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// FromDomain maps core errors onto application errors. Errors that are
// already AppErrors are returned unchanged.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		return appErr
	}

	var rejection *domain.ServerRejection
	switch {
	case stderrors.Is(err, domain.ErrDuplicateName):
		return WrapError(err, ErrCodeDuplicateName, "channel group name already in use", http.StatusConflict)
	case stderrors.Is(err, domain.ErrInvalidName),
		stderrors.Is(err, domain.ErrInvalidArgument),
		stderrors.Is(err, domain.ErrPathBlacklisted):
		return WrapError(err, ErrCodeInvalidInput, err.Error(), http.StatusBadRequest)
	case stderrors.Is(err, domain.ErrIndexOutOfRange):
		return WrapError(err, ErrCodeIndexOutOfRange, "channel group index out of range", http.StatusNotFound)
	case stderrors.Is(err, domain.ErrChannelNotFound):
		return WrapError(err, ErrCodeNotFound, "channel not found", http.StatusNotFound)
	case stderrors.Is(err, domain.ErrRoomNotFound):
		return WrapError(err, ErrCodeNotFound, "room not found", http.StatusNotFound)
	case stderrors.Is(err, domain.ErrCapabilityDenied):
		return WrapError(err, ErrCodeCapabilityDenied, "operation not available in the current mode", http.StatusForbidden)
	case stderrors.Is(err, domain.ErrTransitionInFlight):
		return WrapError(err, ErrCodeTransitionInFlight, "room transition in progress", http.StatusConflict)
	case stderrors.Is(err, domain.ErrPrimarySubchannel),
		stderrors.Is(err, domain.ErrScanInProgress),
		stderrors.Is(err, domain.ErrNotInRoom):
		return WrapError(err, ErrCodeConflict, err.Error(), http.StatusConflict)
	case stderrors.As(err, &rejection):
		return WrapError(err, ErrCodeServerRejected, rejection.Error(), http.StatusBadGateway).
			WithContext("reason", rejection.Reason.String())
	}
	return WrapError(err, ErrCodeInternal, "internal error", http.StatusInternalServerError)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}
