package apperror

import (
	"errors"
	"net/http"
)

type Error struct {
	Code       string
	Message    string
	StatusCode int
	Internal   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Internal
}

var (
	ErrNotFound = &Error{
		Code:       "not_found",
		Message:    "The requested resource was not found",
		StatusCode: http.StatusNotFound,
	}

	ErrUnauthorized = &Error{
		Code:       "unauthorized",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrBadRequest = &Error{
		Code:       "bad_request",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrValidation = &Error{
		Code:       "validation_failed",
		Message:    "One or more fields are invalid",
		StatusCode: http.StatusUnprocessableEntity,
	}

	ErrFileTooLarge = &Error{
		Code:       "file_too_large",
		Message:    "The uploaded file exceeds the maximum allowed size",
		StatusCode: http.StatusRequestEntityTooLarge,
	}

	ErrInvalidFileType = &Error{
		Code:       "invalid_file_type",
		Message:    "This file type is not supported",
		StatusCode: http.StatusUnsupportedMediaType,
	}

	ErrUploadNotFound = &Error{
		Code:       "upload_not_found",
		Message:    "No upload with this id exists for the caller",
		StatusCode: http.StatusNotFound,
	}

	ErrTrackNotFound = &Error{
		Code:       "track_not_found",
		Message:    "No track with this id exists for the caller",
		StatusCode: http.StatusNotFound,
	}

	ErrUploadIDConflict = &Error{
		Code:       "upload_id_conflict",
		Message:    "This upload id is already in use",
		StatusCode: http.StatusConflict,
	}

	ErrStorageFailure = &Error{
		Code:       "storage_failure",
		Message:    "The file could not be stored. Please retry the upload",
		StatusCode: http.StatusBadGateway,
	}

	ErrQueueUnavailable = &Error{
		Code:       "queue_unavailable",
		Message:    "Processing is temporarily unavailable. Please retry the upload",
		StatusCode: http.StatusServiceUnavailable,
	}

	ErrRateLimited = &Error{
		Code:       "rate_limited",
		Message:    "Too many requests. Please try again later",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrInternal = &Error{
		Code:       "internal_error",
		Message:    "An unexpected error occurred. Please try again later",
		StatusCode: http.StatusInternalServerError,
	}

	ErrServiceUnavailable = &Error{
		Code:       "service_unavailable",
		Message:    "Service temporarily unavailable. Please try again later",
		StatusCode: http.StatusServiceUnavailable,
	}
)

func New(code, message string, statusCode int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Wrap(err error, appErr *Error) *Error {
	return &Error{
		Code:       appErr.Code,
		Message:    appErr.Message,
		StatusCode: appErr.StatusCode,
		Internal:   err,
	}
}

func WrapWithMessage(err error, code, message string, statusCode int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Internal:   err,
	}
}

// WithMessage copies a predefined error and replaces its client-facing message.
func WithMessage(appErr *Error, message string) *Error {
	return &Error{
		Code:       appErr.Code,
		Message:    message,
		StatusCode: appErr.StatusCode,
		Internal:   appErr.Internal,
	}
}

func Is(err error, target *Error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

func StatusCode(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

func SafeMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return ErrInternal.Message
}

func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal.Code
}
