package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes the failures the capture pipeline can surface.
type Kind string

const (
	KindRequestNotFound     Kind = "request_not_found"
	KindImageNotReady       Kind = "image_not_ready"
	KindBadUpstreamResponse Kind = "bad_upstream_response"
	KindAnalysisUnavailable Kind = "analysis_unavailable"
	KindNoCompletedRequests Kind = "no_completed_requests"
	KindNoImages            Kind = "no_images"
	KindValidation          Kind = "validation"
	KindUnauthorized        Kind = "unauthorized"
	KindNotFound            Kind = "not_found"
	KindInternal            Kind = "internal"
)

// AppError carries an error kind, an operator-facing detail payload and the
// HTTP status the handler layer should answer with.
type AppError struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"-"`
	Cause      error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on kind so callers can compare against sentinel constructors.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

func NewRequestNotFound(requestID string) *AppError {
	return &AppError{
		Kind:       KindRequestNotFound,
		Message:    "capture request not found",
		Detail:     requestID,
		StatusCode: http.StatusNotFound,
	}
}

func NewImageNotReady(requestID string) *AppError {
	return &AppError{
		Kind:       KindImageNotReady,
		Message:    "image not yet uploaded for request",
		Detail:     requestID,
		StatusCode: http.StatusBadRequest,
	}
}

// NewBadUpstreamResponse keeps the raw upstream text for diagnostics.
func NewBadUpstreamResponse(raw string, cause error) *AppError {
	return &AppError{
		Kind:       KindBadUpstreamResponse,
		Message:    "vision service returned an unparsable response",
		Detail:     raw,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

func NewAnalysisUnavailable(detail string, cause error) *AppError {
	return &AppError{
		Kind:       KindAnalysisUnavailable,
		Message:    "vision analysis unavailable",
		Detail:     detail,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

func NewNoCompletedRequests() *AppError {
	return &AppError{
		Kind:       KindNoCompletedRequests,
		Message:    "no completed captures yet",
		StatusCode: http.StatusOK,
	}
}

func NewNoImages() *AppError {
	return &AppError{
		Kind:       KindNoImages,
		Message:    "no images found",
		StatusCode: http.StatusNotFound,
	}
}

func NewValidationError(message string, cause error) *AppError {
	return &AppError{
		Kind:       KindValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

func NewUnauthorized(message string) *AppError {
	return &AppError{
		Kind:       KindUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewNotFound(message string) *AppError {
	return &AppError{
		Kind:       KindNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewInternal(message string, cause error) *AppError {
	return &AppError{
		Kind:       KindInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// KindOf extracts the kind from any error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// StatusOf maps an error to the HTTP status the handlers should return.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
