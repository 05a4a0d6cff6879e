// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/kisan-sarthi/backend/internal/assistant"
	"github.com/kisan-sarthi/backend/internal/auth"
	"github.com/kisan-sarthi/backend/internal/logger"
	"github.com/kisan-sarthi/backend/internal/repository"
	"github.com/kisan-sarthi/backend/internal/storage"
	"github.com/kisan-sarthi/backend/internal/weather"
	"github.com/kisan-sarthi/backend/internal/wizard"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
		Field:   field,
		Details: reason,
	}
}

// NewUnauthorizedError creates a 401 error
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Code:    "UNAUTHORIZED",
		Message: message,
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewConflictError creates a 409 Conflict error
func NewConflictError(message string) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    "CONFLICT",
		Message: message,
	}
}

// NewTooManyRequestsError creates a 429 error
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Status:  http.StatusTooManyRequests,
		Code:    "TOO_MANY_ATTEMPTS",
		Message: message,
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewUpstreamError creates a 502 error for a failed collaborator call
func NewUpstreamError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadGateway,
		Code:    "UPSTREAM_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewServiceUnavailableError creates a 503 Service Unavailable error
func NewServiceUnavailableError(message string) *APIError {
	return &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "SERVICE_UNAVAILABLE",
		Message: message,
	}
}

// translate maps domain errors onto API errors. Unknown errors come back nil.
func translate(err error) *APIError {
	var (
		apiErr  *APIError
		httpErr *echo.HTTPError
		verr    *wizard.ValidationError
		uerr    *wizard.UploadFailure
		cerr    *wizard.RecordCreationError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &httpErr):
		code := "HTTP_ERROR"
		if httpErr.Code == http.StatusUnauthorized {
			code = "UNAUTHORIZED"
		}
		return &APIError{Status: httpErr.Code, Code: code, Message: fmt.Sprintf("%v", httpErr.Message)}
	case errors.As(err, &verr):
		return NewValidationError(verr.Field, verr.Reason)
	case errors.As(err, &uerr):
		return NewUpstreamError(fmt.Sprintf("upload of %s failed", uerr.File), uerr.Err)
	case errors.As(err, &cerr):
		return NewUpstreamError("record creation failed", cerr.Err)
	case errors.Is(err, wizard.ErrSubmitting):
		return NewConflictError("a submission is already running")
	case errors.Is(err, wizard.ErrClosed):
		return NewConflictError("wizard is closed")
	case errors.Is(err, wizard.ErrNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "wizard not found"}
	case errors.Is(err, repository.ErrNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "listing not found"}
	case errors.Is(err, storage.ErrFileNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "file not found"}
	case errors.Is(err, repository.ErrUnknownAttribute):
		return NewValidationError("attribute", err.Error())
	case errors.Is(err, auth.ErrInvalidPhone):
		return NewValidationError("phone", err.Error())
	case errors.Is(err, auth.ErrInvalidCode), errors.Is(err, auth.ErrUnknownRequest), errors.Is(err, auth.ErrInvalidToken):
		return NewUnauthorizedError(err.Error())
	case errors.Is(err, auth.ErrTooManyAttempts):
		return NewTooManyRequestsError(err.Error())
	case errors.Is(err, assistant.ErrNotConfigured):
		return NewServiceUnavailableError("assistant is not configured")
	case errors.Is(err, assistant.ErrEmptyQuestion):
		return NewValidationError("message", err.Error())
	case errors.Is(err, weather.ErrInvalidCoordinates):
		return NewValidationError("lat/lon", err.Error())
	}
	return nil
}

// NewErrorHandler returns an echo.HTTPErrorHandler that renders every error
// as an APIError. Details of unexpected errors are only shown in development.
func NewErrorHandler(log logger.Logger, development bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		apiErr := translate(err)
		if apiErr == nil {
			apiErr = &APIError{
				Status:  http.StatusInternalServerError,
				Code:    "UNKNOWN_ERROR",
				Message: "An unexpected error occurred",
			}
			if development {
				apiErr.Details = err.Error()
			}
		}
		if apiErr.Status >= http.StatusInternalServerError {
			log.Error("request failed",
				logger.String("method", c.Request().Method),
				logger.String("path", c.Path()),
				logger.Int("status", apiErr.Status),
				logger.Error(err),
			)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(apiErr.Status)
			return
		}
		_ = c.JSON(apiErr.Status, apiErr)
	}
}
