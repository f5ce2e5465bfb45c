// Package apperror holds the error types shared by the capture pipeline and its HTTP surface.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ValidationError reports malformed input detected before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ImageProcessingError reports image bytes that could not be decoded or re-encoded.
type ImageProcessingError struct {
	DeviceID string
	Err      error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing failed for device %s: %v", e.DeviceID, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// AnalysisError reports a failed vision call. The analyzer absorbs it into fallback content.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("scene analysis failed: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// GenerationFailedError carries the remote error message of a clip that ended in "error".
type GenerationFailedError struct {
	ClipID  string
	Message string
}

func (e *GenerationFailedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("music generation failed for clip %s: %s", e.ClipID, msg)
}

// TimeoutError reports a local deadline that elapsed while waiting on a remote operation.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
	Elapsed   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s (limit %s)", e.Operation, e.Elapsed.Round(time.Millisecond), e.Timeout)
}

// NotFoundError reports a lookup for an id the owner does not know.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// HTTPError is a non-2xx reply from a vendor API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus maps err onto the status code the API responds with.
func HTTPStatus(err error) int {
	var (
		validationErr *ValidationError
		imageErr      *ImageProcessingError
		notFoundErr   *NotFoundError
		generationErr *GenerationFailedError
		timeoutErr    *TimeoutError
		httpErr       *HTTPError
	)

	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &imageErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout
	case errors.As(err, &generationErr), errors.As(err, &httpErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
