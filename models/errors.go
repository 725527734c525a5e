package models

import (
	"context"
	"errors"
	"fmt"
)

// Error codes used in reports, API responses and internal error handling.
const (
	ErrCodeTransport     = "TRANSPORT_ERROR"
	ErrCodeStaleElement  = "STALE_ELEMENT"
	ErrCodeNavigation    = "NAVIGATION_FAILED"
	ErrCodeInvalidConfig = "INVALID_CONFIG"
	ErrCodeBrowserCrash  = "BROWSER_CRASH"
	ErrCodeTimeout       = "TIMEOUT"

	// API-facing codes.
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SiteError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type SiteError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *SiteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SiteError) Unwrap() error {
	return e.Err
}

// NewSiteError creates a new SiteError.
func NewSiteError(code, message string, err error) *SiteError {
	return &SiteError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *SiteError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the first SiteError in err's chain, or
// ErrCodeInternal when there is none.
func CodeOf(err error) string {
	var se *SiteError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// IsStale reports whether err is (or wraps) a stale element error.
func IsStale(err error) bool {
	return err != nil && CodeOf(err) == ErrCodeStaleElement
}

// CategorizeError wraps raw errors into typed SiteErrors, mapping context
// expiry to ErrCodeTimeout and everything else to fallbackCode.
func CategorizeError(err error, fallbackCode, msg string) *SiteError {
	var se *SiteError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewSiteError(ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return NewSiteError(ErrCodeTimeout, "request canceled", err)
	default:
		return NewSiteError(fallbackCode, msg, err)
	}
}
