// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrorCode classifies a provider failure. The routing engine keys its
// retry/fallback policy off these codes, never off vendor wire formats.
type ErrorCode string

const (
	// ErrCodeNotSupported means the provider cannot perform the task.
	ErrCodeNotSupported ErrorCode = "not_supported"

	// ErrCodeInvalidInput means the request was malformed or rejected.
	ErrCodeInvalidInput ErrorCode = "invalid_input"

	// ErrCodeRateLimited means the vendor throttled the request.
	ErrCodeRateLimited ErrorCode = "rate_limited"

	// ErrCodeServiceUnavailable means the backend is down or timed out.
	ErrCodeServiceUnavailable ErrorCode = "service_unavailable"

	// ErrCodeUnauthorized means credentials are missing or rejected.
	ErrCodeUnauthorized ErrorCode = "unauthorized"

	// ErrCodeQuotaExceeded means the vendor-side quota is exhausted.
	ErrCodeQuotaExceeded ErrorCode = "quota_exceeded"

	// ErrCodeDecodeFailed means the vendor response could not be decoded.
	ErrCodeDecodeFailed ErrorCode = "decode_failed"

	// ErrCodeNetworkError means the request never reached the backend.
	ErrCodeNetworkError ErrorCode = "network_error"

	// ErrCodeConfigurationError means the adapter is misconfigured.
	ErrCodeConfigurationError ErrorCode = "configuration_error"

	// ErrCodeUnknown covers everything unclassifiable.
	ErrCodeUnknown ErrorCode = "unknown"
)

// Retryable reports whether retrying the same provider can change the outcome.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeRateLimited, ErrCodeServiceUnavailable, ErrCodeNetworkError:
		return true
	}
	return false
}

// Error represents a classified failure from an image-edit backend.
type Error struct {
	// Provider is the backend that produced the error. Empty for errors
	// raised before a backend was selected.
	Provider ID `json:"provider,omitempty"`

	// Code is the taxonomy classification.
	Code ErrorCode `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// StatusCode is the vendor HTTP status, when applicable.
	StatusCode int `json:"status_code,omitempty"`

	// RetryAfter is the vendor-supplied retry hint, when present.
	RetryAfter time.Duration `json:"retry_after,omitempty"`

	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Provider != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Code, e.StatusCode, e.Message)
		}
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the error is retryable.
func (e *Error) Retryable() bool {
	return e.Code.Retryable()
}

// NewError creates a classified provider error.
func NewError(p ID, code ErrorCode, message string) *Error {
	return &Error{Provider: p, Code: code, Message: message}
}

// WrapError classifies an arbitrary error from a dispatch attempt. Known
// *Error values pass through; context and transport failures map to their
// taxonomy codes.
func WrapError(p ID, err error) *Error {
	if err == nil {
		return nil
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	code := ErrCodeUnknown
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		// Per-provider timeout: treated as a retryable outage.
		code = ErrCodeServiceUnavailable
	case isNetError(err):
		code = ErrCodeNetworkError
	}

	return &Error{Provider: p, Code: code, Message: err.Error(), Cause: err}
}

func isNetError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne)
}

// CodeFromHTTPStatus maps a vendor HTTP status to the taxonomy. Adapters use
// this as the baseline and refine with vendor-specific error bodies.
func CodeFromHTTPStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeUnauthorized
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited
	case status == http.StatusPaymentRequired:
		return ErrCodeQuotaExceeded
	case status == http.StatusRequestEntityTooLarge || status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return ErrCodeInvalidInput
	case status >= 500:
		return ErrCodeServiceUnavailable
	}
	return ErrCodeUnknown
}

// ParseRetryAfter reads a Retry-After header value in seconds. Returns zero
// when absent or unparsable.
func ParseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
