package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ErrorType represents the classification of errors for retry logic
type ErrorType int

const (
	// ErrorTypeTransient - retry-able errors
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent - non-retry-able errors
	ErrorTypePermanent
	// ErrorTypeDegraded - can continue with reduced functionality
	ErrorTypeDegraded
)

// Kind is the failure taxonomy reported to callers and counted in evaluation
// reports. Every error surfaced by the orchestration core maps to one kind.
type Kind string

const (
	KindToolNotFound      Kind = "tool_not_found"
	KindInvalidArguments  Kind = "invalid_arguments"
	KindTransientNetwork  Kind = "transient_network_error"
	KindPermanent         Kind = "permanent_error"
	KindTimeout           Kind = "timeout"
	KindMalformedResponse Kind = "malformed_response"
	KindScoring           Kind = "scoring_error"
	KindCircuitOpen       Kind = "circuit_open"
	KindUnknown           Kind = "unknown"
)

// Sentinel errors for pre-network validation failures. Both fail fast: no
// network call is attempted once either is returned.
var (
	ErrToolNotFound     = errors.New("tool not found")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// TransientError represents an error that can be retried
type TransientError struct {
	Err        error
	RetryAfter int    // Seconds to wait before retry (from Retry-After header)
	StatusCode int    // HTTP status code if applicable
	Message    string // Human-friendly message
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError represents an error that should not be retried
type PermanentError struct {
	Err        error
	StatusCode int    // HTTP status code if applicable
	Message    string // Human-friendly message
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// DegradedError represents an error where service can continue with reduced functionality
type DegradedError struct {
	Err             error
	FallbackContent string // Alternative content to return
	Message         string // Human-friendly message
}

func (e *DegradedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("degraded error: %v", e.Err)
}

func (e *DegradedError) Unwrap() error {
	return e.Err
}

// MalformedResponseError reports a remote response that violated the expected
// schema. Schema violations on the remote side are permanent.
type MalformedResponseError struct {
	Endpoint string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.Endpoint, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// ScoringError reports a missing or ambiguous rubric for a case.
type ScoringError struct {
	CaseID string
	Reason string
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("scoring error for case %s: %s", e.CaseID, e.Reason)
}

// IsTransient checks if an error is retry-able
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check if explicitly marked as transient
	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	// Check if explicitly marked as permanent
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	var malformedErr *MalformedResponseError
	if errors.As(err, &malformedErr) {
		return false
	}

	if errors.Is(err, ErrToolNotFound) || errors.Is(err, ErrInvalidArguments) {
		return false
	}

	// Network errors (connection refused, timeout, etc.)
	if isNetworkError(err) {
		return true
	}

	// HTTP status codes
	if statusCode := extractHTTPStatusCode(err); statusCode > 0 {
		return isTransientHTTPStatus(statusCode)
	}

	// Syscall errors
	if isSyscallError(err) {
		return true
	}

	// Default: not transient
	return false
}

// IsPermanent checks if an error is non-retry-able
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return true
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return false
	}

	var malformedErr *MalformedResponseError
	if errors.As(err, &malformedErr) {
		return true
	}

	if errors.Is(err, ErrToolNotFound) || errors.Is(err, ErrInvalidArguments) {
		return true
	}

	if statusCode := extractHTTPStatusCode(err); statusCode > 0 {
		return isPermanentHTTPStatus(statusCode)
	}

	errStr := strings.ToLower(err.Error())
	permanentPatterns := []string{
		"not found",
		"permission denied",
		"invalid",
		"unauthorized",
		"forbidden",
		"bad request",
		"tool not found",
	}

	for _, pattern := range permanentPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsDegraded checks if an error allows degraded service
func IsDegraded(err error) bool {
	var degradedErr *DegradedError
	return errors.As(err, &degradedErr)
}

// GetErrorType classifies an error
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	if IsDegraded(err) {
		return ErrorTypeDegraded
	}

	if IsTransient(err) {
		return ErrorTypeTransient
	}

	// Default to permanent to avoid infinite retries
	return ErrorTypePermanent
}

// KindOf maps an error to its taxonomy kind for reporting.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrToolNotFound):
		return KindToolNotFound
	case errors.Is(err, ErrInvalidArguments):
		return KindInvalidArguments
	}

	var scoringErr *ScoringError
	if errors.As(err, &scoringErr) {
		return KindScoring
	}

	var malformedErr *MalformedResponseError
	if errors.As(err, &malformedErr) {
		return KindMalformedResponse
	}

	var degradedErr *DegradedError
	if errors.As(err, &degradedErr) {
		return KindCircuitOpen
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "deadline exceeded") || strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "context canceled") || strings.Contains(errStr, "context cancelled") {
		return KindTimeout
	}

	if IsTransient(err) {
		return KindTransientNetwork
	}
	if IsPermanent(err) {
		return KindPermanent
	}
	return KindUnknown
}

// Helper functions

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"timeout",
		"deadline exceeded",
		"connection reset",
		"broken pipe",
	}

	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

func isSyscallError(err error) bool {
	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}

func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}
	return false
}

func isPermanentHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusBadRequest, // 400
		http.StatusUnauthorized,        // 401
		http.StatusForbidden,           // 403
		http.StatusNotFound,            // 404
		http.StatusMethodNotAllowed,    // 405
		http.StatusConflict,            // 409
		http.StatusGone,                // 410
		http.StatusUnprocessableEntity: // 422
		return true
	}
	return false
}

func extractHTTPStatusCode(err error) int {
	var transientErr *TransientError
	if errors.As(err, &transientErr) && transientErr.StatusCode > 0 {
		return transientErr.StatusCode
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) && permanentErr.StatusCode > 0 {
		return permanentErr.StatusCode
	}

	errStr := strings.ToLower(err.Error())
	codes := []int{429, 500, 502, 503, 504, 400, 401, 403, 404, 405, 409, 410, 422}
	for _, code := range codes {
		if strings.Contains(errStr, fmt.Sprintf("status %d", code)) ||
			strings.Contains(errStr, fmt.Sprintf("http %d", code)) {
			return code
		}
	}
	return 0
}

// Helper constructors

// NewTransientError creates a new transient error with a human-friendly message
func NewTransientError(err error, message string) *TransientError {
	return &TransientError{
		Err:     err,
		Message: message,
	}
}

// NewTransientHTTPError creates a transient error carrying the HTTP status.
func NewTransientHTTPError(err error, statusCode int) *TransientError {
	return &TransientError{
		Err:        err,
		StatusCode: statusCode,
	}
}

// NewPermanentError creates a new permanent error with a human-friendly message
func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{
		Err:     err,
		Message: message,
	}
}

// NewPermanentHTTPError creates a permanent error carrying the HTTP status.
func NewPermanentHTTPError(err error, statusCode int) *PermanentError {
	return &PermanentError{
		Err:        err,
		StatusCode: statusCode,
	}
}

// NewDegradedError creates a new degraded error with fallback content
func NewDegradedError(err error, message, fallback string) *DegradedError {
	return &DegradedError{
		Err:             err,
		Message:         message,
		FallbackContent: fallback,
	}
}

// FromHTTPStatus converts a non-2xx HTTP status into the right error type.
func FromHTTPStatus(endpoint string, statusCode int) error {
	err := fmt.Errorf("%s returned status %d", endpoint, statusCode)
	if isTransientHTTPStatus(statusCode) {
		return NewTransientHTTPError(err, statusCode)
	}
	return NewPermanentHTTPError(err, statusCode)
}
