// Package errors defines the closed error taxonomy for the scan engine.
// Forge (remote API) failures, timeouts, and persistence failures all flow
// through ScanError so callers can classify without string matching.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrQuotaExhausted   = errors.New("rate limit exhausted")
	ErrTimeout          = errors.New("timeout")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConnectionFailed = errors.New("connection failed")
	ErrPersistence      = errors.New("persistence failure")
	ErrInternalError    = errors.New("internal error")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeQuota       ErrorType = "quota"
	ErrorTypeAccess      ErrorType = "access"
	ErrorTypeTransient   ErrorType = "transient"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypePersistence ErrorType = "persistence"
	ErrorTypeFatal       ErrorType = "fatal"
)

// ScanError is a structured error for pipeline operations
type ScanError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "get_tree", "replace_patterns")
	Repo       string // Repository full name where the error occurred
	Path       string // File path if applicable
	Err        error  // Underlying error
	StatusCode int    // HTTP status code if applicable
	Remaining  int    // Rate-limit remaining at time of failure, if known
	Timestamp  time.Time
	Retryable  bool
}

func (e *ScanError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s failed on %s:%s: %v", e.Op, e.Repo, e.Path, e.Err)
	}
	if e.Repo != "" {
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Repo, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *ScanError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrForbidden:
		return e.Type == ErrorTypeAccess || e.Type == ErrorTypeQuota
	case ErrQuotaExhausted:
		return e.Type == ErrorTypeQuota
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrPersistence:
		return e.Type == ErrorTypePersistence
	case ErrInvalidInput:
		return e.Type == ErrorTypeValidation
	}

	return errors.Is(e.Err, target)
}

// New creates a new ScanError
func New(errorType ErrorType, op, repo string, err error) *ScanError {
	return &ScanError{
		Type:      errorType,
		Op:        op,
		Repo:      repo,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType),
	}
}

// WithPath adds a file path to the error
func (e *ScanError) WithPath(path string) *ScanError {
	e.Path = path
	return e
}

// WithStatusCode adds an HTTP status code and refines retryability
func (e *ScanError) WithStatusCode(code int) *ScanError {
	e.StatusCode = code
	if code >= 500 || code == 429 || code == 408 {
		e.Retryable = true
	} else if code >= 400 && code < 500 && e.Type != ErrorTypeQuota {
		e.Retryable = false
	}
	return e
}

// WithRemaining records the rate-limit remaining observed at failure time
func (e *ScanError) WithRemaining(remaining int) *ScanError {
	e.Remaining = remaining
	return e
}

func isRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeQuota, ErrorTypeTransient, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// Helper constructors

// WrapForge wraps a remote API error with operation context
func WrapForge(errorType ErrorType, op, repo string, err error, statusCode int) error {
	return New(errorType, op, repo, err).WithStatusCode(statusCode)
}

// WrapPersistence wraps a store error with operation context
func WrapPersistence(op string, err error) error {
	return New(ErrorTypePersistence, op, "", err)
}

// WrapTimeout wraps a timeout with operation context
func WrapTimeout(op, repo string, err error) error {
	return New(ErrorTypeTimeout, op, repo, err)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Retryable
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionFailed)
}

// IsQuotaError reports whether an error is a rate-limit exhaustion signal.
// Only quota errors are retried by the retry executor.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type == ErrorTypeQuota
	}
	return errors.Is(err, ErrQuotaExhausted)
}

// IsNotFound reports whether an error is a not-found from the remote.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type == ErrorTypeNotFound
	}
	return errors.Is(err, ErrNotFound)
}

// ShortCode returns a stable short code safe for user-visible fields.
// The full error stays in logs only.
func ShortCode(err error) string {
	if err == nil {
		return ""
	}
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return string(scanErr.Type)
	}
	if errors.Is(err, ErrTimeout) {
		return string(ErrorTypeTimeout)
	}
	return string(ErrorTypeFatal)
}
