// Package apierrors provides shared error types for the forcekit client.
package apierrors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrMissingCredentials is returned when the issuer, subject or key is absent.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = errors.New("client has been closed")

	// ErrSigning is matched by every assertion signing failure.
	ErrSigning = errors.New("assertion signing failed")

	// ErrUnauthorized is returned when the token exchange is rejected or a
	// resource call keeps answering 401.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited is returned when the API rate limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrServerUnavailable is returned when the server keeps failing with 5xx.
	ErrServerUnavailable = errors.New("server error")

	// ErrTimeout is returned when request attempts keep timing out.
	ErrTimeout = errors.New("request timed out")

	// ErrNotFound is returned when the requested record or endpoint does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidResponse is returned when a response body does not have the
	// expected shape.
	ErrInvalidResponse = errors.New("invalid response")
)

// SigningError indicates the private key could not be parsed or used to sign
// an assertion. It is never retried.
type SigningError struct {
	Message string
	Err     error
}

func (e *SigningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signing error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("signing error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *SigningError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *SigningError) Is(target error) bool {
	return target == ErrSigning
}

// AuthenticationError indicates the token exchange failed, or a resource call
// still answered 401 after the retry budget was spent.
type AuthenticationError struct {
	StatusCode  int
	Code        string // OAuth "error" field, when present
	Description string // OAuth "error_description" field, when present
	Body        string
	Err         error
}

func (e *AuthenticationError) Error() string {
	var b strings.Builder
	b.WriteString("authentication failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	switch {
	case e.Code != "" && e.Description != "":
		fmt.Fprintf(&b, ": %s: %s", e.Code, e.Description)
	case e.Code != "":
		fmt.Fprintf(&b, ": %s", e.Code)
	case e.Body != "":
		fmt.Fprintf(&b, ": %s", e.Body)
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *AuthenticationError) Is(target error) bool {
	return target == ErrUnauthorized
}

// RateLimitError is returned when 429 responses outlast the retry budget.
type RateLimitError struct {
	Body     string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d attempts: %s", e.Attempts, e.Body)
}

// Is implements errors.Is for sentinel error matching.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// ServerError is returned when 5xx responses outlast the retry budget.
type ServerError struct {
	StatusCode int
	Body       string
	Attempts   int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d after %d attempts: %s", e.StatusCode, e.Attempts, e.Body)
}

// Is implements errors.Is for sentinel error matching.
func (e *ServerError) Is(target error) bool {
	return target == ErrServerUnavailable
}

// TimeoutError is returned when request attempts outlast the retry budget by
// exceeding the per-attempt deadline.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
	Attempts  int
	Err       error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v (%d attempts)", e.Operation, e.Timeout, e.Attempts)
}

// Unwrap returns the underlying error.
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ErrorDetail is one entry of the server's structured error payload.
type ErrorDetail struct {
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Fields    []string `json:"fields,omitempty"`
}

// APIError represents any other non-2xx response. It is never retried.
type APIError struct {
	StatusCode int
	Details    []ErrorDetail
	Body       string
}

// Message returns the parsed server messages joined, or the raw body.
func (e *APIError) Message() string {
	if len(e.Details) == 0 {
		return e.Body
	}
	msgs := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		switch {
		case d.ErrorCode != "" && len(d.Fields) > 0:
			msgs = append(msgs, fmt.Sprintf("%s: %s [%s]", d.ErrorCode, d.Message, strings.Join(d.Fields, ", ")))
		case d.ErrorCode != "":
			msgs = append(msgs, fmt.Sprintf("%s: %s", d.ErrorCode, d.Message))
		default:
			msgs = append(msgs, d.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

// ErrorCode returns the first server error code, if any.
func (e *APIError) ErrorCode() string {
	if len(e.Details) == 0 {
		return ""
	}
	return e.Details[0].ErrorCode
}

func (e *APIError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 404:
		return target == ErrNotFound
	}
	return false
}

// ValidationError reports a response body that failed shape validation.
type ValidationError struct {
	Subject string
	Errors  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(e.Errors, "; "))
}

// Is implements errors.Is for sentinel error matching.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidResponse
}

// NetworkError represents a network-level failure other than a timeout.
type NetworkError struct {
	Err     error
	URL     string
	Attempt int // 1-based attempt that failed
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ForcekitError marks SigningError as a forcekit error.
func (e *SigningError) ForcekitError() {}

// ForcekitError marks AuthenticationError as a forcekit error.
func (e *AuthenticationError) ForcekitError() {}

// ForcekitError marks RateLimitError as a forcekit error.
func (e *RateLimitError) ForcekitError() {}

// ForcekitError marks ServerError as a forcekit error.
func (e *ServerError) ForcekitError() {}

// ForcekitError marks TimeoutError as a forcekit error.
func (e *TimeoutError) ForcekitError() {}

// ForcekitError marks APIError as a forcekit error.
func (e *APIError) ForcekitError() {}

// ForcekitError marks ValidationError as a forcekit error.
func (e *ValidationError) ForcekitError() {}

// ForcekitError marks NetworkError as a forcekit error.
func (e *NetworkError) ForcekitError() {}
