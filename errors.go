package forcekit

import (
	"github.com/forcekit/client-go/internal/apierrors"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrMissingCredentials is returned when the client ID, username or
	// private key is absent.
	ErrMissingCredentials = apierrors.ErrMissingCredentials

	// ErrClientClosed is returned when operations are attempted on a closed client.
	ErrClientClosed = apierrors.ErrClientClosed

	// ErrSigning is matched by every assertion signing failure.
	ErrSigning = apierrors.ErrSigning

	// ErrUnauthorized is matched when the token exchange is rejected or a
	// call keeps answering 401.
	ErrUnauthorized = apierrors.ErrUnauthorized

	// ErrRateLimited is matched when 429 responses outlast the retry budget.
	ErrRateLimited = apierrors.ErrRateLimited

	// ErrServerUnavailable is matched when 5xx responses outlast the retry budget.
	ErrServerUnavailable = apierrors.ErrServerUnavailable

	// ErrTimeout is matched when attempts keep timing out.
	ErrTimeout = apierrors.ErrTimeout

	// ErrNotFound is matched by 404 responses.
	ErrNotFound = apierrors.ErrNotFound

	// ErrInvalidResponse is matched when a response body has an unexpected shape.
	ErrInvalidResponse = apierrors.ErrInvalidResponse
)

// ForcekitError is implemented by all typed errors of this package.
type ForcekitError interface {
	error
	ForcekitError() // marker method
}

type (
	// SigningError indicates the private key could not be parsed or used.
	// It is never retried.
	SigningError = apierrors.SigningError

	// AuthenticationError indicates the token exchange failed, or a call
	// still answered 401 after the retry budget was spent.
	AuthenticationError = apierrors.AuthenticationError

	// RateLimitError is returned when 429 responses outlast the retry budget.
	RateLimitError = apierrors.RateLimitError

	// ServerError is returned when 5xx responses outlast the retry budget.
	ServerError = apierrors.ServerError

	// TimeoutError is returned when attempt timeouts outlast the retry budget.
	TimeoutError = apierrors.TimeoutError

	// APIError represents any other non-2xx response. It is never retried.
	APIError = apierrors.APIError

	// ErrorDetail is one entry of a structured error payload.
	ErrorDetail = apierrors.ErrorDetail

	// ValidationError reports a response body that failed shape validation.
	ValidationError = apierrors.ValidationError

	// NetworkError represents a network-level failure other than a timeout.
	NetworkError = apierrors.NetworkError
)
