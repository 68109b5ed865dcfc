package forcekit

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorTypes_ImplementForcekitError(t *testing.T) {
	errs := []error{
		&SigningError{Message: "parse private key"},
		&AuthenticationError{StatusCode: 400, Code: "invalid_grant"},
		&RateLimitError{Attempts: 4},
		&ServerError{StatusCode: 503, Attempts: 4},
		&TimeoutError{Operation: "GET /limits/", Attempts: 4},
		&APIError{StatusCode: 400},
		&ValidationError{Subject: "query result"},
		&NetworkError{Err: errors.New("connection refused")},
	}

	for _, err := range errs {
		t.Run(fmt.Sprintf("%T", err), func(t *testing.T) {
			wrapped := fmt.Errorf("query accounts: %w", err)
			var fkErr ForcekitError
			if !errors.As(wrapped, &fkErr) {
				t.Errorf("%T does not implement ForcekitError", err)
			}
		})
	}
}

func TestSentinelsMatchTypedErrors(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
	}{
		{&SigningError{Message: "sign"}, ErrSigning},
		{&AuthenticationError{StatusCode: 401}, ErrUnauthorized},
		{&RateLimitError{}, ErrRateLimited},
		{&ServerError{StatusCode: 500}, ErrServerUnavailable},
		{&TimeoutError{}, ErrTimeout},
		{&APIError{StatusCode: 404}, ErrNotFound},
		{&ValidationError{}, ErrInvalidResponse},
	}

	for _, tt := range tests {
		if !errors.Is(fmt.Errorf("wrapped: %w", tt.err), tt.sentinel) {
			t.Errorf("errors.Is(%T, %v) = false, want true", tt.err, tt.sentinel)
		}
	}

	if errors.Is(&APIError{StatusCode: 400}, ErrNotFound) {
		t.Error("a 400 APIError should not match ErrNotFound")
	}
}
