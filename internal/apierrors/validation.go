package apierrors

import (
	"errors"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// NewValidationError converts the result of an ozzo-validation check into a
// ValidationError. It returns nil when err is nil.
func NewValidationError(subject string, err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Subject: subject, Errors: []string{err.Error()}}
	}

	keys := make([]string, 0, len(fieldErrs))
	for k := range fieldErrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, fmt.Sprintf("%s: %v", k, fieldErrs[k]))
	}
	return &ValidationError{Subject: subject, Errors: msgs}
}
