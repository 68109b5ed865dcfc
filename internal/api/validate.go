package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validate checks the page counters. A page that is not done but carries no
// continuation link is accepted and ends pagination.
func (r QueryResult) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.TotalSize, validation.Min(0)),
	)
}

// Validate checks that a successful save names the new record.
func (r saveResponse) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.When(r.Success, validation.Required)),
	)
}

// Validate checks that the describe names an object.
func (d SObjectDescribe) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required),
	)
}
