// Package validator checks request DTOs against their struct tags.
package validator

import "github.com/go-playground/validator/v10"

// Validator wraps one go-playground instance shared by the handlers.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator.
func New() *Validator {
	return &Validator{v: validator.New()}
}

// Struct validates s against its `validate` tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}
