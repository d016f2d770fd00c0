package middleware

import "github.com/go-playground/validator/v10"

// StructValidator plugs validator/v10 into fiber's binder.
type StructValidator struct {
	v *validator.Validate
}

func NewStructValidator() *StructValidator {
	return &StructValidator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (s *StructValidator) Validate(out any) error {
	return s.v.Struct(out)
}
