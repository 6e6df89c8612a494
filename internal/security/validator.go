package security

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the struct-level validation tags on a request payload
func Validate(v any) error {
	return validate.Struct(v)
}

// ValidationDetail flattens validator errors into a field -> message map
func ValidationDetail(err error) any {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	errors := make(map[string]string)
	for _, e := range validationErrors {
		field := e.Field()
		switch e.Tag() {
		case "required":
			errors[field] = "field is required"
		case "email":
			errors[field] = "invalid email format"
		case "min":
			errors[field] = "must be at least " + e.Param() + " characters"
		case "max":
			errors[field] = "must be at most " + e.Param() + " characters"
		default:
			errors[field] = "validation failed on " + e.Tag()
		}
	}
	return errors
}
