package common

import (
	"github.com/go-playground/validator/v10"

	"github.com/UHCToken/uhc-api/internal/errs"
)

var validate = validator.New()

// ValidateInput runs struct-tag validation on a request input and maps
// failures onto the INVALID_ARGUMENT error code.
func ValidateInput(input interface{}) error {
	if err := validate.Struct(input); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fieldError := range validationErrors {
				return errs.New(errs.CodeInvalidArgument,
					"field %s failed validation on %s", fieldError.Field(), fieldError.Tag())
			}
		}
		return errs.Wrap(err, errs.CodeInvalidArgument, "invalid input")
	}
	return nil
}
