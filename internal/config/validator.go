package config

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func init() {
	_ = validate.RegisterValidation("ratio", validateRatio)
}

// validateRatio accepts fractions in [0, 1]
func validateRatio(fl validator.FieldLevel) bool {
	v := fl.Field().Float()
	return v >= 0 && v <= 1
}
