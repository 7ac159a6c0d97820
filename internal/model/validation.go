package model

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidations installs the domain validators on gin's binding engine
// so request structs can use `binding:"period"` and
// `binding:"adherence_status"` tags.
func RegisterValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}

	if err := v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
		return Period(fl.Field().String()).Valid()
	}); err != nil {
		return fmt.Errorf("failed to register period validation: %w", err)
	}

	if err := v.RegisterValidation("adherence_status", func(fl validator.FieldLevel) bool {
		return AdherenceStatus(fl.Field().String()).Valid()
	}); err != nil {
		return fmt.Errorf("failed to register adherence_status validation: %w", err)
	}

	return nil
}
