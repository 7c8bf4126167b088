package utils

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidateStruct validates a struct using the validator package
// It returns a single error with all validation errors combined
// Used to validate the configuration before anything touches the database
func ValidateStruct(s interface{}) error {
	// Check for nil input
	if s == nil {
		return fmt.Errorf("invalid validation: input is nil")
	}

	validate := validator.New()

	// Report fields by their configuration key instead of the Go field name
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	err := validate.Struct(s)
	if err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return fmt.Errorf("invalid validation: %v", err)
		}

		var errMsgs []string
		for _, err := range err.(validator.ValidationErrors) {
			errMsgs = append(errMsgs, fmt.Sprintf("%s is required or invalid. %v", err.Field(), err.Error()))
		}

		return errors.New(strings.Join(errMsgs, ", "))
	}

	return nil
}
