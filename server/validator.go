package server

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gaborage/go-ignition/apperrors"
)

// Validator adapts go-playground/validator to echo.Validator.
// Failures are returned as apperrors ValidationError values whose details
// name fields by their JSON tag.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator that reports JSON field names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	return &Validator{validate: v}
}

// Engine returns the underlying validator, e.g. to register custom rules.
func (v *Validator) Engine() *validator.Validate {
	return v.validate
}

// Validate checks i against its struct tags.
func (v *Validator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.FromValidationErrors(verrs)
	}
	return apperrors.New(apperrors.IncorrectUsageError, apperrors.WithCause(err))
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	}
	return name
}
