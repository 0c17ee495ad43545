package apperrors

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// sensitiveFields are name fragments whose rejected values are never echoed
// back in error details.
var sensitiveFields = []string{"pin", "password", "authorization", "cookie"}

// FromValidationErrors builds a ValidationError with one ErrorDetail per failed field.
// The rejected value is included unless the field name looks sensitive.
func FromValidationErrors(errs validator.ValidationErrors, opts ...Option) *Error {
	details := make([]ErrorDetail, 0, len(errs))
	for _, fe := range errs {
		detail := ErrorDetail{
			"field":   fe.Field(),
			"rule":    fe.Tag(),
			"message": FieldMessage(fe),
		}
		if v := fe.Value(); v != nil && fmt.Sprint(v) != "" && !isSensitiveField(fe) {
			detail["value"] = fmt.Sprintf("%v", v)
		}
		details = append(details, detail)
	}

	msg := "The request failed validation."
	if len(details) == 1 {
		msg = fmt.Sprintf("Validation failed: %s", details[0]["message"])
	} else if len(details) > 1 {
		msg = fmt.Sprintf("Validation failed: %d errors", len(details))
	}

	all := append([]Option{WithMessage(msg), WithErrorDetails(details...)}, opts...)
	return New(ValidationError, all...)
}

func isSensitiveField(fe validator.FieldError) bool {
	name := strings.ToLower(fe.Namespace() + "." + fe.StructField())
	for _, frag := range sensitiveFields {
		if strings.Contains(name, frag) {
			return true
		}
	}
	return false
}

// FieldMessage renders a readable message for a single failed rule.
func FieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	default:
		return fmt.Sprintf("%s failed validation", fe.Field())
	}
}
