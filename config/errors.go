package config

import (
	"fmt"
	"strings"
)

// ConfigError describes a configuration problem together with how to fix it.
// Messages are lowercase.
//
//nolint:revive // ConfigError reads better than config.Error at call sites
type ConfigError struct {
	Category string // "missing" or "invalid"
	Field    string // config key path, e.g. "logging.level"
	Message  string
	Action   string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	parts := make([]string, 0, 4)
	if e.Category != "" {
		parts = append(parts, fmt.Sprintf("config_%s:", e.Category))
	}
	for _, p := range []string{e.Field, e.Message, e.Action} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// NewMissingFieldError reports a required key that no layer supplied.
func NewMissingFieldError(field string) *ConfigError {
	envName := strings.ToUpper(strings.ReplaceAll(field, ".", KeySeparator))
	return &ConfigError{
		Category: "missing",
		Field:    field,
		Message:  "required",
		Action:   fmt.Sprintf("set %s env var, pass --%s or add it to config.%s.json", envName, field, EnvDevelopment),
	}
}

// NewInvalidFieldError reports a value outside the accepted set.
func NewInvalidFieldError(field, message string, validOptions []string) *ConfigError {
	err := &ConfigError{
		Category: "invalid",
		Field:    field,
		Message:  message,
	}
	if len(validOptions) > 0 {
		err.Action = "must be one of: " + strings.Join(validOptions, ", ")
	}
	return err
}

// NewValidationError reports a malformed value.
func NewValidationError(field, message string) *ConfigError {
	return &ConfigError{
		Category: "invalid",
		Field:    field,
		Message:  message,
	}
}
