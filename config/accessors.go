package config

import (
	"fmt"
	"time"
)

// Get returns the raw value stored at key, or nil.
func (c *Config) Get(key string) any {
	val, _ := c.rawValue(key)
	return val
}

// GetString retrieves a string value or the provided default.
func (c *Config) GetString(key string, defaultVal ...string) string {
	if !c.Exists(key) {
		return optionalDefault("", defaultVal...)
	}
	return c.k.String(key)
}

// GetInt retrieves an int value or the provided default.
// Values that cannot be converted fall back to the default as well.
func (c *Config) GetInt(key string, defaultVal ...int) int {
	val, ok := c.rawValue(key)
	if !ok {
		return optionalDefault(0, defaultVal...)
	}
	n, err := toInt(val)
	if err != nil {
		return optionalDefault(0, defaultVal...)
	}
	return n
}

// GetBool retrieves a bool value or the provided default.
func (c *Config) GetBool(key string, defaultVal ...bool) bool {
	val, ok := c.rawValue(key)
	if !ok {
		return optionalDefault(false, defaultVal...)
	}
	b, err := toBool(val)
	if err != nil {
		return optionalDefault(false, defaultVal...)
	}
	return b
}

// GetDuration retrieves a duration ("15s", or an integer number of milliseconds).
func (c *Config) GetDuration(key string, defaultVal ...time.Duration) time.Duration {
	val, ok := c.rawValue(key)
	if !ok {
		return optionalDefault(time.Duration(0), defaultVal...)
	}
	d, err := toDuration(val)
	if err != nil {
		return optionalDefault(time.Duration(0), defaultVal...)
	}
	return d
}

// GetStringSlice retrieves a list value. A comma separated string is split.
func (c *Config) GetStringSlice(key string, defaultVal ...[]string) []string {
	val, ok := c.rawValue(key)
	if !ok {
		return optionalDefault[[]string](nil, defaultVal...)
	}
	return toStringSlice(val)
}

// GetRequiredString retrieves a non-empty string or a *ConfigError.
func (c *Config) GetRequiredString(key string) (string, error) {
	if !c.Exists(key) {
		return "", NewMissingFieldError(key)
	}
	val := c.k.String(key)
	if val == "" {
		return "", NewValidationError(key, "is empty")
	}
	return val, nil
}

// Unmarshal decodes the section at key into out using koanf struct tags.
// An empty key decodes the whole configuration.
func (c *Config) Unmarshal(key string, out any) error {
	if c == nil || c.k == nil {
		return fmt.Errorf("configuration not initialized")
	}
	return c.k.Unmarshal(key, out)
}

// Exists reports whether any layer set key.
func (c *Config) Exists(key string) bool {
	if c == nil || c.k == nil {
		return false
	}
	return c.k.Exists(key)
}

// All returns the whole configuration flattened to dotted keys.
func (c *Config) All() map[string]any {
	if c == nil || c.k == nil {
		return nil
	}
	return c.k.All()
}

func (c *Config) rawValue(key string) (any, bool) {
	if !c.Exists(key) {
		return nil, false
	}
	return c.k.Get(key), true
}

func optionalDefault[T any](zero T, overrides ...T) T {
	if len(overrides) > 0 {
		return overrides[0]
	}
	return zero
}
