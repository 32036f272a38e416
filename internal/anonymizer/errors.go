package anonymizer

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is the sentinel behind every *ConfigError
var ErrInvalidConfig = errors.New("invalid anonymizer configuration")

// ConfigError names a rejected construction parameter
type ConfigError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *ConfigError) Error() string {
	switch e.Field {
	case "strategy":
		return fmt.Sprintf("unknown strategy: %q (supported: %s)", e.Value, joinAllowed(e.Allowed))
	case "language":
		return fmt.Sprintf("unsupported language: %q (supported: %s)", e.Value, joinAllowed(e.Allowed))
	default:
		return fmt.Sprintf("invalid %s: %q (supported: %s)", e.Field, e.Value, joinAllowed(e.Allowed))
	}
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
