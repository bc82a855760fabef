package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// Validate checks the configuration for fatal setup errors. A failure here
// aborts startup; nothing in this set is retryable.
func Validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d is outside the valid range 1-65535", config.Server.Port),
		}
	}

	if strings.TrimSpace(config.Build.Command) == "" {
		return &ValidationError{
			Field:   "build.command",
			Message: "builder command cannot be empty",
		}
	}

	info, err := os.Stat(config.Build.Dir)
	if err != nil {
		return &ValidationError{
			Field:   "build.dir",
			Message: fmt.Sprintf("watch root %q is not accessible: %v", config.Build.Dir, err),
		}
	}
	if !info.IsDir() {
		return &ValidationError{
			Field:   "build.dir",
			Message: fmt.Sprintf("watch root %q is not a directory", config.Build.Dir),
		}
	}

	for _, extra := range config.Watch.Paths {
		if _, err := os.Stat(extra); err != nil {
			return &ValidationError{
				Field:   "watch.paths",
				Message: fmt.Sprintf("extra watch path %q is not accessible: %v", extra, err),
			}
		}
	}

	if config.Watch.Debounce <= 0 {
		return &ValidationError{
			Field:   "watch.debounce",
			Message: "debounce interval must be positive",
		}
	}

	return nil
}
