package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the configuration for errors that would prevent the
// server from starting.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if _, err := cfg.Lifecycle.Location(); err != nil {
		return fmt.Errorf("lifecycle: invalid timezone %q: %w", cfg.Lifecycle.Timezone, err)
	}
	if err := validateClockTime(cfg.Lifecycle.AutoArchiveTime); err != nil {
		return fmt.Errorf("lifecycle: auto_archive_time: %w", err)
	}
	if err := validateClockTime(cfg.Lifecycle.AutoDestroyTime); err != nil {
		return fmt.Errorf("lifecycle: auto_destroy_time: %w", err)
	}

	return nil
}

// validateClockTime checks an "HH:MM" wall-clock time.
func validateClockTime(at string) error {
	hh, mm, ok := strings.Cut(at, ":")
	if !ok {
		return fmt.Errorf("expected HH:MM, got %q", at)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("invalid hour in %q", at)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid minute in %q", at)
	}
	return nil
}

// formatValidationError converts validator errors into a readable message.
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	var messages []string
	for _, fieldErr := range validationErrors {
		messages = append(messages, fmt.Sprintf("%s failed %q validation",
			fieldErr.Namespace(), fieldErr.Tag()))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
}
