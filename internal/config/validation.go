// Package config provides configuration management for the backtest-pilot service.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the validator with custom validation rules
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new validator with custom validation functions
func NewValidator() *CustomValidator {
	v := validator.New()

	_ = v.RegisterValidation("environment", validateEnvironment)
	_ = v.RegisterValidation("loglevel", validateLogLevel)

	return &CustomValidator{validator: v}
}

// Validate validates the entire configuration
func Validate(cfg *Config) error {
	cv := NewValidator()
	return cv.Validate(cfg)
}

// Validate validates the configuration using registered validation rules
func (cv *CustomValidator) Validate(cfg *Config) error {
	if err := cv.validator.Struct(cfg); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			return formatValidationErrors(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return validateCrossField(cfg)
}

// validateEnvironment validates the environment field
func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	default:
		return false
	}
}

// validateLogLevel validates the log level field
func validateLogLevel(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// validateCrossField enforces relationships single-field tags cannot express
func validateCrossField(cfg *Config) error {
	if cfg.Backtest.DefaultListLimit > cfg.Backtest.MaxListLimit {
		return fmt.Errorf("backtest.default_list_limit (%d) exceeds max_list_limit (%d)",
			cfg.Backtest.DefaultListLimit, cfg.Backtest.MaxListLimit)
	}
	if cfg.Watchdog.ReplayStaleMinutes < cfg.Watchdog.HistoricalStaleMinutes {
		return fmt.Errorf("watchdog.replay_stale_minutes (%d) must be at least historical_stale_minutes (%d)",
			cfg.Watchdog.ReplayStaleMinutes, cfg.Watchdog.HistoricalStaleMinutes)
	}
	if cfg.Stream.Enabled && cfg.Stream.WebhookURL == "" {
		return fmt.Errorf("stream.webhook_url is required when stream publication is enabled")
	}
	return nil
}

// formatValidationErrors converts validator errors into a readable message
func formatValidationErrors(errs validator.ValidationErrors) error {
	msg := "configuration validation failed:"
	for _, e := range errs {
		msg += fmt.Sprintf("\n  - field %s failed on rule %s", e.Namespace(), e.Tag())
	}
	return fmt.Errorf("%s", msg)
}
