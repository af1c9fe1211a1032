package config

import (
	"fmt"
	"strconv"

	hosterr "klipper-buffer-stepper/pkg/errors"
)

// Configuration failures are reported as host errors carrying one of the
// CONFIG_* codes so callers can classify them with errors.IsConfig.

// NewConfigError creates a validation error with optional section and option context.
func NewConfigError(section, option, message string) *hosterr.HostError {
	return hosterr.New(hosterr.ErrConfigValidation, message).
		SetSection(section).
		SetOption(option)
}

// ErrMissingOption returns an error for a required but missing option.
func ErrMissingOption(section, option string) *hosterr.HostError {
	return hosterr.ConfigOptionError(section, option)
}

// ErrMissingSection returns an error for a missing section.
func ErrMissingSection(section string) *hosterr.HostError {
	return hosterr.ConfigSectionError(section)
}

// ErrInvalidValue returns an error for a value that fails to parse.
func ErrInvalidValue(section, option, value, expected string, cause error) *hosterr.HostError {
	return hosterr.ConfigTypeError(section, option, value, expected, cause)
}

// ErrOutOfRange returns an error for a value outside the allowed range.
func ErrOutOfRange(section, option string, value float64, constraint string) *hosterr.HostError {
	return hosterr.ConfigValidationError(section, option,
		fmt.Sprintf("value %s %s", strconv.FormatFloat(value, 'f', -1, 64), constraint))
}

// ErrInvalidChoice returns an error for an invalid choice value.
func ErrInvalidChoice(section, option, value string, choices []string) *hosterr.HostError {
	return hosterr.ConfigValidationError(section, option,
		fmt.Sprintf("'%s' is not a valid choice (valid: %v)", value, choices))
}
