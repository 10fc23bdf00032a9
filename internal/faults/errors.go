// Package faults holds the error taxonomy shared by the filter pipeline:
// configuration errors that abort a job before any distributed work starts,
// and the process exit codes they map to.
package faults

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError represents a configuration-related error with an actionable hint.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeUnknownFilter     = "UNKNOWN_FILTER"
	ErrCodeEmptyChain        = "EMPTY_CHAIN"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeTooManyWorkers    = "TOO_MANY_WORKERS"
	ErrCodeInvalidWorkers    = "INVALID_WORKERS"
	ErrCodeInvalidConfig     = "INVALID_CONFIG"
)

// ErrUnknownFilter returns an error naming the offending filter argument.
func ErrUnknownFilter(name string, available []string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeUnknownFilter,
		Message: fmt.Sprintf("[%s] unknown filter, available: %s", name, strings.Join(available, ", ")),
	}
}

// ErrEmptyChain returns an error for a job with no filters.
func ErrEmptyChain() *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEmptyChain,
		Message: "no filters given",
		Action:  "Pass at least one filter name after the output path",
	}
}

// ErrUnsupportedFormat returns an error for a path whose extension has no codec.
func ErrUnsupportedFormat(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeUnsupportedFormat,
		Message: fmt.Sprintf("unsupported image format: %s", path),
		Action:  "Use a .pgm, .pnm, .ppm, .png, .jpg, .bmp, .tif or .tiff file",
	}
}

// ErrTooManyWorkers returns an error when the pool is larger than the image.
func ErrTooManyWorkers(workers, height int) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeTooManyWorkers,
		Message: fmt.Sprintf("%d workers for an image of height %d", workers, height),
		Action:  "Run with at most one worker per image row",
	}
}

// ErrInvalidWorkers returns an error for a non-positive worker count.
func ErrInvalidWorkers(workers int) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidWorkers,
		Message: fmt.Sprintf("invalid worker count %d", workers),
		Action:  "Set HALO_WORKERS or --workers to a positive number",
	}
}

// ErrInvalidConfig returns an error for a malformed configuration value.
func ErrInvalidConfig(field, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidConfig,
		Message: fmt.Sprintf("invalid configuration %s: %s", field, reason),
	}
}

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// Code returns the ConfigError code wrapped by err, or "" if there is none.
func Code(err error) string {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.Code
	}
	return ""
}
