// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"strings"

	"github.com/tphakala/audiopool/internal/errors"
)

// Output backends for the software device.
const (
	OutputNull  = "null"
	OutputMalgo = "malgo"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ErrorCategory lets the errors package classify validation failures.
func (ve ValidationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryValidation
}

// ValidateSettings validates the entire Settings struct and reports every issue found.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validatePoolSettings(&settings.Pool)...)
	ve.Errors = append(ve.Errors, validateQualitySettings(&settings.Quality)...)
	ve.Errors = append(ve.Errors, validateAudioThreadSettings(&settings.AudioThread)...)
	ve.Errors = append(ve.Errors, validateRenderSettings(&settings.Render)...)
	ve.Errors = append(ve.Errors, validateTelemetrySettings(&settings.Telemetry)...)

	if settings.Resources.FreedRetention < 0 {
		ve.Errors = append(ve.Errors, "resources freed retention must not be negative")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validatePoolSettings validates device pool policy
func validatePoolSettings(settings *PoolSettings) []string {
	var errs []string

	if settings.MaxDevices < 1 || settings.MaxDevices > MaxAllowedDevices {
		errs = append(errs, fmt.Sprintf("pool max devices must be between 1 and %d", MaxAllowedDevices))
	}
	if settings.DefaultDevices < 1 {
		errs = append(errs, "pool default devices must be at least 1")
	}
	if settings.DefaultDevices > settings.MaxDevices {
		errs = append(errs, "pool default devices must not exceed max devices")
	}
	if settings.MinFreeIndices < 0 {
		errs = append(errs, "pool min free indices must not be negative")
	}

	return errs
}

// validateQualitySettings validates the quality presets
func validateQualitySettings(settings *QualitySettings) []string {
	var errs []string

	if len(settings.Levels) == 0 {
		return append(errs, "at least one quality level is required")
	}
	for i, level := range settings.Levels {
		if level.MaxChannels < 1 {
			errs = append(errs, fmt.Sprintf("quality level %d (%s) max channels must be positive", i, level.Name))
		}
	}
	if settings.Current < 0 || settings.Current >= len(settings.Levels) {
		errs = append(errs, fmt.Sprintf("quality current level must be between 0 and %d", len(settings.Levels)-1))
	}

	return errs
}

// validateAudioThreadSettings validates the rendering thread settings
func validateAudioThreadSettings(settings *AudioThreadSettings) []string {
	var errs []string

	if settings.Enabled && settings.Interval <= 0 {
		errs = append(errs, "audio thread interval must be positive")
	}
	if settings.QueueSize < 0 {
		errs = append(errs, "audio thread queue size must not be negative")
	}
	if settings.Priority < -20 || settings.Priority > 19 {
		errs = append(errs, "audio thread priority must be between -20 and 19")
	}

	return errs
}

// validateRenderSettings validates software device rendering settings
func validateRenderSettings(settings *RenderSettings) []string {
	var errs []string

	if settings.SampleRate < 8000 || settings.SampleRate > 192000 {
		errs = append(errs, "render sample rate must be between 8000 and 192000")
	}
	if settings.Channels < 1 || settings.Channels > 8 {
		errs = append(errs, "render channels must be between 1 and 8")
	}
	if settings.FramesPerBuffer < 1 {
		errs = append(errs, "render frames per buffer must be positive")
	}
	if settings.RingFrames < settings.FramesPerBuffer {
		errs = append(errs, "render ring frames must hold at least one buffer")
	}
	if settings.FadeIn < 0 {
		errs = append(errs, "render fade in must not be negative")
	}

	switch strings.ToLower(settings.Output) {
	case OutputNull, OutputMalgo:
	default:
		errs = append(errs, fmt.Sprintf("render output %q is not supported, use %q or %q", settings.Output, OutputNull, OutputMalgo))
	}

	return errs
}

// validateTelemetrySettings validates the diagnostics listener
func validateTelemetrySettings(settings *TelemetrySettings) []string {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return []string{fmt.Sprintf("telemetry listen address %q is invalid: %v", settings.Listen, err)}
	}
	return nil
}
