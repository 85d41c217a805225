package params

import (
	"errors"
	"fmt"
)

// Limits are the numeric bounds and step sizes of the state machine.
type Limits struct {
	DefaultGuidanceScale           float64 `yaml:"default_guidance_scale" koanf:"default_guidance_scale"`
	MinGuidanceScale               float64 `yaml:"min_guidance_scale" koanf:"min_guidance_scale"`
	MinGuidanceScaleForText        float64 `yaml:"min_guidance_scale_for_text" koanf:"min_guidance_scale_for_text"`
	MaxGuidanceScale               float64 `yaml:"max_guidance_scale" koanf:"max_guidance_scale"`
	MaxGuidanceScalePhotorealistic float64 `yaml:"max_guidance_scale_photorealistic" koanf:"max_guidance_scale_photorealistic"`
	GuidanceScaleDelta             float64 `yaml:"guidance_scale_delta" koanf:"guidance_scale_delta"`
	DefaultSteps                   int     `yaml:"default_steps" koanf:"default_steps"`
	MinSteps                       int     `yaml:"min_steps" koanf:"min_steps"`
	MinStepsForText                int     `yaml:"min_steps_for_text" koanf:"min_steps_for_text"`
	MaxSteps                       int     `yaml:"max_steps" koanf:"max_steps"`
	StepsDelta                     int     `yaml:"steps_delta" koanf:"steps_delta"`
	DefaultTemperature             float64 `yaml:"default_temperature" koanf:"default_temperature"`
	MinTemperature                 float64 `yaml:"min_temperature" koanf:"min_temperature"`
	MaxTemperature                 float64 `yaml:"max_temperature" koanf:"max_temperature"`
	TemperatureDelta               float64 `yaml:"temperature_delta" koanf:"temperature_delta"`
}

// DefaultLimits returns the stock bounds.
func DefaultLimits() Limits {
	return Limits{
		DefaultGuidanceScale:           2,
		MinGuidanceScale:               0,
		MinGuidanceScaleForText:        3.5,
		MaxGuidanceScale:               9,
		MaxGuidanceScalePhotorealistic: 7,
		GuidanceScaleDelta:             1,
		DefaultSteps:                   20,
		MinSteps:                       10,
		MinStepsForText:                26,
		MaxSteps:                       30,
		StepsDelta:                     2,
		DefaultTemperature:             0.1,
		MinTemperature:                 0.4,
		MaxTemperature:                 1.0,
		TemperatureDelta:               0.1,
	}
}

// Validate checks that the bounds are consistent with each other.
func (l Limits) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(l.MinGuidanceScale >= 0, "min_guidance_scale must not be negative")
	check(l.MaxGuidanceScalePhotorealistic <= l.MaxGuidanceScale,
		"max_guidance_scale_photorealistic (%g) exceeds max_guidance_scale (%g)", l.MaxGuidanceScalePhotorealistic, l.MaxGuidanceScale)
	check(l.MinGuidanceScale <= l.MaxGuidanceScalePhotorealistic,
		"min_guidance_scale (%g) exceeds max_guidance_scale_photorealistic (%g)", l.MinGuidanceScale, l.MaxGuidanceScalePhotorealistic)
	check(l.MinSteps > 0, "min_steps must be positive")
	check(l.MinSteps <= l.MaxSteps, "min_steps (%d) exceeds max_steps (%d)", l.MinSteps, l.MaxSteps)
	check(l.MinStepsForText <= l.MaxSteps, "min_steps_for_text (%d) exceeds max_steps (%d)", l.MinStepsForText, l.MaxSteps)
	check(l.DefaultSteps >= l.MinSteps && l.DefaultSteps <= l.MaxSteps, "default_steps (%d) outside [%d, %d]", l.DefaultSteps, l.MinSteps, l.MaxSteps)
	check(l.MinTemperature >= 0 && l.MinTemperature <= l.MaxTemperature,
		"temperature bounds [%g, %g] are invalid", l.MinTemperature, l.MaxTemperature)
	check(l.StepsDelta > 0 && l.GuidanceScaleDelta > 0 && l.TemperatureDelta > 0, "deltas must be positive")
	return errors.Join(errs...)
}
