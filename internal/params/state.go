// Package params holds the generation parameter state carried from turn to
// turn and the rules that adjust it in response to detected intents.
package params

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Mode is the processing mode of a turn.
type Mode string

const (
	ModeNew     Mode = "new"
	ModeRefine  Mode = "refine"
	ModeEnhance Mode = "enhance"
)

// ParseMode converts a client-supplied mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeNew, ModeRefine, ModeEnhance:
		return m, nil
	default:
		return "", fmt.Errorf("unknown image processing mode %q", s)
	}
}

// ModelID names an image generation model.
type ModelID string

const (
	ModelSDXLLightning ModelID = "ByteDance/SDXL-Lightning"
	ModelRealVisXL     ModelID = "SG161222/RealVisXL_V4.0_Lightning"
	// ModelFlux renders legible text.
	ModelFlux ModelID = "black-forest-labs/FLUX.1-dev"

	DefaultModel = ModelSDXLLightning
)

// KnownModel reports whether id is a supported generator.
func KnownModel(id ModelID) bool {
	switch id {
	case ModelSDXLLightning, ModelRealVisXL, ModelFlux:
		return true
	}
	return false
}

// State is the generation parameter state of one assistant session.
type State struct {
	ModelID                  ModelID           `json:"model_id" yaml:"model_id"`
	Loras                    map[string]string `json:"loras" yaml:"loras"`
	GuidanceScale            float64           `json:"guidance_scale" yaml:"guidance_scale"`
	Steps                    int               `json:"steps" yaml:"steps"`
	Temperature              float64           `json:"temperature" yaml:"temperature"`
	RefinementIterationCount int               `json:"refinement_iteration_count" yaml:"refinement_iteration_count"`
	NumPromptErrors          int               `json:"num_prompt_errors" yaml:"num_prompt_errors"`
	SuggestedFeedback        string            `json:"suggested_feedback" yaml:"suggested_feedback"`
	CreatedAt                time.Time         `json:"created_at" yaml:"created_at"`
}

// Default returns the state of a user's first contact.
func Default(l Limits) State {
	return State{
		ModelID:       DefaultModel,
		Loras:         map[string]string{},
		GuidanceScale: l.DefaultGuidanceScale,
		Steps:         l.DefaultSteps,
		Temperature:   l.DefaultTemperature,
		CreatedAt:     time.Now().UTC(),
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := s
	c.Loras = maps.Clone(s.Loras)
	if c.Loras == nil {
		c.Loras = map[string]string{}
	}
	return c
}
