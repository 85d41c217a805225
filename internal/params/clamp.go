package params

import "regexp"

var photorealistic = regexp.MustCompile(`(?i)\breal\b|realism|realistic`)

// IsPhotorealistic reports whether a prompt asks for a photographic look.
func IsPhotorealistic(prompt string) bool {
	return photorealistic.MatchString(prompt)
}

// Clamp bounds every numeric field of st. Photorealistic prompts get the
// lower guidance ceiling. Clamp is idempotent.
func Clamp(st *State, l Limits, realizedPrompt string) {
	ceiling := l.MaxGuidanceScale
	if IsPhotorealistic(realizedPrompt) {
		ceiling = l.MaxGuidanceScalePhotorealistic
	}
	st.GuidanceScale = clampFloat(st.GuidanceScale, l.MinGuidanceScale, ceiling)
	st.Steps = min(max(st.Steps, 0), l.MaxSteps)
	st.Temperature = clampFloat(st.Temperature, l.MinTemperature, l.MaxTemperature)
	st.RefinementIterationCount = max(st.RefinementIterationCount, 0)
	st.NumPromptErrors = max(st.NumPromptErrors, 0)
}

func clampFloat(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
