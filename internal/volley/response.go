package volley

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roschler/livepeer-image-helper-back-end/internal/params"
	"github.com/roschler/livepeer-image-helper-back-end/internal/refine"
)

// generationParams is the verbose view of the state sent to the user.
type generationParams struct {
	ModelID       params.ModelID    `yaml:"model_id"`
	GuidanceScale float64           `yaml:"guidance_scale"`
	Steps         int               `yaml:"steps"`
	Loras         map[string]string `yaml:"loras,omitempty"`
}

func (r *turnRun) response(mp mainPrompt, refined *refine.Result, st params.State) (string, error) {
	var b strings.Builder
	if refined != nil {
		fmt.Fprintf(&b, "SUGGESTED USER FEEDBACK:\n\n%s\n\n", refined.SuggestedFeedback)
	}
	fmt.Fprintf(&b, "Here is the new or revised image generation request we just made:\n\n\"%s\"\n", mp.prompt)
	fmt.Fprintf(&b, "\nAnd the accompanying NEGATIVE prompts (if any):\n\n\"%s\"\n", mp.negative)
	if len(r.changes) > 0 {
		fmt.Fprintf(&b, "\nand the changes I made to improve the result:\n\n%s\n", strings.Join(r.changes.Strings(), "\n"))
	}
	b.WriteString("\nLet's see how this one turns out.")

	if r.p.opts.Verbose {
		data, err := yaml.Marshal(generationParams{
			ModelID:       st.ModelID,
			GuidanceScale: st.GuidanceScale,
			Steps:         st.Steps,
			Loras:         st.Loras,
		})
		if err != nil {
			return "", fmt.Errorf("encoding generation parameters: %w", err)
		}
		fmt.Fprintf(&b, "\n\nCURRENT LLM TEMPERATURE: %g\n\nCURRENT GENERATION PARAMETERS:\n\n%s", st.Temperature, data)
	}
	return b.String(), nil
}
