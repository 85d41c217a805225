package intent

import (
	_ "embed"
	"strings"

	"github.com/roschler/livepeer-image-helper-back-end/internal/prompt"
)

var (
	//go:embed prompts/text-wanted-on-image.txt
	textWantedPrompt string
	//go:embed prompts/start-new-image.txt
	startNewImagePrompt string
	//go:embed prompts/image-complaint.txt
	imageComplaintPrompt string
	//go:embed prompts/generation-speed-complaint.txt
	speedComplaintPrompt string
	//go:embed prompts/nature-of-request.txt
	natureOfRequestPrompt string
	//go:embed prompts/extended-wrong-content.txt
	extendedWrongContentPrompt string
)

// Detector is one classification call issued for every turn.
type Detector struct {
	ID           ID
	SystemPrompt string
	// ArrayResponse is set when the detector answers with a JSON array.
	ArrayResponse bool
}

// ImageAssistantDetectors returns the detectors run on every image
// assistant turn, in a fixed order.
func ImageAssistantDetectors() []Detector {
	return []Detector{
		{ID: TextWantedOnImage, SystemPrompt: strings.TrimSpace(textWantedPrompt)},
		{ID: StartNewImage, SystemPrompt: strings.TrimSpace(startNewImagePrompt)},
		{ID: ImageComplaint, SystemPrompt: strings.TrimSpace(imageComplaintPrompt), ArrayResponse: true},
		{ID: GenerationSpeedComplaint, SystemPrompt: strings.TrimSpace(speedComplaintPrompt), ArrayResponse: true},
		{ID: NatureOfRequest, SystemPrompt: strings.TrimSpace(natureOfRequestPrompt)},
	}
}

// ExtendedWrongContent returns the second wrong-content detector, whose
// prompt embeds the prompt the last image was generated from. Its results
// are reported under ImageComplaint.
func ExtendedWrongContent(previousPrompt string) (Detector, error) {
	text, err := prompt.Substitute(extendedWrongContentPrompt, map[string]string{
		"previous_prompt": strings.TrimSpace(previousPrompt),
	})
	if err != nil {
		return Detector{}, err
	}
	return Detector{ID: ImageComplaint, SystemPrompt: strings.TrimSpace(text), ArrayResponse: true}, nil
}
