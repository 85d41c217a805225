package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed templates/image-generation-system.txt
	imageGenerationSystem string

	//go:embed templates/image-generation-guidelines.txt
	imageGenerationGuidelines string

	//go:embed templates/decompose-scene-logic.txt
	decomposeSceneLogic string

	//go:embed templates/wrong-content-directive.txt
	wrongContentDirective string
)

// ImageGenerationSystem returns the system prompt of the enhance-mode
// prompt-writing call, with the guideline document inserted.
func ImageGenerationSystem() (string, error) {
	return Substitute(imageGenerationSystem, map[string]string{
		"image_generation_guidelines": strings.TrimSpace(imageGenerationGuidelines),
	})
}

// DecomposeSceneLogic returns the system prompt that turns a scene
// description into literal visual assertions.
func DecomposeSceneLogic() string {
	return strings.TrimSpace(decomposeSceneLogic)
}

// Guidelines returns the prompt-writing guideline document.
func Guidelines() string {
	return strings.TrimSpace(imageGenerationGuidelines)
}
