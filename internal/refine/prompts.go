package refine

import _ "embed"

var (
	//go:embed prompts/describe-image.txt
	describeImagePrompt string

	//go:embed prompts/compare-image.txt
	compareImagePrompt string

	//go:embed prompts/synthesize-feedback.txt
	synthesizeFeedbackPrompt string

	//go:embed prompts/rewrite-prompt.txt
	rewritePromptPrompt string

	//go:embed prompts/reconcile-prompt.txt
	reconcilePromptPrompt string
)
