package params

// Change is a user-facing description of a parameter adjustment.
type Change string

const (
	ChangeUseTextEngine   Change = "I switched to an image model that is better at drawing text."
	ChangeMoreSteps       Change = "I increased the number of refinement steps to sharpen the details."
	ChangeALotMoreSteps   Change = "I increased the number of refinement steps a lot to get the content right."
	ChangeLessSteps       Change = "I reduced the number of refinement steps so images generate faster."
	ChangeBeLessCreative  Change = "I told the image model to follow your description more closely."
	ChangeBeMoreCreative  Change = "I gave the image model more creative freedom."
	ChangeBeCreativeLater Change = "I will make the image more interesting once the content is right."
	ChangeFixWrongContent Change = "I rewrote the prompt to focus on the part you said was wrong."
)

// Changes is an ordered list of change descriptions without duplicates.
type Changes []Change

// Add appends c unless it is already present.
func (cs *Changes) Add(c Change) {
	for _, have := range *cs {
		if have == c {
			return
		}
	}
	*cs = append(*cs, c)
}

// Strings returns the descriptions as plain strings.
func (cs Changes) Strings() []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}
