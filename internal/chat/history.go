package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roschler/livepeer-image-helper-back-end/internal/prompt"
)

// ErrNoBaseLevelPrompt is returned when a turn needs the scene description
// of the current session but the history holds none.
var ErrNoBaseLevelPrompt = errors.New("no base-level prompt in history")

const historyPreamble = `Below is your chat history with the user.
What they said to you is prefixed by "USER INPUT:".
Your response to their input is prefixed by "SYSTEM RESPONSE:".
Use the chat history to help guide your efforts. Here it is now:
`

// History is the ordered list of volleys for one user and assistant.
type History struct {
	UserID  string   `json:"user_id" yaml:"user_id"`
	Kind    Kind     `json:"assistant_kind" yaml:"assistant_kind"`
	Volleys []Volley `json:"volleys" yaml:"volleys"`
}

// NewHistory returns an empty history.
func NewHistory(userID string, kind Kind) *History {
	return &History{UserID: userID, Kind: kind, Volleys: []Volley{}}
}

// Empty reports whether the history has no volleys.
func (h *History) Empty() bool { return len(h.Volleys) == 0 }

// Append adds v at the end. Every stored volley must carry its final state.
func (h *History) Append(v Volley) error {
	if v.StateAfter == nil {
		return errors.New("volley has no state_after")
	}
	h.Volleys = append(h.Volleys, v)
	return nil
}

// Clone returns a copy whose volley slice can be appended to without
// touching h.
func (h *History) Clone() *History {
	c := *h
	c.Volleys = append([]Volley(nil), h.Volleys...)
	return &c
}

// LastVolley returns the most recent volley.
func (h *History) LastVolley() (*Volley, bool) {
	if h.Empty() {
		return nil, false
	}
	return &h.Volleys[len(h.Volleys)-1], true
}

func (h *History) lastSessionStartIndex() int {
	for i := len(h.Volleys) - 1; i >= 0; i-- {
		if h.Volleys[i].IsNewSession {
			return i
		}
	}
	return -1
}

// LastSessionStart describes the current image session for a classifier:
// the input that opened it, every later input in order, and currentInput.
// ok is false when no volley opened a session.
func (h *History) LastSessionStart(currentInput string) (string, bool) {
	start := h.lastSessionStartIndex()
	if start < 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString("Here is the original image description that created the image:\n")
	fmt.Fprintf(&b, "ORIGINAL IMAGE DESCRIPTION: %s\n", h.Volleys[start].UserInput)
	if start+1 < len(h.Volleys) {
		b.WriteString("Here is a list of modifications the user requested, in chronological order:\n")
		for _, v := range h.Volleys[start+1:] {
			b.WriteString(v.UserInput)
			b.WriteString("\n")
		}
	}
	b.WriteString("Here is the current input from the user:\n")
	fmt.Fprintf(&b, "USER FEEDBACK: %s\n", currentInput)
	return b.String(), true
}

// LastZeroIterationVolley returns the most recent volley that was authored
// by the user rather than produced by automatic refinement.
func (h *History) LastZeroIterationVolley() (*Volley, bool) {
	for i := len(h.Volleys) - 1; i >= 0; i-- {
		v := &h.Volleys[i]
		if v.StateAfter != nil && v.StateAfter.RefinementIterationCount == 0 {
			return v, true
		}
	}
	return nil, false
}

// BaseLevelPrompt is the scene description a session currently builds on.
type BaseLevelPrompt struct {
	Prompt         string
	NegativePrompt string
}

// LastBaseLevelPrompt returns the base-level prompt of the current session.
// A session-opening volley contributes the user's own words; a later
// volley contributes its composed prompt.
func (h *History) LastBaseLevelPrompt() (BaseLevelPrompt, bool) {
	v, ok := h.LastZeroIterationVolley()
	if !ok {
		return BaseLevelPrompt{}, false
	}
	if v.IsNewSession {
		return BaseLevelPrompt{Prompt: v.UserInput, NegativePrompt: v.NegativePrompt}, true
	}
	return BaseLevelPrompt{Prompt: v.Prompt, NegativePrompt: v.NegativePrompt}, true
}

// BaseLevelPromptFor returns the base-level prompt extended with the turn's
// input when the two differ.
func (h *History) BaseLevelPromptFor(userInput string) (BaseLevelPrompt, error) {
	base, ok := h.LastBaseLevelPrompt()
	if !ok || strings.TrimSpace(base.Prompt) == "" {
		return BaseLevelPrompt{}, ErrNoBaseLevelPrompt
	}
	input := strings.TrimSpace(userInput)
	if input == "" || input == strings.TrimSpace(base.Prompt) {
		return base, nil
	}
	text, err := prompt.AppendEOS(strings.TrimSpace(base.Prompt))
	if err != nil {
		return BaseLevelPrompt{}, err
	}
	base.Prompt = text + " " + input
	return base, nil
}

// BuildHistoryPrompt summarizes the last n volleys for a system prompt.
// n == -1 includes every volley. An empty history yields "".
func (h *History) BuildHistoryPrompt(n int) (string, error) {
	if n == -1 {
		n = len(h.Volleys)
	} else if n < 1 {
		return "", fmt.Errorf("volley count must be positive or -1, got %d", n)
	}
	if h.Empty() {
		return "", nil
	}
	from := max(len(h.Volleys)-n, 0)

	parts := make([]string, 0, len(h.Volleys)-from)
	for i := from; i < len(h.Volleys); i++ {
		parts = append(parts, h.Volleys[i].summary())
	}
	return historyPreamble + strings.Join(parts, "\n"), nil
}
