package prompt

import (
	"errors"
	"regexp"
	"strings"
)

// minCarriedInput is the length a user input must exceed, after the
// complaint text is removed, to be carried into a continuing prompt.
const minCarriedInput = 5

// Previous is the generation prompt pair of the last volley.
type Previous struct {
	Prompt         string
	NegativePrompt string
}

// AdornInput holds what Adorn needs for one turn.
type AdornInput struct {
	UserInput string
	// WrongContentText is the captured wrong-content complaint, if any.
	WrongContentText string
	// Previous is nil when the turn starts a new session or there is no
	// earlier volley.
	Previous *Previous
}

// Adorn builds the user prompt for the prompt-writing call. A new session
// uses the raw input. A continuing session leads with the previous prompt
// pair, adds the wrong-content directive when a complaint was captured, and
// appends the input with the complaint text removed.
func Adorn(in AdornInput) (string, error) {
	input := strings.TrimSpace(in.UserInput)
	if input == "" {
		return "", errors.New("user prompt is empty")
	}
	if in.Previous == nil {
		return input, nil
	}

	var b strings.Builder
	b.WriteString("Please help me with this image generation prompt:\n")
	b.WriteString(in.Previous.Prompt)
	b.WriteString("\n")
	if in.Previous.NegativePrompt != "" {
		b.WriteString("And also help me with this text I am using as the negative prompt:\n")
		b.WriteString(in.Previous.NegativePrompt)
		b.WriteString("\n")
	}

	complaint := strings.TrimSpace(in.WrongContentText)
	if complaint != "" {
		directive, err := Substitute(wrongContentDirective, map[string]string{"complaint_text": complaint})
		if err != nil {
			return "", err
		}
		b.WriteString(strings.TrimSpace(directive))
		b.WriteString("\n")
	}

	rest := StripFirstFold(input, complaint)
	if len(rest) > minCarriedInput {
		b.WriteString("Also. ")
		b.WriteString(rest)
	}
	return strings.TrimSpace(b.String()), nil
}

// StripFirstFold removes the first case-insensitive occurrence of needle
// from s and trims the result. needle is matched literally.
func StripFirstFold(s, needle string) string {
	if needle == "" {
		return strings.TrimSpace(s)
	}
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(needle))
	loc := re.FindStringIndex(s)
	if loc == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[:loc[0]] + s[loc[1]:])
}

// DualEncoder joins two prompt variants for a generator with a short and a
// long text encoder. The shorter variant always comes first. Empty variants
// are dropped.
func DualEncoder(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	return a + " | " + b
}
