// Package chat is the conversation store: volleys, per-user histories, the
// queries the turn pipeline runs over them and their durable backends.
package chat

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roschler/livepeer-image-helper-back-end/internal/intent"
	"github.com/roschler/livepeer-image-helper-back-end/internal/params"
)

// Kind names the assistant a history belongs to.
type Kind string

const (
	ImageAssistant   Kind = "image_assistant"
	LicenseAssistant Kind = "license_assistant"
)

// ParseKind validates an assistant kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case ImageAssistant, LicenseAssistant:
		return k, nil
	default:
		return "", fmt.Errorf("unknown assistant kind %q", s)
	}
}

// ErrInvalidUserID is returned for user ids that are blank or could not be
// used as part of a file name.
var ErrInvalidUserID = errors.New("invalid user id")

// ValidateUserID checks that id is non-blank and free of characters that are
// unsafe in file names.
func ValidateUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if i := strings.IndexFunc(id, func(r rune) bool {
		return r < 0x20 || strings.ContainsRune(`<>:"/\|?*`, r)
	}); i >= 0 {
		return fmt.Errorf("%w: character %q not allowed", ErrInvalidUserID, id[i])
	}
	return nil
}

// Volley is one user turn and the system's answer to it.
type Volley struct {
	RequestID      string      `json:"request_id" yaml:"request_id"`
	Timestamp      time.Time   `json:"timestamp" yaml:"timestamp"`
	IsNewSession   bool        `json:"is_new_session" yaml:"is_new_session"`
	UserInput      string      `json:"user_input" yaml:"user_input"`
	Prompt         string      `json:"prompt" yaml:"prompt"`
	NegativePrompt string      `json:"negative_prompt" yaml:"negative_prompt"`
	ResponseToUser string      `json:"response_to_user" yaml:"response_to_user"`
	Mode           params.Mode `json:"image_processing_mode" yaml:"image_processing_mode"`
	// IntentDetections are the classifier results the turn acted on.
	IntentDetections intent.Set    `json:"array_of_intent_detections" yaml:"array_of_intent_detections"`
	StateBefore      *params.State `json:"state_before" yaml:"state_before"`
	StateAfter       *params.State `json:"state_after" yaml:"state_after"`
	// GeneratedImageURLs point at the stored copies of the turn's images.
	GeneratedImageURLs     []string `json:"generated_image_urls" yaml:"generated_image_urls"`
	FullSystemPrompt       string   `json:"full_system_prompt" yaml:"full_system_prompt"`
	FullUserPrompt         string   `json:"full_user_prompt" yaml:"full_user_prompt"`
	TextCompletionResponse string   `json:"text_completion_response" yaml:"text_completion_response"`
}

// RoundTrip returns how long the turn took from start to finish.
func (v *Volley) RoundTrip() time.Duration {
	if v.StateBefore == nil || v.StateAfter == nil {
		return 0
	}
	return v.StateAfter.CreatedAt.Sub(v.StateBefore.CreatedAt)
}

func (v *Volley) summary() string {
	return fmt.Sprintf("USER INPUT: %s\nSYSTEM RESPONSE: %s\n", v.UserInput, v.ResponseToUser)
}
