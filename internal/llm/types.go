// Package llm talks to chat completion endpoints: OpenAI and the
// OpenAI-compatible SambaNova and OpenRouter gateways.
package llm

import "context"

// Provider sends one chat completion. Implementations do not retry.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name identifies the provider in logs and errors.
	Name() string
}

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation. Images are only
// honored by providers that support vision input.
type Message struct {
	Role    Role
	Content string
	Images  []Image
}

// Image is a picture attached to a message, addressed either by a public URL
// or by a data: URI carrying the encoded bytes.
type Image struct {
	URL string
}

// CompletionRequest contains the parameters for an LLM completion request.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// HasImages reports whether any message carries an image.
func (r CompletionRequest) HasImages() bool {
	for _, m := range r.Messages {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}

// CompletionResponse contains the result of an LLM completion request.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	FinishReason string
}
