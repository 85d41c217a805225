package llm

import (
	"fmt"
)

// Default endpoints for the OpenAI-compatible providers.
const (
	SambaNovaBaseURL  = "https://api.sambanova.ai/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
)

// ProviderConfig carries everything needed to build a Provider. Credentials
// are resolved by the caller; the factory never reads the environment.
type ProviderConfig struct {
	Type    string
	Model   string
	APIKey  string
	BaseURL string
	// RPM caps requests per minute when positive.
	RPM int
}

// NewProvider creates a new LLM provider based on the given configuration.
// Supported provider types: "openai", "sambanova", "openrouter", "compatible".
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key for provider %q is not set", cfg.Type)
	}

	var p Provider
	switch cfg.Type {
	case "openai":
		if cfg.BaseURL != "" {
			p = NewCompatibleProvider("openai", cfg.BaseURL, cfg.APIKey, cfg.Model)
		} else {
			p = NewOpenAIProvider(cfg.APIKey, cfg.Model)
		}

	case "sambanova":
		p = NewCompatibleProvider("sambanova", orDefault(cfg.BaseURL, SambaNovaBaseURL), cfg.APIKey, cfg.Model)

	case "openrouter":
		p = NewCompatibleProvider("openrouter", orDefault(cfg.BaseURL, OpenRouterBaseURL), cfg.APIKey, cfg.Model)

	case "compatible":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("provider %q requires a base URL", cfg.Type)
		}
		p = NewCompatibleProvider("compatible", cfg.BaseURL, cfg.APIKey, cfg.Model)

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}

	if cfg.RPM > 0 {
		p = NewRateLimitedProvider(p, cfg.RPM)
	}
	return p, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
