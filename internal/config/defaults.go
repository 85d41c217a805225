package config

import (
	"github.com/roschler/livepeer-image-helper-back-end/internal/imagegen"
	"github.com/roschler/livepeer-image-helper-back-end/internal/params"
)

// FileName is the default configuration file.
const FileName = ".imagehelper.yml"

// Preset holds the default models for a provider.
type Preset struct {
	Model       string
	VisionModel string
}

var providerPresets = map[ProviderType]Preset{
	ProviderOpenAI: {
		Model:       "gpt-4o-mini",
		VisionModel: "gpt-4o",
	},
	ProviderSambaNova: {
		Model:       "Meta-Llama-3.1-70B-Instruct",
		VisionModel: "Llama-3.2-90B-Vision-Instruct",
	},
	ProviderOpenRouter: {
		Model:       "openai/gpt-4o-mini",
		VisionModel: "openai/gpt-4o",
	},
}

// GetPreset returns the default models for a provider, falling back to
// the openai preset.
func GetPreset(provider ProviderType) Preset {
	if p, ok := providerPresets[provider]; ok {
		return p
	}
	return providerPresets[ProviderOpenAI]
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	preset := GetPreset(ProviderOpenAI)
	return &Config{
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       preset.Model,
			VisionModel: preset.VisionModel,
			MaxTokens:   2048,
		},
		Image: ImageConfig{
			Generator: GeneratorLivepeer,
			BaseURL:   imagegen.DefaultLivepeerURL,
			Width:     imagegen.DefaultSize.Width,
			Height:    imagegen.DefaultSize.Height,
			Count:     imagegen.DefaultSize.Count,
		},
		Storage: StorageConfig{
			Backend:      StorageLocal,
			LocalDir:     ".imagehelper/images",
			TrustedHosts: []string{"*.livepeer.cloud", "*.amazonaws.com", "oaidalleapiprodscus.blob.core.windows.net"},
		},
		History: HistoryConfig{
			Backend: HistorySQLite,
			Dir:     ".imagehelper/histories",
			DBPath:  ".imagehelper/imagehelper.db",
		},
		Limits: params.DefaultLimits(),
		Server: ServerConfig{
			Port: 8080,
		},
	}
}
