package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard asks for the provider, generator, storage and port, then
// saves the result to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to imagehelper! Let's configure the image assistant.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. LLM provider.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"openai", "sambanova", "openrouter", "compatible"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	cfg.LLM.Provider = ProviderType(providerStr)
	preset := GetPreset(cfg.LLM.Provider)
	cfg.LLM.Model = preset.Model
	cfg.LLM.VisionModel = preset.VisionModel

	if cfg.LLM.Provider == ProviderCompatible {
		baseURL, err := (&promptui.Prompt{Label: "OpenAI-compatible base URL"}).Run()
		if err != nil {
			return nil, fmt.Errorf("base url: %w", err)
		}
		cfg.LLM.BaseURL = strings.TrimSpace(baseURL)
	}

	// 2. Image generator.
	generatorPrompt := promptui.Select{
		Label: "Select image generator",
		Items: []string{
			"livepeer - Livepeer AI gateway text-to-image",
			"openai   - OpenAI images API",
		},
	}
	genIdx, _, err := generatorPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("generator selection: %w", err)
	}
	cfg.Image.Generator = []GeneratorType{GeneratorLivepeer, GeneratorOpenAI}[genIdx]
	if cfg.Image.Generator == GeneratorOpenAI {
		cfg.Image.BaseURL = ""
	}

	// 3. Image storage.
	storagePrompt := promptui.Select{
		Label: "Where should generated images be stored?",
		Items: []string{"local", "s3"},
	}
	_, backend, err := storagePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("storage selection: %w", err)
	}
	cfg.Storage.Backend = StorageBackend(backend)
	if cfg.Storage.Backend == StorageS3 {
		bucket, err := (&promptui.Prompt{
			Label:    "S3 bucket",
			Validate: nonEmpty,
		}).Run()
		if err != nil {
			return nil, fmt.Errorf("bucket: %w", err)
		}
		region, err := (&promptui.Prompt{Label: "AWS region", Default: "us-east-1"}).Run()
		if err != nil {
			return nil, fmt.Errorf("region: %w", err)
		}
		cfg.Storage.Bucket = strings.TrimSpace(bucket)
		cfg.Storage.Region = strings.TrimSpace(region)
	}

	// 4. Server port.
	portPrompt := promptui.Prompt{
		Label:   "Server port",
		Default: fmt.Sprint(cfg.Server.Port),
		Validate: func(s string) error {
			var n int
			if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("not a valid port")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	fmt.Sscanf(portStr, "%d", &cfg.Server.Port)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Check for API keys.
	for _, envVar := range []string{APIKeyEnvVar(cfg.LLM.Provider), ImageAPIKeyEnvVar(cfg.Image.Generator)} {
		if envVar != "" && os.Getenv(envVar) == "" {
			fmt.Printf("\nNote: Set %s in your environment (or .env) before running imagehelper serve.\n", envVar)
		}
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

func nonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("value is required")
	}
	return nil
}
