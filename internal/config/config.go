package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: IMAGEHELPER_LIMITS__MAX_STEPS sets limits.max_steps.
const EnvPrefix = "IMAGEHELPER_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (IMAGEHELPER_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// envKey maps IMAGEHELPER_IMAGE__MODEL_LOCK to image.model_lock.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[ProviderType]bool{
	ProviderOpenAI:     true,
	ProviderSambaNova:  true,
	ProviderOpenRouter: true,
	ProviderCompatible: true,
}

var validGenerators = map[GeneratorType]bool{
	GeneratorLivepeer: true,
	GeneratorOpenAI:   true,
}

// Validate checks that the configuration contains valid values. All
// problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch {
	case c.LLM.Provider == "":
		add("llm.provider is required")
	case !validProviders[c.LLM.Provider]:
		add("invalid llm.provider %q: must be one of openai, sambanova, openrouter, compatible", c.LLM.Provider)
	case c.LLM.Provider == ProviderCompatible && c.LLM.BaseURL == "":
		add("llm.base_url is required for the compatible provider")
	}
	if c.LLM.Model == "" {
		add("llm.model is required")
	}
	if c.LLM.RPM < 0 {
		add("llm.rpm must be non-negative")
	}
	if c.LLM.MaxTokens < 0 {
		add("llm.max_tokens must be non-negative")
	}

	if !validGenerators[c.Image.Generator] {
		add("invalid image.generator %q: must be livepeer or openai", c.Image.Generator)
	}
	if c.Image.Width < 0 || c.Image.Height < 0 || c.Image.Count < 0 {
		add("image width, height and count must be non-negative")
	}

	switch c.Storage.Backend {
	case StorageS3:
		if c.Storage.Bucket == "" {
			add("storage.bucket is required for the s3 backend")
		}
	case StorageLocal:
		if c.Storage.LocalDir == "" {
			add("storage.local_dir is required for the local backend")
		}
	default:
		add("invalid storage.backend %q: must be s3 or local", c.Storage.Backend)
	}

	switch c.History.Backend {
	case HistorySQLite:
		if c.History.DBPath == "" {
			add("history.db_path is required for the sqlite backend")
		}
	case HistoryFile:
		if c.History.Dir == "" {
			add("history.dir is required for the file backend")
		}
	default:
		add("invalid history.backend %q: must be sqlite or file", c.History.Backend)
	}

	if err := c.Limits.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("limits: %w", err))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}

	return errors.Join(errs...)
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderSambaNova:
		return "SAMBANOVA_API_KEY"
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	case ProviderCompatible:
		return "LLM_API_KEY"
	default:
		return ""
	}
}

// ImageAPIKeyEnvVar returns the environment variable holding the image
// generator's credential.
func ImageAPIKeyEnvVar(generator GeneratorType) string {
	switch generator {
	case GeneratorLivepeer:
		return "LIVEPEER_API_KEY"
	case GeneratorOpenAI:
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}
