package config

import "github.com/roschler/livepeer-image-helper-back-end/internal/params"

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderSambaNova  ProviderType = "sambanova"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderCompatible ProviderType = "compatible"
)

// GeneratorType identifies an image generation backend.
type GeneratorType string

const (
	GeneratorLivepeer GeneratorType = "livepeer"
	GeneratorOpenAI   GeneratorType = "openai"
)

// StorageBackend selects where generated images are kept.
type StorageBackend string

const (
	StorageS3    StorageBackend = "s3"
	StorageLocal StorageBackend = "local"
)

// HistoryBackend selects where chat histories are kept.
type HistoryBackend string

const (
	HistorySQLite HistoryBackend = "sqlite"
	HistoryFile   HistoryBackend = "file"
)

// Config is the top-level configuration, read from .imagehelper.yml.
type Config struct {
	LLM      LLMConfig      `yaml:"llm" koanf:"llm"`
	Image    ImageConfig    `yaml:"image" koanf:"image"`
	Storage  StorageConfig  `yaml:"storage" koanf:"storage"`
	History  HistoryConfig  `yaml:"history" koanf:"history"`
	Refine   RefineConfig   `yaml:"refine" koanf:"refine"`
	Limits   params.Limits  `yaml:"limits" koanf:"limits"`
	Features FeaturesConfig `yaml:"features" koanf:"features"`
	Server   ServerConfig   `yaml:"server" koanf:"server"`
}

// LLMConfig configures the text and vision completion provider.
type LLMConfig struct {
	Provider    ProviderType `yaml:"provider" koanf:"provider"`
	Model       string       `yaml:"model" koanf:"model"`
	VisionModel string       `yaml:"vision_model,omitempty" koanf:"vision_model"`
	BaseURL     string       `yaml:"base_url,omitempty" koanf:"base_url"`
	RPM         int          `yaml:"rpm,omitempty" koanf:"rpm"`
	MaxTokens   int          `yaml:"max_tokens,omitempty" koanf:"max_tokens"`
}

// ImageConfig configures the image generator.
type ImageConfig struct {
	Generator GeneratorType `yaml:"generator" koanf:"generator"`
	BaseURL   string        `yaml:"base_url,omitempty" koanf:"base_url"`
	// Model is only used by the openai generator.
	Model     string `yaml:"model,omitempty" koanf:"model"`
	ModelLock bool   `yaml:"model_lock" koanf:"model_lock"`
	Width     int    `yaml:"width" koanf:"width"`
	Height    int    `yaml:"height" koanf:"height"`
	Count     int    `yaml:"count" koanf:"count"`
}

// StorageConfig configures the object store generated images are copied to.
type StorageConfig struct {
	Backend       StorageBackend `yaml:"backend" koanf:"backend"`
	Bucket        string         `yaml:"bucket,omitempty" koanf:"bucket"`
	Region        string         `yaml:"region,omitempty" koanf:"region"`
	PublicBaseURL string         `yaml:"public_base_url,omitempty" koanf:"public_base_url"`
	LocalDir      string         `yaml:"local_dir,omitempty" koanf:"local_dir"`
	// TrustedHosts are glob patterns for hosts images may be imported from.
	TrustedHosts []string `yaml:"trusted_hosts,omitempty" koanf:"trusted_hosts"`
}

// HistoryConfig configures the conversation store.
type HistoryConfig struct {
	Backend HistoryBackend `yaml:"backend" koanf:"backend"`
	Dir     string         `yaml:"dir,omitempty" koanf:"dir"`
	DBPath  string         `yaml:"db_path,omitempty" koanf:"db_path"`
}

// RefineConfig configures the auto-refinement pipeline.
type RefineConfig struct {
	// LogDir receives one YAML log per refinement; empty disables logging.
	LogDir string `yaml:"log_dir,omitempty" koanf:"log_dir"`
}

// FeaturesConfig holds optional behaviors.
type FeaturesConfig struct {
	SpeedComplaintEnabled bool `yaml:"speed_complaint_enabled" koanf:"speed_complaint_enabled"`
	HistoryForIntents     bool `yaml:"history_for_intents" koanf:"history_for_intents"`
	Verbose               bool `yaml:"verbose" koanf:"verbose"`
}

// ServerConfig configures the HTTP and websocket server.
type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}
