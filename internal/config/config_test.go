package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, GeneratorLivepeer, cfg.Image.Generator)
	assert.Equal(t, StorageLocal, cfg.Storage.Backend)
	assert.Equal(t, HistorySQLite, cfg.History.Backend)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Limits.DefaultSteps)
	assert.InDelta(t, 2.0, cfg.Limits.DefaultGuidanceScale, 1e-9)
	assert.False(t, cfg.Features.SpeedComplaintEnabled)
	require.NoError(t, cfg.Validate())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.imagehelper.yml")

	original := DefaultConfig()
	original.LLM.Provider = ProviderSambaNova
	original.LLM.Model = "Meta-Llama-3.1-8B-Instruct"
	original.Image.ModelLock = true
	original.Storage.Backend = StorageS3
	original.Storage.Bucket = "images"
	original.Storage.TrustedHosts = []string{"*.example.com"}
	original.Limits.MaxSteps = 40
	original.Features.HistoryForIntents = true
	require.NoError(t, original.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	require.NoError(t, err, "a missing file yields defaults")
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yml")
	require.NoError(t, DefaultConfig().Save(path))

	t.Setenv("IMAGEHELPER_LLM__PROVIDER", "openrouter")
	t.Setenv("IMAGEHELPER_LIMITS__MAX_STEPS", "28")
	t.Setenv("IMAGEHELPER_IMAGE__MODEL_LOCK", "true")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenRouter, loaded.LLM.Provider)
	assert.Equal(t, 28, loaded.Limits.MaxSteps)
	assert.True(t, loaded.Image.ModelLock)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "limits.max_steps", envKey("IMAGEHELPER_LIMITS__MAX_STEPS"))
	assert.Equal(t, "server.port", envKey("IMAGEHELPER_SERVER__PORT"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty provider", func(c *Config) { c.LLM.Provider = "" }, "llm.provider is required"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "anthropic" }, "invalid llm.provider"},
		{"compatible without url", func(c *Config) { c.LLM.Provider = ProviderCompatible }, "llm.base_url"},
		{"empty model", func(c *Config) { c.LLM.Model = "" }, "llm.model is required"},
		{"negative rpm", func(c *Config) { c.LLM.RPM = -1 }, "llm.rpm"},
		{"unknown generator", func(c *Config) { c.Image.Generator = "midjourney" }, "invalid image.generator"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = StorageS3 }, "storage.bucket"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "ftp" }, "invalid storage.backend"},
		{"file history without dir", func(c *Config) {
			c.History.Backend = HistoryFile
			c.History.Dir = ""
		}, "history.dir"},
		{"bad limits", func(c *Config) { c.Limits.MinSteps = 50 }, "limits:"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Model = ""
	cfg.Server.Port = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.model")
	assert.Contains(t, err.Error(), "server.port")
}

func TestGetPreset(t *testing.T) {
	assert.Equal(t, "gpt-4o", GetPreset(ProviderOpenAI).VisionModel)
	assert.Equal(t, "Llama-3.2-90B-Vision-Instruct", GetPreset(ProviderSambaNova).VisionModel)
	assert.Equal(t, GetPreset(ProviderOpenAI), GetPreset("unknown"))
}

func TestAPIKeyEnvVar(t *testing.T) {
	tests := []struct {
		provider ProviderType
		want     string
	}{
		{ProviderOpenAI, "OPENAI_API_KEY"},
		{ProviderSambaNova, "SAMBANOVA_API_KEY"},
		{ProviderOpenRouter, "OPENROUTER_API_KEY"},
		{ProviderCompatible, "LLM_API_KEY"},
		{"other", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, APIKeyEnvVar(tt.provider), tt.provider)
	}
	assert.Equal(t, "LIVEPEER_API_KEY", ImageAPIKeyEnvVar(GeneratorLivepeer))
}
