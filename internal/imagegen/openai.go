package imagegen

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIGenerator uses the OpenAI Images API. The API has no negative
// prompt, so it is folded into the prompt text, and the state's
// diffusion parameters are ignored.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	size   Size
	logger *zap.Logger
}

// NewOpenAIGenerator creates a generator. baseURL may be empty.
func NewOpenAIGenerator(apiKey, baseURL, model string, size Size, logger *zap.Logger) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		size:   size.orDefault(),
		logger: logger,
	}
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) ([]string, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	text := req.Prompt
	if req.NegativePrompt != "" {
		text += "\nAvoid: " + req.NegativePrompt
	}

	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         text,
		Model:          g.model,
		N:              g.size.Count,
		Size:           fmt.Sprintf("%dx%d", g.size.Width, g.size.Height),
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, fmt.Errorf("openai image generation: %w", err)
	}

	urls := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}
	if len(urls) == 0 {
		return nil, ErrNoImages
	}
	g.logger.Info("images generated", zap.String("model", g.model), zap.Int("count", len(urls)))
	return urls, nil
}
