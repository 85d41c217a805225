package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// DefaultLivepeerURL is the public Livepeer AI gateway.
const DefaultLivepeerURL = "https://dream-gateway.livepeer.cloud"

// LivepeerGenerator calls the Livepeer AI text-to-image endpoint.
type LivepeerGenerator struct {
	baseURL string
	apiKey  string
	size    Size
	client  *http.Client
	logger  *zap.Logger
}

// NewLivepeerGenerator creates a generator for the gateway at baseURL.
func NewLivepeerGenerator(baseURL, apiKey string, size Size, logger *zap.Logger) *LivepeerGenerator {
	if baseURL == "" {
		baseURL = DefaultLivepeerURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LivepeerGenerator{
		baseURL: baseURL,
		apiKey:  apiKey,
		size:    size.orDefault(),
		client:  &http.Client{},
		logger:  logger,
	}
}

type livepeerRequest struct {
	ModelID           string  `json:"model_id"`
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	GuidanceScale     float64 `json:"guidance_scale"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	Loras             string  `json:"loras,omitempty"`
	Width             int     `json:"width"`
	Height            int     `json:"height"`
	SafetyCheck       bool    `json:"safety_check"`
	NumImages         int     `json:"num_images_per_prompt"`
}

type livepeerResponse struct {
	Images []struct {
		URL  string `json:"url"`
		Seed int64  `json:"seed"`
		NSFW bool   `json:"nsfw"`
	} `json:"images"`
}

// Generate implements Generator.
func (g *LivepeerGenerator) Generate(ctx context.Context, req Request) ([]string, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	lpReq := livepeerRequest{
		ModelID:           string(req.State.ModelID),
		Prompt:            req.Prompt,
		NegativePrompt:    req.NegativePrompt,
		GuidanceScale:     req.State.GuidanceScale,
		NumInferenceSteps: req.State.Steps,
		Width:             g.size.Width,
		Height:            g.size.Height,
		SafetyCheck:       true,
		NumImages:         g.size.Count,
	}
	if len(req.State.Loras) > 0 {
		loras, err := json.Marshal(req.State.Loras)
		if err != nil {
			return nil, fmt.Errorf("encoding loras: %w", err)
		}
		lpReq.Loras = string(loras)
	}

	body, err := json.Marshal(lpReq)
	if err != nil {
		return nil, fmt.Errorf("encoding livepeer request: %w", err)
	}

	endpoint, err := url.JoinPath(g.baseURL, "text-to-image")
	if err != nil {
		return nil, fmt.Errorf("building livepeer url: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating livepeer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("livepeer request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading livepeer response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("livepeer returned status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var lpResp livepeerResponse
	if err := json.Unmarshal(respBody, &lpResp); err != nil {
		return nil, fmt.Errorf("decoding livepeer response: %w", err)
	}

	base, _ := url.Parse(g.baseURL)
	urls := make([]string, 0, len(lpResp.Images))
	for _, img := range lpResp.Images {
		if img.URL == "" {
			continue
		}
		if img.NSFW {
			g.logger.Warn("livepeer flagged image as nsfw", zap.String("url", img.URL))
		}
		u, err := url.Parse(img.URL)
		if err != nil {
			return nil, fmt.Errorf("livepeer image url %q: %w", img.URL, err)
		}
		if base != nil {
			u = base.ResolveReference(u)
		}
		urls = append(urls, u.String())
	}
	if len(urls) == 0 {
		return nil, ErrNoImages
	}

	g.logger.Info("images generated",
		zap.String("model", lpReq.ModelID),
		zap.Int("steps", lpReq.NumInferenceSteps),
		zap.Float64("guidance_scale", lpReq.GuidanceScale),
		zap.Int("count", len(urls)),
	)
	return urls, nil
}
