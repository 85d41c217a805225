// Package completion is the text and vision completion service used by the
// turn pipeline. It wraps an llm.Provider and guarantees that structured
// responses are repaired and decoded before they reach a caller.
package completion

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roschler/livepeer-image-helper-back-end/internal/jsonfix"
	"github.com/roschler/livepeer-image-helper-back-end/internal/llm"
)

// Completer is the contract the rest of the pipeline depends on.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Result, error)
}

// Params tunes a single call.
type Params struct {
	Temperature float64
	MaxTokens   int
	// Model overrides the service default when set.
	Model string
}

// Image is an inline image for a vision call.
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURI encodes the image as a data: URI.
func (i Image) DataURI() string {
	mime := i.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Request is one completion call. Tag names the caller (an intent detector
// id or a pipeline stage) and is carried into logs and results.
type Request struct {
	Tag          string
	SystemPrompt string
	UserInput    string
	Params       Params
	ExpectJSON   bool
	// ArrayResponse marks a JSON response that may be a top-level array,
	// which rules out the provider's object-only JSON mode.
	ArrayResponse bool
	// Fields switches JSON decoding to tolerant field extraction.
	Fields []jsonfix.Field
	// Image makes the call a vision call.
	Image *Image
}

// Result holds the outcome of a successful call.
type Result struct {
	Tag  string
	Text string
	// JSON is the decoded value when the request expected JSON.
	JSON       any
	ReceivedAt time.Time
}

// Object returns JSON as an object, or an error if it is something else.
func (r *Result) Object() (map[string]any, error) {
	obj, ok := r.JSON.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a JSON object, got %T: %w", r.Tag, r.JSON, jsonfix.ErrUnparseable)
	}
	return obj, nil
}

// Service implements Completer on top of an llm.Provider.
type Service struct {
	provider    llm.Provider
	model       string
	visionModel string
	maxTokens   int
	logger      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithVisionModel sets the model used for calls carrying an image.
func WithVisionModel(model string) Option {
	return func(s *Service) { s.visionModel = model }
}

// WithMaxTokens sets the default token cap per call.
func WithMaxTokens(n int) Option {
	return func(s *Service) { s.maxTokens = n }
}

// NewService creates a completion service. model is the default text model.
func NewService(provider llm.Provider, model string, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		provider: provider,
		model:    model,
		logger:   logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Complete runs the call. Upstream failures and structured-output parse
// failures are both returned as errors; nothing is retried.
func (s *Service) Complete(ctx context.Context, req Request) (*Result, error) {
	if req.Tag == "" {
		return nil, errors.New("completion request has no tag")
	}
	if strings.TrimSpace(req.SystemPrompt) == "" {
		return nil, fmt.Errorf("%s: system prompt is empty", req.Tag)
	}

	model := req.Params.Model
	if model == "" {
		model = s.model
		if req.Image != nil && s.visionModel != "" {
			model = s.visionModel
		}
	}
	maxTokens := req.Params.MaxTokens
	if maxTokens == 0 {
		maxTokens = s.maxTokens
	}

	user := llm.Message{Role: llm.RoleUser, Content: req.UserInput}
	if req.Image != nil {
		user.Images = []llm.Image{{URL: req.Image.DataURI()}}
	}

	start := time.Now()
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: req.SystemPrompt},
			user,
		},
		MaxTokens:   maxTokens,
		Temperature: req.Params.Temperature,
		JSONMode:    req.ExpectJSON && !req.ArrayResponse && req.Image == nil,
	})
	if err != nil {
		s.logger.Warn("completion failed", zap.String("tag", req.Tag), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", req.Tag, err)
	}

	s.logger.Debug("completion received",
		zap.String("tag", req.Tag),
		zap.String("model", resp.Model),
		zap.Int("input_tokens", resp.InputTokens),
		zap.Int("output_tokens", resp.OutputTokens),
		zap.Duration("elapsed", time.Since(start)),
	)

	res := &Result{
		Tag:        req.Tag,
		Text:       resp.Content,
		ReceivedAt: time.Now().UTC(),
	}
	if !req.ExpectJSON {
		return res, nil
	}

	if len(req.Fields) > 0 {
		obj, err := jsonfix.ExtractFields(resp.Content, req.Fields)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", req.Tag, err)
		}
		res.JSON = obj
		return res, nil
	}

	v, err := jsonfix.Parse(resp.Content)
	if err != nil {
		s.logger.Warn("structured output could not be repaired",
			zap.String("tag", req.Tag), zap.String("content", resp.Content), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", req.Tag, err)
	}
	res.JSON = v
	return res, nil
}
