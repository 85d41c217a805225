package completion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roschler/livepeer-image-helper-back-end/internal/jsonfix"
	"github.com/roschler/livepeer-image-helper-back-end/internal/llm"
)

type stubProvider struct {
	mu      sync.Mutex
	content string
	err     error
	reqs    []llm.CompletionRequest
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reqs = append(p.reqs, req)
	if p.err != nil {
		return nil, p.err
	}
	return &llm.CompletionResponse{Content: p.content, Model: "stub-model"}, nil
}

func TestCompleteText(t *testing.T) {
	p := &stubProvider{content: "a fox. a forest."}
	svc := NewService(p, "text-model", nil, WithMaxTokens(512))

	res, err := svc.Complete(context.Background(), Request{
		Tag:          "DECOMPOSE",
		SystemPrompt: "decompose",
		UserInput:    "a red fox in a forest",
		Params:       Params{Temperature: 0.3},
	})
	require.NoError(t, err)
	assert.Equal(t, "a fox. a forest.", res.Text)
	assert.Nil(t, res.JSON)

	require.Len(t, p.reqs, 1)
	got := p.reqs[0]
	assert.Equal(t, "text-model", got.Model)
	assert.Equal(t, 512, got.MaxTokens)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	assert.False(t, got.JSONMode)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, llm.RoleSystem, got.Messages[0].Role)
	assert.Equal(t, "a red fox in a forest", got.Messages[1].Content)
}

func TestCompleteRepairsJSON(t *testing.T) {
	p := &stubProvider{content: "Result:\n{start_new_image: true, // yes\n}"}
	svc := NewService(p, "m", nil)

	res, err := svc.Complete(context.Background(), Request{
		Tag:          "START_NEW_IMAGE",
		SystemPrompt: "classify",
		UserInput:    "draw a cat instead",
		ExpectJSON:   true,
	})
	require.NoError(t, err)
	obj, err := res.Object()
	require.NoError(t, err)
	assert.Equal(t, true, obj["start_new_image"])
	assert.True(t, p.reqs[0].JSONMode)
}

func TestCompleteArrayResponseDisablesJSONMode(t *testing.T) {
	p := &stubProvider{content: `[{"complaint_type": "blurry"}]`}
	svc := NewService(p, "m", nil)

	res, err := svc.Complete(context.Background(), Request{
		Tag:           "COMPLAINTS",
		SystemPrompt:  "classify",
		UserInput:     "too fuzzy",
		ExpectJSON:    true,
		ArrayResponse: true,
	})
	require.NoError(t, err)
	assert.False(t, p.reqs[0].JSONMode)
	_, err = res.Object()
	assert.ErrorIs(t, err, jsonfix.ErrUnparseable)
}

func TestCompleteWithFields(t *testing.T) {
	p := &stubProvider{content: `{"prompt": "a fox", "negative_prompt": "", "prompt_summary": "fox", "user_input_has_complaints": true}`}
	svc := NewService(p, "m", nil)

	res, err := svc.Complete(context.Background(), Request{
		Tag:          "MAIN",
		SystemPrompt: "compose",
		ExpectJSON:   true,
		Fields: []jsonfix.Field{
			{Name: "prompt", Kind: jsonfix.KindString},
			{Name: "user_input_has_complaints", Kind: jsonfix.KindBool},
		},
	})
	require.NoError(t, err)
	obj, err := res.Object()
	require.NoError(t, err)
	assert.Equal(t, "a fox", obj["prompt"])
	assert.Equal(t, true, obj["user_input_has_complaints"])
}

func TestCompleteVisionUsesVisionModel(t *testing.T) {
	p := &stubProvider{content: "a fox sitting under a tree"}
	svc := NewService(p, "text-model", nil, WithVisionModel("vision-model"))

	_, err := svc.Complete(context.Background(), Request{
		Tag:          "DESCRIBE",
		SystemPrompt: "describe the image",
		Image:        &Image{Data: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"},
	})
	require.NoError(t, err)

	got := p.reqs[0]
	assert.Equal(t, "vision-model", got.Model)
	require.Len(t, got.Messages[1].Images, 1)
	assert.True(t, strings.HasPrefix(got.Messages[1].Images[0].URL, "data:image/jpeg;base64,"))
}

func TestCompleteErrors(t *testing.T) {
	svc := NewService(&stubProvider{err: errors.New("upstream down")}, "m", nil)

	_, err := svc.Complete(context.Background(), Request{SystemPrompt: "x"})
	assert.Error(t, err, "missing tag")

	_, err = svc.Complete(context.Background(), Request{Tag: "T", SystemPrompt: "  "})
	assert.Error(t, err, "empty system prompt")

	_, err = svc.Complete(context.Background(), Request{Tag: "T", SystemPrompt: "x"})
	assert.ErrorContains(t, err, "upstream down")

	bad := NewService(&stubProvider{content: "no json here at all"}, "m", nil)
	_, err = bad.Complete(context.Background(), Request{Tag: "T", SystemPrompt: "x", ExpectJSON: true})
	assert.Error(t, err)
}
