package refine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roschler/livepeer-image-helper-back-end/internal/completion/completiontest"
	"github.com/roschler/livepeer-image-helper-back-end/internal/objstore"
)

var jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}

func scriptAll() *completiontest.Scripted {
	return completiontest.New().
		On(string(StageDescribe), "A fox with a blurry face stands in a forest.").
		On(string(StageCompare), "1. The fox's face is blurred.").
		On(string(StageSynthesize), "The fox's face is blurry, please make it sharp.").
		On(string(StageRewrite), `{"prompt": "a red fox with a sharp detailed face in a forest", "negative_prompt": "blur"}`).
		On(string(StageReconcile), "Sure:\n{prompt: \"a red fox in a forest, sharp detailed face\", negative_prompt: \"blurry face\"}")
}

func setup(t *testing.T) (*objstore.LocalStore, string) {
	t.Helper()
	store := objstore.NewLocalStore(t.TempDir(), "http://files.test")
	u, err := store.Put(context.Background(), "images/alice/req/0.jpg", jpegHeader, "image/jpeg")
	require.NoError(t, err)
	return store, u
}

func TestRunExecutesEveryStageOnce(t *testing.T) {
	store, imageURL := setup(t)
	script := scriptAll()
	logDir := t.TempDir()

	var seen []Stage
	p := NewPipeline(script, store, nil, WithLogDir(logDir))

	res, err := p.Run(context.Background(), Input{
		UserID:          "alice",
		BaseLevelPrompt: "a red fox in a forest",
		ActiveImageURL:  imageURL,
		Observer:        func(s Stage) { seen = append(seen, s) },
	})
	require.NoError(t, err)

	assert.Equal(t, Stages, seen)
	for _, s := range Stages {
		assert.Equal(t, 1, script.Count(string(s)), s)
	}
	assert.Equal(t, "The fox's face is blurry, please make it sharp.", res.SuggestedFeedback)
	assert.Equal(t, "a red fox in a forest, sharp detailed face", res.Prompt)
	assert.Equal(t, "blurry face", res.NegativePrompt)
	require.Len(t, res.Record.Entries, len(Stages))

	describe, ok := script.Last(string(StageDescribe))
	require.True(t, ok)
	require.NotNil(t, describe.Image)
	assert.Equal(t, "image/jpeg", describe.Image.MIMEType)

	compare, _ := script.Last(string(StageCompare))
	assert.Contains(t, compare.SystemPrompt, "a red fox in a forest")
	assert.Contains(t, compare.SystemPrompt, "A fox with a blurry face")
	assert.NotNil(t, compare.Image)

	rewrite, _ := script.Last(string(StageRewrite))
	assert.True(t, rewrite.ExpectJSON)
	assert.InDelta(t, RewriteTemperature, rewrite.Params.Temperature, 1e-9)
	assert.NotContains(t, rewrite.SystemPrompt, "${")

	reconcile, _ := script.Last(string(StageReconcile))
	assert.InDelta(t, ReconcileTemperature, reconcile.Params.Temperature, 1e-9)
	assert.Contains(t, reconcile.SystemPrompt, "a red fox with a sharp detailed face in a forest")

	name, err := LogFileName(imageURL)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(logDir, name))
	require.NoError(t, err)
	var logged Record
	require.NoError(t, yaml.Unmarshal(data, &logged))
	assert.Len(t, logged.Entries, len(Stages))
	assert.Empty(t, logged.Error)
}

func TestRunStageFailureAborts(t *testing.T) {
	store, imageURL := setup(t)
	script := scriptAll().Fail(string(StageSynthesize), errors.New("upstream timeout"))
	logDir := t.TempDir()
	p := NewPipeline(script, store, nil, WithLogDir(logDir))

	_, err := p.Run(context.Background(), Input{BaseLevelPrompt: "a red fox", ActiveImageURL: imageURL})
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageSynthesize, se.Stage)
	assert.ErrorContains(t, err, "upstream timeout")
	assert.Zero(t, script.Count(string(StageRewrite)))
	assert.Zero(t, script.Count(string(StageReconcile)))

	name, _ := LogFileName(imageURL)
	data, err := os.ReadFile(filepath.Join(logDir, name))
	require.NoError(t, err)
	assert.Contains(t, string(data), "upstream timeout")
}

func TestRunMissingImage(t *testing.T) {
	store, _ := setup(t)
	script := scriptAll()
	p := NewPipeline(script, store, nil)

	_, err := p.Run(context.Background(), Input{BaseLevelPrompt: "a red fox", ActiveImageURL: "http://files.test/images/alice/none/0.jpg"})
	assert.ErrorIs(t, err, objstore.ErrNotFound)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageDescribe, se.Stage)
	assert.Empty(t, script.Calls())
}

func TestRunRejectsMissingInputs(t *testing.T) {
	store, imageURL := setup(t)
	p := NewPipeline(scriptAll(), store, nil)

	_, err := p.Run(context.Background(), Input{BaseLevelPrompt: "a fox"})
	assert.Error(t, err)
	_, err = p.Run(context.Background(), Input{ActiveImageURL: imageURL})
	assert.Error(t, err)
}

func TestRewriteWithoutPromptFails(t *testing.T) {
	store, imageURL := setup(t)
	script := scriptAll().On(string(StageRewrite), `{"negative_prompt": "blur"}`)
	p := NewPipeline(script, store, nil)

	_, err := p.Run(context.Background(), Input{BaseLevelPrompt: "a fox", ActiveImageURL: imageURL})
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageRewrite, se.Stage)
}

func TestLogFileName(t *testing.T) {
	name, err := LogFileName("https://bucket.s3.amazonaws.com/images/a b/0.jpg")
	require.NoError(t, err)
	assert.Equal(t, "bucket.s3.amazonaws.com_images_a_b_0.jpg-refinement-log.yaml", name)

	_, err = LogFileName(" ")
	assert.Error(t, err)
}
