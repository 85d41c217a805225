package volley

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roschler/livepeer-image-helper-back-end/internal/audit"
	"github.com/roschler/livepeer-image-helper-back-end/internal/chat"
	"github.com/roschler/livepeer-image-helper-back-end/internal/completion/completiontest"
	"github.com/roschler/livepeer-image-helper-back-end/internal/db"
	"github.com/roschler/livepeer-image-helper-back-end/internal/imagegen/imagegentest"
	"github.com/roschler/livepeer-image-helper-back-end/internal/intent"
	"github.com/roschler/livepeer-image-helper-back-end/internal/objstore"
	"github.com/roschler/livepeer-image-helper-back-end/internal/params"
	"github.com/roschler/livepeer-image-helper-back-end/internal/refine"
)

type harness struct {
	proc      *Processor
	script    *completiontest.Scripted
	generator *imagegentest.Recorder
	history   *chat.SQLiteStore
	audit     *audit.Store
	gateway   *httptest.Server
	db        *db.DB
}

type messages struct {
	mu   sync.Mutex
	msgs []string
}

func (m *messages) Notify(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{G: 180, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	data := pngImage(t)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	t.Cleanup(gateway.Close)

	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	store := objstore.NewLocalStore(t.TempDir(), "http://files.test")
	script := scriptNewImage(completiontest.New())
	generator := imagegentest.New(gateway.URL + "/stream/req-1/0.png")
	h := &harness{
		script:    script,
		generator: generator,
		history:   chat.NewSQLiteStore(database, nil),
		audit:     audit.NewStore(database),
		gateway:   gateway,
		db:        database,
	}
	h.proc = NewProcessor(Deps{
		Completer: script,
		History:   h.history,
		Machine:   params.NewMachine(params.DefaultLimits(), nil),
		Refiner:   refine.NewPipeline(script, store, nil),
		Generator: generator,
		Importer:  objstore.NewImporter(store, nil, objstore.WithHTTPClient(gateway.Client())),
		Audit:     h.audit,
	}, opts, nil)
	return h
}

func scriptNewImage(s *completiontest.Scripted) *completiontest.Scripted {
	return s.
		On(string(intent.TextWantedOnImage), `{"is_text_wanted_on_image": false}`).
		On(string(intent.StartNewImage), `{"start_new_image": false}`).
		On(string(intent.ImageComplaint), `[]`).
		On(string(intent.GenerationSpeedComplaint), `[]`).
		On(string(intent.NatureOfRequest), `{"nature_of_user_request": "create_new_image_request"}`).
		On(TagDecomposeScene, "A red fox stands in a forest.")
}

func scriptRefine(s *completiontest.Scripted) *completiontest.Scripted {
	return s.
		On(string(intent.NatureOfRequest), `{"nature_of_user_request": "modify_existing_image_request"}`).
		On(string(intent.ImageComplaint), `[{"complaint_type": "wrong_content", "complaint_text": "the fox's face"}]`).
		On(string(refine.StageDescribe), "A fox with a smeared face in a forest.").
		On(string(refine.StageCompare), "The fox's face is distorted.").
		On(string(refine.StageSynthesize), "The fox's face is wrong, it looks smeared.").
		On(string(refine.StageRewrite), `{"prompt": "a red fox with a clear detailed face in a forest", "negative_prompt": "smeared"}`).
		On(string(refine.StageReconcile), `{"prompt": "a red fox in a forest with a clear detailed face", "negative_prompt": "smeared face"}`).
		On(TagDecomposeScene, "A red fox stands in a forest. The fox has a clear, detailed face.")
}

func (h *harness) load(t *testing.T, user string) *chat.History {
	t.Helper()
	hist, err := h.history.Load(context.Background(), user, chat.ImageAssistant)
	require.NoError(t, err)
	return hist
}

func TestNewImageTurn(t *testing.T) {
	h := newHarness(t, Options{})
	msgs := &messages{}

	out, err := h.proc.Process(context.Background(), Turn{UserID: "alice", Input: "a red fox in a forest", Mode: params.ModeNew}, msgs)
	require.NoError(t, err)

	v := out.Volley
	assert.True(t, v.IsNewSession)
	assert.Equal(t, 0, v.StateAfter.RefinementIterationCount)
	assert.Equal(t, params.DefaultModel, v.StateAfter.ModelID)
	assert.Equal(t, "A red fox stands in a forest.", v.Prompt)
	assert.Equal(t, "a red fox in a forest", v.UserInput)
	assert.Len(t, v.IntentDetections, 5)
	assert.Equal(t, []string{"http://files.test/images/alice/req-1/0.jpg"}, out.ImageURLs)
	assert.Contains(t, v.ResponseToUser, `"A red fox stands in a forest."`)
	assert.NotContains(t, v.ResponseToUser, "SUGGESTED USER FEEDBACK")
	assert.Regexp(t, `^\d+-[0-9a-f-]{36}$`, v.RequestID)

	decompose, ok := h.script.Last(TagDecomposeScene)
	require.True(t, ok)
	assert.Equal(t, "a red fox in a forest", decompose.UserInput)
	assert.InDelta(t, DecomposeTemperature, decompose.Params.Temperature, 1e-9)

	assert.Equal(t, 1, h.script.Count(string(intent.ImageComplaint)), "no extended detector on a new image")
	assert.Equal(t, []string{MsgThinking, MsgNewImage, MsgGeneratingImage}, msgs.msgs)

	hist := h.load(t, "alice")
	require.Len(t, hist.Volleys, 1)
	assert.Equal(t, v.RequestID, hist.Volleys[0].RequestID)

	entries, err := h.audit.Query(context.Background(), audit.QueryFilter{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.StatusSucceeded, entries[0].Status)
	assert.Equal(t, v.RequestID, entries[0].ID)
}

func TestRefineTurn(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	first, err := h.proc.Process(ctx, Turn{UserID: "alice", Input: "a red fox in a forest", Mode: params.ModeNew}, nil)
	require.NoError(t, err)
	active := first.ImageURLs[0]

	scriptRefine(h.script)
	msgs := &messages{}
	out, err := h.proc.Process(ctx, Turn{
		UserID:         "alice",
		Input:          "the fox's face is wrong",
		Mode:           params.ModeRefine,
		ActiveImageURL: active,
	}, msgs)
	require.NoError(t, err)

	before, after := out.Volley.StateBefore, out.Volley.StateAfter
	limits := params.DefaultLimits()
	assert.Equal(t, 1, after.RefinementIterationCount)
	assert.Equal(t, before.RefinementIterationCount+1, after.RefinementIterationCount)
	assert.InDelta(t, min(before.GuidanceScale+limits.GuidanceScaleDelta, limits.MaxGuidanceScale), after.GuidanceScale, 1e-9)
	assert.Equal(t, min(before.Steps+3*limits.StepsDelta, limits.MaxSteps), after.Steps)
	assert.False(t, out.Volley.IsNewSession)
	assert.Equal(t, params.DefaultModel, after.ModelID)

	for _, s := range refine.Stages {
		assert.Equal(t, 1, h.script.Count(string(s)), s)
	}
	assert.Equal(t, 3, h.script.Count(string(intent.ImageComplaint)), "base and extended wrong-content detectors")

	complaint, _ := h.script.Last(string(intent.TextWantedOnImage))
	assert.Equal(t, "The fox's face is wrong, it looks smeared.", complaint.UserInput, "classifiers see the suggested feedback")

	decompose, _ := h.script.Last(TagDecomposeScene)
	assert.Equal(t, "a red fox in a forest with a clear detailed face", decompose.UserInput)
	assert.Equal(t, "smeared face", out.Volley.NegativePrompt)
	assert.Equal(t, "The fox's face is wrong, it looks smeared.", after.SuggestedFeedback)
	assert.True(t, strings.HasPrefix(out.Volley.ResponseToUser, "SUGGESTED USER FEEDBACK:"))
	assert.Contains(t, out.Changes, string(params.ChangeALotMoreSteps))

	assert.Contains(t, msgs.msgs, MsgModifyingImage)
	assert.Contains(t, msgs.msgs, "Auto-refining (synthesize feedback)...")
	assert.Contains(t, msgs.msgs, RefiningMessage(refine.StageDescribe))
	assert.Len(t, h.load(t, "alice").Volleys, 2)
}

func TestEnhanceTurnUsesDualEncoderPrompt(t *testing.T) {
	h := newHarness(t, Options{Verbose: true})
	ctx := context.Background()

	_, err := h.proc.Process(ctx, Turn{UserID: "bob", Input: "a lighthouse at dusk", Mode: params.ModeNew}, nil)
	require.NoError(t, err)

	h.script.
		On(string(intent.NatureOfRequest), `{"nature_of_user_request": "modify_existing_image_request"}`).
		On(TagImagePrompt, `{"prompt": "a tall white lighthouse on a rocky coast at dusk under a purple sky", "negative_prompt": "", "prompt_summary": "lighthouse, purple sky", "user_input_has_complaints": false}`)

	out, err := h.proc.Process(ctx, Turn{UserID: "bob", Input: "make the sky purple", Mode: params.ModeEnhance}, nil)
	require.NoError(t, err)

	assert.Equal(t, "lighthouse, purple sky | a tall white lighthouse on a rocky coast at dusk under a purple sky", out.Volley.Prompt)
	assert.Equal(t, 1, out.Volley.StateAfter.RefinementIterationCount)
	assert.Contains(t, out.Volley.ResponseToUser, "CURRENT LLM TEMPERATURE")

	req, ok := h.script.Last(TagImagePrompt)
	require.True(t, ok)
	assert.True(t, req.ExpectJSON)
	assert.Contains(t, req.UserInput, "Please help me with this image generation prompt:\nA red fox stands in a forest.")
	assert.Contains(t, req.UserInput, "Also. make the sky purple")
	assert.Equal(t, req.SystemPrompt, out.Volley.FullSystemPrompt)
	assert.Equal(t, req.UserInput, out.Volley.FullUserPrompt)
}

func TestDetectorFailureAbortsTurn(t *testing.T) {
	h := newHarness(t, Options{})
	h.script.Fail(string(intent.GenerationSpeedComplaint), errors.New("rate limited"))

	_, err := h.proc.Process(context.Background(), Turn{UserID: "alice", Input: "a red fox in a forest", Mode: params.ModeNew}, nil)
	require.ErrorIs(t, err, intent.ErrDetectorFailed)

	assert.True(t, h.load(t, "alice").Empty())
	assert.Empty(t, h.generator.Requests())
	assert.Zero(t, h.script.Count(TagDecomposeScene))

	entries, err := h.audit.Query(context.Background(), audit.QueryFilter{Status: audit.StatusFailed})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Error, "rate limited")
}

func TestGenerationFailurePersistsNothing(t *testing.T) {
	h := newHarness(t, Options{})
	h.generator.Err = errors.New("gateway down")

	_, err := h.proc.Process(context.Background(), Turn{UserID: "alice", Input: "a red fox", Mode: params.ModeNew}, nil)
	assert.ErrorContains(t, err, "gateway down")
	assert.True(t, h.load(t, "alice").Empty())
}

func TestModelLock(t *testing.T) {
	h := newHarness(t, Options{ModelLock: true})
	h.script.On(string(intent.TextWantedOnImage), `{"is_text_wanted_on_image": true}`)
	msgs := &messages{}

	out, err := h.proc.Process(context.Background(), Turn{UserID: "alice", Input: "a sign that says OPEN", Mode: params.ModeNew}, msgs)
	require.NoError(t, err)

	assert.Equal(t, params.ModelFlux, out.Volley.StateAfter.ModelID)
	reqs := h.generator.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, params.DefaultModel, reqs[0].State.ModelID)
	assert.Contains(t, msgs.msgs, MsgModelLocked)
}

func TestInvalidInput(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		turn Turn
	}{
		{"blank user", Turn{UserID: " ", Input: "a fox", Mode: params.ModeNew}},
		{"unsafe user", Turn{UserID: "a/b", Input: "a fox", Mode: params.ModeNew}},
		{"blank input", Turn{UserID: "alice", Input: "  ", Mode: params.ModeNew}},
		{"unknown mode", Turn{UserID: "alice", Input: "a fox", Mode: "paint"}},
		{"refine without image", Turn{UserID: "alice", Input: "fix it", Mode: params.ModeRefine}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.proc.Process(ctx, tt.turn, nil)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Empty(t, h.script.Calls())
}

func TestRefineWithoutHistory(t *testing.T) {
	h := newHarness(t, Options{})
	scriptRefine(h.script)

	_, err := h.proc.Process(context.Background(), Turn{
		UserID:         "carol",
		Input:          "fix the face",
		Mode:           params.ModeRefine,
		ActiveImageURL: "http://files.test/images/carol/x/0.jpg",
	}, nil)
	assert.ErrorIs(t, err, chat.ErrNoBaseLevelPrompt)
	assert.Empty(t, h.script.Calls())
}

func TestRefineMissingActiveImage(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	_, err := h.proc.Process(ctx, Turn{UserID: "alice", Input: "a red fox", Mode: params.ModeNew}, nil)
	require.NoError(t, err)

	scriptRefine(h.script)
	_, err = h.proc.Process(ctx, Turn{
		UserID:         "alice",
		Input:          "fix the face",
		Mode:           params.ModeRefine,
		ActiveImageURL: "http://files.test/images/alice/gone/0.jpg",
	}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, err, objstore.ErrNotFound)
	assert.Len(t, h.load(t, "alice").Volleys, 1)
}

func TestStateStaysInBounds(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	_, err := h.proc.Process(ctx, Turn{UserID: "dave", Input: "a realistic portrait of an old sailor", Mode: params.ModeNew}, nil)
	require.NoError(t, err)

	h.script.
		On(string(intent.NatureOfRequest), `{"nature_of_user_request": "modify_existing_image_request"}`).
		On(string(intent.ImageComplaint), `[{"complaint_type": "wrong_content", "complaint_text": "the beard"}, {"complaint_type": "blurry", "complaint_text": "fuzzy"}]`).
		On(TagImagePrompt, `{"prompt": "a realistic portrait of an old sailor with a white beard", "negative_prompt": "", "prompt_summary": "realistic old sailor", "user_input_has_complaints": true}`)

	limits := params.DefaultLimits()
	for i := 0; i < 6; i++ {
		out, err := h.proc.Process(ctx, Turn{UserID: "dave", Input: "the beard is wrong and it is fuzzy", Mode: params.ModeEnhance}, nil)
		require.NoError(t, err)
		st := out.Volley.StateAfter
		assert.LessOrEqual(t, st.Steps, limits.MaxSteps)
		assert.LessOrEqual(t, st.GuidanceScale, limits.MaxGuidanceScalePhotorealistic)
		assert.GreaterOrEqual(t, st.Temperature, limits.MinTemperature)
		assert.Equal(t, i+1, st.RefinementIterationCount)
	}
}

func TestStoredVolleyWithoutStateAfterIsIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.db.Exec(`INSERT INTO chat_histories (user_id, assistant_kind, document) VALUES (?, ?, ?)`,
		"alice", string(chat.ImageAssistant),
		`{"volleys":[{"user_input":"a cat","is_new_session":true,"prompt":"a cat","state_after":null}]}`)
	require.NoError(t, err)

	out, err := h.proc.Process(context.Background(), Turn{UserID: "alice", Input: "a red fox in a forest", Mode: params.ModeNew}, &messages{})
	require.NoError(t, err)
	assert.Equal(t, params.DefaultLimits().DefaultSteps, out.Volley.StateBefore.Steps)

	hist := h.load(t, "alice")
	require.Len(t, hist.Volleys, 1)
	assert.Equal(t, "a red fox in a forest", hist.Volleys[0].UserInput)
}

func TestHistoryForIntentsAnnotatesClassifierInput(t *testing.T) {
	h := newHarness(t, Options{HistoryForIntents: true})
	ctx := context.Background()

	_, err := h.proc.Process(ctx, Turn{UserID: "alice", Input: "a red fox in a forest", Mode: params.ModeNew}, &messages{})
	require.NoError(t, err)
	first, ok := h.script.Last(string(intent.StartNewImage))
	require.True(t, ok)
	assert.Equal(t, "a red fox in a forest", first.UserInput, "no session yet, raw input is classified")

	_, err = h.proc.Process(ctx, Turn{UserID: "alice", Input: "make it snow", Mode: params.ModeNew}, &messages{})
	require.NoError(t, err)
	second, ok := h.script.Last(string(intent.StartNewImage))
	require.True(t, ok)
	assert.Contains(t, second.UserInput, "ORIGINAL IMAGE DESCRIPTION: a red fox in a forest")
	assert.Contains(t, second.UserInput, "USER FEEDBACK: make it snow")

	decompose, ok := h.script.Last(TagDecomposeScene)
	require.True(t, ok)
	assert.Equal(t, "make it snow", decompose.UserInput, "only classifiers see the annotation")
}
