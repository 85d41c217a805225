package volley

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/roschler/livepeer-image-helper-back-end/internal/chat"
	"github.com/roschler/livepeer-image-helper-back-end/internal/completion"
	"github.com/roschler/livepeer-image-helper-back-end/internal/imagegen"
	"github.com/roschler/livepeer-image-helper-back-end/internal/intent"
	"github.com/roschler/livepeer-image-helper-back-end/internal/objstore"
	"github.com/roschler/livepeer-image-helper-back-end/internal/params"
	"github.com/roschler/livepeer-image-helper-back-end/internal/prompt"
	"github.com/roschler/livepeer-image-helper-back-end/internal/refine"
)

// Completion tags of the main prompt step.
const (
	TagDecomposeScene = "DECOMPOSE_SCENE_LOGIC"
	TagImagePrompt    = "IMAGE_GENERATION_PROMPT"
)

// DecomposeTemperature is used for the decompose-scene-logic call.
const DecomposeTemperature = 0.3

// turnRun carries the working state of one turn.
type turnRun struct {
	p         *Processor
	turn      Turn
	notify    Notifier
	requestID string
	logger    *zap.Logger
	changes   params.Changes
}

// mainPrompt is the output of the main prompt step.
type mainPrompt struct {
	prompt     string
	negative   string
	system     string
	user       string
	completion string
}

func (r *turnRun) execute(ctx context.Context) (*chat.Volley, error) {
	p := r.p
	t := r.turn
	limits := p.deps.Machine.Limits()

	hist, err := p.deps.History.Load(ctx, t.UserID, chat.ImageAssistant)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	last, hasLast := hist.LastVolley()

	before := params.Default(limits)
	if hasLast && last.StateAfter != nil {
		before = last.StateAfter.Clone()
	}
	before.CreatedAt = p.now()
	current := before.Clone()

	var base chat.BaseLevelPrompt
	switch t.Mode {
	case params.ModeNew:
		base = chat.BaseLevelPrompt{Prompt: t.Input}
	default:
		base, err = hist.BaseLevelPromptFor(t.Input)
		if errors.Is(err, chat.ErrNoBaseLevelPrompt) && t.Mode == params.ModeEnhance {
			base, err = chat.BaseLevelPrompt{Prompt: t.Input}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("finding base-level prompt: %w", err)
		}
	}

	var refined *refine.Result
	intentInput := t.Input
	if t.Mode == params.ModeRefine {
		intended := ""
		if hasLast {
			intended = last.Prompt
		}
		refined, err = p.deps.Refiner.Run(ctx, refine.Input{
			UserID:              t.UserID,
			BaseLevelPrompt:     base.Prompt,
			IntendedDescription: intended,
			ActiveImageURL:      t.ActiveImageURL,
			Observer: func(s refine.Stage) {
				r.notify.Notify(RefiningMessage(s))
			},
		})
		if err != nil {
			if errors.Is(err, objstore.ErrNotFound) {
				return nil, fmt.Errorf("%w: active image is not in storage: %w", ErrInvalidInput, err)
			}
			return nil, err
		}
		current.SuggestedFeedback = refined.SuggestedFeedback
		intentInput = refined.SuggestedFeedback
	}
	if p.opts.HistoryForIntents {
		if annotated, ok := hist.LastSessionStart(intentInput); ok {
			intentInput = annotated
		}
	}

	set, err := p.aggregator.Run(ctx, intent.ImageAssistantDetectors(), intentInput)
	if err != nil {
		return nil, fmt.Errorf("classifying turn: %w", err)
	}

	isNew, err := p.deps.Machine.NewSession(t.Mode, set)
	if err != nil {
		return nil, fmt.Errorf("detecting new image request: %w", err)
	}
	if isNew {
		r.notify.Notify(MsgNewImage)
	} else {
		r.notify.Notify(MsgModifyingImage)
		if hasLast && strings.TrimSpace(last.Prompt) != "" {
			extra, err := r.extendedWrongContent(ctx, last.Prompt, intentInput)
			if err != nil {
				return nil, err
			}
			set = append(set, extra...)
		}
	}

	outcome, err := p.deps.Machine.Apply(t.Mode, set, &current)
	if err != nil {
		return nil, fmt.Errorf("applying parameter rules: %w", err)
	}
	r.changes = outcome.Changes
	if outcome.NewSession && t.Mode == params.ModeEnhance {
		base = chat.BaseLevelPrompt{Prompt: t.Input}
	}

	var previous *prompt.Previous
	if !outcome.NewSession && hasLast {
		previous = &prompt.Previous{Prompt: last.Prompt, NegativePrompt: last.NegativePrompt}
	}
	mp, err := r.composePrompt(ctx, base, refined, previous, outcome.WrongContentText, current)
	if err != nil {
		return nil, err
	}

	params.Clamp(&current, limits, mp.prompt)
	response, err := r.response(mp, refined, current)
	if err != nil {
		return nil, err
	}

	images, err := r.generate(ctx, mp, current)
	if err != nil {
		return nil, err
	}

	current.CreatedAt = p.now()
	v := chat.Volley{
		RequestID:              r.requestID,
		Timestamp:              before.CreatedAt,
		IsNewSession:           outcome.NewSession,
		UserInput:              t.Input,
		Prompt:                 mp.prompt,
		NegativePrompt:         mp.negative,
		ResponseToUser:         response,
		Mode:                   t.Mode,
		IntentDetections:       set,
		StateBefore:            &before,
		StateAfter:             &current,
		GeneratedImageURLs:     images,
		FullSystemPrompt:       mp.system,
		FullUserPrompt:         mp.user,
		TextCompletionResponse: mp.completion,
	}

	next := hist.Clone()
	if err := next.Append(v); err != nil {
		return nil, err
	}
	if err := p.deps.History.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("saving history: %w", err)
	}
	return &v, nil
}

func (r *turnRun) extendedWrongContent(ctx context.Context, previousPrompt, input string) (intent.Set, error) {
	d, err := intent.ExtendedWrongContent(previousPrompt)
	if err != nil {
		return nil, err
	}
	set, err := r.p.aggregator.Run(ctx, []intent.Detector{d}, input)
	if err != nil {
		return nil, fmt.Errorf("classifying wrong content: %w", err)
	}
	return set, nil
}

func (r *turnRun) composePrompt(ctx context.Context, base chat.BaseLevelPrompt, refined *refine.Result, previous *prompt.Previous, wrongContent string, st params.State) (mainPrompt, error) {
	switch r.turn.Mode {
	case params.ModeNew:
		return r.decompose(ctx, base.Prompt, base.NegativePrompt)
	case params.ModeRefine:
		return r.decompose(ctx, refined.Prompt, refined.NegativePrompt)
	default:
		return r.enhance(ctx, base, previous, wrongContent, st)
	}
}

func (r *turnRun) decompose(ctx context.Context, scene, negative string) (mainPrompt, error) {
	system := prompt.DecomposeSceneLogic()
	res, err := r.p.deps.Completer.Complete(ctx, completion.Request{
		Tag:          TagDecomposeScene,
		SystemPrompt: system,
		UserInput:    scene,
		Params:       completion.Params{Temperature: DecomposeTemperature},
	})
	if err != nil {
		return mainPrompt{}, fmt.Errorf("decomposing scene: %w", err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return mainPrompt{}, errors.New("decomposing scene: empty response")
	}
	return mainPrompt{
		prompt:     text,
		negative:   negative,
		system:     system,
		user:       scene,
		completion: res.Text,
	}, nil
}

func (r *turnRun) enhance(ctx context.Context, base chat.BaseLevelPrompt, previous *prompt.Previous, wrongContent string, st params.State) (mainPrompt, error) {
	system, err := prompt.ImageGenerationSystem()
	if err != nil {
		return mainPrompt{}, err
	}
	user, err := prompt.Adorn(prompt.AdornInput{
		UserInput:        r.turn.Input,
		WrongContentText: wrongContent,
		Previous:         previous,
	})
	if err != nil {
		return mainPrompt{}, err
	}

	res, err := r.p.deps.Completer.Complete(ctx, completion.Request{
		Tag:          TagImagePrompt,
		SystemPrompt: system,
		UserInput:    user,
		Params:       completion.Params{Temperature: st.Temperature},
		ExpectJSON:   true,
	})
	if err != nil {
		return mainPrompt{}, fmt.Errorf("composing image prompt: %w", err)
	}
	obj, err := res.Object()
	if err != nil {
		return mainPrompt{}, fmt.Errorf("composing image prompt: %w", err)
	}
	long, _ := obj["prompt"].(string)
	summary, _ := obj["prompt_summary"].(string)
	realized := prompt.DualEncoder(summary, long)
	if strings.TrimSpace(realized) == "" {
		return mainPrompt{}, errors.New("composing image prompt: response has no prompt")
	}
	if complaints, ok := obj["user_input_has_complaints"].(bool); ok {
		r.logger.Debug("image prompt composed", zap.Bool("user_input_has_complaints", complaints))
	}
	return mainPrompt{
		prompt:     realized,
		negative:   base.NegativePrompt,
		system:     system,
		user:       user,
		completion: res.Text,
	}, nil
}

func (r *turnRun) generate(ctx context.Context, mp mainPrompt, st params.State) ([]string, error) {
	r.notify.Notify(MsgGeneratingImage)
	genState := st.Clone()
	if r.p.opts.ModelLock && genState.ModelID != params.DefaultModel {
		genState.ModelID = params.DefaultModel
		r.notify.Notify(MsgModelLocked)
	}

	urls, err := r.p.deps.Generator.Generate(ctx, imagegen.Request{
		Prompt:         mp.prompt,
		NegativePrompt: mp.negative,
		State:          genState,
	})
	if err != nil {
		return nil, fmt.Errorf("generating images: %w", err)
	}
	if r.p.deps.Importer == nil {
		return urls, nil
	}
	stored, err := r.p.deps.Importer.ImportAll(ctx, r.turn.UserID, urls)
	if err != nil {
		return nil, fmt.Errorf("storing images: %w", err)
	}
	return stored, nil
}
