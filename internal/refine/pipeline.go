// Package refine runs automatic refinement of a generated image: it
// describes the image, compares it with the intended scene, phrases the
// differences as user feedback and rewrites the generation prompt.
package refine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roschler/livepeer-image-helper-back-end/internal/completion"
	"github.com/roschler/livepeer-image-helper-back-end/internal/objstore"
	"github.com/roschler/livepeer-image-helper-back-end/internal/prompt"
)

// Stage temperatures.
const (
	VisionTemperature     = 0.1
	SynthesizeTemperature = 0.5
	RewriteTemperature    = 0.5
	ReconcileTemperature  = 0.3
)

// Input is what one refinement works from.
type Input struct {
	UserID string
	// BaseLevelPrompt is the scene the session builds on.
	BaseLevelPrompt string
	// IntendedDescription is the prompt the active image was generated
	// from. Defaults to BaseLevelPrompt.
	IntendedDescription string
	ActiveImageURL      string
	// Observer, when set, is called as each stage starts.
	Observer func(Stage)
}

// Result is the output of a completed refinement.
type Result struct {
	SuggestedFeedback string
	Prompt            string
	NegativePrompt    string
	Record            *Record
}

// Pipeline executes the refinement stages in order.
type Pipeline struct {
	completer completion.Completer
	images    objstore.Store
	logDir    string
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogDir sets where refinement logs are written. Empty disables them.
func WithLogDir(dir string) Option {
	return func(p *Pipeline) { p.logDir = dir }
}

// NewPipeline creates a pipeline reading active images from images.
func NewPipeline(completer completion.Completer, images objstore.Store, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{completer: completer, images: images, logger: logger}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes every stage once. Any stage failure aborts the run with a
// *StageError; the record is written to the log directory either way.
func (p *Pipeline) Run(ctx context.Context, in Input) (res *Result, err error) {
	if strings.TrimSpace(in.ActiveImageURL) == "" {
		return nil, errors.New("refinement needs an active image")
	}
	if strings.TrimSpace(in.BaseLevelPrompt) == "" {
		return nil, errors.New("refinement needs a base-level prompt")
	}
	intended := in.IntendedDescription
	if strings.TrimSpace(intended) == "" {
		intended = in.BaseLevelPrompt
	}

	rec := &Record{UserID: in.UserID, ImageURL: in.ActiveImageURL, StartedAt: time.Now().UTC()}
	defer func() {
		rec.FinishedAt = time.Now().UTC()
		if err != nil {
			rec.Error = err.Error()
		}
		p.flush(rec)
	}()

	p.enter(in, StageDescribe)
	data, ferr := objstore.Fetch(ctx, p.images, in.ActiveImageURL)
	if ferr != nil {
		return nil, &StageError{Stage: StageDescribe, Err: fmt.Errorf("fetching active image: %w", ferr)}
	}
	img := &completion.Image{Data: data, MIMEType: http.DetectContentType(data)}

	description, err := p.text(ctx, rec, StageDescribe, describeImagePrompt, "Describe this image.", img, VisionTemperature)
	if err != nil {
		return nil, err
	}

	p.enter(in, StageCompare)
	compare, err := p.render(StageCompare, compareImagePrompt, map[string]string{
		"intended_description": intended,
		"image_description":    description,
	})
	if err != nil {
		return nil, err
	}
	discrepancies, err := p.text(ctx, rec, StageCompare, compare, "List the discrepancies.", img, VisionTemperature)
	if err != nil {
		return nil, err
	}

	p.enter(in, StageSynthesize)
	synth, err := p.render(StageSynthesize, synthesizeFeedbackPrompt, map[string]string{
		"intended_description": intended,
		"discrepancies":        discrepancies,
	})
	if err != nil {
		return nil, err
	}
	feedback, err := p.text(ctx, rec, StageSynthesize, synth, discrepancies, nil, SynthesizeTemperature)
	if err != nil {
		return nil, err
	}

	p.enter(in, StageRewrite)
	rewrite, err := p.render(StageRewrite, rewritePromptPrompt, map[string]string{
		"base_level_prompt":           in.BaseLevelPrompt,
		"suggested_feedback":          feedback,
		"image_generation_guidelines": prompt.Guidelines(),
	})
	if err != nil {
		return nil, err
	}
	rewritten, _, err := p.promptPair(ctx, rec, StageRewrite, rewrite, feedback, RewriteTemperature)
	if err != nil {
		return nil, err
	}

	p.enter(in, StageReconcile)
	reconcile, err := p.render(StageReconcile, reconcilePromptPrompt, map[string]string{
		"rewritten_prompt":  rewritten,
		"base_level_prompt": in.BaseLevelPrompt,
	})
	if err != nil {
		return nil, err
	}
	final, negative, err := p.promptPair(ctx, rec, StageReconcile, reconcile, rewritten, ReconcileTemperature)
	if err != nil {
		return nil, err
	}

	return &Result{
		SuggestedFeedback: feedback,
		Prompt:            final,
		NegativePrompt:    negative,
		Record:            rec,
	}, nil
}

func (p *Pipeline) enter(in Input, stage Stage) {
	p.logger.Info("refinement stage started", zap.String("stage", string(stage)))
	if in.Observer != nil {
		in.Observer(stage)
	}
}

func (p *Pipeline) render(stage Stage, tmpl string, vars map[string]string) (string, error) {
	s, err := prompt.Substitute(tmpl, vars)
	if err != nil {
		return "", &StageError{Stage: stage, Err: err}
	}
	return s, nil
}

func (p *Pipeline) text(ctx context.Context, rec *Record, stage Stage, system, user string, img *completion.Image, temp float64) (string, error) {
	res, err := p.completer.Complete(ctx, completion.Request{
		Tag:          string(stage),
		SystemPrompt: system,
		UserInput:    user,
		Params:       completion.Params{Temperature: temp},
		Image:        img,
	})
	if err != nil {
		return "", &StageError{Stage: stage, Err: err}
	}
	out := strings.TrimSpace(res.Text)
	rec.add(stage, system, out)
	if out == "" {
		return "", &StageError{Stage: stage, Err: errors.New("empty response")}
	}
	p.logger.Info("refinement stage finished", zap.String("stage", string(stage)), zap.Int("chars", len(out)))
	return out, nil
}

func (p *Pipeline) promptPair(ctx context.Context, rec *Record, stage Stage, system, user string, temp float64) (string, string, error) {
	res, err := p.completer.Complete(ctx, completion.Request{
		Tag:          string(stage),
		SystemPrompt: system,
		UserInput:    user,
		Params:       completion.Params{Temperature: temp},
		ExpectJSON:   true,
	})
	if err != nil {
		return "", "", &StageError{Stage: stage, Err: err}
	}
	rec.add(stage, system, res.Text)

	obj, err := res.Object()
	if err != nil {
		return "", "", &StageError{Stage: stage, Err: err}
	}
	text, _ := obj["prompt"].(string)
	if strings.TrimSpace(text) == "" {
		return "", "", &StageError{Stage: stage, Err: errors.New(`response has no "prompt"`)}
	}
	negative, _ := obj["negative_prompt"].(string)
	p.logger.Info("refinement stage finished", zap.String("stage", string(stage)), zap.Int("chars", len(text)))
	return strings.TrimSpace(text), strings.TrimSpace(negative), nil
}

func (p *Pipeline) flush(rec *Record) {
	if p.logDir == "" {
		return
	}
	path, err := rec.WriteLog(p.logDir)
	if err != nil {
		p.logger.Warn("writing refinement log failed", zap.Error(err))
		return
	}
	p.logger.Debug("refinement log written", zap.String("path", path))
}
