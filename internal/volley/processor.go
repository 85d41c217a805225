// Package volley processes one image assistant turn from validation to the
// persisted volley: intent classification, parameter evolution, optional
// automatic refinement, prompt composition, generation and image import.
package volley

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roschler/livepeer-image-helper-back-end/internal/audit"
	"github.com/roschler/livepeer-image-helper-back-end/internal/chat"
	"github.com/roschler/livepeer-image-helper-back-end/internal/completion"
	"github.com/roschler/livepeer-image-helper-back-end/internal/imagegen"
	"github.com/roschler/livepeer-image-helper-back-end/internal/intent"
	"github.com/roschler/livepeer-image-helper-back-end/internal/objstore"
	"github.com/roschler/livepeer-image-helper-back-end/internal/params"
	"github.com/roschler/livepeer-image-helper-back-end/internal/refine"
)

// ErrInvalidInput is returned for turns rejected before any external call.
var ErrInvalidInput = errors.New("invalid input")

// State messages sent through a Notifier.
const (
	MsgThinking        = "Thinking..."
	MsgNewImage        = "New image request detected..."
	MsgModifyingImage  = "Modifying existing image..."
	MsgGeneratingImage = "Generating images..."
	MsgModelLocked     = "Model locked to the faster generation model."
)

// RefiningMessage is sent as each automatic refinement stage starts.
func RefiningMessage(stage refine.Stage) string {
	return fmt.Sprintf("Auto-refining (%s)...", strings.ToLower(strings.ReplaceAll(string(stage), "_", " ")))
}

// Turn is one request to the image assistant.
type Turn struct {
	UserID string
	Input  string
	Mode   params.Mode
	// ActiveImageURL is the image the client shows; required in refine mode.
	ActiveImageURL string
	// RequestID is generated when empty.
	RequestID string
}

// Notifier receives progress messages while a turn runs.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

// Notify implements Notifier.
func (f NotifierFunc) Notify(msg string) { f(msg) }

// Outcome is the result of a completed turn.
type Outcome struct {
	Volley    chat.Volley
	Changes   []string
	ImageURLs []string
}

// Deps are the collaborators a Processor drives. Importer and Audit may be
// nil.
type Deps struct {
	Completer completion.Completer
	History   chat.Store
	Machine   *params.Machine
	Refiner   *refine.Pipeline
	Generator imagegen.Generator
	Importer  *objstore.Importer
	Audit     audit.Recorder
}

// Options toggles optional behavior.
type Options struct {
	// ModelLock generates with the default model whatever the state says.
	ModelLock bool
	// Verbose appends generation parameters to the response text.
	Verbose bool
	// HistoryForIntents classifies the turn together with the session so far.
	HistoryForIntents bool
}

// Processor runs turns. Turns for the same user must not overlap.
type Processor struct {
	deps       Deps
	opts       Options
	aggregator *intent.Aggregator
	logger     *zap.Logger
	now        func() time.Time
}

// NewProcessor creates a processor.
func NewProcessor(deps Deps, opts Options, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		deps:       deps,
		opts:       opts,
		aggregator: intent.NewAggregator(deps.Completer, logger),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Validate checks a turn without touching any collaborator.
func Validate(t Turn) error {
	if err := chat.ValidateUserID(t.UserID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if strings.TrimSpace(t.Input) == "" {
		return fmt.Errorf("%w: user input is empty", ErrInvalidInput)
	}
	if _, err := params.ParseMode(string(t.Mode)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if t.Mode == params.ModeRefine && strings.TrimSpace(t.ActiveImageURL) == "" {
		return fmt.Errorf("%w: refine mode needs the active image", ErrInvalidInput)
	}
	return nil
}

// NewRequestID returns an id of the form <unix-millis>-<uuid>.
func NewRequestID(now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())
}

// Process runs one turn. On failure nothing is persisted.
func (p *Processor) Process(ctx context.Context, t Turn, n Notifier) (out *Outcome, err error) {
	if n == nil {
		n = NotifierFunc(func(string) {})
	}
	if err := Validate(t); err != nil {
		return nil, err
	}
	t.Input = strings.TrimSpace(t.Input)
	t.Mode, _ = params.ParseMode(string(t.Mode))

	start := p.now()
	if t.RequestID == "" {
		t.RequestID = NewRequestID(start)
	}
	run := &turnRun{p: p, turn: t, notify: n, requestID: t.RequestID}
	logger := p.logger.With(zap.String("request_id", run.requestID), zap.String("user_id", t.UserID), zap.String("mode", string(t.Mode)))
	run.logger = logger

	defer func() {
		p.audit(ctx, run, start, err)
		if err != nil {
			logger.Warn("turn failed", zap.Error(err))
		}
	}()

	n.Notify(MsgThinking)
	v, err := run.execute(ctx)
	if err != nil {
		return nil, err
	}

	logger.Info("turn completed",
		zap.Int("images", len(v.GeneratedImageURLs)),
		zap.Int("steps", v.StateAfter.Steps),
		zap.Float64("guidance_scale", v.StateAfter.GuidanceScale),
		zap.Duration("elapsed", p.now().Sub(start)),
	)
	return &Outcome{Volley: *v, Changes: run.changes.Strings(), ImageURLs: v.GeneratedImageURLs}, nil
}

func (p *Processor) audit(ctx context.Context, run *turnRun, start time.Time, turnErr error) {
	if p.deps.Audit == nil {
		return
	}
	entry := audit.Entry{
		ID:            run.requestID,
		Timestamp:     start,
		UserID:        run.turn.UserID,
		AssistantKind: string(chat.ImageAssistant),
		Mode:          string(run.turn.Mode),
		Status:        audit.StatusSucceeded,
		UserInput:     run.turn.Input,
		Changes:       run.changes.Strings(),
		DurationMS:    p.now().Sub(start).Milliseconds(),
	}
	if turnErr != nil {
		entry.Status = audit.StatusFailed
		entry.Error = turnErr.Error()
	}
	if err := p.deps.Audit.Log(context.WithoutCancel(ctx), entry); err != nil {
		p.logger.Warn("recording turn audit failed", zap.String("request_id", run.requestID), zap.Error(err))
	}
}
