package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/roschler/livepeer-image-helper-back-end/internal/completion"
)

// ErrDetectorFailed reports that at least one classification call of a turn
// failed. The turn must not continue on partial results.
var ErrDetectorFailed = errors.New("intent detector failed")

// DefaultTemperature is the sampling temperature for classification calls.
const DefaultTemperature = 0.1

// Aggregator issues one classification call per detector concurrently and
// merges the normalized results.
type Aggregator struct {
	completer   completion.Completer
	temperature float64
	logger      *zap.Logger
}

// NewAggregator creates an aggregator. A nil logger disables logging.
func NewAggregator(completer completion.Completer, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{completer: completer, temperature: DefaultTemperature, logger: logger}
}

type outcome struct {
	result Result
	err    error
}

// Run classifies input with every detector. Results are returned in
// detector order. Every call is allowed to finish; if any failed, the
// returned error wraps ErrDetectorFailed together with each failure.
func (a *Aggregator) Run(ctx context.Context, detectors []Detector, input string) (Set, error) {
	if len(detectors) == 0 {
		return nil, errors.New("no intent detectors given")
	}
	if strings.TrimSpace(input) == "" {
		return nil, errors.New("intent input is empty")
	}

	outcomes := make([]outcome, len(detectors))
	var g errgroup.Group
	for i, d := range detectors {
		g.Go(func() error {
			outcomes[i] = a.detect(ctx, d, input)
			return outcomes[i].err
		})
	}
	if err := g.Wait(); err != nil {
		var errs []error
		for i, o := range outcomes {
			if o.err == nil {
				continue
			}
			a.logger.Warn("intent detector failed",
				zap.String("intent", string(detectors[i].ID)), zap.Error(o.err))
			errs = append(errs, o.err)
		}
		return nil, fmt.Errorf("%w: %w", ErrDetectorFailed, errors.Join(errs...))
	}

	var set Set
	for _, o := range outcomes {
		set.Add(o.result)
	}
	return set, nil
}

func (a *Aggregator) detect(ctx context.Context, d Detector, input string) outcome {
	res, err := a.completer.Complete(ctx, completion.Request{
		Tag:           string(d.ID),
		SystemPrompt:  d.SystemPrompt,
		UserInput:     input,
		Params:        completion.Params{Temperature: a.temperature},
		ExpectJSON:    true,
		ArrayResponse: d.ArrayResponse,
	})
	if err != nil {
		return outcome{err: fmt.Errorf("intent %s: %w", d.ID, err)}
	}
	r, err := Normalize(d.ID, res.JSON)
	if err != nil {
		return outcome{err: err}
	}
	a.logger.Debug("intent detected",
		zap.String("intent", string(d.ID)), zap.Int("children", len(r.Children)))
	return outcome{result: r}
}
