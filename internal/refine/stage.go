package refine

import "fmt"

// Stage is one step of the refinement pipeline.
type Stage string

const (
	StageDescribe   Stage = "DESCRIBE"
	StageCompare    Stage = "COMPARE"
	StageSynthesize Stage = "SYNTHESIZE_FEEDBACK"
	StageRewrite    Stage = "REWRITE_PROMPT"
	StageReconcile  Stage = "RECONCILE"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageDescribe, StageCompare, StageSynthesize, StageRewrite, StageReconcile}

// StageError reports the stage a refinement failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("refinement stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
