package params

import (
	"go.uber.org/zap"

	"github.com/roschler/livepeer-image-helper-back-end/internal/intent"
)

// Outcome describes what Apply did besides mutating the state.
type Outcome struct {
	// NewSession is set when the turn starts a new image.
	NewSession bool
	// WrongContentText is the user's wording of a wrong-content complaint.
	WrongContentText string
	Changes          Changes
}

// Machine applies intent-driven adjustments to a State.
type Machine struct {
	limits    Limits
	speedRule bool
	logger    *zap.Logger
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithSpeedRule enables lowering steps when the user complains that
// generation is too slow. Off by default.
func WithSpeedRule(enabled bool) MachineOption {
	return func(m *Machine) { m.speedRule = enabled }
}

// NewMachine creates a state machine with the given bounds.
func NewMachine(limits Limits, logger *zap.Logger, opts ...MachineOption) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{limits: limits, logger: logger}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Limits returns the machine's bounds.
func (m *Machine) Limits() Limits { return m.limits }

// NewSession reports whether the turn starts a new image: either the mode
// says so or a detector found an explicit or implicit request for one.
func (m *Machine) NewSession(mode Mode, set intent.Set) (bool, error) {
	if mode == ModeNew {
		return true, nil
	}
	explicit, _, err := set.Bool(intent.StartNewImage, intent.PropStartNewImage)
	if err != nil {
		return false, err
	}
	if explicit {
		return true, nil
	}
	nature, _, err := set.String(intent.NatureOfRequest, intent.PropNatureOfRequest, "")
	if err != nil {
		return false, err
	}
	return nature == intent.RequestCreateNewImage, nil
}

// Apply runs the adjustment rules against st in their fixed order. The
// photorealism-aware clamps need the realized prompt and are applied
// separately by Clamp once it is known.
func (m *Machine) Apply(mode Mode, set intent.Set, st *State) (Outcome, error) {
	var out Outcome
	l := m.limits

	if mode == ModeNew {
		st.RefinementIterationCount = 0
	} else {
		st.RefinementIterationCount++
	}

	newSession, err := m.NewSession(mode, set)
	if err != nil {
		return out, err
	}
	if newSession {
		out.NewSession = true
		st.GuidanceScale = l.DefaultGuidanceScale
		st.Steps = l.DefaultSteps
		st.ModelID = DefaultModel
		st.Loras = map[string]string{}
		m.logger.Debug("generation parameters reset for a new image")
	}

	wantsText, _, err := set.Bool(intent.TextWantedOnImage, intent.PropTextWantedOnImage)
	if err != nil {
		return out, err
	}
	if wantsText {
		st.ModelID = ModelFlux
		m.record(&out, ChangeUseTextEngine, zap.String("model_id", string(st.ModelID)))
		if st.Steps < l.MinStepsForText {
			st.Steps = l.MinStepsForText
			m.record(&out, ChangeMoreSteps, zap.Int("steps", st.Steps))
		}
		if st.GuidanceScale < l.MinGuidanceScaleForText {
			st.GuidanceScale = l.MinGuidanceScaleForText
			m.record(&out, ChangeBeLessCreative, zap.Float64("guidance_scale", st.GuidanceScale))
		}
	}

	blurry, err := m.complaint(set, intent.ImageComplaint, intent.ComplaintBlurry)
	if err != nil {
		return out, err
	}
	if blurry {
		st.Steps += l.StepsDelta
		m.record(&out, ChangeMoreSteps, zap.Int("steps", st.Steps))
	}

	if m.speedRule {
		slow, err := m.complaint(set, intent.GenerationSpeedComplaint, intent.ComplaintTooSlow)
		if err != nil {
			return out, err
		}
		if slow {
			st.Steps = max(st.Steps-l.StepsDelta, l.MinSteps)
			m.record(&out, ChangeLessSteps, zap.Int("steps", st.Steps))
		}
	}

	if err := m.triage(mode, set, st, &out); err != nil {
		return out, err
	}

	st.Temperature = clampFloat(st.Temperature, l.MinTemperature, l.MaxTemperature)
	return out, nil
}

// triage weighs the complaints that pull guidance in opposite directions.
// Wrong content or misspelled text wins over boring.
func (m *Machine) triage(mode Mode, set intent.Set, st *State, out *Outcome) error {
	l := m.limits

	wrong, ok, err := set.Find(intent.ImageComplaint, intent.PropComplaintType, intent.ComplaintWrongContent)
	if err != nil {
		return err
	}
	if ok {
		text, _, err := wrong.Text(intent.PropComplaintText)
		if err != nil {
			return err
		}
		out.WrongContentText = text
	}
	misspelled, err := m.complaint(set, intent.ImageComplaint, intent.ComplaintProblemsWithText)
	if err != nil {
		return err
	}
	boring, err := m.complaint(set, intent.ImageComplaint, intent.ComplaintBoring)
	if err != nil {
		return err
	}
	if boring && mode == ModeNew {
		m.logger.Debug("ignoring boring complaint on a new image turn")
		boring = false
	}

	switch {
	case ok || misspelled:
		st.Steps += 3 * l.StepsDelta
		m.record(out, ChangeALotMoreSteps, zap.Int("steps", st.Steps))
		st.GuidanceScale += l.GuidanceScaleDelta
		st.Temperature -= l.TemperatureDelta
		m.record(out, ChangeBeLessCreative,
			zap.Float64("guidance_scale", st.GuidanceScale), zap.Float64("temperature", st.Temperature))
		if misspelled && st.ModelID != ModelFlux {
			st.ModelID = ModelFlux
			m.record(out, ChangeUseTextEngine, zap.String("model_id", string(st.ModelID)))
		}
		if ok && out.WrongContentText != "" {
			m.record(out, ChangeFixWrongContent, zap.String("complaint_text", out.WrongContentText))
		}
		if boring {
			m.record(out, ChangeBeCreativeLater)
		}
	case boring:
		st.GuidanceScale -= l.GuidanceScaleDelta
		st.Temperature += l.TemperatureDelta
		if st.Steps < l.MinSteps {
			st.Steps = l.MinSteps
		}
		m.record(out, ChangeBeMoreCreative,
			zap.Float64("guidance_scale", st.GuidanceScale), zap.Float64("temperature", st.Temperature))
	}
	return nil
}

func (m *Machine) complaint(set intent.Set, id intent.ID, kind string) (bool, error) {
	return set.Contains(id, intent.PropComplaintType, kind)
}

func (m *Machine) record(out *Outcome, c Change, fields ...zap.Field) {
	out.Changes.Add(c)
	m.logger.Debug(string(c), fields...)
}
