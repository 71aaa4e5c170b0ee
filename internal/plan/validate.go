package plan

import (
	"errors"
	"fmt"
)

var (
	ErrNoPhases          = errors.New("plan has no phases")
	ErrInvalidDuration   = errors.New("estimated duration must be > 0")
	ErrInvalidPrediction = errors.New("success prediction must be in [0, 1]")
)

// Validate checks the structural invariants every strategy relies on.
// It fails fast so optimization never starts on a malformed plan.
func Validate(p Plan) error {
	if len(p.Structure.Phases) == 0 {
		return ErrNoPhases
	}
	if p.EstimatedDuration <= 0 {
		return ErrInvalidDuration
	}
	if p.SuccessPrediction < 0 || p.SuccessPrediction > 1 {
		return ErrInvalidPrediction
	}
	for i, phase := range p.Structure.Phases {
		if phase.Duration <= 0 {
			return fmt.Errorf("phase %d: duration must be > 0", i)
		}
	}
	phaseCount := len(p.Structure.Phases)
	for i, t := range p.Structure.Transitions {
		if t.From < 0 || t.From >= phaseCount || t.To < 0 || t.To >= phaseCount {
			return fmt.Errorf("transition %d: phase index out of range", i)
		}
	}
	for i, b := range p.Structure.Breakpoints {
		if b.AfterPhase < 0 || b.AfterPhase >= phaseCount {
			return fmt.Errorf("breakpoint %d: phase index out of range", i)
		}
	}
	return nil
}
