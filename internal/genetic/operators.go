package genetic

import (
	"context"
	"errors"
	"math"
	"math/rand"

	"metis/internal/plan"
)

var ErrNoBreakpoints = errors.New("plan has no breakpoints")

// TriggeredMutation gates an operator behind an independent trigger
// probability. The optimizer rolls each entry separately, so one child can
// receive several mutations in a single pass.
type TriggeredMutation struct {
	Operator    Operator
	Probability float64
}

// DefaultMutationPolicy returns the standard plan mutation set: duration
// jitter on every trigger, per-phase jitter, and an occasional difficulty
// shift.
func DefaultMutationPolicy(rng *rand.Rand) []TriggeredMutation {
	return []TriggeredMutation{
		{Operator: &PerturbPlanDuration{Rand: rng, MaxFraction: 0.2}, Probability: 1.0},
		{Operator: &PerturbPhaseDurations{Rand: rng, MaxFraction: 0.2, PhaseProbability: 0.2}, Probability: 1.0},
		{Operator: &ShiftDifficulty{Rand: rng}, Probability: 0.2},
	}
}

// PerturbPlanDuration jitters the estimated duration by a uniform fraction in
// [-MaxFraction, MaxFraction], clamped to the valid plan duration range.
type PerturbPlanDuration struct {
	Rand        *rand.Rand
	MaxFraction float64
}

func (o *PerturbPlanDuration) Name() string {
	return "perturb_plan_duration"
}

func (o *PerturbPlanDuration) Apply(_ context.Context, p plan.Plan) (plan.Plan, error) {
	if o == nil || o.Rand == nil {
		return plan.Plan{}, errors.New("random source is required")
	}
	if o.MaxFraction <= 0 {
		return plan.Plan{}, errors.New("max fraction must be > 0")
	}

	delta := (o.Rand.Float64()*2 - 1) * o.MaxFraction
	mutated := p.Clone()
	mutated.EstimatedDuration = clampInt(
		int(math.Round(float64(p.EstimatedDuration)*(1+delta))),
		plan.MinPlanDuration,
		plan.MaxPlanDuration,
	)
	return mutated, nil
}

// PerturbPhaseDurations jitters each phase duration with PhaseProbability,
// using a uniform fraction in [-MaxFraction, MaxFraction] clamped to the
// valid phase duration range.
type PerturbPhaseDurations struct {
	Rand             *rand.Rand
	MaxFraction      float64
	PhaseProbability float64
}

func (o *PerturbPhaseDurations) Name() string {
	return "perturb_phase_durations"
}

func (o *PerturbPhaseDurations) Apply(_ context.Context, p plan.Plan) (plan.Plan, error) {
	if o == nil || o.Rand == nil {
		return plan.Plan{}, errors.New("random source is required")
	}
	if o.MaxFraction <= 0 {
		return plan.Plan{}, errors.New("max fraction must be > 0")
	}
	if o.PhaseProbability <= 0 || o.PhaseProbability > 1 {
		return plan.Plan{}, errors.New("phase probability must be in (0, 1]")
	}
	if len(p.Structure.Phases) == 0 {
		return plan.Plan{}, plan.ErrNoPhases
	}

	mutated := p.Clone()
	for i := range mutated.Structure.Phases {
		if o.Rand.Float64() >= o.PhaseProbability {
			continue
		}
		delta := (o.Rand.Float64()*2 - 1) * o.MaxFraction
		mutated.Structure.Phases[i].Duration = clampInt(
			int(math.Round(float64(mutated.Structure.Phases[i].Duration)*(1+delta))),
			plan.MinPhaseDuration,
			plan.MaxPhaseDuration,
		)
	}
	return mutated, nil
}

// ShiftDifficulty moves the plan difficulty one ordinal step up or down,
// chosen uniformly. Shifts saturate at the scale ends.
type ShiftDifficulty struct {
	Rand *rand.Rand
}

func (o *ShiftDifficulty) Name() string {
	return "shift_difficulty"
}

func (o *ShiftDifficulty) Apply(_ context.Context, p plan.Plan) (plan.Plan, error) {
	if o == nil || o.Rand == nil {
		return plan.Plan{}, errors.New("random source is required")
	}

	mutated := p.Clone()
	if o.Rand.Float64() < 0.5 {
		mutated.Difficulty = mutated.Difficulty.Raise()
	} else {
		mutated.Difficulty = mutated.Difficulty.Lower()
	}
	return mutated, nil
}

// AddRandomBreakpoint inserts a pause after a uniformly chosen phase. Used
// when seeding variants to vary plan structure, not in the default mutation
// policy.
type AddRandomBreakpoint struct {
	Rand  *rand.Rand
	Pause int
}

func (o *AddRandomBreakpoint) Name() string {
	return "add_random_breakpoint"
}

func (o *AddRandomBreakpoint) Apply(_ context.Context, p plan.Plan) (plan.Plan, error) {
	if o == nil || o.Rand == nil {
		return plan.Plan{}, errors.New("random source is required")
	}
	if len(p.Structure.Phases) == 0 {
		return plan.Plan{}, plan.ErrNoPhases
	}

	pause := o.Pause
	if pause <= 0 {
		pause = plan.MinPhaseDuration
	}
	mutated := p.Clone()
	mutated.Structure.Breakpoints = append(mutated.Structure.Breakpoints, plan.Breakpoint{
		AfterPhase: o.Rand.Intn(len(p.Structure.Phases)),
		Duration:   pause,
	})
	return mutated, nil
}

// RemoveRandomBreakpoint drops a uniformly chosen breakpoint.
type RemoveRandomBreakpoint struct {
	Rand *rand.Rand
}

func (o *RemoveRandomBreakpoint) Name() string {
	return "remove_random_breakpoint"
}

func (o *RemoveRandomBreakpoint) Apply(_ context.Context, p plan.Plan) (plan.Plan, error) {
	if o == nil || o.Rand == nil {
		return plan.Plan{}, errors.New("random source is required")
	}
	if len(p.Structure.Breakpoints) == 0 {
		return plan.Plan{}, ErrNoBreakpoints
	}

	idx := o.Rand.Intn(len(p.Structure.Breakpoints))
	mutated := p.Clone()
	mutated.Structure.Breakpoints = append(
		mutated.Structure.Breakpoints[:idx],
		mutated.Structure.Breakpoints[idx+1:]...,
	)
	return mutated, nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
