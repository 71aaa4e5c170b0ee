package rl

import (
	"metis/internal/plan"
)

const (
	ActionExtendDuration     = "extend_duration"
	ActionReduceDuration     = "reduce_duration"
	ActionAddBreak           = "add_break"
	ActionRemoveBreak        = "remove_break"
	ActionIncreaseDifficulty = "increase_difficulty"
	ActionDecreaseDifficulty = "decrease_difficulty"
)

const durationStepMinutes = 15

// Actions returns the fixed action set in its canonical order.
func Actions() []string {
	return []string{
		ActionExtendDuration,
		ActionReduceDuration,
		ActionAddBreak,
		ActionRemoveBreak,
		ActionIncreaseDifficulty,
		ActionDecreaseDifficulty,
	}
}

// AvailableActions filters the fixed set down to actions that are
// structurally valid for the plan: no duration moves past the clamp range,
// no break removal without breakpoints, no difficulty shifts past the
// ordinal ends.
func AvailableActions(p plan.Plan) []string {
	available := make([]string, 0, 6)
	if p.EstimatedDuration < plan.MaxPlanDuration {
		available = append(available, ActionExtendDuration)
	}
	if p.EstimatedDuration > plan.MinPlanDuration {
		available = append(available, ActionReduceDuration)
	}
	if len(p.Structure.Phases) > 0 {
		available = append(available, ActionAddBreak)
	}
	if len(p.Structure.Breakpoints) > 0 {
		available = append(available, ActionRemoveBreak)
	}
	if p.Difficulty.Raise() != p.Difficulty {
		available = append(available, ActionIncreaseDifficulty)
	}
	if p.Difficulty.Lower() != p.Difficulty {
		available = append(available, ActionDecreaseDifficulty)
	}
	return available
}

type DurationDelta struct {
	Minutes int `json:"minutes"`
}

type BreakEdit struct {
	AfterPhase int `json:"after_phase"`
	Minutes    int `json:"minutes,omitempty"`
}

type DifficultyShift struct {
	Target plan.Difficulty `json:"target"`
}

// Recommendation is one learned action suggestion. Exactly one parameter
// payload is set, matching Action.
type Recommendation struct {
	Action     string           `json:"action"`
	Value      float64          `json:"value"`
	Confidence float64          `json:"confidence"`
	Duration   *DurationDelta   `json:"duration,omitempty"`
	Break      *BreakEdit       `json:"break,omitempty"`
	Difficulty *DifficultyShift `json:"difficulty,omitempty"`
}

// actionParams builds the typed payload describing how the action would
// apply to this concrete plan.
func actionParams(action string, p plan.Plan) Recommendation {
	rec := Recommendation{Action: action}
	switch action {
	case ActionExtendDuration:
		delta := durationStepMinutes
		if room := plan.MaxPlanDuration - p.EstimatedDuration; room < delta {
			delta = room
		}
		rec.Duration = &DurationDelta{Minutes: delta}
	case ActionReduceDuration:
		delta := durationStepMinutes
		if room := p.EstimatedDuration - plan.MinPlanDuration; room < delta {
			delta = room
		}
		rec.Duration = &DurationDelta{Minutes: -delta}
	case ActionAddBreak:
		rec.Break = &BreakEdit{AfterPhase: longestPhase(p.Structure.Phases), Minutes: plan.MinPhaseDuration}
	case ActionRemoveBreak:
		if len(p.Structure.Breakpoints) > 0 {
			rec.Break = &BreakEdit{AfterPhase: p.Structure.Breakpoints[0].AfterPhase}
		}
	case ActionIncreaseDifficulty:
		rec.Difficulty = &DifficultyShift{Target: p.Difficulty.Raise()}
	case ActionDecreaseDifficulty:
		rec.Difficulty = &DifficultyShift{Target: p.Difficulty.Lower()}
	}
	return rec
}

func longestPhase(phases []plan.Phase) int {
	longest := 0
	for i, phase := range phases {
		if phase.Duration > phases[longest].Duration {
			longest = i
		}
	}
	return longest
}
