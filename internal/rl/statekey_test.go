package rl

import (
	"testing"

	"metis/internal/plan"
)

func statePlan(duration int, difficulty plan.Difficulty, phases int, planType string) plan.Plan {
	p := plan.Plan{
		ID:                "state-plan",
		Type:              planType,
		EstimatedDuration: duration,
		Difficulty:        difficulty,
		SuccessPrediction: 0.5,
	}
	for i := 0; i < phases; i++ {
		p.Structure.Phases = append(p.Structure.Phases, plan.Phase{Name: "phase", Duration: 10})
	}
	return p
}

func TestStateKeyBucketsDuration(t *testing.T) {
	cases := map[string]struct {
		plan plan.Plan
		want string
	}{
		"exact bucket":    {statePlan(60, plan.DifficultyBeginner, 3, "learning"), "b2|beginner|p3|learning"},
		"floors duration": {statePlan(89, plan.DifficultyBeginner, 3, "learning"), "b2|beginner|p3|learning"},
		"next bucket":     {statePlan(90, plan.DifficultyBeginner, 3, "learning"), "b3|beginner|p3|learning"},
		"normalizes type": {statePlan(60, plan.DifficultyAdvanced, 2, "Study"), "b2|advanced|p2|learning"},
		"defaults type":   {statePlan(45, plan.DifficultyExpert, 1, ""), "b1|expert|p1|general"},
	}

	for name, tc := range cases {
		if got := StateKey(tc.plan); got != tc.want {
			t.Fatalf("%s: StateKey=%q want=%q", name, got, tc.want)
		}
	}
}
