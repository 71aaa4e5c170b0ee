package genetic

import (
	"math/rand"
	"testing"

	"metis/internal/plan"
)

func TestCrossoverSwapsPhaseTails(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	longParent := plan.Plan{
		ID:                "long",
		EstimatedDuration: 120,
		SuccessPrediction: 0.5,
		Structure: plan.PlanStructure{
			Phases: []plan.Phase{
				{Name: "a", Duration: 10},
				{Name: "b", Duration: 20},
				{Name: "c", Duration: 30},
				{Name: "d", Duration: 40},
			},
			Transitions: []plan.Transition{{From: 2, To: 3, Trigger: "time"}},
			Breakpoints: []plan.Breakpoint{{AfterPhase: 3, Duration: 5}},
		},
	}
	shortParent := plan.Plan{
		ID:                "short",
		EstimatedDuration: 40,
		SuccessPrediction: 0.5,
		Structure: plan.PlanStructure{
			Phases: []plan.Phase{
				{Name: "x", Duration: 15},
				{Name: "y", Duration: 25},
			},
			Transitions: []plan.Transition{{From: 0, To: 1, Trigger: "time"}},
		},
	}

	for i := 0; i < 100; i++ {
		childA, childB := crossoverPlans(rng, longParent, shortParent)

		if len(childA.Structure.Phases) != len(shortParent.Structure.Phases) {
			t.Fatalf("first child phase count: got=%d want=%d", len(childA.Structure.Phases), len(shortParent.Structure.Phases))
		}
		if len(childB.Structure.Phases) != len(longParent.Structure.Phases) {
			t.Fatalf("second child phase count: got=%d want=%d", len(childB.Structure.Phases), len(longParent.Structure.Phases))
		}
		if len(childA.Structure.Phases) == 0 || len(childB.Structure.Phases) == 0 {
			t.Fatalf("crossover produced a child without phases")
		}

		if err := plan.Validate(childA); err != nil {
			t.Fatalf("first child invalid: %v", err)
		}
		if err := plan.Validate(childB); err != nil {
			t.Fatalf("second child invalid: %v", err)
		}
	}
}

func TestCrossoverPrunesDanglingRefs(t *testing.T) {
	rng := rand.New(rand.NewSource(12))
	withRefs := plan.Plan{
		ID:                "refs",
		EstimatedDuration: 90,
		SuccessPrediction: 0.5,
		Structure: plan.PlanStructure{
			Phases: []plan.Phase{
				{Name: "a", Duration: 10},
				{Name: "b", Duration: 20},
				{Name: "c", Duration: 30},
			},
			Transitions: []plan.Transition{{From: 1, To: 2, Trigger: "time"}},
			Breakpoints: []plan.Breakpoint{{AfterPhase: 2, Duration: 5}},
		},
	}
	single := plan.Plan{
		ID:                "single",
		EstimatedDuration: 30,
		SuccessPrediction: 0.5,
		Structure: plan.PlanStructure{
			Phases: []plan.Phase{{Name: "only", Duration: 30}},
		},
	}

	childA, _ := crossoverPlans(rng, withRefs, single)
	if len(childA.Structure.Phases) != 1 {
		t.Fatalf("first child phase count: got=%d want=1", len(childA.Structure.Phases))
	}
	if len(childA.Structure.Transitions) != 0 {
		t.Fatalf("dangling transitions kept: %+v", childA.Structure.Transitions)
	}
	if len(childA.Structure.Breakpoints) != 0 {
		t.Fatalf("dangling breakpoints kept: %+v", childA.Structure.Breakpoints)
	}
}

func TestCrossoverLeavesParentsIntact(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	first := perturbFixture(90)
	second := perturbFixture(120)
	second.Structure.Phases[0].Name = "other"

	childA, childB := crossoverPlans(rng, first, second)
	childA.Structure.Phases[0].Name = "changed"
	childA.Structure.Phases[0].Activities[0] = "changed"
	childB.Structure.Phases[len(childB.Structure.Phases)-1].Name = "changed"

	if first.Structure.Phases[0].Name != "warmup" || first.Structure.Phases[0].Activities[0] != "stretch" {
		t.Fatalf("first parent mutated: %+v", first.Structure.Phases[0])
	}
	if second.Structure.Phases[0].Name != "other" {
		t.Fatalf("second parent mutated: %+v", second.Structure.Phases[0])
	}
	if second.Structure.Phases[len(second.Structure.Phases)-1].Name != "wrapup" {
		t.Fatalf("second parent tail mutated: %+v", second.Structure.Phases)
	}
}
