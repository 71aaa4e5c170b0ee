package plan

import "testing"

func samplePlan() Plan {
	return Plan{
		ID:                "plan-1",
		Type:              "learning",
		EstimatedDuration: 60,
		Difficulty:        DifficultyBeginner,
		Structure: PlanStructure{
			Phases: []Phase{
				{Name: "warmup", Duration: 10, Activities: []string{"stretch"}},
				{Name: "core", Duration: 40, Activities: []string{"read", "exercise"}},
				{Name: "wrapup", Duration: 10, Activities: []string{"summarize"}},
			},
			Transitions: []Transition{{From: 0, To: 1, Trigger: "complete"}},
			Breakpoints: []Breakpoint{{AfterPhase: 1, Duration: 5}},
			AdaptationRules: []AdaptationRule{
				{Trigger: "low_energy", Action: "shorten_phase", Threshold: 0.3},
			},
		},
		RequiredResources: []string{"notebook"},
		SuccessPrediction: 0.7,
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := samplePlan()
	copied := original.Clone()

	copied.Structure.Phases[0].Duration = 55
	copied.Structure.Phases[1].Activities[0] = "changed"
	copied.Structure.Breakpoints[0].AfterPhase = 0
	copied.RequiredResources[0] = "changed"

	if original.Structure.Phases[0].Duration != 10 {
		t.Fatalf("phase duration leaked into original: %d", original.Structure.Phases[0].Duration)
	}
	if original.Structure.Phases[1].Activities[0] != "read" {
		t.Fatalf("activity leaked into original: %q", original.Structure.Phases[1].Activities[0])
	}
	if original.Structure.Breakpoints[0].AfterPhase != 1 {
		t.Fatalf("breakpoint leaked into original: %d", original.Structure.Breakpoints[0].AfterPhase)
	}
	if original.RequiredResources[0] != "notebook" {
		t.Fatalf("resource leaked into original: %q", original.RequiredResources[0])
	}
}

func TestCloneRequestCopiesTools(t *testing.T) {
	req := GenerationRequest{
		Context: RequestContext{AvailableTime: 60, Tools: []string{"timer"}},
	}
	copied := CloneRequest(req)
	copied.Context.Tools[0] = "changed"
	if req.Context.Tools[0] != "timer" {
		t.Fatalf("tool leaked into original: %q", req.Context.Tools[0])
	}
}

func TestRequestTarget(t *testing.T) {
	req := GenerationRequest{Context: RequestContext{AvailableTime: 90}}
	if got := req.Target(); got != 90 {
		t.Fatalf("target=%d want=90", got)
	}
	req.TargetDuration = 45
	if got := req.Target(); got != 45 {
		t.Fatalf("target=%d want=45", got)
	}
}
