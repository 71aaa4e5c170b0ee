package fitness

import (
	"math"
	"math/rand"
	"testing"

	"metis/internal/plan"
)

func scenarioPlan() plan.Plan {
	return plan.Plan{
		ID:                "base",
		Type:              "learning",
		EstimatedDuration: 60,
		Difficulty:        plan.DifficultyBeginner,
		Structure: plan.PlanStructure{
			Phases: []plan.Phase{
				{Name: "warmup", Duration: 10, Activities: []string{"stretch"}},
				{Name: "core", Duration: 40, Activities: []string{"read", "exercise"}},
				{Name: "wrapup", Duration: 10, Activities: []string{"summarize"}},
			},
			Breakpoints: []plan.Breakpoint{{AfterPhase: 1, Duration: 5}},
			AdaptationRules: []plan.AdaptationRule{
				{Trigger: "low_energy", Action: "shorten_phase", Threshold: 0.3},
			},
		},
		SuccessPrediction: 0.7,
	}
}

func scenarioRequest() plan.GenerationRequest {
	return plan.GenerationRequest{
		Context:        plan.RequestContext{AvailableTime: 60, EnergyLevel: 0.8, FocusLevel: 0.6},
		TargetDuration: 60,
	}
}

func TestEvaluateMatchesWorkedScenario(t *testing.T) {
	weights := DefaultWeights()
	evaluator, err := NewWeightedEvaluator(weights)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	breakdown, err := evaluator.Explain(scenarioPlan(), scenarioRequest())
	if err != nil {
		t.Fatalf("explain: %v", err)
	}

	if breakdown.TimeEfficiency != 1.0 {
		t.Fatalf("time efficiency=%v want=1.0", breakdown.TimeEfficiency)
	}
	if breakdown.ResourceOptimization != 0 {
		t.Fatalf("resource score=%v want=0 for required=0", breakdown.ResourceOptimization)
	}
	if breakdown.UserPreference != 0.5 {
		t.Fatalf("preference score=%v want=0.5 with no preferences", breakdown.UserPreference)
	}

	learning := (math.Min(1, 3.0/6) + (math.Min(1, 1.0/3)+math.Min(1, 2.0/3)+math.Min(1, 1.0/3))/3) / 2
	adaptability := math.Min(1, 2.0/10)
	expected := weights.SuccessProbability*0.7 +
		weights.TimeEfficiency*1.0 +
		weights.ResourceOptimization*0 +
		weights.UserPreference*0.5 +
		weights.LearningEffectiveness*learning +
		weights.Adaptability*adaptability
	if math.Abs(breakdown.Fitness-expected) > 1e-9 {
		t.Fatalf("fitness=%v want=%v", breakdown.Fitness, expected)
	}
}

func TestEvaluateStaysWithinBounds(t *testing.T) {
	evaluator, err := NewWeightedEvaluator(DefaultWeights())
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		p := randomPlan(rng)
		req := randomRequest(rng)
		got, err := evaluator.Evaluate(p, req)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if got < 0 || got > 1 {
			t.Fatalf("fitness out of bounds: %v", got)
		}
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	evaluator, err := NewWeightedEvaluator(DefaultWeights())
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	p := scenarioPlan()
	req := scenarioRequest()

	first, err := evaluator.Evaluate(p, req)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	second, err := evaluator.Evaluate(p, req)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if first != second {
		t.Fatalf("evaluations differ: %v vs %v", first, second)
	}
}

func TestTimeEfficiencyUsesAvailableTimeFallback(t *testing.T) {
	p := scenarioPlan()
	req := scenarioRequest()
	req.TargetDuration = 0
	req.Context.AvailableTime = 120

	got := timeEfficiency(p, req)
	want := math.Max(0, 1-math.Abs(60-120)/120.0)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("time efficiency=%v want=%v", got, want)
	}

	req.Context.AvailableTime = 0
	if got := timeEfficiency(p, req); got != 0.5 {
		t.Fatalf("time efficiency without target=%v want=0.5", got)
	}
}

func TestResourceScorePenalizesMissingTools(t *testing.T) {
	p := scenarioPlan()
	p.RequiredResources = []string{"notebook", "timer", "whiteboard"}
	req := scenarioRequest()
	req.Context.Tools = []string{"notebook"}

	got := resourceScore(p, req)
	want := math.Max(0, 1-2.0/3)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("resource score=%v want=%v", got, want)
	}

	req.Context.Tools = []string{"notebook", "timer", "whiteboard", "extra"}
	if got := resourceScore(p, req); got != 1.0 {
		t.Fatalf("resource score=%v want=1.0 when fully covered", got)
	}
}

func TestPreferenceScoreMatchesDifficulty(t *testing.T) {
	p := scenarioPlan()
	req := scenarioRequest()

	req.Preferences.Difficulty = plan.DifficultyBeginner
	if got := preferenceScore(p, req); got != 1.0 {
		t.Fatalf("exact difficulty match=%v want=1.0", got)
	}

	req.Preferences.Difficulty = plan.DifficultyExpert
	if got := preferenceScore(p, req); got != 0.5 {
		t.Fatalf("difficulty mismatch=%v want=0.5", got)
	}

	req.Preferences.Difficulty = ""
	req.Preferences.PreferredDuration = 30
	got := preferenceScore(p, req)
	want := math.Max(0, 1-math.Abs(60-30)/30.0)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("duration preference=%v want=%v", got, want)
	}
}

func TestNewWeightedEvaluatorRejectsNegativeWeights(t *testing.T) {
	w := DefaultWeights()
	w.Adaptability = -0.1
	if _, err := NewWeightedEvaluator(w); err == nil {
		t.Fatal("expected error for negative weight")
	}
}

func TestEvaluateRejectsInvalidPlan(t *testing.T) {
	evaluator, err := NewWeightedEvaluator(DefaultWeights())
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	p := scenarioPlan()
	p.Structure.Phases = nil
	p.Structure.Breakpoints = nil
	if _, err := evaluator.Evaluate(p, scenarioRequest()); err == nil {
		t.Fatal("expected validation error")
	}
}

func randomPlan(rng *rand.Rand) plan.Plan {
	phaseCount := 1 + rng.Intn(8)
	phases := make([]plan.Phase, 0, phaseCount)
	for i := 0; i < phaseCount; i++ {
		activityCount := rng.Intn(5)
		activities := make([]string, activityCount)
		for j := range activities {
			activities[j] = "activity"
		}
		phases = append(phases, plan.Phase{
			Name:       "phase",
			Duration:   plan.MinPhaseDuration + rng.Intn(plan.MaxPhaseDuration-plan.MinPhaseDuration+1),
			Activities: activities,
		})
	}

	var breakpoints []plan.Breakpoint
	for i := 0; i < rng.Intn(4); i++ {
		breakpoints = append(breakpoints, plan.Breakpoint{AfterPhase: rng.Intn(phaseCount)})
	}
	var rules []plan.AdaptationRule
	for i := 0; i < rng.Intn(6); i++ {
		rules = append(rules, plan.AdaptationRule{Trigger: "trigger", Action: "action"})
	}

	resources := make([]string, rng.Intn(4))
	for i := range resources {
		resources[i] = "resource"
	}

	return plan.Plan{
		ID:                "random",
		Type:              "general",
		EstimatedDuration: plan.MinPlanDuration + rng.Intn(plan.MaxPlanDuration-plan.MinPlanDuration+1),
		Difficulty:        plan.Difficulties()[rng.Intn(4)],
		Structure: plan.PlanStructure{
			Phases:          phases,
			Breakpoints:     breakpoints,
			AdaptationRules: rules,
		},
		RequiredResources: resources,
		SuccessPrediction: rng.Float64(),
	}
}

func randomRequest(rng *rand.Rand) plan.GenerationRequest {
	req := plan.GenerationRequest{
		Context: plan.RequestContext{
			AvailableTime: 30 + rng.Intn(211),
			EnergyLevel:   rng.Float64(),
			FocusLevel:    rng.Float64(),
		},
	}
	if rng.Float64() < 0.5 {
		req.TargetDuration = 30 + rng.Intn(211)
	}
	if rng.Float64() < 0.5 {
		req.Preferences.PreferredDuration = 30 + rng.Intn(211)
	}
	if rng.Float64() < 0.5 {
		req.Preferences.Difficulty = plan.Difficulties()[rng.Intn(4)]
	}
	tools := make([]string, rng.Intn(4))
	for i := range tools {
		tools[i] = "tool"
	}
	req.Context.Tools = tools
	return req
}
