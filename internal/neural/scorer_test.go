package neural

import (
	"reflect"
	"testing"

	"metis/internal/plan"
)

func scoreFixture() (plan.Plan, plan.GenerationRequest) {
	p := plan.Plan{
		ID:                "score-plan",
		Type:              "learning",
		EstimatedDuration: 60,
		Difficulty:        plan.DifficultyIntermediate,
		SuccessPrediction: 0.7,
		Structure: plan.PlanStructure{
			Phases: []plan.Phase{
				{Name: "warmup", Duration: 10, Activities: []string{"review"}},
				{Name: "core", Duration: 40, Activities: []string{"read", "practice"}},
				{Name: "wrapup", Duration: 10, Activities: []string{"summarize"}},
			},
			Breakpoints: []plan.Breakpoint{{AfterPhase: 1, Duration: 5}},
		},
	}
	req := plan.GenerationRequest{
		Context: plan.RequestContext{
			AvailableTime: 60,
			EnergyLevel:   0.8,
			FocusLevel:    0.7,
		},
	}
	return p, req
}

func TestFeaturesStayNormalized(t *testing.T) {
	p, req := scoreFixture()
	p.EstimatedDuration = 500
	req.Context.EnergyLevel = 3.0

	features := Features(p, req)
	if len(features) != FeatureCount {
		t.Fatalf("feature count: got=%d want=%d", len(features), FeatureCount)
	}
	for i, value := range features {
		if value < 0 || value > 1 {
			t.Fatalf("feature %d out of bounds: %v", i, value)
		}
	}
	if features[0] != 1 {
		t.Fatalf("duration feature not clamped: %v", features[0])
	}
	if features[1] != 0.5 {
		t.Fatalf("difficulty feature: got=%v want=0.5", features[1])
	}
}

func TestScoreStaysWithinBounds(t *testing.T) {
	scorer, err := NewScorer(ScorerConfig{Seed: 3})
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}

	p, req := scoreFixture()
	result, err := scorer.Score(p, req)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if result.Prediction < 0 || result.Prediction > 1 {
		t.Fatalf("prediction out of bounds: %v", result.Prediction)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		t.Fatalf("confidence out of bounds: %v", result.Confidence)
	}
	for _, suggestion := range result.Suggestions {
		if suggestion.ExpectedImprovement < 0 || suggestion.ExpectedImprovement > 1 {
			t.Fatalf("improvement out of bounds: %+v", suggestion)
		}
		if suggestion.Confidence < 0 || suggestion.Confidence > 1 {
			t.Fatalf("suggestion confidence out of bounds: %+v", suggestion)
		}
		payloads := 0
		if suggestion.Layer != nil {
			payloads++
		}
		if suggestion.Phase != nil {
			payloads++
		}
		if suggestion.Structure != nil {
			payloads++
		}
		if payloads != 1 {
			t.Fatalf("suggestion must carry exactly one payload: %+v", suggestion)
		}
	}
}

func TestScoreDoesNotMutatePlan(t *testing.T) {
	scorer, err := NewScorer(ScorerConfig{Seed: 4})
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}

	p, req := scoreFixture()
	original := p.Clone()
	if _, err := scorer.Score(p, req); err != nil {
		t.Fatalf("score: %v", err)
	}
	if !reflect.DeepEqual(p, original) {
		t.Fatalf("plan mutated by scoring\nactual=%+v\nexpected=%+v", p, original)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	scorer, err := NewScorer(ScorerConfig{Seed: 5})
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}

	p, req := scoreFixture()
	first, err := scorer.Score(p, req)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	second, err := scorer.Score(p, req)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("score diverged:\n%+v\n%+v", first, second)
	}
}

func TestScoreRejectsInvalidPlan(t *testing.T) {
	scorer, err := NewScorer(ScorerConfig{Seed: 6})
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}

	p, req := scoreFixture()
	p.Structure.Phases = nil
	p.Structure.Breakpoints = nil
	if _, err := scorer.Score(p, req); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestSuggestionsFlagPlanShape(t *testing.T) {
	p, _ := scoreFixture()
	p.Structure.Phases[1].Duration = 55

	suggestions := buildSuggestions(p, 0.4, 0.8, []int{8, 4})
	kinds := make(map[SuggestionKind]bool, len(suggestions))
	var phaseHint *PhaseHint
	for _, suggestion := range suggestions {
		kinds[suggestion.Kind] = true
		if suggestion.Kind == SuggestionAdjustPhase && suggestion.Phase != nil {
			phaseHint = suggestion.Phase
		}
	}
	if !kinds[SuggestionTuneLayer] {
		t.Fatalf("low prediction should produce a layer hint: %+v", suggestions)
	}
	if phaseHint == nil || phaseHint.Phase != 1 || phaseHint.DurationDelta >= 0 {
		t.Fatalf("long phase not flagged: %+v", phaseHint)
	}

	shortPlan := p.Clone()
	shortPlan.Structure.Phases = shortPlan.Structure.Phases[:2]
	shortPlan.Structure.Breakpoints = nil
	suggestions = buildSuggestions(shortPlan, 0.9, 0.8, []int{8, 4})
	foundAdd := false
	for _, suggestion := range suggestions {
		if suggestion.Kind == SuggestionRestructure && suggestion.Structure.Action == "add" {
			foundAdd = true
		}
	}
	if !foundAdd {
		t.Fatalf("two-phase plan should suggest adding a phase: %+v", suggestions)
	}
}

func TestPredictRejectsSizeMismatch(t *testing.T) {
	scorer, err := NewScorer(ScorerConfig{Seed: 7})
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}
	if _, err := scorer.Predict([]float64{0.1, 0.2}); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}
