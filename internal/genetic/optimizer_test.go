package genetic

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"metis/internal/fitness"
	"metis/internal/plan"
)

func studyPlan(id string, duration int) plan.Plan {
	return plan.Plan{
		ID:                id,
		Type:              "learning",
		EstimatedDuration: duration,
		Difficulty:        plan.DifficultyIntermediate,
		SuccessPrediction: 0.7,
		RequiredResources: []string{"notebook"},
		Structure: plan.PlanStructure{
			Phases: []plan.Phase{
				{Name: "warmup", Duration: 10, Activities: []string{"review notes"}},
				{Name: "core", Duration: 40, Activities: []string{"read chapter", "solve exercises"}},
				{Name: "wrapup", Duration: 10, Activities: []string{"summarize"}},
			},
			Transitions: []plan.Transition{
				{From: 0, To: 1, Trigger: "time"},
				{From: 1, To: 2, Trigger: "time"},
			},
			Breakpoints: []plan.Breakpoint{{AfterPhase: 1, Duration: 5}},
			AdaptationRules: []plan.AdaptationRule{
				{Trigger: "fatigue", Action: "shorten_phase", Threshold: 0.3},
			},
		},
	}
}

func studyRequest() plan.GenerationRequest {
	return plan.GenerationRequest{
		Context: plan.RequestContext{
			AvailableTime: 60,
			EnergyLevel:   0.8,
			FocusLevel:    0.7,
			Tools:         []string{"notebook"},
		},
	}
}

func newEvaluator(t *testing.T) *fitness.WeightedEvaluator {
	t.Helper()
	eval, err := fitness.NewWeightedEvaluator(fitness.DefaultWeights())
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	return eval
}

func TestOptimizeImprovesOnBasePlan(t *testing.T) {
	eval := newEvaluator(t)
	base := studyPlan("study-1", 90)
	req := studyRequest()

	baseFitness, err := eval.Evaluate(base, req)
	if err != nil {
		t.Fatalf("evaluate base: %v", err)
	}

	optimizer, err := NewOptimizer(Config{
		Evaluator:      eval,
		PopulationSize: 30,
		Generations:    10,
		MutationRate:   0.8,
		CrossoverRate:  0.7,
		ElitismRate:    0.1,
		Workers:        4,
		Seed:           42,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}

	result, err := optimizer.Optimize(context.Background(), base, req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if result.BestFitness <= baseFitness {
		t.Fatalf("no improvement: best=%.4f base=%.4f", result.BestFitness, baseFitness)
	}
	if err := plan.Validate(result.Best); err != nil {
		t.Fatalf("best plan invalid: %v", err)
	}
}

func TestBestByGenerationNeverDecreases(t *testing.T) {
	eval := newEvaluator(t)
	optimizer, err := NewOptimizer(Config{
		Evaluator:      eval,
		PopulationSize: 20,
		Generations:    12,
		MutationRate:   0.9,
		CrossoverRate:  0.6,
		ElitismRate:    0.15,
		Seed:           7,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}

	result, err := optimizer.Optimize(context.Background(), studyPlan("study-2", 90), studyRequest())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if len(result.BestByGeneration) == 0 {
		t.Fatalf("empty best history")
	}
	for i := 1; i < len(result.BestByGeneration); i++ {
		if result.BestByGeneration[i] < result.BestByGeneration[i-1] {
			t.Fatalf("best fitness decreased at generation %d: %.6f -> %.6f",
				i, result.BestByGeneration[i-1], result.BestByGeneration[i])
		}
	}
}

func TestOptimizeNeverScoresBelowBase(t *testing.T) {
	eval := newEvaluator(t)
	base := studyPlan("study-3", 60)
	req := studyRequest()

	baseFitness, err := eval.Evaluate(base, req)
	if err != nil {
		t.Fatalf("evaluate base: %v", err)
	}

	optimizer, err := NewOptimizer(Config{
		Evaluator:      eval,
		PopulationSize: 10,
		Generations:    5,
		MutationRate:   0.7,
		CrossoverRate:  0.5,
		ElitismRate:    0.2,
		Seed:           3,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}

	result, err := optimizer.Optimize(context.Background(), base, req)
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if result.BestFitness < baseFitness {
		t.Fatalf("result below base: best=%.4f base=%.4f", result.BestFitness, baseFitness)
	}
}

func TestOptimizeRejectsPlanWithoutPhases(t *testing.T) {
	optimizer, err := NewOptimizer(Config{
		Evaluator:      newEvaluator(t),
		PopulationSize: 5,
		Generations:    3,
		Seed:           1,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}

	base := studyPlan("study-4", 60)
	base.Structure.Phases = nil
	base.Structure.Transitions = nil
	base.Structure.Breakpoints = nil

	if _, err := optimizer.Optimize(context.Background(), base, studyRequest()); !errors.Is(err, plan.ErrNoPhases) {
		t.Fatalf("expected no-phases error, got %v", err)
	}
}

func TestZeroGenerationsReturnsBaseUnchanged(t *testing.T) {
	optimizer, err := NewOptimizer(Config{
		Evaluator:      newEvaluator(t),
		PopulationSize: 8,
		Generations:    0,
		MutationRate:   1.0,
		CrossoverRate:  1.0,
		Seed:           5,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}

	base := studyPlan("study-5", 75)
	result, err := optimizer.Optimize(context.Background(), base, studyRequest())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if !reflect.DeepEqual(result.Best, base) {
		t.Fatalf("base plan changed\nactual=%+v\nexpected=%+v", result.Best, base)
	}
	if len(result.BestByGeneration) != 0 {
		t.Fatalf("unexpected generations: %v", result.BestByGeneration)
	}
	if result.Converged {
		t.Fatalf("unexpected convergence flag")
	}
}

func TestOptimizeIsDeterministic(t *testing.T) {
	cfg := Config{
		Evaluator:      newEvaluator(t),
		PopulationSize: 16,
		Generations:    6,
		MutationRate:   0.8,
		CrossoverRate:  0.6,
		ElitismRate:    0.1,
		Workers:        3,
		Seed:           99,
	}

	first, err := NewOptimizer(cfg)
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}
	second, err := NewOptimizer(cfg)
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}

	resultA, err := first.Optimize(context.Background(), studyPlan("study-6", 90), studyRequest())
	if err != nil {
		t.Fatalf("optimize first: %v", err)
	}
	resultB, err := second.Optimize(context.Background(), studyPlan("study-6", 90), studyRequest())
	if err != nil {
		t.Fatalf("optimize second: %v", err)
	}

	if resultA.BestFitness != resultB.BestFitness {
		t.Fatalf("fitness mismatch: %.6f vs %.6f", resultA.BestFitness, resultB.BestFitness)
	}
	if !reflect.DeepEqual(resultA.BestByGeneration, resultB.BestByGeneration) {
		t.Fatalf("history mismatch:\n%v\n%v", resultA.BestByGeneration, resultB.BestByGeneration)
	}
	if !reflect.DeepEqual(resultA.Best, resultB.Best) {
		t.Fatalf("best plan mismatch:\n%+v\n%+v", resultA.Best, resultB.Best)
	}
}

func TestFinalPopulationStaysWithinBounds(t *testing.T) {
	optimizer, err := NewOptimizer(Config{
		Evaluator:      newEvaluator(t),
		PopulationSize: 24,
		Generations:    8,
		MutationRate:   1.0,
		CrossoverRate:  0.9,
		ElitismRate:    0.1,
		Seed:           17,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}

	result, err := optimizer.Optimize(context.Background(), studyPlan("study-7", 90), studyRequest())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	for _, item := range result.FinalPopulation {
		if err := plan.Validate(item.Plan); err != nil {
			t.Fatalf("plan %s invalid: %v", item.Plan.ID, err)
		}
		if item.Plan.EstimatedDuration < plan.MinPlanDuration || item.Plan.EstimatedDuration > plan.MaxPlanDuration {
			t.Fatalf("plan %s duration out of bounds: %d", item.Plan.ID, item.Plan.EstimatedDuration)
		}
		if len(item.Plan.Structure.Phases) == 0 {
			t.Fatalf("plan %s has no phases", item.Plan.ID)
		}
		for i, phase := range item.Plan.Structure.Phases {
			if phase.Duration < plan.MinPhaseDuration || phase.Duration > plan.MaxPhaseDuration {
				t.Fatalf("plan %s phase %d duration out of bounds: %d", item.Plan.ID, i, phase.Duration)
			}
		}
		if item.Fitness < 0 || item.Fitness > 1 {
			t.Fatalf("plan %s fitness out of bounds: %.4f", item.Plan.ID, item.Fitness)
		}
	}
}

func TestHighThresholdConvergesImmediately(t *testing.T) {
	optimizer, err := NewOptimizer(Config{
		Evaluator:            newEvaluator(t),
		PopulationSize:       10,
		Generations:          50,
		MutationRate:         0.5,
		CrossoverRate:        0.5,
		ElitismRate:          0.1,
		ConvergenceThreshold: 0.5,
		Seed:                 13,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}

	result, err := optimizer.Optimize(context.Background(), studyPlan("study-8", 90), studyRequest())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if !result.Converged {
		t.Fatalf("expected convergence, spread=%v", result.Diagnostics)
	}
	if len(result.BestByGeneration) != 1 {
		t.Fatalf("generations before convergence: %d", len(result.BestByGeneration))
	}
	if len(result.Diagnostics) != 1 || result.Diagnostics[0].Spread >= 0.5 {
		t.Fatalf("unexpected diagnostics: %+v", result.Diagnostics)
	}
}

func TestLineageTracksSeedsAndChildren(t *testing.T) {
	optimizer, err := NewOptimizer(Config{
		Evaluator:      newEvaluator(t),
		PopulationSize: 6,
		Generations:    4,
		MutationRate:   0.8,
		CrossoverRate:  0.6,
		ElitismRate:    0.2,
		Seed:           29,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}

	base := studyPlan("study-9", 90)
	result, err := optimizer.Optimize(context.Background(), base, studyRequest())
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}

	if len(result.Lineage) == 0 {
		t.Fatalf("empty lineage")
	}
	if result.Lineage[0].PlanID != base.ID || result.Lineage[0].Operation != "seed" {
		t.Fatalf("unexpected first record: %+v", result.Lineage[0])
	}

	seeds := 0
	elites := 0
	for _, record := range result.Lineage {
		if record.PlanID == "" {
			t.Fatalf("record without plan id: %+v", record)
		}
		if record.Generation == 0 {
			seeds++
		} else if record.ParentID == "" {
			t.Fatalf("child without parent: %+v", record)
		}
		if record.Operation == "elite_clone" {
			elites++
		}
	}
	if seeds != 6 {
		t.Fatalf("seed records: got=%d want=6", seeds)
	}
	if len(result.BestByGeneration) > 1 && elites == 0 {
		t.Fatalf("no elite records across %d generations", len(result.BestByGeneration))
	}
}

func TestOptimizeStopsOnCancelledContext(t *testing.T) {
	optimizer, err := NewOptimizer(Config{
		Evaluator:      newEvaluator(t),
		PopulationSize: 6,
		Generations:    3,
		Seed:           31,
	})
	if err != nil {
		t.Fatalf("new optimizer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := optimizer.Optimize(ctx, studyPlan("study-10", 90), studyRequest()); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestNewOptimizerValidatesConfig(t *testing.T) {
	eval := newEvaluator(t)
	cases := map[string]Config{
		"missing evaluator":  {PopulationSize: 5, Generations: 1},
		"zero population":    {Evaluator: eval, Generations: 1},
		"negative gens":      {Evaluator: eval, PopulationSize: 5, Generations: -1},
		"bad mutation rate":  {Evaluator: eval, PopulationSize: 5, Generations: 1, MutationRate: 1.5},
		"bad crossover rate": {Evaluator: eval, PopulationSize: 5, Generations: 1, CrossoverRate: -0.1},
		"bad elitism rate":   {Evaluator: eval, PopulationSize: 5, Generations: 1, ElitismRate: 2},
		"bad threshold":      {Evaluator: eval, PopulationSize: 5, Generations: 1, ConvergenceThreshold: -0.2},
		"nil policy operator": {
			Evaluator:      eval,
			PopulationSize: 5,
			Generations:    1,
			MutationPolicy: []TriggeredMutation{{Probability: 0.5}},
		},
		"bad policy probability": {
			Evaluator:      eval,
			PopulationSize: 5,
			Generations:    1,
			MutationPolicy: []TriggeredMutation{{Operator: &ShiftDifficulty{}, Probability: 2}},
		},
	}

	for name, cfg := range cases {
		if _, err := NewOptimizer(cfg); err == nil {
			t.Fatalf("%s: expected config error", name)
		}
	}
}
