package refine

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"sync"
	"testing"

	"metis/internal/plan"
)

func refineFixture(duration int) plan.Plan {
	return plan.Plan{
		ID:                "refine-base",
		Type:              "learning",
		EstimatedDuration: duration,
		Difficulty:        plan.DifficultyIntermediate,
		SuccessPrediction: 0.6,
		Structure: plan.PlanStructure{
			Phases: []plan.Phase{
				{Name: "warmup", Duration: 10, Activities: []string{"review"}},
				{Name: "core", Duration: 40, Activities: []string{"practice"}},
				{Name: "wrapup", Duration: 10, Activities: []string{"summarize"}},
			},
		},
	}
}

func closenessFitness(target int) FitnessFn {
	return func(_ context.Context, p plan.Plan) (float64, error) {
		gap := math.Abs(float64(p.EstimatedDuration - target))
		return 1 - gap/float64(plan.MaxPlanDuration), nil
	}
}

func TestRefineImprovesFitness(t *testing.T) {
	base := refineFixture(200)
	refiner := &Refiner{Rand: rand.New(rand.NewSource(1)), Steps: 6, StepSize: 0.4}
	fitnessFn := closenessFitness(60)

	before, _ := fitnessFn(context.Background(), base)
	refined, err := refiner.Refine(context.Background(), base, 40, fitnessFn)
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	after, _ := fitnessFn(context.Background(), refined)

	if after <= before {
		t.Fatalf("expected refined fitness > baseline: before=%f after=%f", before, after)
	}
	if err := plan.Validate(refined); err != nil {
		t.Fatalf("refined plan invalid: %v", err)
	}
}

func TestRefineKeepsBaseWhenAlreadyOptimal(t *testing.T) {
	base := refineFixture(60)
	refiner := &Refiner{Rand: rand.New(rand.NewSource(2)), Steps: 6, StepSize: 0.4}

	refined, err := refiner.Refine(context.Background(), base, 40, closenessFitness(60))
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if !reflect.DeepEqual(refined, base) {
		t.Fatalf("optimal base should survive refinement unchanged:\nactual=%+v\nexpected=%+v", refined, base)
	}
}

func TestRefineRespectsDurationBounds(t *testing.T) {
	base := refineFixture(220)
	refiner := &Refiner{Rand: rand.New(rand.NewSource(3)), Steps: 8, StepSize: 0.5}
	fitnessFn := func(_ context.Context, p plan.Plan) (float64, error) {
		total := float64(p.EstimatedDuration)
		for _, phase := range p.Structure.Phases {
			total += float64(phase.Duration)
		}
		return total, nil
	}

	refined, err := refiner.Refine(context.Background(), base, 60, fitnessFn)
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if refined.EstimatedDuration < plan.MinPlanDuration || refined.EstimatedDuration > plan.MaxPlanDuration {
		t.Fatalf("plan duration out of bounds: %d", refined.EstimatedDuration)
	}
	for i, phase := range refined.Structure.Phases {
		if phase.Duration < plan.MinPhaseDuration || phase.Duration > plan.MaxPhaseDuration {
			t.Fatalf("phase %d duration out of bounds: %d", i, phase.Duration)
		}
	}
}

func TestRefineDoesNotMutateInput(t *testing.T) {
	base := refineFixture(200)
	pristine := base.Clone()
	refiner := &Refiner{Rand: rand.New(rand.NewSource(4)), Steps: 6, StepSize: 0.4}

	if _, err := refiner.Refine(context.Background(), base, 30, closenessFitness(60)); err != nil {
		t.Fatalf("refine: %v", err)
	}
	if !reflect.DeepEqual(base, pristine) {
		t.Fatalf("input plan mutated:\nactual=%+v\nexpected=%+v", base, pristine)
	}
}

func TestRefineMinImprovementBlocksSmallGains(t *testing.T) {
	base := refineFixture(60)
	refiner := &Refiner{
		Rand:           rand.New(rand.NewSource(5)),
		Steps:          6,
		StepSize:       0.25,
		MinImprovement: 0.5,
	}

	refined, err := refiner.Refine(context.Background(), base, 40, closenessFitness(65))
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if refined.EstimatedDuration != base.EstimatedDuration {
		t.Fatalf("expected unchanged duration when gains are below threshold: got=%d want=%d", refined.EstimatedDuration, base.EstimatedDuration)
	}
}

func TestRefineAttemptsZeroReturnsClone(t *testing.T) {
	base := refineFixture(90)
	refiner := &Refiner{Rand: rand.New(rand.NewSource(6)), Steps: 2, StepSize: 0.5}

	calls := 0
	refined, err := refiner.Refine(context.Background(), base, 0, func(context.Context, plan.Plan) (float64, error) {
		calls++
		return 0, nil
	})
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if calls != 0 {
		t.Fatalf("fitness should not run with zero attempts, got %d calls", calls)
	}
	if !reflect.DeepEqual(refined, base) {
		t.Fatalf("zero attempts should return the base plan unchanged")
	}
}

func TestRefineStopsEarlyWhenGoalReached(t *testing.T) {
	base := refineFixture(90)
	refiner := &Refiner{
		Rand:        rand.New(rand.NewSource(7)),
		Steps:       4,
		StepSize:    0.2,
		GoalFitness: 0.9,
	}

	calls := 0
	if _, err := refiner.Refine(context.Background(), base, 25, func(context.Context, plan.Plan) (float64, error) {
		calls++
		return 1.0, nil
	}); err != nil {
		t.Fatalf("refine: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one fitness evaluation due to goal short-circuit, got %d", calls)
	}
}

func TestRefineInputValidation(t *testing.T) {
	base := refineFixture(90)
	fitnessFn := func(context.Context, plan.Plan) (float64, error) { return 0, nil }

	if _, err := (&Refiner{}).Refine(context.Background(), base, 1, fitnessFn); err == nil {
		t.Fatal("expected rand validation error")
	}
	if _, err := (&Refiner{Rand: rand.New(rand.NewSource(1)), Steps: 0, StepSize: 1}).Refine(context.Background(), base, 1, fitnessFn); err == nil {
		t.Fatal("expected steps validation error")
	}
	if _, err := (&Refiner{Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 0}).Refine(context.Background(), base, 1, fitnessFn); err == nil {
		t.Fatal("expected step size validation error")
	}
	if _, err := (&Refiner{Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 1, PerturbationRange: -1}).Refine(context.Background(), base, 1, fitnessFn); err == nil {
		t.Fatal("expected perturbation range validation error")
	}
	if _, err := (&Refiner{Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 1, AnnealingFactor: -1}).Refine(context.Background(), base, 1, fitnessFn); err == nil {
		t.Fatal("expected annealing factor validation error")
	}
	if _, err := (&Refiner{Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 1, MinImprovement: -0.1}).Refine(context.Background(), base, 1, fitnessFn); err == nil {
		t.Fatal("expected min improvement validation error")
	}
	if _, err := (&Refiner{Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 1}).Refine(context.Background(), base, 1, nil); err == nil {
		t.Fatal("expected fitness validation error")
	}

	empty := base.Clone()
	empty.Structure.Phases = nil
	empty.Structure.Transitions = nil
	empty.Structure.Breakpoints = nil
	if _, err := (&Refiner{Rand: rand.New(rand.NewSource(1)), Steps: 1, StepSize: 1}).Refine(context.Background(), empty, 1, fitnessFn); !errors.Is(err, plan.ErrNoPhases) {
		t.Fatalf("expected ErrNoPhases for plan without phases, got %v", err)
	}
}

func TestRefineConcurrentSafe(t *testing.T) {
	base := refineFixture(120)
	refiner := &Refiner{Rand: rand.New(rand.NewSource(8)), Steps: 4, StepSize: 0.2}
	fitnessFn := closenessFitness(60)

	var wg sync.WaitGroup
	errCh := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := refiner.Refine(context.Background(), base, 8, fitnessFn); err != nil {
				errCh <- err
			}
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("unexpected refine error: %v", err)
	}
}
