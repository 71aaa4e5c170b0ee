// Package refine implements a stochastic hill climber that polishes the
// numeric fields of a plan after the genetic search has picked a winner.
package refine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"metis/internal/plan"
)

// FitnessFn scores a candidate plan. The refiner treats higher as better.
type FitnessFn func(ctx context.Context, p plan.Plan) (float64, error)

// Refiner perturbs the estimated duration and phase durations of a plan,
// keeping a candidate only when it beats the best seen so far by at least
// MinImprovement. The per-step perturbation spread decays by AnnealingFactor,
// so later steps within a candidate make smaller moves.
type Refiner struct {
	Rand              *rand.Rand
	Steps             int
	StepSize          float64
	PerturbationRange float64
	AnnealingFactor   float64
	MinImprovement    float64
	GoalFitness       float64
	mu                sync.Mutex
}

func (r *Refiner) Name() string {
	return "hillclimb"
}

// Refine runs up to attempts perturbation rounds starting from base and
// returns the best plan found. The result never scores below base; with
// attempts <= 0 the base plan is returned unchanged.
func (r *Refiner) Refine(ctx context.Context, base plan.Plan, attempts int, fitness FitnessFn) (plan.Plan, error) {
	if err := ctx.Err(); err != nil {
		return plan.Plan{}, err
	}
	if r == nil || r.Rand == nil {
		return plan.Plan{}, errors.New("random source is required")
	}
	if attempts <= 0 {
		return base.Clone(), nil
	}
	if r.Steps <= 0 {
		return plan.Plan{}, errors.New("steps must be > 0")
	}
	if r.StepSize <= 0 {
		return plan.Plan{}, errors.New("step size must be > 0")
	}
	if r.PerturbationRange < 0 {
		return plan.Plan{}, errors.New("perturbation range must be >= 0")
	}
	if r.AnnealingFactor < 0 {
		return plan.Plan{}, errors.New("annealing factor must be >= 0")
	}
	if r.MinImprovement < 0 {
		return plan.Plan{}, errors.New("min improvement must be >= 0")
	}
	if fitness == nil {
		return plan.Plan{}, errors.New("fitness function is required")
	}
	if err := plan.Validate(base); err != nil {
		return plan.Plan{}, fmt.Errorf("validate base plan: %w", err)
	}
	perturbationRange := r.PerturbationRange
	if perturbationRange == 0 {
		perturbationRange = 1.0
	}
	annealingFactor := r.AnnealingFactor
	if annealingFactor == 0 {
		annealingFactor = 1.0
	}

	best := base.Clone()
	bestFitness, err := fitness(ctx, best)
	if err != nil {
		return plan.Plan{}, err
	}
	if r.GoalFitness > 0 && bestFitness >= r.GoalFitness {
		return best, nil
	}

	for a := 0; a < attempts; a++ {
		candidate, err := r.perturbCandidate(ctx, best, perturbationRange, annealingFactor)
		if err != nil {
			return plan.Plan{}, err
		}
		candidateFitness, err := fitness(ctx, candidate)
		if err != nil {
			return plan.Plan{}, err
		}
		if candidateFitness > bestFitness+r.MinImprovement {
			best = candidate
			bestFitness = candidateFitness
		}
		if r.GoalFitness > 0 && bestFitness >= r.GoalFitness {
			break
		}
	}

	return best, nil
}

// perturbCandidate clones base and nudges one duration field per step. Target
// index 0 is the plan duration, the rest map onto phases.
func (r *Refiner) perturbCandidate(ctx context.Context, base plan.Plan, perturbationRange, annealingFactor float64) (plan.Plan, error) {
	candidate := base.Clone()
	targets := 1 + len(candidate.Structure.Phases)
	for s := 0; s < r.Steps; s++ {
		if err := ctx.Err(); err != nil {
			return plan.Plan{}, err
		}
		spread := r.StepSize * perturbationRange * math.Pow(annealingFactor, float64(s))
		delta := (r.randFloat64()*2 - 1) * spread
		idx := r.randIntn(targets)
		if idx == 0 {
			scaled := int(math.Round(float64(candidate.EstimatedDuration) * (1 + delta)))
			candidate.EstimatedDuration = clampInt(scaled, plan.MinPlanDuration, plan.MaxPlanDuration)
			continue
		}
		phase := &candidate.Structure.Phases[idx-1]
		scaled := int(math.Round(float64(phase.Duration) * (1 + delta)))
		phase.Duration = clampInt(scaled, plan.MinPhaseDuration, plan.MaxPhaseDuration)
	}
	return candidate, nil
}

func (r *Refiner) randIntn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Rand.Intn(n)
}

func (r *Refiner) randFloat64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Rand.Float64()
}

func clampInt(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
