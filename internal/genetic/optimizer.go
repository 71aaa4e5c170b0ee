package genetic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"metis/internal/fitness"
	"metis/internal/plan"
)

type Result struct {
	Best             plan.Plan
	BestFitness      float64
	Converged        bool
	BestByGeneration []float64
	Diagnostics      []plan.GenerationDiagnostics
	Lineage          []plan.LineageRecord
	FinalPopulation  []ScoredPlan
}

type Config struct {
	Evaluator      fitness.Evaluator
	Selector       Selector
	MutationPolicy []TriggeredMutation
	PopulationSize int
	Generations    int
	MutationRate   float64
	CrossoverRate  float64
	ElitismRate    float64
	// ConvergenceThreshold stops the run early once the best-to-mean fitness
	// spread of a generation drops below it. Zero selects the default 0.01.
	ConvergenceThreshold float64
	Workers              int
	Seed                 int64
}

type Optimizer struct {
	cfg Config
	rng *rand.Rand
}

func NewOptimizer(cfg Config) (*Optimizer, error) {
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("fitness evaluator is required")
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if cfg.Generations < 0 {
		return nil, fmt.Errorf("generations must be >= 0")
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return nil, fmt.Errorf("mutation rate must be in [0, 1]")
	}
	if cfg.CrossoverRate < 0 || cfg.CrossoverRate > 1 {
		return nil, fmt.Errorf("crossover rate must be in [0, 1]")
	}
	if cfg.ElitismRate < 0 || cfg.ElitismRate > 1 {
		return nil, fmt.Errorf("elitism rate must be in [0, 1]")
	}
	if cfg.ConvergenceThreshold < 0 {
		return nil, fmt.Errorf("convergence threshold must be >= 0")
	}
	if cfg.ConvergenceThreshold == 0 {
		cfg.ConvergenceThreshold = 0.01
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Selector == nil {
		cfg.Selector = TournamentSelector{}
	}
	if len(cfg.MutationPolicy) == 0 {
		cfg.MutationPolicy = DefaultMutationPolicy(rand.New(rand.NewSource(cfg.Seed + 1)))
	}
	for i, item := range cfg.MutationPolicy {
		if item.Operator == nil {
			return nil, fmt.Errorf("mutation policy operator is required at index %d", i)
		}
		if item.Probability < 0 || item.Probability > 1 {
			return nil, fmt.Errorf("mutation policy probability must be in [0, 1] at index %d", i)
		}
	}

	return &Optimizer{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Optimize evolves variants of the base plan against the request and returns
// the best plan of the final generation. The base plan always occupies slot
// zero of the seed population, and elites carry the best plans forward, so
// the result never scores below the base.
func (o *Optimizer) Optimize(ctx context.Context, base plan.Plan, req plan.GenerationRequest) (Result, error) {
	if err := plan.Validate(base); err != nil {
		return Result{}, fmt.Errorf("validate base plan: %w", err)
	}

	if o.cfg.Generations == 0 {
		baseFitness, err := o.cfg.Evaluator.Evaluate(base, req)
		if err != nil {
			return Result{}, err
		}
		untouched := base.Clone()
		return Result{
			Best:            untouched,
			BestFitness:     baseFitness,
			FinalPopulation: []ScoredPlan{{Plan: untouched, Fitness: baseFitness}},
		}, nil
	}

	population, lineage, err := o.seedPopulation(ctx, base)
	if err != nil {
		return Result{}, err
	}

	bestHistory := make([]float64, 0, o.cfg.Generations)
	diagnostics := make([]plan.GenerationDiagnostics, 0, o.cfg.Generations)
	pendingCrossovers := 0
	pendingMutations := len(population) - 1
	converged := false

	var scored []ScoredPlan
	for gen := 0; gen < o.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		scored, err = o.evaluatePopulation(ctx, population, req)
		if err != nil {
			return Result{}, err
		}
		sort.Slice(scored, func(i, j int) bool {
			return scored[i].Fitness > scored[j].Fitness
		})
		bestHistory = append(bestHistory, scored[0].Fitness)
		diag := summarizeGeneration(scored, gen+1, pendingCrossovers, pendingMutations)
		diagnostics = append(diagnostics, diag)

		if diag.Spread < o.cfg.ConvergenceThreshold {
			converged = true
			break
		}
		if gen == o.cfg.Generations-1 {
			break
		}

		var generationLineage []plan.LineageRecord
		population, generationLineage, pendingCrossovers, pendingMutations, err = o.nextGeneration(ctx, scored, base.ID, gen)
		if err != nil {
			return Result{}, err
		}
		lineage = append(lineage, generationLineage...)
	}

	return Result{
		Best:             scored[0].Plan.Clone(),
		BestFitness:      scored[0].Fitness,
		Converged:        converged,
		BestByGeneration: bestHistory,
		Diagnostics:      diagnostics,
		Lineage:          lineage,
		FinalPopulation:  scored,
	}, nil
}

func summarizeGeneration(scored []ScoredPlan, generation, crossovers, mutations int) plan.GenerationDiagnostics {
	if len(scored) == 0 {
		return plan.GenerationDiagnostics{Generation: generation}
	}

	total := 0.0
	minFitness := scored[0].Fitness
	for _, item := range scored {
		total += item.Fitness
		if item.Fitness < minFitness {
			minFitness = item.Fitness
		}
	}
	mean := total / float64(len(scored))

	return plan.GenerationDiagnostics{
		Generation:  generation,
		BestFitness: scored[0].Fitness,
		MeanFitness: mean,
		MinFitness:  minFitness,
		Spread:      scored[0].Fitness - mean,
		Crossovers:  crossovers,
		Mutations:   mutations,
	}
}

func (o *Optimizer) seedPopulation(ctx context.Context, base plan.Plan) ([]plan.Plan, []plan.LineageRecord, error) {
	population := make([]plan.Plan, 0, o.cfg.PopulationSize)
	lineage := make([]plan.LineageRecord, 0, o.cfg.PopulationSize)

	population = append(population, base.Clone())
	lineage = append(lineage, plan.LineageRecord{
		PlanID:     base.ID,
		Generation: 0,
		Operation:  "seed",
	})

	addBreakpoint := &AddRandomBreakpoint{Rand: o.rng}
	removeBreakpoint := &RemoveRandomBreakpoint{Rand: o.rng}
	for i := 1; i < o.cfg.PopulationSize; i++ {
		variant, names, err := o.mutate(ctx, base.Clone())
		if err != nil {
			return nil, nil, fmt.Errorf("seed variant %d: %w", i, err)
		}
		if o.rng.Float64() < 0.3 {
			variant, err = addBreakpoint.Apply(ctx, variant)
			if err != nil {
				return nil, nil, fmt.Errorf("seed variant %d: %w", i, err)
			}
			names = append(names, addBreakpoint.Name())
		} else if o.rng.Float64() < 0.2 && len(variant.Structure.Breakpoints) > 0 {
			variant, err = removeBreakpoint.Apply(ctx, variant)
			if err != nil {
				return nil, nil, fmt.Errorf("seed variant %d: %w", i, err)
			}
			names = append(names, removeBreakpoint.Name())
		}

		variant.ID = fmt.Sprintf("%s-v%d", base.ID, i)
		operation := "seed_variant"
		if len(names) > 0 {
			operation = "seed_variant+" + strings.Join(names, "+")
		}
		population = append(population, variant)
		lineage = append(lineage, plan.LineageRecord{
			PlanID:     variant.ID,
			ParentID:   base.ID,
			Generation: 0,
			Operation:  operation,
		})
	}
	return population, lineage, nil
}

func (o *Optimizer) evaluatePopulation(ctx context.Context, population []plan.Plan, req plan.GenerationRequest) ([]ScoredPlan, error) {
	type job struct {
		idx       int
		candidate plan.Plan
	}
	type result struct {
		idx    int
		scored ScoredPlan
		err    error
	}

	jobs := make(chan job)
	results := make(chan result, len(population))

	workerCount := o.cfg.Workers
	if workerCount > len(population) {
		workerCount = len(population)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}

				score, err := o.cfg.Evaluator.Evaluate(j.candidate, req)
				if err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				results <- result{idx: j.idx, scored: ScoredPlan{Plan: j.candidate, Fitness: score}}
			}
		}()
	}

	for i := range population {
		jobs <- job{idx: i, candidate: population[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	scored := make([]ScoredPlan, len(population))
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		scored[res.idx] = res.scored
	}

	return scored, nil
}

func (o *Optimizer) nextGeneration(ctx context.Context, ranked []ScoredPlan, baseID string, generation int) ([]plan.Plan, []plan.LineageRecord, int, int, error) {
	next := make([]plan.Plan, 0, o.cfg.PopulationSize)
	lineage := make([]plan.LineageRecord, 0, o.cfg.PopulationSize)
	childGeneration := generation + 1
	crossovers := 0
	mutations := 0

	eliteCount := int(math.Round(float64(o.cfg.PopulationSize) * o.cfg.ElitismRate))
	if eliteCount < 1 {
		eliteCount = 1
	}
	if eliteCount > o.cfg.PopulationSize {
		eliteCount = o.cfg.PopulationSize
	}
	for i := 0; i < eliteCount; i++ {
		elite := ranked[i].Plan.Clone()
		next = append(next, elite)
		lineage = append(lineage, plan.LineageRecord{
			PlanID:     elite.ID,
			ParentID:   ranked[i].Plan.ID,
			Generation: childGeneration,
			Operation:  "elite_clone",
		})
	}

	for len(next) < o.cfg.PopulationSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, 0, err
		}

		first, err := o.cfg.Selector.PickParent(o.rng, ranked, eliteCount)
		if err != nil {
			return nil, nil, 0, 0, err
		}
		second, err := o.cfg.Selector.PickParent(o.rng, ranked, eliteCount)
		if err != nil {
			return nil, nil, 0, 0, err
		}

		var childA, childB plan.Plan
		crossed := o.rng.Float64() < o.cfg.CrossoverRate
		if crossed {
			childA, childB = crossoverPlans(o.rng, first, second)
			crossovers++
		} else {
			childA, childB = first.Clone(), second.Clone()
		}

		pair := []struct {
			child  plan.Plan
			parent string
		}{
			{child: childA, parent: first.ID},
			{child: childB, parent: second.ID},
		}
		for _, item := range pair {
			if len(next) >= o.cfg.PopulationSize {
				break
			}

			child := item.child
			operations := make([]string, 0, 4)
			if crossed {
				operations = append(operations, "crossover")
			} else {
				operations = append(operations, "copy")
			}
			if o.rng.Float64() < o.cfg.MutationRate {
				var names []string
				child, names, err = o.mutate(ctx, child)
				if err != nil {
					return nil, nil, 0, 0, err
				}
				if len(names) > 0 {
					operations = append(operations, names...)
					mutations++
				}
			}

			child.ID = fmt.Sprintf("%s-g%d-i%d", baseID, childGeneration, len(next))
			next = append(next, child)
			lineage = append(lineage, plan.LineageRecord{
				PlanID:     child.ID,
				ParentID:   item.parent,
				Generation: childGeneration,
				Operation:  strings.Join(operations, "+"),
			})
		}
	}

	return next, lineage, crossovers, mutations, nil
}

// mutate rolls every policy entry independently and applies the ones that
// trigger. Operators that have nothing to act on are skipped.
func (o *Optimizer) mutate(ctx context.Context, p plan.Plan) (plan.Plan, []string, error) {
	mutated := p
	names := make([]string, 0, len(o.cfg.MutationPolicy))
	for _, item := range o.cfg.MutationPolicy {
		if o.rng.Float64() >= item.Probability {
			continue
		}
		next, err := item.Operator.Apply(ctx, mutated)
		if err != nil {
			if errors.Is(err, ErrNoBreakpoints) {
				continue
			}
			return plan.Plan{}, nil, err
		}
		mutated = next
		names = append(names, item.Operator.Name())
	}
	return mutated, names, nil
}
