package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"metis/internal/fitness"
	"metis/internal/plan"
	"metis/internal/stats"
)

const (
	benchmarkProgressInProgress = "in_progress"
	benchmarkProgressCompleted  = "completed"
)

// runBenchmark drives multi-seed benchmark experiments: the same optimize
// configuration replayed once per seed, aggregated against the base plan's
// fitness. Optimize flags ride after the subcommand's own flags and a "--"
// separator and are stored with the experiment so continue can replay them.
func runBenchmark(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("benchmark requires a subcommand: start|continue|show|series|list")
	}
	switch args[0] {
	case "start":
		return runBenchmarkStart(ctx, args[1:])
	case "continue":
		return runBenchmarkContinue(ctx, args[1:])
	case "show":
		return runBenchmarkShow(args[1:])
	case "series":
		return runBenchmarkSeries(args[1:])
	case "list":
		return runBenchmarkList(args[1:])
	default:
		return fmt.Errorf("unknown benchmark subcommand: %s", args[0])
	}
}

func runBenchmarkStart(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("benchmark start", flag.ContinueOnError)
	id := fs.String("id", "", "experiment id")
	seedList := fs.String("seeds", "", "comma-separated rng seeds, one run per seed")
	runCount := fs.Int("runs", 0, "number of runs with consecutive seeds from --seed-base")
	seedBase := fs.Int64("seed-base", 1, "first seed when --runs is used")
	minImprovement := fs.Float64("min-improvement", 0.0, "minimum mean fitness gain over the base plan to pass")
	notes := fs.String("notes", "", "optional experiment notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return errors.New("benchmark start requires --id")
	}
	if *seedList != "" && *runCount > 0 {
		return errors.New("use either --seeds or --runs, not both")
	}

	var seeds []int64
	switch {
	case *seedList != "":
		parsed, err := parseSeedList(*seedList)
		if err != nil {
			return err
		}
		seeds = parsed
	case *runCount > 0:
		seeds = make([]int64, 0, *runCount)
		for i := 0; i < *runCount; i++ {
			seeds = append(seeds, *seedBase+int64(i))
		}
	default:
		return errors.New("benchmark start requires --seeds or --runs")
	}

	experimentID := strings.TrimSpace(*id)
	if existing, ok, err := stats.ReadBenchmarkExperiment(runsDir, experimentID); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("benchmark experiment already exists: %s (progress=%s run_index=%d total_runs=%d)",
			existing.ID, existing.ProgressFlag, existing.RunIndex, existing.TotalRuns)
	}

	exp := stats.BenchmarkExperiment{
		ID:             experimentID,
		Notes:          strings.TrimSpace(*notes),
		ProgressFlag:   benchmarkProgressInProgress,
		RunIndex:       1,
		TotalRuns:      len(seeds),
		StartedAtUTC:   time.Now().UTC().Format(time.RFC3339),
		Seeds:          seeds,
		MinImprovement: *minImprovement,
		OptimizeArgs:   sanitizeOptimizeArgs(fs.Args()),
	}
	if err := stats.WriteBenchmarkExperiment(runsDir, exp); err != nil {
		return err
	}
	return executeBenchmark(ctx, &exp)
}

func runBenchmarkContinue(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("benchmark continue", flag.ContinueOnError)
	id := fs.String("id", "", "experiment id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return errors.New("benchmark continue requires --id")
	}

	exp, ok, err := stats.ReadBenchmarkExperiment(runsDir, strings.TrimSpace(*id))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("benchmark experiment not found: %s", strings.TrimSpace(*id))
	}
	if exp.ProgressFlag == benchmarkProgressCompleted {
		fmt.Printf("benchmark id=%s progress=%s run_index=%d total_runs=%d\n", exp.ID, exp.ProgressFlag, exp.RunIndex, exp.TotalRuns)
		return nil
	}
	if exp.RunIndex < 1 {
		exp.RunIndex = 1
	}
	if override := sanitizeOptimizeArgs(fs.Args()); len(override) > 0 {
		exp.OptimizeArgs = override
	}
	exp.Interruptions = append(exp.Interruptions, time.Now().UTC().Format(time.RFC3339))
	exp.ProgressFlag = benchmarkProgressInProgress
	if err := stats.WriteBenchmarkExperiment(runsDir, exp); err != nil {
		return err
	}
	return executeBenchmark(ctx, &exp)
}

func runBenchmarkShow(args []string) error {
	fs := flag.NewFlagSet("benchmark show", flag.ContinueOnError)
	id := fs.String("id", "", "experiment id")
	jsonOut := fs.Bool("json", false, "emit experiment as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return errors.New("benchmark show requires --id")
	}

	exp, ok, err := stats.ReadBenchmarkExperiment(runsDir, strings.TrimSpace(*id))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("benchmark experiment not found: %s", strings.TrimSpace(*id))
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(exp)
	}

	fmt.Printf("id=%s progress=%s run_index=%d total_runs=%d threshold=%.4f started=%s completed=%s interruptions=%d notes=%s\n",
		exp.ID,
		exp.ProgressFlag,
		exp.RunIndex,
		exp.TotalRuns,
		exp.MinImprovement,
		exp.StartedAtUTC,
		exp.CompletedAtUTC,
		len(exp.Interruptions),
		exp.Notes,
	)
	for i, runID := range exp.RunIDs {
		var seed int64
		if i < len(exp.Seeds) {
			seed = exp.Seeds[i]
		}
		history, ok, err := stats.ReadFitnessHistory(runsDir, runID)
		if err != nil {
			return err
		}
		finalBest := 0.0
		converged := false
		if ok {
			finalBest = history.FinalBestFitness
			converged = history.Converged
		}
		fmt.Printf("run=%d run_id=%s seed=%d final_best=%.6f converged=%t\n", i+1, runID, seed, finalBest, converged)
	}
	if exp.Summary != nil {
		s := exp.Summary
		fmt.Printf("summary base_fitness=%.6f best_mean=%.6f best_std=%.6f best_min=%.6f best_max=%.6f improvement=%.6f threshold=%.6f passed=%t\n",
			s.BaseFitness,
			s.BestMean,
			s.BestStd,
			s.BestMin,
			s.BestMax,
			s.Improvement,
			s.MinImprovement,
			s.Passed,
		)
	}
	return nil
}

func runBenchmarkSeries(args []string) error {
	fs := flag.NewFlagSet("benchmark series", flag.ContinueOnError)
	id := fs.String("id", "", "experiment id")
	jsonOut := fs.Bool("json", false, "emit series points as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	experimentID := strings.TrimSpace(*id)
	if experimentID == "" {
		return errors.New("benchmark series requires --id")
	}

	exp, ok, err := stats.ReadBenchmarkExperiment(runsDir, experimentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("benchmark experiment not found: %s", experimentID)
	}
	if exp.ProgressFlag != benchmarkProgressCompleted {
		return fmt.Errorf("benchmark experiment not completed: %s (progress=%s)", experimentID, exp.ProgressFlag)
	}

	expBase := filepath.Dir(stats.BenchmarkExperimentDir(runsDir, experimentID))
	summary, ok, err := stats.ReadBenchmarkSummary(expBase, experimentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("benchmark summary not found for experiment: %s", experimentID)
	}
	series, ok, err := stats.ReadBenchmarkSeries(expBase, experimentID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("benchmark series not found for experiment: %s", experimentID)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			ExperimentID     string    `json:"experiment_id"`
			BaseFitness      float64   `json:"base_fitness"`
			BestMean         float64   `json:"best_mean"`
			MeanByGeneration []float64 `json:"mean_by_generation"`
		}{
			ExperimentID:     experimentID,
			BaseFitness:      summary.BaseFitness,
			BestMean:         summary.BestMean,
			MeanByGeneration: series,
		})
	}

	fmt.Printf("id=%s base_fitness=%.6f best_mean=%.6f generations=%d\n", experimentID, summary.BaseFitness, summary.BestMean, len(series))
	for i, mean := range series {
		fmt.Printf("generation=%d mean_best_fitness=%.6f\n", i+1, mean)
	}
	return nil
}

func runBenchmarkList(args []string) error {
	fs := flag.NewFlagSet("benchmark list", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit experiments as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	exps, err := stats.ListBenchmarkExperiments(runsDir)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(exps)
	}
	if len(exps) == 0 {
		fmt.Println("no benchmark experiments")
		return nil
	}
	for _, exp := range exps {
		fmt.Printf("id=%s progress=%s run_index=%d total_runs=%d started=%s completed=%s interruptions=%d notes=%s\n",
			exp.ID,
			exp.ProgressFlag,
			exp.RunIndex,
			exp.TotalRuns,
			exp.StartedAtUTC,
			exp.CompletedAtUTC,
			len(exp.Interruptions),
			exp.Notes,
		)
	}
	return nil
}

// executeBenchmark replays the stored optimize args once per remaining
// seed, persisting progress after every run so an interrupted experiment
// resumes where it stopped, then aggregates the seed runs into the
// experiment summary.
func executeBenchmark(ctx context.Context, exp *stats.BenchmarkExperiment) error {
	if exp == nil {
		return errors.New("experiment is required")
	}
	if exp.ID == "" {
		return errors.New("experiment id is required")
	}
	if exp.TotalRuns <= 0 || len(exp.Seeds) != exp.TotalRuns {
		return errors.New("experiment seeds do not match total runs")
	}
	if exp.RunIndex < 1 {
		exp.RunIndex = 1
	}
	keep := exp.RunIndex - 1
	if len(exp.RunIDs) > keep {
		exp.RunIDs = exp.RunIDs[:keep]
	}

	seedRuns := make([]stats.BenchmarkSeedRun, 0, exp.TotalRuns)
	series := make([][]float64, 0, exp.TotalRuns)
	for i, runID := range exp.RunIDs {
		history, ok, err := stats.ReadFitnessHistory(runsDir, runID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("missing fitness history for run id: %s", runID)
		}
		seedRuns = append(seedRuns, stats.BenchmarkSeedRun{
			Seed:             exp.Seeds[i],
			RunID:            runID,
			FinalBestFitness: history.FinalBestFitness,
			Converged:        history.Converged,
		})
		series = append(series, history.BestByGeneration)
	}

	for runIdx := exp.RunIndex; runIdx <= exp.TotalRuns; runIdx++ {
		seed := exp.Seeds[runIdx-1]
		runID := fmt.Sprintf("%s-s%d", exp.ID, seed)
		runArgs := append([]string(nil), exp.OptimizeArgs...)
		runArgs = append(runArgs, "--run-id", runID, "--seed", strconv.FormatInt(seed, 10))
		if err := runOptimize(ctx, runArgs); err != nil {
			exp.ProgressFlag = benchmarkProgressInProgress
			exp.RunIndex = runIdx
			exp.Interruptions = append(exp.Interruptions, time.Now().UTC().Format(time.RFC3339))
			_ = stats.WriteBenchmarkExperiment(runsDir, *exp)
			return err
		}

		history, ok, err := stats.ReadFitnessHistory(runsDir, runID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("missing fitness history for run id: %s", runID)
		}
		seedRuns = append(seedRuns, stats.BenchmarkSeedRun{
			Seed:             seed,
			RunID:            runID,
			FinalBestFitness: history.FinalBestFitness,
			Converged:        history.Converged,
		})
		series = append(series, history.BestByGeneration)

		exp.RunIDs = append(exp.RunIDs, runID)
		exp.RunIndex = runIdx + 1
		exp.ProgressFlag = benchmarkProgressInProgress
		if err := stats.WriteBenchmarkExperiment(runsDir, *exp); err != nil {
			return err
		}
		fmt.Printf("benchmark id=%s run=%d/%d run_id=%s seed=%d final_best=%.6f converged=%t\n",
			exp.ID,
			runIdx,
			exp.TotalRuns,
			runID,
			seed,
			history.FinalBestFitness,
			history.Converged,
		)
	}

	summary, err := summarizeExperiment(*exp, seedRuns, series)
	if err != nil {
		return err
	}
	exp.Summary = &summary
	exp.ProgressFlag = benchmarkProgressCompleted
	exp.CompletedAtUTC = time.Now().UTC().Format(time.RFC3339)
	if err := stats.WriteBenchmarkExperiment(runsDir, *exp); err != nil {
		return err
	}

	expDir := stats.BenchmarkExperimentDir(runsDir, exp.ID)
	if err := stats.WriteBenchmarkSummary(expDir, summary); err != nil {
		return err
	}
	if err := stats.WriteBenchmarkSeries(expDir, summary.MeanByGeneration); err != nil {
		return err
	}

	fmt.Printf("benchmark id=%s progress=%s runs=%d base_fitness=%.6f best_mean=%.6f best_std=%.6f best_min=%.6f best_max=%.6f improvement=%.6f threshold=%.6f passed=%t\n",
		exp.ID,
		exp.ProgressFlag,
		exp.TotalRuns,
		summary.BaseFitness,
		summary.BestMean,
		summary.BestStd,
		summary.BestMin,
		summary.BestMax,
		summary.Improvement,
		summary.MinImprovement,
		summary.Passed,
	)
	fmt.Printf("benchmark_summary=%s\n", filepath.Join(expDir, "benchmark_summary.json"))
	return nil
}

// summarizeExperiment rebuilds the base plan and request from the stored
// optimize args, scores the base with the fitness evaluator, and folds the
// seed runs into the aggregate summary.
func summarizeExperiment(exp stats.BenchmarkExperiment, runs []stats.BenchmarkSeedRun, series [][]float64) (stats.BenchmarkSummary, error) {
	fs, _, rf, _ := newOptimizeFlagSet("benchmark summary")
	if err := fs.Parse(exp.OptimizeArgs); err != nil {
		return stats.BenchmarkSummary{}, err
	}
	req, err := rf.buildOptimizeRequest(setFlagNames(fs))
	if err != nil {
		return stats.BenchmarkSummary{}, err
	}

	evaluator, err := fitness.NewWeightedEvaluator(fitness.DefaultWeights())
	if err != nil {
		return stats.BenchmarkSummary{}, err
	}
	base := req.Plan
	base.Type = plan.NormalizeType(base.Type)
	baseFitness, err := evaluator.Evaluate(base, req.Request)
	if err != nil {
		return stats.BenchmarkSummary{}, err
	}

	populationSize := req.PopulationSize
	if populationSize <= 0 {
		populationSize = 20
	}
	generations := req.Generations
	if generations <= 0 {
		generations = 30
	}
	return stats.SummarizeBenchmark(exp.ID, base.Type, populationSize, generations, baseFitness, exp.MinImprovement, runs, series)
}

func parseSeedList(raw string) ([]int64, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	seeds := make([]int64, 0, len(parts))
	seen := make(map[int64]struct{}, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		seed, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse --seeds: %w", err)
		}
		if _, dup := seen[seed]; dup {
			return nil, fmt.Errorf("duplicate seed: %d", seed)
		}
		seen[seed] = struct{}{}
		seeds = append(seeds, seed)
	}
	if len(seeds) == 0 {
		return nil, errors.New("at least one seed is required")
	}
	return seeds, nil
}

// sanitizeOptimizeArgs strips run-id and seed flags from the stored args:
// both are injected per seed run.
func sanitizeOptimizeArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; {
		case isFlagToken(arg, "run-id"), isFlagToken(arg, "seed"):
			if i+1 < len(args) {
				i++
			}
		case hasFlagPrefix(arg, "run-id"), hasFlagPrefix(arg, "seed"):
		default:
			out = append(out, arg)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func isFlagToken(arg, name string) bool {
	return arg == "--"+name || arg == "-"+name
}

func hasFlagPrefix(arg, name string) bool {
	return strings.HasPrefix(arg, "--"+name+"=") || strings.HasPrefix(arg, "-"+name+"=")
}
