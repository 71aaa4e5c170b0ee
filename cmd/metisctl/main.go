package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"metis/internal/rl"
	"metis/internal/stats"
	metisapi "metis/pkg/metis"
)

const (
	runsDir    = "runs"
	exportsDir = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "optimize":
		return runOptimize(ctx, args[1:])
	case "score":
		return runScore(ctx, args[1:])
	case "actions":
		return runActions(ctx, args[1:])
	case "record":
		return runRecord(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "diagnostics":
		return runDiagnostics(ctx, args[1:])
	case "lineage":
		return runLineage(ctx, args[1:])
	case "top":
		return runTop(ctx, args[1:])
	case "type-summary":
		return runTypeSummary(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "benchmark":
		return runBenchmark(ctx, args[1:])
	case "profiles":
		return runProfiles(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := store.newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *store.kind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	store := addStoreFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := store.newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Reset(ctx); err != nil {
		return err
	}

	fmt.Printf("reset store=%s\n", *store.kind)
	return nil
}

func newOptimizeFlagSet(name string) (*flag.FlagSet, *storeFlags, *runFlags, *bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	store := addStoreFlags(fs)
	rf := addRunFlags(fs)
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	return fs, store, rf, jsonOut
}

func runOptimize(ctx context.Context, args []string) error {
	fs, store, rf, jsonOut := newOptimizeFlagSet("optimize")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req, err := rf.buildOptimizeRequest(setFlagNames(fs))
	if err != nil {
		return err
	}

	client, err := store.newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Optimize(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("optimize completed run_id=%s plan_type=%s seed=%d\n", summary.RunID, summary.Best.Type, req.Seed)
	for i, best := range summary.BestByGeneration {
		fmt.Printf("generation=%d best_fitness=%.6f\n", i+1, best)
	}
	fmt.Printf("final_best_fitness=%.6f converged=%t refined=%t\n", summary.BestFitness, summary.Converged, summary.Refined)
	if summary.Score != nil {
		fmt.Printf("score prediction=%.6f confidence=%.6f suggestions=%d\n",
			summary.Score.Prediction,
			summary.Score.Confidence,
			len(summary.Score.Suggestions),
		)
		for _, s := range summary.Score.Suggestions {
			fmt.Printf("suggestion kind=%s expected_improvement=%.6f confidence=%.6f message=%s\n",
				s.Kind,
				s.ExpectedImprovement,
				s.Confidence,
				s.Message,
			)
		}
	}
	for _, rec := range summary.Recommendations {
		printRecommendation(rec)
	}
	fmt.Printf("artifacts_dir=%s\n", filepath.Clean(summary.ArtifactsDir))
	return nil
}

func runScore(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	store := addStoreFlags(fs)
	pf := addPlanFlags(fs)
	qf := addRequestFlags(fs)
	jsonOut := fs.Bool("json", false, "emit score result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	base, err := pf.resolve(nil)
	if err != nil {
		return err
	}
	request, err := qf.resolve(nil, base.EstimatedDuration)
	if err != nil {
		return err
	}

	client, err := store.newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	result, err := client.Score(ctx, base, request)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("score prediction=%.6f confidence=%.6f suggestions=%d\n", result.Prediction, result.Confidence, len(result.Suggestions))
	for _, s := range result.Suggestions {
		fmt.Printf("suggestion kind=%s expected_improvement=%.6f confidence=%.6f message=%s\n",
			s.Kind,
			s.ExpectedImprovement,
			s.Confidence,
			s.Message,
		)
	}
	return nil
}

func runActions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("actions", flag.ContinueOnError)
	store := addStoreFlags(fs)
	pf := addPlanFlags(fs)
	jsonOut := fs.Bool("json", false, "emit recommendations as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	base, err := pf.resolve(nil)
	if err != nil {
		return err
	}

	client, err := store.newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	recs, err := client.Actions(ctx, base)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no recommended actions")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	for _, rec := range recs {
		printRecommendation(rec)
	}
	return nil
}

func printRecommendation(rec rl.Recommendation) {
	switch {
	case rec.Duration != nil:
		fmt.Printf("action=%s value=%.6f confidence=%.6f minutes=%+d\n", rec.Action, rec.Value, rec.Confidence, rec.Duration.Minutes)
	case rec.Break != nil:
		fmt.Printf("action=%s value=%.6f confidence=%.6f after_phase=%d minutes=%d\n", rec.Action, rec.Value, rec.Confidence, rec.Break.AfterPhase, rec.Break.Minutes)
	case rec.Difficulty != nil:
		fmt.Printf("action=%s value=%.6f confidence=%.6f target=%s\n", rec.Action, rec.Value, rec.Confidence, rec.Difficulty.Target)
	default:
		fmt.Printf("action=%s value=%.6f confidence=%.6f\n", rec.Action, rec.Value, rec.Confidence)
	}
}

func runRecord(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	store := addStoreFlags(fs)
	pf := addPlanFlags(fs)
	action := fs.String("action", "", "action to record: extend_duration|reduce_duration|add_break|remove_break|increase_difficulty|decrease_difficulty")
	reward := fs.Float64("reward", math.NaN(), "observed reward in [0, 1]")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *action == "" {
		return errors.New("record requires --action")
	}
	if math.IsNaN(*reward) {
		return errors.New("record requires --reward")
	}

	base, err := pf.resolve(nil)
	if err != nil {
		return err
	}

	client, err := store.newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	outcome, err := client.Record(ctx, base, *action, *reward)
	if err != nil {
		return err
	}

	fmt.Printf("recorded id=%s state_key=%s action=%s reward=%.4f\n", outcome.ID, outcome.StateKey, outcome.Action, outcome.Reward)
	return nil
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := stats.ListRunIndex(runsDir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no runs found")
		return nil
	}
	if len(entries) > *limit {
		entries = entries[:*limit]
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		fmt.Printf("run_id=%s created_at=%s plan_type=%s seed=%d pop=%d gens=%d selection=%s refined=%t final_best_fitness=%.6f\n",
			e.RunID,
			e.CreatedAtUTC,
			e.PlanType,
			e.Seed,
			e.PopulationSize,
			e.Generations,
			e.Selection,
			e.Refined,
			e.FinalBestFitness,
		)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	store := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show fitness history for the most recent run from run index")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("history requires --run-id or --latest")
	}

	client, err := store.newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.History(ctx, metisapi.HistoryRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no fitness history")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}

	for i, best := range history {
		fmt.Printf("generation=%d best_fitness=%.6f\n", i+1, best)
	}
	return nil
}

func runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	store := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show diagnostics for the most recent run from run index")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit diagnostics as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("diagnostics requires --run-id or --latest")
	}

	client, err := store.newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, metisapi.DiagnosticsRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(diagnostics) == 0 {
		fmt.Println("no diagnostics")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(diagnostics)
	}

	for _, d := range diagnostics {
		fmt.Printf("generation=%d best=%.6f mean=%.6f min=%.6f spread=%.6f crossovers=%d mutations=%d\n",
			d.Generation,
			d.BestFitness,
			d.MeanFitness,
			d.MinFitness,
			d.Spread,
			d.Crossovers,
			d.Mutations,
		)
	}
	return nil
}

func runLineage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lineage", flag.ContinueOnError)
	store := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show lineage for the most recent run from run index")
	limit := fs.Int("limit", 50, "max lineage rows to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit lineage rows as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("lineage requires --run-id or --latest")
	}

	client, err := store.newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	lineage, err := client.Lineage(ctx, metisapi.LineageRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(lineage) == 0 {
		fmt.Println("no lineage records")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lineage)
	}

	for _, rec := range lineage {
		fmt.Printf("gen=%d plan_id=%s parent_id=%s op=%s\n",
			rec.Generation,
			rec.PlanID,
			rec.ParentID,
			rec.Operation,
		)
	}
	return nil
}

func runTop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	store := addStoreFlags(fs)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show top plans for the most recent run from run index")
	limit := fs.Int("limit", 5, "max top plans to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit top plans as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("top requires --run-id or --latest")
	}

	client, err := store.newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	top, err := client.TopPlans(ctx, metisapi.TopPlansRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if len(top) == 0 {
		fmt.Println("no top plans")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(top)
	}

	for _, item := range top {
		fmt.Printf("rank=%d fitness=%.6f plan_id=%s type=%s duration=%d difficulty=%s phases=%d\n",
			item.Rank,
			item.Fitness,
			item.Plan.ID,
			item.Plan.Type,
			item.Plan.EstimatedDuration,
			item.Plan.Difficulty,
			len(item.Plan.Structure.Phases),
		)
	}
	return nil
}

func runTypeSummary(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("type-summary", flag.ContinueOnError)
	store := addStoreFlags(fs)
	typeName := fs.String("type", "", "plan type")
	jsonOut := fs.Bool("json", false, "emit type summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *typeName == "" {
		return errors.New("type-summary requires --type")
	}

	client, err := store.newClient()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.TypeSummary(ctx, *typeName)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("plan_type=%s best_fitness=%.6f description=%s\n",
		summary.Type,
		summary.BestFitness,
		summary.Description,
	)
	return nil
}

func runExport(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}
	if *latest {
		entries, err := stats.ListRunIndex(runsDir)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return errors.New("no runs available to export")
		}
		*runID = entries[0].RunID
	}

	exportedDir, err := stats.ExportRunArtifacts(runsDir, *runID, *outDir)
	if err != nil {
		return err
	}

	fmt.Printf("exported run_id=%s to=%s\n", *runID, filepath.Clean(exportedDir))
	return nil
}

func runProfiles(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("profiles", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit profiles as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	names := profileNames()
	if *jsonOut {
		docs := make([]map[string]any, 0, len(names))
		for _, name := range names {
			doc := profilePresets[name]
			docs = append(docs, map[string]any{
				"profile":           doc.Profile,
				"population_size":   doc.PopulationSize,
				"generations":       doc.Generations,
				"mutation_rate":     doc.MutationRate,
				"crossover_rate":    doc.CrossoverRate,
				"elitism_rate":      doc.ElitismRate,
				"score_plans":       doc.ScorePlans,
				"recommend_actions": doc.RecommendActions,
				"refine_attempts":   doc.RefineAttempts,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}

	for _, name := range names {
		doc := profilePresets[name]
		fmt.Printf("profile=%s pop=%d gens=%d mutation_rate=%.2f crossover_rate=%.2f elitism_rate=%.2f score=%t recommend=%t refine_attempts=%d\n",
			name,
			doc.PopulationSize,
			doc.Generations,
			doc.MutationRate,
			doc.CrossoverRate,
			doc.ElitismRate,
			doc.ScorePlans,
			doc.RecommendActions,
			doc.RefineAttempts,
		)
	}
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: metisctl <init|reset|optimize|score|actions|record|runs|history|diagnostics|lineage|top|type-summary|export|benchmark|profiles> [flags]", msg)
}
