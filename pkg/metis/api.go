// Package metis is the embedding surface for the plan optimizer: a Client
// owning a store, a logger, and a lazily started engine, with request and
// summary structs mirroring the CLI flags.
package metis

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"metis/internal/genetic"
	"metis/internal/neural"
	"metis/internal/plan"
	"metis/internal/platform"
	"metis/internal/platform/logger"
	"metis/internal/rl"
	"metis/internal/stats"
	"metis/internal/storage"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "metis.db"
)

// Options configure a Client. Zero values select the defaults: an
// in-memory store, runs/ and exports/ under the working directory, and
// no logging. LogMode accepts the logger's mode names ("dev", "prod").
type Options struct {
	StoreKind   string
	DBPath      string
	RedisURL    string
	PostgresURL string
	RunsDir     string
	ExportsDir  string
	LogMode     string
}

type Client struct {
	store  storage.Store
	log    *logger.Logger
	engine *platform.Engine

	runsDir    string
	exportsDir string
}

// OptimizeRequest configures one optimization run. Plan and Request are
// required; everything else defaults.
type OptimizeRequest struct {
	RunID   string
	Plan    plan.Plan
	Request plan.GenerationRequest

	PopulationSize       int
	Generations          int
	MutationRate         float64
	CrossoverRate        float64
	ElitismRate          float64
	ConvergenceThreshold float64
	Selection            string
	Workers              int
	Seed                 int64

	ScorePlans       bool
	RecommendActions bool
	RefineAttempts   int
	RefineSteps      int
	RefineStepSize   float64
	TopCount         int
}

type OptimizeSummary struct {
	RunID            string
	ArtifactsDir     string
	Best             plan.Plan
	BestFitness      float64
	Refined          bool
	Converged        bool
	BestByGeneration []float64
	TopPlans         []plan.RankedPlan
	Score            *neural.ScoreResult
	Recommendations  []rl.Recommendation
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	CreatedAtUTC     string
	PlanType         string
	Seed             int64
	PopulationSize   int
	Generations      int
	Selection        string
	Refined          bool
	FinalBestFitness float64
}

type HistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type LineageRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type TopPlansRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}

	store, err := storage.NewStore(storeKind, storeDSN(storeKind, opts))
	if err != nil {
		return nil, err
	}

	log := logger.NewNop()
	if opts.LogMode != "" {
		log, err = logger.New(opts.LogMode)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		store:      store,
		log:        log,
		runsDir:    runsDir,
		exportsDir: exportsDir,
	}, nil
}

func storeDSN(kind string, opts Options) string {
	switch kind {
	case "sqlite":
		if opts.DBPath == "" {
			return defaultDBPath
		}
		return opts.DBPath
	case "redis":
		return opts.RedisURL
	case "postgres":
		return opts.PostgresURL
	default:
		return ""
	}
}

// Close stops the engine, checkpointing the Q-table, and closes the
// store when the backend holds connections.
func (c *Client) Close() error {
	if c.engine != nil {
		c.engine.Shutdown()
	}
	c.log.Sync()
	return storage.CloseIfSupported(c.store)
}

// Init eagerly starts the engine and initializes the store backend.
func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureEngine(ctx)
	return err
}

// Reset wipes all persisted state, including learned Q-tables, and
// restarts the engine.
func (c *Client) Reset(ctx context.Context) error {
	eng, err := c.ensureEngine(ctx)
	if err != nil {
		return err
	}
	return eng.Reset(ctx)
}

// Optimize runs one full optimization and writes the run artifacts and
// run index entry under the runs directory.
func (c *Client) Optimize(ctx context.Context, req OptimizeRequest) (OptimizeSummary, error) {
	if req.PopulationSize <= 0 {
		req.PopulationSize = 20
	}
	if req.Generations <= 0 {
		req.Generations = 30
	}
	if req.MutationRate == 0 {
		req.MutationRate = 0.3
	}
	if req.CrossoverRate == 0 {
		req.CrossoverRate = 0.7
	}
	if req.ElitismRate == 0 {
		req.ElitismRate = 0.1
	}
	if req.Workers <= 0 {
		req.Workers = 4
	}
	if req.Selection == "" {
		req.Selection = "tournament"
	}
	selector, err := selectorFromName(req.Selection)
	if err != nil {
		return OptimizeSummary{}, err
	}
	req.Plan.Type = plan.NormalizeType(req.Plan.Type)
	if req.Plan.ID == "" {
		req.Plan.ID = uuid.NewString()
	}

	eng, err := c.ensureEngine(ctx)
	if err != nil {
		return OptimizeSummary{}, err
	}

	now := time.Now().UTC()
	runID := req.RunID
	if runID == "" {
		runID = platform.RunID(req.Plan.Type, req.Seed, now)
	}

	result, err := eng.RunOptimization(ctx, platform.OptimizationConfig{
		RunID:                runID,
		Base:                 req.Plan,
		Request:              req.Request,
		PopulationSize:       req.PopulationSize,
		Generations:          req.Generations,
		MutationRate:         req.MutationRate,
		CrossoverRate:        req.CrossoverRate,
		ElitismRate:          req.ElitismRate,
		ConvergenceThreshold: req.ConvergenceThreshold,
		Workers:              req.Workers,
		Seed:                 req.Seed,
		Selector:             selector,
		ScorePlans:           req.ScorePlans,
		RecommendActions:     req.RecommendActions,
		RefineAttempts:       req.RefineAttempts,
		RefineSteps:          req.RefineSteps,
		RefineStepSize:       req.RefineStepSize,
		TopCount:             req.TopCount,
	})
	if err != nil {
		return OptimizeSummary{}, err
	}

	runDir, err := stats.WriteRunArtifacts(c.runsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:                result.RunID,
			PlanID:               req.Plan.ID,
			PlanType:             req.Plan.Type,
			TargetDuration:       req.Request.TargetDuration,
			AvailableTime:        req.Request.Context.AvailableTime,
			EnergyLevel:          req.Request.Context.EnergyLevel,
			FocusLevel:           req.Request.Context.FocusLevel,
			Tools:                req.Request.Context.Tools,
			PreferredDuration:    req.Request.Preferences.PreferredDuration,
			PreferredDifficulty:  string(req.Request.Preferences.Difficulty),
			PopulationSize:       req.PopulationSize,
			Generations:          req.Generations,
			MutationRate:         req.MutationRate,
			CrossoverRate:        req.CrossoverRate,
			ElitismRate:          req.ElitismRate,
			ConvergenceThreshold: req.ConvergenceThreshold,
			Selection:            req.Selection,
			Workers:              req.Workers,
			Seed:                 req.Seed,
			ScorePlans:           req.ScorePlans,
			RecommendActions:     req.RecommendActions,
			RefineAttempts:       req.RefineAttempts,
			RefineSteps:          req.RefineSteps,
			RefineStepSize:       req.RefineStepSize,
		},
		BestByGeneration: result.BestByGeneration,
		Diagnostics:      result.Diagnostics,
		FinalBestFitness: result.BestFitness,
		Converged:        result.Converged,
		TopPlans:         result.TopPlans,
		Lineage:          result.Lineage,
	})
	if err != nil {
		return OptimizeSummary{}, err
	}

	if err := stats.AppendRunIndex(c.runsDir, stats.RunIndexEntry{
		RunID:            result.RunID,
		PlanType:         req.Plan.Type,
		PopulationSize:   req.PopulationSize,
		Generations:      req.Generations,
		Seed:             req.Seed,
		Workers:          req.Workers,
		Selection:        req.Selection,
		Refined:          result.Refined,
		FinalBestFitness: result.BestFitness,
		CreatedAtUTC:     now.Format(time.RFC3339),
	}); err != nil {
		return OptimizeSummary{}, err
	}

	return OptimizeSummary{
		RunID:            result.RunID,
		ArtifactsDir:     filepath.Clean(runDir),
		Best:             result.Best,
		BestFitness:      result.BestFitness,
		Refined:          result.Refined,
		Converged:        result.Converged,
		BestByGeneration: append([]float64(nil), result.BestByGeneration...),
		TopPlans:         result.TopPlans,
		Score:            result.Score,
		Recommendations:  result.Recommendations,
	}, nil
}

// Score runs the neural scorer over a plan and request without
// persisting anything.
func (c *Client) Score(ctx context.Context, p plan.Plan, req plan.GenerationRequest) (neural.ScoreResult, error) {
	eng, err := c.ensureEngine(ctx)
	if err != nil {
		return neural.ScoreResult{}, err
	}
	return eng.ScorePlan(p, req)
}

// Actions returns the learned action recommendations for a plan.
func (c *Client) Actions(ctx context.Context, p plan.Plan) ([]rl.Recommendation, error) {
	eng, err := c.ensureEngine(ctx)
	if err != nil {
		return nil, err
	}
	return eng.RecommendActions(ctx, p)
}

// Record appends an outcome for a plan/action pair and folds it into
// the learned Q-table.
func (c *Client) Record(ctx context.Context, p plan.Plan, action string, reward float64) (plan.OutcomeRecord, error) {
	eng, err := c.ensureEngine(ctx)
	if err != nil {
		return plan.OutcomeRecord{}, err
	}
	return eng.RecordOutcome(ctx, p, action, reward)
}

// Runs lists the run index, newest first.
func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.runsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			CreatedAtUTC:     e.CreatedAtUTC,
			PlanType:         e.PlanType,
			Seed:             e.Seed,
			PopulationSize:   e.PopulationSize,
			Generations:      e.Generations,
			Selection:        e.Selection,
			Refined:          e.Refined,
			FinalBestFitness: e.FinalBestFitness,
		})
	}
	return out, nil
}

// History returns the best-per-generation fitness series of a run.
func (c *Client) History(ctx context.Context, req HistoryRequest) ([]float64, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "fitness history")
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureEngine(ctx); err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

// Diagnostics returns the per-generation diagnostics of a run.
func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]plan.GenerationDiagnostics, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "diagnostics")
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureEngine(ctx); err != nil {
		return nil, err
	}

	diagnostics, ok, err := c.store.GetDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]plan.GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

// Lineage returns the parent/operation records of a run.
func (c *Client) Lineage(ctx context.Context, req LineageRequest) ([]plan.LineageRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "lineage")
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureEngine(ctx); err != nil {
		return nil, err
	}

	lineage, ok, err := c.store.GetLineage(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("lineage not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(lineage) > req.Limit {
		lineage = lineage[:req.Limit]
	}
	out := make([]plan.LineageRecord, len(lineage))
	copy(out, lineage)
	return out, nil
}

// TopPlans returns the ranked final plans of a run.
func (c *Client) TopPlans(ctx context.Context, req TopPlansRequest) ([]plan.RankedPlan, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "top plans")
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureEngine(ctx); err != nil {
		return nil, err
	}

	top, ok, err := c.store.GetTopPlans(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("top plans not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(top) > req.Limit {
		top = top[:req.Limit]
	}
	out := make([]plan.RankedPlan, len(top))
	copy(out, top)
	return out, nil
}

// Export copies a run's artifact directory into the exports directory
// or an explicit output directory.
func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// TypeSummary returns the best-fitness summary recorded for a plan type.
func (c *Client) TypeSummary(ctx context.Context, planType string) (plan.PlanTypeSummary, error) {
	if planType == "" {
		return plan.PlanTypeSummary{}, errors.New("plan type is required")
	}
	eng, err := c.ensureEngine(ctx)
	if err != nil {
		return plan.PlanTypeSummary{}, err
	}

	summary, ok, err := eng.TypeSummary(ctx, plan.NormalizeType(planType))
	if err != nil {
		return plan.PlanTypeSummary{}, err
	}
	if !ok {
		return plan.PlanTypeSummary{}, fmt.Errorf("plan type summary not found: %s", planType)
	}
	return summary, nil
}

// resolveRunID applies the shared run id / latest contract of the run
// readers: exactly one of the two must identify a run.
func (c *Client) resolveRunID(runID string, latest bool, what string) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if latest {
		entries, err := stats.ListRunIndex(c.runsDir)
		if err != nil {
			return "", err
		}
		if len(entries) == 0 {
			return "", errors.New("no runs available")
		}
		return entries[0].RunID, nil
	}
	if runID == "" {
		return "", fmt.Errorf("%s requires run id or latest", what)
	}
	return runID, nil
}

func (c *Client) ensureEngine(ctx context.Context) (*platform.Engine, error) {
	if c.engine != nil {
		return c.engine, nil
	}
	eng := platform.NewEngine(platform.Config{Store: c.store, Logger: c.log})
	if err := eng.Init(ctx); err != nil {
		return nil, err
	}
	c.engine = eng
	return c.engine, nil
}

func selectorFromName(name string) (genetic.Selector, error) {
	switch name {
	case "tournament":
		return genetic.TournamentSelector{}, nil
	case "elite":
		return genetic.EliteSelector{}, nil
	default:
		return nil, fmt.Errorf("unsupported selection strategy: %s", name)
	}
}
