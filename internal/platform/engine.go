// Package platform hosts the optimization engine: the lifecycle layer that
// wires the genetic optimizer, the neural scorer, the RL action selector,
// and the store together, plus the restart supervisor for its background
// tasks.
package platform

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"metis/internal/fitness"
	"metis/internal/genetic"
	"metis/internal/neural"
	"metis/internal/plan"
	"metis/internal/platform/logger"
	"metis/internal/refine"
	"metis/internal/rl"
	"metis/internal/storage"
)

// StopReason labels why the engine stopped.
type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

func isValidStopReason(reason StopReason) bool {
	switch reason {
	case StopReasonNormal, StopReasonShutdown:
		return true
	default:
		return false
	}
}

// qtableSnapshotID keys the engine's single persisted Q-table. State keys
// already discriminate plan type, so one table serves every type.
const qtableSnapshotID = "main"

const qtableFlusherTask = "qtable-flusher"

const (
	defaultFlushInterval  = 5 * time.Second
	defaultTopCount       = 5
	defaultRefineSteps    = 8
	defaultRefineStepSize = 0.25
)

// Config carries the engine dependencies. Store is required; a nil Logger
// falls back to a no-op logger.
type Config struct {
	Store  storage.Store
	Logger *logger.Logger
	// FlushInterval is how often the background task checkpoints a dirty
	// Q-table. Zero selects the default.
	FlushInterval time.Duration
	Supervisor    SupervisorPolicy
}

// Engine coordinates optimization runs and the learned Q-table on top of a
// store. All methods are safe for concurrent use.
type Engine struct {
	cfg Config
	log *logger.Logger

	mu             sync.RWMutex
	started        bool
	lastStopReason StopReason
	sup            *Supervisor

	selectorMu  sync.Mutex
	selector    *rl.Selector
	qtableDirty bool

	scorerMu sync.Mutex
	scorer   *neural.Scorer
}

func NewEngine(cfg Config) *Engine {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{cfg: cfg, log: log}
}

// Init initializes the store and starts the Q-table checkpoint task under
// the supervisor. Calling Init on a started engine is a no-op.
func (e *Engine) Init(ctx context.Context) error {
	if e.cfg.Store == nil {
		return errors.New("store is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	if err := e.cfg.Store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	sup := NewSupervisorWithHooks(e.cfg.Supervisor, SupervisorHooks{
		OnTaskRestart: func(name string, err error, restarts int) {
			e.log.Warn("background task restarted", "task", name, "restarts", restarts, "error", errString(err))
		},
		OnTaskPermanentFailure: func(name string, err error, restarts int) {
			e.log.Error("background task gave up", "task", name, "restarts", restarts, "error", errString(err))
		},
	})
	spec := SupervisorChildSpec{Name: qtableFlusherTask, Restart: SupervisorRestartPermanent}
	if err := sup.StartSpec(spec, e.flushLoop); err != nil {
		return fmt.Errorf("start %s: %w", qtableFlusherTask, err)
	}

	e.sup = sup
	e.started = true
	e.log.Info("engine started", "flush_interval", e.cfg.FlushInterval.String())
	return nil
}

// Started reports whether Init completed without a later stop.
func (e *Engine) Started() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started
}

// LastStopReason returns the reason recorded by the most recent stop.
func (e *Engine) LastStopReason() StopReason {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastStopReason
}

// BackgroundTasks lists the names of running supervised tasks.
func (e *Engine) BackgroundTasks() []string {
	e.mu.RLock()
	sup := e.sup
	e.mu.RUnlock()
	if sup == nil {
		return nil
	}
	return sup.Tasks()
}

// Stop stops the engine with StopReasonNormal.
func (e *Engine) Stop() {
	_ = e.StopWithReason(StopReasonNormal)
}

// Shutdown stops the engine with StopReasonShutdown.
func (e *Engine) Shutdown() {
	_ = e.StopWithReason(StopReasonShutdown)
}

// StopWithReason stops the background tasks, checkpoints the Q-table one
// final time, and marks the engine stopped. The store stays open; the owner
// of the store closes it.
func (e *Engine) StopWithReason(reason StopReason) error {
	if !isValidStopReason(reason) {
		return fmt.Errorf("invalid stop reason: %s", reason)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	if e.sup != nil {
		e.sup.StopAll()
		e.sup = nil
	}
	if err := e.FlushQTable(context.Background()); err != nil {
		e.log.Warn("final q-table checkpoint failed", "error", err.Error())
	}
	e.started = false
	e.lastStopReason = reason
	e.log.Info("engine stopped", "reason", string(reason))
	return nil
}

// Reset stops the engine, wipes the store, drops the in-memory Q-table, and
// re-initializes.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.StopWithReason(StopReasonShutdown); err != nil {
		return err
	}
	resetter, ok := e.cfg.Store.(storage.Resetter)
	if !ok {
		return errors.New("store does not support reset")
	}
	if err := resetter.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}

	e.selectorMu.Lock()
	e.selector = nil
	e.qtableDirty = false
	e.selectorMu.Unlock()

	return e.Init(ctx)
}

func (e *Engine) flushLoop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := e.FlushQTable(ctx); err != nil {
				return err
			}
		}
	}
}

// FlushQTable persists the in-memory Q-table if it changed since the last
// checkpoint.
func (e *Engine) FlushQTable(ctx context.Context) error {
	e.selectorMu.Lock()
	defer e.selectorMu.Unlock()
	if e.selector == nil || !e.qtableDirty {
		return nil
	}
	snapshot := e.selector.Snapshot(qtableSnapshotID)
	snapshot.SchemaVersion = storage.CurrentSchemaVersion
	snapshot.CodecVersion = storage.CurrentCodecVersion
	if err := e.cfg.Store.SaveQTable(ctx, snapshot); err != nil {
		return fmt.Errorf("checkpoint q-table: %w", err)
	}
	e.qtableDirty = false
	e.log.Debug("q-table checkpointed", "states", len(snapshot.States))
	return nil
}

// ensureSelectorLocked lazily builds the action selector, restoring the
// persisted Q-table on first use. Callers hold selectorMu.
func (e *Engine) ensureSelectorLocked(ctx context.Context) (*rl.Selector, error) {
	if e.selector != nil {
		return e.selector, nil
	}
	selector, err := rl.NewSelector(rl.Config{})
	if err != nil {
		return nil, err
	}
	snapshot, ok, err := e.cfg.Store.GetQTable(ctx, qtableSnapshotID)
	if err != nil {
		return nil, fmt.Errorf("load q-table: %w", err)
	}
	if ok {
		if err := selector.Restore(snapshot); err != nil {
			return nil, err
		}
		e.log.Debug("q-table restored", "states", len(snapshot.States))
	}
	e.selector = selector
	return selector, nil
}

// RecordOutcome appends a (plan, action, reward) observation to the store
// and folds it into the live Q-table. The returned record carries the
// generated ID and timestamp.
func (e *Engine) RecordOutcome(ctx context.Context, p plan.Plan, action string, reward float64) (plan.OutcomeRecord, error) {
	if !e.Started() {
		return plan.OutcomeRecord{}, errors.New("engine is not initialized")
	}
	if err := plan.Validate(p); err != nil {
		return plan.OutcomeRecord{}, fmt.Errorf("validate plan: %w", err)
	}
	if !isKnownAction(action) {
		return plan.OutcomeRecord{}, fmt.Errorf("unknown action: %s", action)
	}
	if reward < 0 || reward > 1 {
		return plan.OutcomeRecord{}, errors.New("reward must be in [0, 1]")
	}

	record := plan.OutcomeRecord{
		VersionedRecord: plan.VersionedRecord{
			SchemaVersion: storage.CurrentSchemaVersion,
			CodecVersion:  storage.CurrentCodecVersion,
		},
		ID:            uuid.NewString(),
		StateKey:      rl.StateKey(p),
		Action:        action,
		Reward:        reward,
		RecordedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}

	e.selectorMu.Lock()
	defer e.selectorMu.Unlock()
	selector, err := e.ensureSelectorLocked(ctx)
	if err != nil {
		return plan.OutcomeRecord{}, err
	}
	if err := e.cfg.Store.AppendOutcome(ctx, record); err != nil {
		return plan.OutcomeRecord{}, fmt.Errorf("append outcome: %w", err)
	}
	if err := selector.Update(record); err != nil {
		return plan.OutcomeRecord{}, err
	}
	e.qtableDirty = true
	e.log.Info("outcome recorded", "state", record.StateKey, "action", action, "reward", reward)
	return record, nil
}

// RecommendActions replays the stored outcome history for the plan's state
// into the Q-table and returns the actions whose learned value clears the
// selector threshold.
func (e *Engine) RecommendActions(ctx context.Context, p plan.Plan) ([]rl.Recommendation, error) {
	if !e.Started() {
		return nil, errors.New("engine is not initialized")
	}
	if err := plan.Validate(p); err != nil {
		return nil, fmt.Errorf("validate plan: %w", err)
	}

	e.selectorMu.Lock()
	defer e.selectorMu.Unlock()
	selector, err := e.ensureSelectorLocked(ctx)
	if err != nil {
		return nil, err
	}
	records, ok, err := e.cfg.Store.GetOutcomes(ctx, rl.StateKey(p))
	if err != nil {
		return nil, fmt.Errorf("load outcomes: %w", err)
	}
	if !ok {
		records = nil
	}
	recommendations, err := selector.SelectActions(p, records)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		e.qtableDirty = true
	}
	return recommendations, nil
}

// ScorePlan runs the neural scorer against the plan and request. The engine
// keeps one lazily constructed scorer with default settings; callers needing
// a trained scorer use the neural package directly.
func (e *Engine) ScorePlan(p plan.Plan, req plan.GenerationRequest) (neural.ScoreResult, error) {
	if !e.Started() {
		return neural.ScoreResult{}, errors.New("engine is not initialized")
	}
	scorer, err := e.ensureScorer()
	if err != nil {
		return neural.ScoreResult{}, err
	}
	return scorer.Score(p, req)
}

func (e *Engine) ensureScorer() (*neural.Scorer, error) {
	e.scorerMu.Lock()
	defer e.scorerMu.Unlock()
	if e.scorer != nil {
		return e.scorer, nil
	}
	scorer, err := neural.NewScorer(neural.ScorerConfig{})
	if err != nil {
		return nil, err
	}
	e.scorer = scorer
	return scorer, nil
}

// TypeSummary returns the stored best-fitness summary for a plan type.
func (e *Engine) TypeSummary(ctx context.Context, planType string) (plan.PlanTypeSummary, bool, error) {
	if !e.Started() {
		return plan.PlanTypeSummary{}, false, errors.New("engine is not initialized")
	}
	return e.cfg.Store.GetPlanTypeSummary(ctx, planType)
}

// OptimizationConfig parameterizes one engine run. Zero-value genetic knobs
// fall back to the optimizer defaults; Selector, Evaluator, and
// MutationPolicy are optional overrides.
type OptimizationConfig struct {
	// RunID keys the persisted artifacts. Empty derives
	// `<type>-<seed>-<unix>` from the base plan and current time.
	RunID   string
	Base    plan.Plan
	Request plan.GenerationRequest

	PopulationSize       int
	Generations          int
	MutationRate         float64
	CrossoverRate        float64
	ElitismRate          float64
	ConvergenceThreshold float64
	Workers              int
	Seed                 int64

	Selector       genetic.Selector
	Evaluator      fitness.Evaluator
	MutationPolicy []genetic.TriggeredMutation

	// ScorePlans pre-scores the base plan so its success prediction feeds
	// the fitness function, and attaches the winner's score to the result.
	ScorePlans bool

	// RefineAttempts > 0 hill-climbs the winner after the genetic run.
	// RefineSteps and RefineStepSize default when zero.
	RefineAttempts int
	RefineSteps    int
	RefineStepSize float64

	// RecommendActions attaches learned action recommendations for the
	// winning plan.
	RecommendActions bool

	// TopCount bounds the persisted ranked plans. Zero selects the default 5.
	TopCount int
}

// OptimizationResult is the outcome of one engine run. Score and
// Recommendations are set only when requested.
type OptimizationResult struct {
	RunID            string
	Best             plan.Plan
	BestFitness      float64
	Refined          bool
	Converged        bool
	BestByGeneration []float64
	Diagnostics      []plan.GenerationDiagnostics
	Lineage          []plan.LineageRecord
	TopPlans         []plan.RankedPlan
	Score            *neural.ScoreResult
	Recommendations  []rl.Recommendation
}

// RunID builds the canonical `<type>-<seed>-<unix>` run identifier.
func RunID(planType string, seed int64, now time.Time) string {
	return fmt.Sprintf("%s-%d-%d", planType, seed, now.Unix())
}

// RunOptimization executes one full optimization: genetic search from the
// base plan, optional neural pre-scoring, optional hill-climb refinement of
// the winner, optional action recommendations, and persistence of the run
// records under the run ID.
func (e *Engine) RunOptimization(ctx context.Context, cfg OptimizationConfig) (OptimizationResult, error) {
	if !e.Started() {
		return OptimizationResult{}, errors.New("engine is not initialized")
	}
	if err := plan.Validate(cfg.Base); err != nil {
		return OptimizationResult{}, fmt.Errorf("validate base plan: %w", err)
	}

	base := cfg.Base.Clone()
	runID := cfg.RunID
	if runID == "" {
		runID = RunID(base.Type, cfg.Seed, time.Now())
	}
	log := e.log.With("run_id", runID)

	evaluator := cfg.Evaluator
	if evaluator == nil {
		weighted, err := fitness.NewWeightedEvaluator(fitness.DefaultWeights())
		if err != nil {
			return OptimizationResult{}, err
		}
		evaluator = weighted
	}

	if cfg.ScorePlans {
		preScore, err := e.ScorePlan(base, cfg.Request)
		if err != nil {
			return OptimizationResult{}, fmt.Errorf("score base plan: %w", err)
		}
		base.SuccessPrediction = preScore.Prediction
		log.Debug("base plan scored", "prediction", preScore.Prediction)
	}

	optimizer, err := genetic.NewOptimizer(genetic.Config{
		Evaluator:            evaluator,
		Selector:             cfg.Selector,
		MutationPolicy:       cfg.MutationPolicy,
		PopulationSize:       cfg.PopulationSize,
		Generations:          cfg.Generations,
		MutationRate:         cfg.MutationRate,
		CrossoverRate:        cfg.CrossoverRate,
		ElitismRate:          cfg.ElitismRate,
		ConvergenceThreshold: cfg.ConvergenceThreshold,
		Workers:              cfg.Workers,
		Seed:                 cfg.Seed,
	})
	if err != nil {
		return OptimizationResult{}, err
	}

	started := time.Now()
	result, err := optimizer.Optimize(ctx, base, cfg.Request)
	if err != nil {
		return OptimizationResult{}, fmt.Errorf("optimize: %w", err)
	}

	best := result.Best
	bestFitness := result.BestFitness
	refined := false
	if cfg.RefineAttempts > 0 {
		improved, improvedFitness, err := e.refineWinner(ctx, cfg, best, evaluator)
		if err != nil {
			return OptimizationResult{}, err
		}
		if improvedFitness > bestFitness {
			best = improved
			bestFitness = improvedFitness
			refined = true
			log.Debug("winner refined", "fitness", bestFitness)
		}
	}

	topCount := cfg.TopCount
	if topCount <= 0 {
		topCount = defaultTopCount
	}
	top := topPlansForRun(best, bestFitness, result.FinalPopulation, topCount)
	lineage := stampLineage(result.Lineage)

	if err := e.cfg.Store.SaveFitnessHistory(ctx, runID, result.BestByGeneration); err != nil {
		return OptimizationResult{}, fmt.Errorf("persist fitness history: %w", err)
	}
	if err := e.cfg.Store.SaveDiagnostics(ctx, runID, result.Diagnostics); err != nil {
		return OptimizationResult{}, fmt.Errorf("persist diagnostics: %w", err)
	}
	if err := e.cfg.Store.SaveLineage(ctx, runID, lineage); err != nil {
		return OptimizationResult{}, fmt.Errorf("persist lineage: %w", err)
	}
	if err := e.cfg.Store.SaveTopPlans(ctx, runID, top); err != nil {
		return OptimizationResult{}, fmt.Errorf("persist top plans: %w", err)
	}
	if err := e.updateTypeSummary(ctx, base.Type, bestFitness); err != nil {
		return OptimizationResult{}, err
	}

	out := OptimizationResult{
		RunID:            runID,
		Best:             best,
		BestFitness:      bestFitness,
		Refined:          refined,
		Converged:        result.Converged,
		BestByGeneration: result.BestByGeneration,
		Diagnostics:      result.Diagnostics,
		Lineage:          lineage,
		TopPlans:         top,
	}
	if cfg.ScorePlans {
		score, err := e.ScorePlan(best, cfg.Request)
		if err != nil {
			return OptimizationResult{}, fmt.Errorf("score winning plan: %w", err)
		}
		out.Score = &score
	}
	if cfg.RecommendActions {
		recommendations, err := e.RecommendActions(ctx, best)
		if err != nil {
			return OptimizationResult{}, err
		}
		out.Recommendations = recommendations
	}

	log.Info("optimization complete",
		"plan_type", base.Type,
		"generations", len(result.BestByGeneration),
		"best_fitness", bestFitness,
		"converged", result.Converged,
		"refined", refined,
		"elapsed", time.Since(started).String(),
	)
	return out, nil
}

func (e *Engine) refineWinner(ctx context.Context, cfg OptimizationConfig, best plan.Plan, evaluator fitness.Evaluator) (plan.Plan, float64, error) {
	steps := cfg.RefineSteps
	if steps <= 0 {
		steps = defaultRefineSteps
	}
	stepSize := cfg.RefineStepSize
	if stepSize <= 0 {
		stepSize = defaultRefineStepSize
	}
	refiner := &refine.Refiner{
		Rand:     rand.New(rand.NewSource(cfg.Seed + 2)),
		Steps:    steps,
		StepSize: stepSize,
	}
	improved, err := refiner.Refine(ctx, best, cfg.RefineAttempts, func(ctx context.Context, candidate plan.Plan) (float64, error) {
		return evaluator.Evaluate(candidate, cfg.Request)
	})
	if err != nil {
		return plan.Plan{}, 0, fmt.Errorf("refine winner: %w", err)
	}
	improvedFitness, err := evaluator.Evaluate(improved, cfg.Request)
	if err != nil {
		return plan.Plan{}, 0, err
	}
	return improved, improvedFitness, nil
}

// topPlansForRun ranks the final population, substituting the (possibly
// refined) winner for its population entry so the persisted ranking matches
// the returned best.
func topPlansForRun(best plan.Plan, bestFitness float64, population []genetic.ScoredPlan, limit int) []plan.RankedPlan {
	entries := make([]genetic.ScoredPlan, 0, len(population)+1)
	replaced := false
	for _, item := range population {
		if item.Plan.ID == best.ID {
			entries = append(entries, genetic.ScoredPlan{Plan: best, Fitness: bestFitness})
			replaced = true
			continue
		}
		entries = append(entries, item)
	}
	if !replaced {
		entries = append(entries, genetic.ScoredPlan{Plan: best, Fitness: bestFitness})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Fitness > entries[j].Fitness
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	top := make([]plan.RankedPlan, 0, len(entries))
	for i, item := range entries {
		top = append(top, plan.RankedPlan{Rank: i + 1, Fitness: item.Fitness, Plan: item.Plan.Clone()})
	}
	return top
}

func stampLineage(records []plan.LineageRecord) []plan.LineageRecord {
	stamped := make([]plan.LineageRecord, len(records))
	for i, record := range records {
		record.SchemaVersion = storage.CurrentSchemaVersion
		record.CodecVersion = storage.CurrentCodecVersion
		stamped[i] = record
	}
	return stamped
}

func (e *Engine) updateTypeSummary(ctx context.Context, planType string, bestFitness float64) error {
	summary, ok, err := e.cfg.Store.GetPlanTypeSummary(ctx, planType)
	if err != nil {
		return fmt.Errorf("load plan type summary: %w", err)
	}
	if !ok {
		summary = plan.PlanTypeSummary{
			Type:        planType,
			Description: fmt.Sprintf("best observed fitness for plan type %s", planType),
			BestFitness: bestFitness,
		}
	} else if bestFitness > summary.BestFitness {
		summary.BestFitness = bestFitness
	}
	summary.SchemaVersion = storage.CurrentSchemaVersion
	summary.CodecVersion = storage.CurrentCodecVersion
	if err := e.cfg.Store.SavePlanTypeSummary(ctx, summary); err != nil {
		return fmt.Errorf("persist plan type summary: %w", err)
	}
	return nil
}

func isKnownAction(action string) bool {
	for _, known := range rl.Actions() {
		if known == action {
			return true
		}
	}
	return false
}
