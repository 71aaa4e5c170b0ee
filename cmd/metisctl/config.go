package main

import (
	"flag"
	"fmt"
	"strings"

	"metis/internal/plan"
	"metis/internal/plandoc"
	"metis/internal/storage"
	metisapi "metis/pkg/metis"
)

// storeFlags select the persistence backend and logging for commands that
// open a client.
type storeFlags struct {
	kind        *string
	dbPath      *string
	redisURL    *string
	postgresURL *string
	logMode     *string
}

func addStoreFlags(fs *flag.FlagSet) *storeFlags {
	return &storeFlags{
		kind:        fs.String("store", storage.DefaultStoreKind, "store backend: memory|sqlite|redis|postgres"),
		dbPath:      fs.String("db-path", "metis.db", "sqlite database path"),
		redisURL:    fs.String("redis-url", "", "redis connection url for the redis store"),
		postgresURL: fs.String("postgres-url", "", "postgres connection string for the postgres store"),
		logMode:     fs.String("log", "", "log mode: dev|prod (empty disables logging)"),
	}
}

func (sf *storeFlags) newClient() (*metisapi.Client, error) {
	return metisapi.New(metisapi.Options{
		StoreKind:   *sf.kind,
		DBPath:      *sf.dbPath,
		RedisURL:    *sf.redisURL,
		PostgresURL: *sf.postgresURL,
		RunsDir:     runsDir,
		ExportsDir:  exportsDir,
		LogMode:     *sf.logMode,
	})
}

// planFlags select the base plan: a plan document path, or the inline
// fields from which a scaffold plan is built.
type planFlags struct {
	path       *string
	planType   *string
	duration   *int
	difficulty *string
}

func addPlanFlags(fs *flag.FlagSet) *planFlags {
	return &planFlags{
		path:       fs.String("plan", "", "plan document path (JSON or YAML)"),
		planType:   fs.String("type", "general", "plan type for the inline plan"),
		duration:   fs.Int("duration", 60, "estimated duration in minutes for the inline plan"),
		difficulty: fs.String("difficulty", "intermediate", "difficulty for the inline plan"),
	}
}

// resolve prefers a -plan document, then a plan embedded in the run
// document, and scaffolds one from the inline flags last.
func (pf *planFlags) resolve(embedded *plan.Plan) (plan.Plan, error) {
	if *pf.path != "" {
		return plandoc.LoadPlan(*pf.path)
	}
	if embedded != nil {
		return embedded.Clone(), nil
	}
	return inlinePlan(*pf.planType, *pf.duration, *pf.difficulty)
}

// inlinePlan scaffolds a warmup/work/review phase structure for the
// requested duration, splitting long work stretches into blocks that stay
// inside the phase bounds.
func inlinePlan(typeName string, duration int, difficultyName string) (plan.Plan, error) {
	if duration < plan.MinPlanDuration || duration > plan.MaxPlanDuration {
		return plan.Plan{}, fmt.Errorf("duration must be in [%d, %d] minutes", plan.MinPlanDuration, plan.MaxPlanDuration)
	}
	difficulty, err := plan.ParseDifficulty(difficultyName)
	if err != nil {
		return plan.Plan{}, err
	}

	warmup := clampInt(duration*15/100, plan.MinPhaseDuration, 15)
	review := clampInt(duration*10/100, plan.MinPhaseDuration, 15)
	phases := []plan.Phase{
		{Name: "warmup", Duration: warmup, Activities: []string{"setup", "review goals"}},
	}
	for i, block := range splitWork(duration - warmup - review) {
		name := "deep work"
		if i > 0 {
			name = fmt.Sprintf("deep work %d", i+1)
		}
		phases = append(phases, plan.Phase{Name: name, Duration: block, Activities: []string{"primary task"}})
	}
	phases = append(phases, plan.Phase{Name: "review", Duration: review, Activities: []string{"wrap-up", "notes"}})

	return plan.Plan{
		Type:              plan.NormalizeType(typeName),
		EstimatedDuration: duration,
		Difficulty:        difficulty,
		Structure:         plan.PlanStructure{Phases: phases},
	}, nil
}

// splitWork divides a work stretch into near-equal blocks of at most 50
// minutes each.
func splitWork(total int) []int {
	blocks := (total + 49) / 50
	if blocks < 1 {
		blocks = 1
	}
	out := make([]int, blocks)
	base := total / blocks
	extra := total % blocks
	for i := range out {
		out[i] = base
		if i < extra {
			out[i]++
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// requestFlags select the generation request: a request document path, or
// the inline context fields.
type requestFlags struct {
	path                *string
	availableTime       *int
	energy              *float64
	focus               *float64
	tools               *string
	targetDuration      *int
	preferredDuration   *int
	preferredDifficulty *string
}

func addRequestFlags(fs *flag.FlagSet) *requestFlags {
	return &requestFlags{
		path:                fs.String("request", "", "request document path (JSON or YAML)"),
		availableTime:       fs.Int("available-time", 0, "available time in minutes (0 uses the plan duration)"),
		energy:              fs.Float64("energy", 0.7, "energy level in [0, 1]"),
		focus:               fs.Float64("focus", 0.7, "focus level in [0, 1]"),
		tools:               fs.String("tools", "", "comma-separated available tools"),
		targetDuration:      fs.Int("target-duration", 0, "target duration override in minutes (0 disables)"),
		preferredDuration:   fs.Int("preferred-duration", 0, "preferred duration in minutes (0 unset)"),
		preferredDifficulty: fs.String("preferred-difficulty", "", "preferred difficulty (empty unset)"),
	}
}

// resolve prefers a -request document, then a request embedded in the run
// document, and builds one from the inline flags last.
func (rf *requestFlags) resolve(embedded *plan.GenerationRequest, fallbackDuration int) (plan.GenerationRequest, error) {
	if *rf.path != "" {
		return plandoc.LoadRequest(*rf.path)
	}
	if embedded != nil {
		return plan.CloneRequest(*embedded), nil
	}

	req := plan.GenerationRequest{
		Context: plan.RequestContext{
			AvailableTime: *rf.availableTime,
			EnergyLevel:   *rf.energy,
			FocusLevel:    *rf.focus,
			Tools:         splitList(*rf.tools),
		},
		TargetDuration: *rf.targetDuration,
	}
	if req.Context.AvailableTime == 0 {
		req.Context.AvailableTime = fallbackDuration
	}
	if *rf.preferredDuration > 0 {
		req.Preferences.PreferredDuration = *rf.preferredDuration
	}
	if *rf.preferredDifficulty != "" {
		difficulty, err := plan.ParseDifficulty(*rf.preferredDifficulty)
		if err != nil {
			return plan.GenerationRequest{}, err
		}
		req.Preferences.Difficulty = difficulty
	}
	return req, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type gaFlags struct {
	runID                *string
	population           *int
	generations          *int
	mutationRate         *float64
	crossoverRate        *float64
	elitismRate          *float64
	convergenceThreshold *float64
	selection            *string
	workers              *int
	seed                 *int64
	scorePlans           *bool
	recommendActions     *bool
	refineAttempts       *int
	refineSteps          *int
	refineStepSize       *float64
	topCount             *int
}

func addGAFlags(fs *flag.FlagSet) *gaFlags {
	return &gaFlags{
		runID:                fs.String("run-id", "", "explicit run id (optional)"),
		population:           fs.Int("pop", 20, "population size"),
		generations:          fs.Int("gens", 30, "generation count"),
		mutationRate:         fs.Float64("mutation-rate", 0.3, "mutation probability in [0, 1]"),
		crossoverRate:        fs.Float64("crossover-rate", 0.7, "crossover probability in [0, 1]"),
		elitismRate:          fs.Float64("elitism-rate", 0.1, "elite fraction in [0, 1]"),
		convergenceThreshold: fs.Float64("convergence-threshold", 0, "early-stop spread threshold (0 uses 0.01)"),
		selection:            fs.String("selection", "tournament", "parent selection strategy: tournament|elite"),
		workers:              fs.Int("workers", 4, "evaluation worker count"),
		seed:                 fs.Int64("seed", 1, "rng seed"),
		scorePlans:           fs.Bool("score", false, "score the base and winning plans with the neural scorer"),
		recommendActions:     fs.Bool("recommend", false, "attach learned action recommendations to the result"),
		refineAttempts:       fs.Int("refine-attempts", 0, "hill-climb refinement attempts on the winner (0 disables)"),
		refineSteps:          fs.Int("refine-steps", 0, "refinement steps per attempt (0 uses 8)"),
		refineStepSize:       fs.Float64("refine-step-size", 0, "refinement step magnitude (0 uses 0.25)"),
		topCount:             fs.Int("top-count", 0, "ranked plans to keep per run (0 uses 5)"),
	}
}

// runFlags bundle everything an optimization run can be configured with:
// an optional run document, an optional profile, and the plan, request,
// and genetic-parameter flags.
type runFlags struct {
	configPath *string
	profile    *string
	plan       *planFlags
	request    *requestFlags
	ga         *gaFlags
}

func addRunFlags(fs *flag.FlagSet) *runFlags {
	return &runFlags{
		configPath: fs.String("config", "", "run document path (JSON or YAML)"),
		profile:    fs.String("profile", "", "profile preset: quick|balanced|thorough"),
		plan:       addPlanFlags(fs),
		request:    addRequestFlags(fs),
		ga:         addGAFlags(fs),
	}
}

// buildOptimizeRequest assembles the facade request. Without -config or
// -profile the flags stand alone; with either, profile defaults seed a run
// document, the config document merges over them, and explicitly set flags
// override last.
func (rf *runFlags) buildOptimizeRequest(set map[string]bool) (metisapi.OptimizeRequest, error) {
	if *rf.configPath == "" && *rf.profile == "" {
		return rf.requestFromFlags()
	}

	doc, err := rf.resolveDocument()
	if err != nil {
		return metisapi.OptimizeRequest{}, err
	}
	rf.overrideFromFlags(&doc, set)
	return rf.requestFromDocument(doc)
}

func (rf *runFlags) requestFromFlags() (metisapi.OptimizeRequest, error) {
	return rf.requestFromDocument(plandoc.RunDocument{
		RunID:                *rf.ga.runID,
		PopulationSize:       *rf.ga.population,
		Generations:          *rf.ga.generations,
		MutationRate:         *rf.ga.mutationRate,
		CrossoverRate:        *rf.ga.crossoverRate,
		ElitismRate:          *rf.ga.elitismRate,
		ConvergenceThreshold: *rf.ga.convergenceThreshold,
		Selection:            *rf.ga.selection,
		Workers:              *rf.ga.workers,
		Seed:                 *rf.ga.seed,
		ScorePlans:           *rf.ga.scorePlans,
		RecommendActions:     *rf.ga.recommendActions,
		RefineAttempts:       *rf.ga.refineAttempts,
		RefineSteps:          *rf.ga.refineSteps,
		RefineStepSize:       *rf.ga.refineStepSize,
		TopCount:             *rf.ga.topCount,
	})
}

// resolveDocument seeds the run document from the profile (the -profile
// flag wins over a profile named inside the config document) and then
// merges the config document over the profile defaults.
func (rf *runFlags) resolveDocument() (plandoc.RunDocument, error) {
	name := *rf.profile
	if name == "" && *rf.configPath != "" {
		var probe plandoc.RunDocument
		if err := plandoc.LoadRunDocument(*rf.configPath, &probe); err != nil {
			return plandoc.RunDocument{}, err
		}
		name = probe.Profile
	}

	var doc plandoc.RunDocument
	if name != "" {
		seeded, err := profileDocument(name)
		if err != nil {
			return plandoc.RunDocument{}, err
		}
		doc = seeded
	}
	if *rf.configPath != "" {
		if err := plandoc.LoadRunDocument(*rf.configPath, &doc); err != nil {
			return plandoc.RunDocument{}, err
		}
	}
	return doc, nil
}

func (rf *runFlags) overrideFromFlags(doc *plandoc.RunDocument, set map[string]bool) {
	if set["run-id"] {
		doc.RunID = *rf.ga.runID
	}
	if set["pop"] {
		doc.PopulationSize = *rf.ga.population
	}
	if set["gens"] {
		doc.Generations = *rf.ga.generations
	}
	if set["mutation-rate"] {
		doc.MutationRate = *rf.ga.mutationRate
	}
	if set["crossover-rate"] {
		doc.CrossoverRate = *rf.ga.crossoverRate
	}
	if set["elitism-rate"] {
		doc.ElitismRate = *rf.ga.elitismRate
	}
	if set["convergence-threshold"] {
		doc.ConvergenceThreshold = *rf.ga.convergenceThreshold
	}
	if set["selection"] {
		doc.Selection = *rf.ga.selection
	}
	if set["workers"] {
		doc.Workers = *rf.ga.workers
	}
	if set["seed"] {
		doc.Seed = *rf.ga.seed
	}
	if set["score"] {
		doc.ScorePlans = *rf.ga.scorePlans
	}
	if set["recommend"] {
		doc.RecommendActions = *rf.ga.recommendActions
	}
	if set["refine-attempts"] {
		doc.RefineAttempts = *rf.ga.refineAttempts
	}
	if set["refine-steps"] {
		doc.RefineSteps = *rf.ga.refineSteps
	}
	if set["refine-step-size"] {
		doc.RefineStepSize = *rf.ga.refineStepSize
	}
	if set["top-count"] {
		doc.TopCount = *rf.ga.topCount
	}
}

func (rf *runFlags) requestFromDocument(doc plandoc.RunDocument) (metisapi.OptimizeRequest, error) {
	base, err := rf.plan.resolve(doc.Plan)
	if err != nil {
		return metisapi.OptimizeRequest{}, err
	}
	request, err := rf.request.resolve(doc.Request, base.EstimatedDuration)
	if err != nil {
		return metisapi.OptimizeRequest{}, err
	}

	return metisapi.OptimizeRequest{
		RunID:                doc.RunID,
		Plan:                 base,
		Request:              request,
		PopulationSize:       doc.PopulationSize,
		Generations:          doc.Generations,
		MutationRate:         doc.MutationRate,
		CrossoverRate:        doc.CrossoverRate,
		ElitismRate:          doc.ElitismRate,
		ConvergenceThreshold: doc.ConvergenceThreshold,
		Selection:            doc.Selection,
		Workers:              doc.Workers,
		Seed:                 doc.Seed,
		ScorePlans:           doc.ScorePlans,
		RecommendActions:     doc.RecommendActions,
		RefineAttempts:       doc.RefineAttempts,
		RefineSteps:          doc.RefineSteps,
		RefineStepSize:       doc.RefineStepSize,
		TopCount:             doc.TopCount,
	}, nil
}

func setFlagNames(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}
