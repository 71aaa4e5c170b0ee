// Package stats writes and reads the per-run artifact directories produced
// by optimization runs, the shared run index, and benchmark experiment
// reports.
package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"metis/internal/plan"
)

const runIndexFile = "run_index.json"

// RunConfig is the persisted mirror of an optimization run's inputs: the
// request context, the genetic knobs, and the optional scorer, recommender,
// and refiner settings.
type RunConfig struct {
	RunID                string   `json:"run_id"`
	PlanID               string   `json:"plan_id,omitempty"`
	PlanType             string   `json:"plan_type"`
	Profile              string   `json:"profile,omitempty"`
	TargetDuration       int      `json:"target_duration"`
	AvailableTime        int      `json:"available_time"`
	EnergyLevel          float64  `json:"energy_level"`
	FocusLevel           float64  `json:"focus_level"`
	Tools                []string `json:"tools,omitempty"`
	PreferredDuration    int      `json:"preferred_duration,omitempty"`
	PreferredDifficulty  string   `json:"preferred_difficulty,omitempty"`
	PopulationSize       int      `json:"population_size"`
	Generations          int      `json:"generations"`
	MutationRate         float64  `json:"mutation_rate"`
	CrossoverRate        float64  `json:"crossover_rate"`
	ElitismRate          float64  `json:"elitism_rate"`
	ConvergenceThreshold float64  `json:"convergence_threshold"`
	Selection            string   `json:"selection"`
	Workers              int      `json:"workers"`
	Seed                 int64    `json:"seed"`
	ScorePlans           bool     `json:"score_plans"`
	RecommendActions     bool     `json:"recommend_actions"`
	RefineAttempts       int      `json:"refine_attempts"`
	RefineSteps          int      `json:"refine_steps,omitempty"`
	RefineStepSize       float64  `json:"refine_step_size,omitempty"`
}

// FitnessHistory is the fitness_history.json payload.
type FitnessHistory struct {
	BestByGeneration []float64 `json:"best_by_generation"`
	FinalBestFitness float64   `json:"final_best_fitness"`
	Converged        bool      `json:"converged"`
}

type RunArtifacts struct {
	Config           RunConfig                     `json:"config"`
	BestByGeneration []float64                     `json:"best_by_generation"`
	Diagnostics      []plan.GenerationDiagnostics  `json:"diagnostics,omitempty"`
	FinalBestFitness float64                       `json:"final_best_fitness"`
	Converged        bool                          `json:"converged"`
	TopPlans         []plan.RankedPlan             `json:"top_plans"`
	Lineage          []plan.LineageRecord          `json:"lineage"`
}

type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	PlanType         string  `json:"plan_type"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	Seed             int64   `json:"seed"`
	Workers          int     `json:"workers"`
	Selection        string  `json:"selection"`
	Refined          bool    `json:"refined"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

// WriteRunArtifacts lays out a run directory under baseDir and returns its
// path. Every artifact file is written even when its payload is empty so
// readers can rely on the directory shape.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	history := FitnessHistory{
		BestByGeneration: artifacts.BestByGeneration,
		FinalBestFitness: artifacts.FinalBestFitness,
		Converged:        artifacts.Converged,
	}
	if err := writeJSON(filepath.Join(runDir, "fitness_history.json"), history); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "diagnostics.json"), artifacts.Diagnostics); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "top_plans.json"), artifacts.TopPlans); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "lineage.json"), artifacts.Lineage); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the run index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory into outDir and returns the
// destination path. Benchmark files are copied when present.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"config.json", "fitness_history.json", "diagnostics.json", "top_plans.json", "lineage.json"}
	for _, file := range files {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{"benchmark_summary.json", "benchmark_series.csv"} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	path := filepath.Join(baseDir, runID, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RunConfig{}, false, nil
		}
		return RunConfig{}, false, err
	}

	var cfg RunConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, false, err
	}
	return cfg, true, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "config.json"), cfg)
}

func ReadFitnessHistory(baseDir, runID string) (FitnessHistory, bool, error) {
	path := filepath.Join(baseDir, runID, "fitness_history.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FitnessHistory{}, false, nil
		}
		return FitnessHistory{}, false, err
	}

	var history FitnessHistory
	if err := json.Unmarshal(data, &history); err != nil {
		return FitnessHistory{}, false, err
	}
	return history, true, nil
}

func ReadDiagnostics(baseDir, runID string) ([]plan.GenerationDiagnostics, bool, error) {
	path := filepath.Join(baseDir, runID, "diagnostics.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var diagnostics []plan.GenerationDiagnostics
	if err := json.Unmarshal(data, &diagnostics); err != nil {
		return nil, false, err
	}
	return diagnostics, true, nil
}

func ReadTopPlans(baseDir, runID string) ([]plan.RankedPlan, bool, error) {
	path := filepath.Join(baseDir, runID, "top_plans.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var top []plan.RankedPlan
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, false, err
	}
	return top, true, nil
}

func ReadLineage(baseDir, runID string) ([]plan.LineageRecord, bool, error) {
	path := filepath.Join(baseDir, runID, "lineage.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var lineage []plan.LineageRecord
	if err := json.Unmarshal(data, &lineage); err != nil {
		return nil, false, err
	}
	return lineage, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
