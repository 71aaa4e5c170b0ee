package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"metis/internal/neural"
)

// BenchmarkSeedRun is one seeded optimization inside a benchmark experiment.
type BenchmarkSeedRun struct {
	Seed             int64   `json:"seed"`
	RunID            string  `json:"run_id"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	Converged        bool    `json:"converged"`
}

// BenchmarkSummary aggregates the final best fitness across the seeds of a
// benchmark experiment and records whether the mean improved on the base
// plan by at least the configured margin.
type BenchmarkSummary struct {
	ExperimentID     string             `json:"experiment_id"`
	PlanType         string             `json:"plan_type"`
	PopulationSize   int                `json:"population_size"`
	Generations      int                `json:"generations"`
	Runs             []BenchmarkSeedRun `json:"runs"`
	BaseFitness      float64            `json:"base_fitness"`
	BestMean         float64            `json:"best_mean"`
	BestStd          float64            `json:"best_std"`
	BestMax          float64            `json:"best_max"`
	BestMin          float64            `json:"best_min"`
	MeanByGeneration []float64          `json:"mean_by_generation,omitempty"`
	Improvement      float64            `json:"improvement"`
	MinImprovement   float64            `json:"min_improvement"`
	Passed           bool               `json:"passed"`
}

// SummarizeBenchmark builds the aggregate summary for a set of seeded runs.
// series holds each run's best-by-generation history and may be ragged when
// some seeds converge early.
func SummarizeBenchmark(experimentID, planType string, populationSize, generations int, baseFitness, minImprovement float64, runs []BenchmarkSeedRun, series [][]float64) (BenchmarkSummary, error) {
	if experimentID == "" {
		return BenchmarkSummary{}, fmt.Errorf("experiment id is required")
	}
	if len(runs) == 0 {
		return BenchmarkSummary{}, fmt.Errorf("at least one seeded run is required")
	}

	finals := make([]float64, 0, len(runs))
	for _, run := range runs {
		finals = append(finals, run.FinalBestFitness)
	}

	mean, err := neural.Avg(finals)
	if err != nil {
		return BenchmarkSummary{}, err
	}
	std, err := neural.Std(finals)
	if err != nil {
		return BenchmarkSummary{}, err
	}

	max := finals[0]
	min := finals[0]
	for _, value := range finals[1:] {
		if value > max {
			max = value
		}
		if value < min {
			min = value
		}
	}

	summary := BenchmarkSummary{
		ExperimentID:     experimentID,
		PlanType:         planType,
		PopulationSize:   populationSize,
		Generations:      generations,
		Runs:             runs,
		BaseFitness:      baseFitness,
		BestMean:         mean,
		BestStd:          std,
		BestMax:          max,
		BestMin:          min,
		MeanByGeneration: MeanSeriesByGeneration(series),
		MinImprovement:   minImprovement,
	}
	summary.Improvement = summary.BestMean - summary.BaseFitness
	summary.Passed = summary.Improvement >= summary.MinImprovement
	return summary, nil
}

// MeanSeriesByGeneration averages the per-generation best fitness across
// runs. Runs that stopped early drop out of the mean once their series ends.
func MeanSeriesByGeneration(series [][]float64) []float64 {
	current := make([][]float64, 0, len(series))
	for _, list := range series {
		if len(list) == 0 {
			continue
		}
		current = append(current, append([]float64(nil), list...))
	}

	means := make([]float64, 0, 64)
	for {
		values := make([]float64, 0, len(current))
		next := make([][]float64, 0, len(current))
		for _, list := range current {
			values = append(values, list[0])
			if len(list) > 1 {
				next = append(next, list[1:])
			}
		}
		if len(values) == 0 {
			break
		}
		mean, _ := neural.Avg(values)
		means = append(means, mean)
		current = next
	}
	if len(means) == 0 {
		return nil
	}
	return means
}

func WriteBenchmarkSummary(runDir string, summary BenchmarkSummary) error {
	return writeJSON(filepath.Join(runDir, "benchmark_summary.json"), summary)
}

func ReadBenchmarkSummary(baseDir, runID string) (BenchmarkSummary, bool, error) {
	path := filepath.Join(baseDir, runID, "benchmark_summary.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return BenchmarkSummary{}, false, nil
		}
		return BenchmarkSummary{}, false, err
	}
	var summary BenchmarkSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return BenchmarkSummary{}, false, err
	}
	return summary, true, nil
}

// WriteBenchmarkSeries writes the mean best-by-generation series as CSV so
// runs can be compared outside the tool.
func WriteBenchmarkSeries(runDir string, meanByGeneration []float64) error {
	path := filepath.Join(runDir, "benchmark_series.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "mean_best_fitness"}); err != nil {
		return err
	}
	for i, mean := range meanByGeneration {
		if err := writer.Write([]string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(mean, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadBenchmarkSeries(baseDir, runID string) ([]float64, bool, error) {
	path := filepath.Join(baseDir, runID, "benchmark_series.csv")
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 2 {
		return nil, false, fmt.Errorf("benchmark series header must have at least 2 columns")
	}

	series := make([]float64, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(record) < 2 {
			return nil, false, fmt.Errorf("benchmark series row must have at least 2 columns")
		}
		value, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, false, err
		}
		series = append(series, value)
	}
	return series, true, nil
}
