package plandoc

import (
	"fmt"
	"os"
	"strings"

	"metis/internal/plan"
)

// RunDocument is the decoded form of a run configuration document: the
// optimizer knobs plus optional embedded plan and request documents.
// Decoding applies only the keys present in the document, so callers
// can seed the struct with profile defaults first and let the document
// override them selectively.
type RunDocument struct {
	RunID                string
	Profile              string
	Plan                 *plan.Plan
	Request              *plan.GenerationRequest
	PopulationSize       int
	Generations          int
	MutationRate         float64
	CrossoverRate        float64
	ElitismRate          float64
	ConvergenceThreshold float64
	Selection            string
	Workers              int
	Seed                 int64
	ScorePlans           bool
	RecommendActions     bool
	RefineAttempts       int
	RefineSteps          int
	RefineStepSize       float64
	TopCount             int
}

// DecodeRunDocument merges a JSON or YAML run document into doc.
func DecodeRunDocument(data []byte, doc *RunDocument) error {
	raw, err := decodeLoose(data)
	if err != nil {
		return fmt.Errorf("decode run document: %w", err)
	}
	return convertRunDocument(raw, doc)
}

// LoadRunDocument reads and merges a run document from disk.
func LoadRunDocument(path string, doc *RunDocument) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return DecodeRunDocument(data, doc)
}

func convertRunDocument(m map[string]any, doc *RunDocument) error {
	if v, ok := asString(m["run_id"]); ok {
		doc.RunID = strings.TrimSpace(v)
	}
	if v, ok := asString(m["profile"]); ok {
		doc.Profile = strings.ToLower(strings.TrimSpace(v))
	}
	if pm, ok := m["plan"].(map[string]any); ok {
		p, err := convertPlan(pm)
		if err != nil {
			return fmt.Errorf("run document plan: %w", err)
		}
		doc.Plan = &p
	}
	if rm, ok := m["request"].(map[string]any); ok {
		r, err := convertRequest(rm)
		if err != nil {
			return fmt.Errorf("run document request: %w", err)
		}
		doc.Request = &r
	}
	if v, ok := asInt(m["population_size"]); ok {
		doc.PopulationSize = v
	} else if v, ok := asInt(m["population"]); ok {
		doc.PopulationSize = v
	}
	if v, ok := asInt(m["generations"]); ok {
		doc.Generations = v
	}
	if v, ok := asFloat64(m["mutation_rate"]); ok {
		doc.MutationRate = v
	}
	if v, ok := asFloat64(m["crossover_rate"]); ok {
		doc.CrossoverRate = v
	}
	if v, ok := asFloat64(m["elitism_rate"]); ok {
		doc.ElitismRate = v
	}
	if v, ok := asFloat64(m["convergence_threshold"]); ok {
		doc.ConvergenceThreshold = v
	}
	if v, ok := asString(m["selection"]); ok {
		doc.Selection = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := asInt(m["workers"]); ok {
		doc.Workers = v
	}
	if v, ok := asInt64(m["seed"]); ok {
		doc.Seed = v
	}
	if v, ok := asBool(m["score_plans"]); ok {
		doc.ScorePlans = v
	}
	if v, ok := asBool(m["recommend_actions"]); ok {
		doc.RecommendActions = v
	}
	if v, ok := asInt(m["refine_attempts"]); ok {
		doc.RefineAttempts = v
	}
	if v, ok := asInt(m["refine_steps"]); ok {
		doc.RefineSteps = v
	}
	if v, ok := asFloat64(m["refine_step_size"]); ok {
		doc.RefineStepSize = v
	}
	if v, ok := asInt(m["top_count"]); ok {
		doc.TopCount = v
	}
	return nil
}
