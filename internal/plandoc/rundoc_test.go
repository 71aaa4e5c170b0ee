package plandoc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeRunDocumentAppliesOnlyPresentKeys(t *testing.T) {
	doc := RunDocument{PopulationSize: 24, Generations: 40, ScorePlans: true, Seed: 7}
	data := []byte(`{"generations": 10, "score_plans": false, "selection": "Rank"}`)

	if err := DecodeRunDocument(data, &doc); err != nil {
		t.Fatalf("decode run document: %v", err)
	}
	if doc.PopulationSize != 24 {
		t.Fatalf("expected absent key to keep seeded value, got %d", doc.PopulationSize)
	}
	if doc.Generations != 10 {
		t.Fatalf("expected present key to override, got %d", doc.Generations)
	}
	if doc.ScorePlans {
		t.Fatal("expected explicit false to override seeded true")
	}
	if doc.Seed != 7 {
		t.Fatalf("expected seed to survive, got %d", doc.Seed)
	}
	if doc.Selection != "rank" {
		t.Fatalf("expected lowercased selection, got %q", doc.Selection)
	}
}

func TestDecodeRunDocumentNestedPlanAndRequest(t *testing.T) {
	data := []byte(`
run_id: evening-drill
profile: Thorough
plan:
  type: practice
  duration: 40
  difficulty: normal
  phases:
    - name: drill
      duration: 40
      activities: [scales]
request:
  context:
    available_time: 40
    energy: 6
    focus: 70
population_size: 16
mutation_rate: 0.2
seed: 42
refine_attempts: 3
top_count: 7
`)
	var doc RunDocument
	if err := DecodeRunDocument(data, &doc); err != nil {
		t.Fatalf("decode run document: %v", err)
	}
	if doc.RunID != "evening-drill" || doc.Profile != "thorough" {
		t.Fatalf("unexpected run identity: %q %q", doc.RunID, doc.Profile)
	}
	if doc.Plan == nil || doc.Plan.Type != "practice" || doc.Plan.EstimatedDuration != 40 {
		t.Fatalf("unexpected embedded plan: %+v", doc.Plan)
	}
	if doc.Plan.ID == "" {
		t.Fatal("expected embedded plan to receive an id")
	}
	if doc.Request == nil || doc.Request.Context.AvailableTime != 40 {
		t.Fatalf("unexpected embedded request: %+v", doc.Request)
	}
	if doc.Request.Context.EnergyLevel != 0.6 || doc.Request.Context.FocusLevel != 0.7 {
		t.Fatalf("expected normalized energy and focus, got %f %f",
			doc.Request.Context.EnergyLevel, doc.Request.Context.FocusLevel)
	}
	if doc.PopulationSize != 16 || doc.MutationRate != 0.2 || doc.Seed != 42 {
		t.Fatalf("unexpected optimizer knobs: %+v", doc)
	}
	if doc.RefineAttempts != 3 || doc.TopCount != 7 {
		t.Fatalf("unexpected refine/top knobs: %+v", doc)
	}
}

func TestDecodeRunDocumentPropagatesNestedErrors(t *testing.T) {
	var doc RunDocument
	err := DecodeRunDocument([]byte(`{"plan": {"difficulty": "impossible"}}`), &doc)
	if err == nil || !strings.Contains(err.Error(), "unsupported difficulty") {
		t.Fatalf("expected nested difficulty error, got %v", err)
	}
}

func TestDecodeRunDocumentRejectsMalformedDocument(t *testing.T) {
	var doc RunDocument
	if err := DecodeRunDocument([]byte("{"), &doc); err == nil {
		t.Fatal("expected error for malformed document")
	}
}

func TestLoadRunDocumentReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	if err := os.WriteFile(path, []byte("generations: 25\nworkers: 4\n"), 0o644); err != nil {
		t.Fatalf("write run document: %v", err)
	}

	doc := RunDocument{PopulationSize: 30}
	if err := LoadRunDocument(path, &doc); err != nil {
		t.Fatalf("load run document: %v", err)
	}
	if doc.Generations != 25 || doc.Workers != 4 {
		t.Fatalf("unexpected loaded knobs: %+v", doc)
	}
	if doc.PopulationSize != 30 {
		t.Fatalf("expected seeded population to survive, got %d", doc.PopulationSize)
	}

	if err := LoadRunDocument(filepath.Join(dir, "missing.yaml"), &doc); err == nil {
		t.Fatal("expected error for missing file")
	}
}
