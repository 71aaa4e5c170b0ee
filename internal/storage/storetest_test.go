package storage

import (
	"context"
	"reflect"
	"testing"

	"metis/internal/plan"
)

// exerciseStoreRoundTrip drives every record kind through an initialized
// store. Live-backend and sqlite tests share it so the backends stay in
// behavioral lockstep with the memory store.
func exerciseStoreRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	snapshot := stampedQTable("qtable-roundtrip")
	if err := store.SaveQTable(ctx, snapshot); err != nil {
		t.Fatalf("save q-table: %v", err)
	}
	loadedSnapshot, ok, err := store.GetQTable(ctx, snapshot.ID)
	if err != nil {
		t.Fatalf("get q-table: %v", err)
	}
	if !ok {
		t.Fatalf("expected q-table %s", snapshot.ID)
	}
	if !reflect.DeepEqual(loadedSnapshot, snapshot) {
		t.Fatalf("q-table mismatch\nactual=%+v\nexpected=%+v", loadedSnapshot, snapshot)
	}

	stamp := plan.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
	state := "b2|beginner|p3|learning"
	outcomes := []plan.OutcomeRecord{
		{VersionedRecord: stamp, ID: "rt-o1", StateKey: state, Action: "extend_duration", Reward: 1.0, RecordedAtUTC: "2026-08-20T12:00:00Z"},
		{VersionedRecord: stamp, ID: "rt-o2", StateKey: state, Action: "add_break", Reward: 0.7, RecordedAtUTC: "2026-08-20T12:05:00Z"},
	}
	for _, record := range outcomes {
		if err := store.AppendOutcome(ctx, record); err != nil {
			t.Fatalf("append outcome: %v", err)
		}
	}
	loadedOutcomes, ok, err := store.GetOutcomes(ctx, state)
	if err != nil {
		t.Fatalf("get outcomes: %v", err)
	}
	if !ok || len(loadedOutcomes) != 2 {
		t.Fatalf("unexpected outcomes: ok=%t %+v", ok, loadedOutcomes)
	}
	if loadedOutcomes[0].ID != "rt-o1" || loadedOutcomes[1].Reward != 0.7 {
		t.Fatalf("unexpected outcome order: %+v", loadedOutcomes)
	}
	if _, ok, err := store.GetOutcomes(ctx, "b0|beginner|p1|general"); err != nil || ok {
		t.Fatalf("expected no outcomes for unseen state: ok=%t err=%v", ok, err)
	}

	history := []float64{0.5, 0.7, 0.9}
	if err := store.SaveFitnessHistory(ctx, "rt-run", history); err != nil {
		t.Fatalf("save history: %v", err)
	}
	loadedHistory, ok, err := store.GetFitnessHistory(ctx, "rt-run")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok || !reflect.DeepEqual(loadedHistory, history) {
		t.Fatalf("unexpected history: ok=%t %+v", ok, loadedHistory)
	}

	diagnostics := []plan.GenerationDiagnostics{
		{Generation: 1, BestFitness: 0.7, MeanFitness: 0.5, MinFitness: 0.1, Spread: 0.2, Crossovers: 3, Mutations: 8},
	}
	if err := store.SaveDiagnostics(ctx, "rt-run", diagnostics); err != nil {
		t.Fatalf("save diagnostics: %v", err)
	}
	loadedDiagnostics, ok, err := store.GetDiagnostics(ctx, "rt-run")
	if err != nil {
		t.Fatalf("get diagnostics: %v", err)
	}
	if !ok || !reflect.DeepEqual(loadedDiagnostics, diagnostics) {
		t.Fatalf("unexpected diagnostics: ok=%t %+v", ok, loadedDiagnostics)
	}

	lineage := []plan.LineageRecord{
		{VersionedRecord: stamp, PlanID: "plan-1", ParentID: "", Generation: 0, Operation: "seed"},
		{VersionedRecord: stamp, PlanID: "plan-1-g1-i2", ParentID: "plan-1", Generation: 1, Operation: "crossover"},
	}
	if err := store.SaveLineage(ctx, "rt-run", lineage); err != nil {
		t.Fatalf("save lineage: %v", err)
	}
	loadedLineage, ok, err := store.GetLineage(ctx, "rt-run")
	if err != nil {
		t.Fatalf("get lineage: %v", err)
	}
	if !ok || !reflect.DeepEqual(loadedLineage, lineage) {
		t.Fatalf("unexpected lineage: ok=%t %+v", ok, loadedLineage)
	}

	top := []plan.RankedPlan{
		{Rank: 1, Fitness: 0.9, Plan: codecPlanFixture("rt-plan-a")},
	}
	if err := store.SaveTopPlans(ctx, "rt-run", top); err != nil {
		t.Fatalf("save top plans: %v", err)
	}
	loadedTop, ok, err := store.GetTopPlans(ctx, "rt-run")
	if err != nil {
		t.Fatalf("get top plans: %v", err)
	}
	if !ok || len(loadedTop) != 1 || loadedTop[0].Plan.ID != "rt-plan-a" {
		t.Fatalf("unexpected top plans: ok=%t %+v", ok, loadedTop)
	}

	summary := plan.PlanTypeSummary{
		VersionedRecord: stamp,
		Type:            "learning",
		Description:     "best observed fitness for plan type learning",
		BestFitness:     0.82,
	}
	if err := store.SavePlanTypeSummary(ctx, summary); err != nil {
		t.Fatalf("save summary: %v", err)
	}
	loadedSummary, ok, err := store.GetPlanTypeSummary(ctx, "learning")
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if !ok || loadedSummary.BestFitness != summary.BestFitness {
		t.Fatalf("unexpected summary: ok=%t %+v", ok, loadedSummary)
	}

	if _, ok, err := store.GetQTable(ctx, "missing-qtable"); err != nil || ok {
		t.Fatalf("expected missing q-table: ok=%t err=%v", ok, err)
	}
	if _, ok, err := store.GetFitnessHistory(ctx, "missing-run"); err != nil || ok {
		t.Fatalf("expected missing history: ok=%t err=%v", ok, err)
	}
}
