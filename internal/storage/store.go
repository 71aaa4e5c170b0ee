package storage

import (
	"context"

	"metis/internal/plan"
)

// DefaultStoreKind is the backend used when no kind is configured.
const DefaultStoreKind = "memory"

// Store defines persistence operations for optimizer runs and the learned
// Q-tables. Get methods report absence through the bool, not an error.
type Store interface {
	Init(ctx context.Context) error
	SaveQTable(ctx context.Context, snapshot plan.QTableSnapshot) error
	GetQTable(ctx context.Context, id string) (plan.QTableSnapshot, bool, error)
	AppendOutcome(ctx context.Context, record plan.OutcomeRecord) error
	GetOutcomes(ctx context.Context, stateKey string) ([]plan.OutcomeRecord, bool, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveDiagnostics(ctx context.Context, runID string, diagnostics []plan.GenerationDiagnostics) error
	GetDiagnostics(ctx context.Context, runID string) ([]plan.GenerationDiagnostics, bool, error)
	SaveLineage(ctx context.Context, runID string, lineage []plan.LineageRecord) error
	GetLineage(ctx context.Context, runID string) ([]plan.LineageRecord, bool, error)
	SaveTopPlans(ctx context.Context, runID string, top []plan.RankedPlan) error
	GetTopPlans(ctx context.Context, runID string) ([]plan.RankedPlan, bool, error)
	SavePlanTypeSummary(ctx context.Context, summary plan.PlanTypeSummary) error
	GetPlanTypeSummary(ctx context.Context, planType string) (plan.PlanTypeSummary, bool, error)
}

// Resetter is implemented by backends that can wipe all persisted state.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Closer is implemented by backends holding external connections.
type Closer interface {
	Close() error
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(Closer)
	if !ok {
		return nil
	}
	return closer.Close()
}
