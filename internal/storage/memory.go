package storage

import (
	"context"
	"errors"
	"sync"

	"metis/internal/plan"
)

// MemoryStore keeps everything in process. Init must run before use.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	qtables     map[string]plan.QTableSnapshot
	outcomes    map[string][]plan.OutcomeRecord
	history     map[string][]float64
	diagnostics map[string][]plan.GenerationDiagnostics
	lineage     map[string][]plan.LineageRecord
	topPlans    map[string][]plan.RankedPlan
	summaries   map[string]plan.PlanTypeSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.resetLocked()
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errors.New("store is not initialized")
	}
	s.resetLocked()
	return nil
}

func (s *MemoryStore) resetLocked() {
	s.qtables = make(map[string]plan.QTableSnapshot)
	s.outcomes = make(map[string][]plan.OutcomeRecord)
	s.history = make(map[string][]float64)
	s.diagnostics = make(map[string][]plan.GenerationDiagnostics)
	s.lineage = make(map[string][]plan.LineageRecord)
	s.topPlans = make(map[string][]plan.RankedPlan)
	s.summaries = make(map[string]plan.PlanTypeSummary)
}

func (s *MemoryStore) SaveQTable(_ context.Context, snapshot plan.QTableSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.qtables[snapshot.ID] = cloneSnapshot(snapshot)
	return nil
}

func (s *MemoryStore) GetQTable(_ context.Context, id string) (plan.QTableSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.qtables[id]
	if !ok {
		return plan.QTableSnapshot{}, false, nil
	}
	return cloneSnapshot(snapshot), true, nil
}

func (s *MemoryStore) AppendOutcome(_ context.Context, record plan.OutcomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes[record.StateKey] = append(s.outcomes[record.StateKey], record)
	return nil
}

func (s *MemoryStore) GetOutcomes(_ context.Context, stateKey string) ([]plan.OutcomeRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.outcomes[stateKey]
	if !ok {
		return nil, false, nil
	}
	copied := make([]plan.OutcomeRecord, len(records))
	copy(copied, records)
	return copied, true, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}

func (s *MemoryStore) SaveDiagnostics(_ context.Context, runID string, diagnostics []plan.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]plan.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	s.diagnostics[runID] = copied
	return nil
}

func (s *MemoryStore) GetDiagnostics(_ context.Context, runID string) ([]plan.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]plan.GenerationDiagnostics, len(diagnostics))
	copy(copied, diagnostics)
	return copied, true, nil
}

func (s *MemoryStore) SaveLineage(_ context.Context, runID string, lineage []plan.LineageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]plan.LineageRecord, len(lineage))
	copy(copied, lineage)
	s.lineage[runID] = copied
	return nil
}

func (s *MemoryStore) GetLineage(_ context.Context, runID string) ([]plan.LineageRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage, ok := s.lineage[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]plan.LineageRecord, len(lineage))
	copy(copied, lineage)
	return copied, true, nil
}

func (s *MemoryStore) SaveTopPlans(_ context.Context, runID string, top []plan.RankedPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.topPlans[runID] = cloneTopPlans(top)
	return nil
}

func (s *MemoryStore) GetTopPlans(_ context.Context, runID string) ([]plan.RankedPlan, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	top, ok := s.topPlans[runID]
	if !ok {
		return nil, false, nil
	}
	return cloneTopPlans(top), true, nil
}

func (s *MemoryStore) SavePlanTypeSummary(_ context.Context, summary plan.PlanTypeSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[summary.Type] = summary
	return nil
}

func (s *MemoryStore) GetPlanTypeSummary(_ context.Context, planType string) (plan.PlanTypeSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.summaries[planType]
	return summary, ok, nil
}

func cloneSnapshot(s plan.QTableSnapshot) plan.QTableSnapshot {
	out := s
	out.States = make(map[string]plan.QStateRecord, len(s.States))
	for key, state := range s.States {
		actions := make(map[string]float64, len(state.Actions))
		for action, value := range state.Actions {
			actions[action] = value
		}
		state.Actions = actions
		out.States[key] = state
	}
	return out
}

func cloneTopPlans(top []plan.RankedPlan) []plan.RankedPlan {
	copied := make([]plan.RankedPlan, len(top))
	for i, item := range top {
		copied[i] = item
		copied[i].Plan = item.Plan.Clone()
	}
	return copied
}
