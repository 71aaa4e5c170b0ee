package rl

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"metis/internal/plan"
)

type Config struct {
	// Table is the injected value store. A nil table starts empty.
	Table *QTable
	// LearningRate is the update step alpha. Zero selects the default 0.1.
	LearningRate float64
	// ValueThreshold filters recommendations; only actions whose learned
	// value exceeds it are returned. Zero selects the default 0.5.
	ValueThreshold float64
	// ConfidenceVisits is the visit count at which confidence saturates at
	// 1.0. Zero selects the default 10.
	ConfidenceVisits int
}

// Selector learns action values from outcome records and recommends the
// actions worth taking for a plan's state. All table access is serialized
// behind the selector's lock.
type Selector struct {
	mu    sync.Mutex
	cfg   Config
	table *QTable
	now   func() time.Time
}

func NewSelector(cfg Config) (*Selector, error) {
	if cfg.LearningRate < 0 || cfg.LearningRate > 1 {
		return nil, fmt.Errorf("learning rate must be in [0, 1]")
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = 0.1
	}
	if cfg.ValueThreshold < 0 || cfg.ValueThreshold > 1 {
		return nil, fmt.Errorf("value threshold must be in [0, 1]")
	}
	if cfg.ValueThreshold == 0 {
		cfg.ValueThreshold = 0.5
	}
	if cfg.ConfidenceVisits < 0 {
		return nil, fmt.Errorf("confidence visits must be >= 0")
	}
	if cfg.ConfidenceVisits == 0 {
		cfg.ConfidenceVisits = 10
	}
	if cfg.Table == nil {
		cfg.Table = NewQTable()
	}

	return &Selector{
		cfg:   cfg,
		table: cfg.Table,
		now:   time.Now,
	}, nil
}

// Update applies one outcome record to the table.
func (s *Selector) Update(record plan.OutcomeRecord) error {
	if record.StateKey == "" {
		return fmt.Errorf("state key is required")
	}
	if record.Action == "" {
		return fmt.Errorf("action is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.table.update(record.StateKey, record.Action, s.cfg.LearningRate, record.Reward, s.now().UTC())
	return nil
}

// SelectActions first folds the records matching the plan's state into the
// table, then returns every structurally valid action whose learned value
// exceeds the threshold, sorted by descending value. A state with no history
// yields an empty list.
func (s *Selector) SelectActions(p plan.Plan, records []plan.OutcomeRecord) ([]Recommendation, error) {
	if err := plan.Validate(p); err != nil {
		return nil, fmt.Errorf("validate plan: %w", err)
	}
	state := StateKey(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range records {
		if record.StateKey != state || record.Action == "" {
			continue
		}
		s.table.update(state, record.Action, s.cfg.LearningRate, record.Reward, s.now().UTC())
	}

	visits := s.table.visits(state)
	confidence := float64(visits) / float64(s.cfg.ConfidenceVisits)
	if confidence > 1 {
		confidence = 1
	}

	recommendations := make([]Recommendation, 0, 6)
	for _, action := range AvailableActions(p) {
		value := s.table.value(state, action)
		if value <= s.cfg.ValueThreshold {
			continue
		}
		rec := actionParams(action, p)
		rec.Value = value
		rec.Confidence = confidence
		recommendations = append(recommendations, rec)
	}

	sort.Slice(recommendations, func(i, j int) bool {
		if recommendations[i].Value == recommendations[j].Value {
			return recommendations[i].Action < recommendations[j].Action
		}
		return recommendations[i].Value > recommendations[j].Value
	})
	return recommendations, nil
}

// Value reads one learned state-action value.
func (s *Selector) Value(state, action string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.value(state, action)
}

// Visits reads the visit count of one state.
func (s *Selector) Visits(state string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.visits(state)
}

// Snapshot copies the live table into its persistence record.
func (s *Selector) Snapshot(id string) plan.QTableSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.snapshot(id)
}

// Restore replaces the live table with the snapshot contents.
func (s *Selector) Restore(snapshot plan.QTableSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.table.restore(snapshot); err != nil {
		return fmt.Errorf("restore q-table: %w", err)
	}
	return nil
}
