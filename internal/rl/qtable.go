package rl

import (
	"time"

	"metis/internal/plan"
)

type stateEntry struct {
	actions    map[string]float64
	visits     int
	lastUpdate time.Time
}

// QTable holds learned state-action values. It carries no locking of its
// own; the owning Selector serializes access.
type QTable struct {
	states map[string]*stateEntry
}

func NewQTable() *QTable {
	return &QTable{states: make(map[string]*stateEntry)}
}

func (t *QTable) value(state, action string) float64 {
	entry, ok := t.states[state]
	if !ok {
		return 0
	}
	return entry.actions[action]
}

func (t *QTable) visits(state string) int {
	entry, ok := t.states[state]
	if !ok {
		return 0
	}
	return entry.visits
}

// update applies the one-step value update Q += alpha * (reward - Q) and
// counts the visit.
func (t *QTable) update(state, action string, alpha, reward float64, at time.Time) {
	entry, ok := t.states[state]
	if !ok {
		entry = &stateEntry{actions: make(map[string]float64)}
		t.states[state] = entry
	}
	current := entry.actions[action]
	entry.actions[action] = current + alpha*(reward-current)
	entry.visits++
	entry.lastUpdate = at
}

func (t *QTable) snapshot(id string) plan.QTableSnapshot {
	states := make(map[string]plan.QStateRecord, len(t.states))
	for key, entry := range t.states {
		actions := make(map[string]float64, len(entry.actions))
		for action, value := range entry.actions {
			actions[action] = value
		}
		record := plan.QStateRecord{
			Actions: actions,
			Visits:  entry.visits,
		}
		if !entry.lastUpdate.IsZero() {
			record.LastUpdateUTC = entry.lastUpdate.UTC().Format(time.RFC3339)
		}
		states[key] = record
	}
	return plan.QTableSnapshot{ID: id, States: states}
}

func (t *QTable) restore(snapshot plan.QTableSnapshot) error {
	states := make(map[string]*stateEntry, len(snapshot.States))
	for key, record := range snapshot.States {
		entry := &stateEntry{
			actions: make(map[string]float64, len(record.Actions)),
			visits:  record.Visits,
		}
		for action, value := range record.Actions {
			entry.actions[action] = value
		}
		if record.LastUpdateUTC != "" {
			at, err := time.Parse(time.RFC3339, record.LastUpdateUTC)
			if err != nil {
				return err
			}
			entry.lastUpdate = at
		}
		states[key] = entry
	}
	t.states = states
	return nil
}
