package plan

// OutcomeRecord is one historical (state, action, reward) observation used
// by the action selector's learning pass.
type OutcomeRecord struct {
	VersionedRecord
	ID            string  `json:"id"`
	StateKey      string  `json:"state_key"`
	Action        string  `json:"action"`
	Reward        float64 `json:"reward"`
	RecordedAtUTC string  `json:"recorded_at_utc"`
}

// QStateRecord is the persisted form of one Q-table state.
type QStateRecord struct {
	Actions       map[string]float64 `json:"actions"`
	Visits        int                `json:"visits"`
	LastUpdateUTC string             `json:"last_update_utc"`
}

// QTableSnapshot is the persisted form of a whole Q-table. Round-tripping a
// snapshot through the codec must reproduce identical values and visit
// counts.
type QTableSnapshot struct {
	VersionedRecord
	ID     string                  `json:"id"`
	States map[string]QStateRecord `json:"states"`
}

type GenerationDiagnostics struct {
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"best_fitness"`
	MeanFitness float64 `json:"mean_fitness"`
	MinFitness  float64 `json:"min_fitness"`
	Spread      float64 `json:"spread"`
	Crossovers  int     `json:"crossovers"`
	Mutations   int     `json:"mutations"`
}

type LineageRecord struct {
	VersionedRecord
	PlanID     string `json:"plan_id"`
	ParentID   string `json:"parent_id"`
	Generation int    `json:"generation"`
	Operation  string `json:"operation"`
}

type RankedPlan struct {
	Rank    int     `json:"rank"`
	Fitness float64 `json:"fitness"`
	Plan    Plan    `json:"plan"`
}

type PlanTypeSummary struct {
	VersionedRecord
	Type        string  `json:"type"`
	Description string  `json:"description"`
	BestFitness float64 `json:"best_fitness"`
}
