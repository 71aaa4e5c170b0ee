package plan

// Duration bounds in minutes. Plan-level bounds apply to EstimatedDuration,
// phase-level bounds to each Phase.Duration; mutation and refinement
// operators clamp to these.
const (
	MinPlanDuration  = 30
	MaxPlanDuration  = 240
	MinPhaseDuration = 5
	MaxPhaseDuration = 60
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Plan is the optimization subject: an ordered sequence of phases plus the
// metadata the strategies score against.
type Plan struct {
	ID                string        `json:"id"`
	Type              string        `json:"type"`
	EstimatedDuration int           `json:"estimated_duration"`
	Difficulty        Difficulty    `json:"difficulty"`
	Structure         PlanStructure `json:"structure"`
	RequiredResources []string      `json:"required_resources"`
	SuccessPrediction float64       `json:"success_prediction"`
}

type PlanStructure struct {
	Phases          []Phase          `json:"phases"`
	Transitions     []Transition     `json:"transitions,omitempty"`
	Breakpoints     []Breakpoint     `json:"breakpoints,omitempty"`
	AdaptationRules []AdaptationRule `json:"adaptation_rules,omitempty"`
}

type Phase struct {
	Name       string   `json:"name"`
	Duration   int      `json:"duration"`
	Activities []string `json:"activities"`
}

// Transition links two phases by index with a free-form trigger label.
type Transition struct {
	From    int    `json:"from"`
	To      int    `json:"to"`
	Trigger string `json:"trigger,omitempty"`
}

// Breakpoint marks a pause after the phase at the given index.
type Breakpoint struct {
	AfterPhase int `json:"after_phase"`
	Duration   int `json:"duration,omitempty"`
}

type AdaptationRule struct {
	Trigger   string  `json:"trigger"`
	Action    string  `json:"action"`
	Threshold float64 `json:"threshold,omitempty"`
}

// GenerationRequest carries the caller's context and preferences. It is
// treated as immutable once handed to any strategy; zero values mark
// optional fields as unset.
type GenerationRequest struct {
	Context        RequestContext `json:"context"`
	Preferences    Preferences    `json:"preferences"`
	TargetDuration int            `json:"target_duration,omitempty"`
}

type RequestContext struct {
	AvailableTime int      `json:"available_time"`
	EnergyLevel   float64  `json:"energy_level"`
	FocusLevel    float64  `json:"focus_level"`
	Tools         []string `json:"tools,omitempty"`
}

type Preferences struct {
	PreferredDuration int        `json:"preferred_duration,omitempty"`
	Difficulty        Difficulty `json:"difficulty,omitempty"`
}

// Target resolves the duration target: the explicit override when set,
// otherwise the available time from the context.
func (r GenerationRequest) Target() int {
	if r.TargetDuration > 0 {
		return r.TargetDuration
	}
	return r.Context.AvailableTime
}

// HasPreferences reports whether any preference field is set.
func (r GenerationRequest) HasPreferences() bool {
	return r.Preferences.PreferredDuration > 0 || r.Preferences.Difficulty != ""
}
