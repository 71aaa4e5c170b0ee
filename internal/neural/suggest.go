package neural

import (
	"fmt"

	"metis/internal/plan"
)

type SuggestionKind string

const (
	SuggestionTuneLayer   SuggestionKind = "tune_layer"
	SuggestionAdjustPhase SuggestionKind = "adjust_phase"
	SuggestionRestructure SuggestionKind = "restructure"
)

type LayerHint struct {
	Layer    int `json:"layer"`
	Width    int `json:"width"`
	NewWidth int `json:"new_width"`
}

type PhaseHint struct {
	Phase         int  `json:"phase"`
	DurationDelta int  `json:"duration_delta,omitempty"`
	AddActivity   bool `json:"add_activity,omitempty"`
}

type StructureHint struct {
	Action string `json:"action"`
	Phase  int    `json:"phase"`
}

// Suggestion carries one improvement hint. Exactly one of the payload
// pointers is set, matching Kind.
type Suggestion struct {
	Kind                SuggestionKind `json:"kind"`
	Message             string         `json:"message"`
	ExpectedImprovement float64        `json:"expected_improvement"`
	Confidence          float64        `json:"confidence"`
	Layer               *LayerHint     `json:"layer,omitempty"`
	Phase               *PhaseHint     `json:"phase,omitempty"`
	Structure           *StructureHint `json:"structure,omitempty"`
}

const longPhaseMinutes = 50

func buildSuggestions(p plan.Plan, prediction, confidence float64, hiddenSizes []int) []Suggestion {
	suggestions := make([]Suggestion, 0, 4)

	if prediction < 0.6 && len(hiddenSizes) > 0 {
		narrowest := 0
		for i, width := range hiddenSizes {
			if width < hiddenSizes[narrowest] {
				narrowest = i
			}
		}
		width := hiddenSizes[narrowest]
		suggestions = append(suggestions, Suggestion{
			Kind:                SuggestionTuneLayer,
			Message:             fmt.Sprintf("widen hidden layer %d from %d to %d units", narrowest, width, width*2),
			ExpectedImprovement: clamp01((0.6 - prediction) * 0.25),
			Confidence:          clamp01(confidence * 0.5),
			Layer:               &LayerHint{Layer: narrowest, Width: width, NewWidth: width * 2},
		})
	}

	for i, phase := range p.Structure.Phases {
		if phase.Duration > longPhaseMinutes {
			suggestions = append(suggestions, Suggestion{
				Kind:                SuggestionAdjustPhase,
				Message:             fmt.Sprintf("shorten phase %q to keep focus", phase.Name),
				ExpectedImprovement: 0.05,
				Confidence:          clamp01(confidence * 0.7),
				Phase:               &PhaseHint{Phase: i, DurationDelta: longPhaseMinutes - phase.Duration},
			})
			continue
		}
		if len(phase.Activities) == 0 {
			suggestions = append(suggestions, Suggestion{
				Kind:                SuggestionAdjustPhase,
				Message:             fmt.Sprintf("add an activity to phase %q", phase.Name),
				ExpectedImprovement: 0.04,
				Confidence:          clamp01(confidence * 0.7),
				Phase:               &PhaseHint{Phase: i, AddActivity: true},
			})
		}
	}

	if hint := structureHint(p); hint != nil {
		suggestions = append(suggestions, Suggestion{
			Kind:                SuggestionRestructure,
			Message:             hint.message,
			ExpectedImprovement: hint.improvement,
			Confidence:          clamp01(confidence * 0.6),
			Structure:           &hint.StructureHint,
		})
	}

	return suggestions
}

type structureSuggestion struct {
	StructureHint
	message     string
	improvement float64
}

func structureHint(p plan.Plan) *structureSuggestion {
	phases := p.Structure.Phases

	if len(phases) < 3 {
		return &structureSuggestion{
			StructureHint: StructureHint{Action: "add", Phase: len(phases)},
			message:       "add a wrap-up phase to close the plan",
			improvement:   0.08,
		}
	}
	if len(phases) > 8 {
		return &structureSuggestion{
			StructureHint: StructureHint{Action: "remove", Phase: shortestPhase(phases)},
			message:       "merge the shortest phase into a neighbour",
			improvement:   0.06,
		}
	}

	total := 0
	longest := 0
	for i, phase := range phases {
		total += phase.Duration
		if phase.Duration > phases[longest].Duration {
			longest = i
		}
	}
	if total > p.EstimatedDuration {
		return &structureSuggestion{
			StructureHint: StructureHint{Action: "modify", Phase: longest},
			message:       "phase time exceeds the plan budget, trim the longest phase",
			improvement:   0.07,
		}
	}
	if longest == 0 && len(phases) > 1 {
		return &structureSuggestion{
			StructureHint: StructureHint{Action: "reorder", Phase: 0},
			message:       "open with a shorter phase before the main block",
			improvement:   0.03,
		}
	}
	return nil
}

func shortestPhase(phases []plan.Phase) int {
	shortest := 0
	for i, phase := range phases {
		if phase.Duration < phases[shortest].Duration {
			shortest = i
		}
	}
	return shortest
}
