package fitness

import (
	"math"

	"metis/internal/plan"
)

// Evaluator scores a plan against a request. Implementations must be pure:
// identical inputs produce identical fitness, with no side effects.
type Evaluator interface {
	Name() string
	Evaluate(p plan.Plan, req plan.GenerationRequest) (float64, error)
}

// Breakdown exposes the individual sub-scores behind a fitness value.
type Breakdown struct {
	SuccessProbability    float64 `json:"success_probability"`
	TimeEfficiency        float64 `json:"time_efficiency"`
	ResourceOptimization  float64 `json:"resource_optimization"`
	UserPreference        float64 `json:"user_preference"`
	LearningEffectiveness float64 `json:"learning_effectiveness"`
	Adaptability          float64 `json:"adaptability"`
	Fitness               float64 `json:"fitness"`
}

// WeightedEvaluator combines six independent sub-scores, each in [0, 1],
// as a weighted sum clamped to [0, 1].
type WeightedEvaluator struct {
	weights Weights
}

func NewWeightedEvaluator(w Weights) (*WeightedEvaluator, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	return &WeightedEvaluator{weights: w}, nil
}

func (e *WeightedEvaluator) Name() string {
	return "weighted"
}

func (e *WeightedEvaluator) Weights() Weights {
	return e.weights
}

func (e *WeightedEvaluator) Evaluate(p plan.Plan, req plan.GenerationRequest) (float64, error) {
	breakdown, err := e.Explain(p, req)
	if err != nil {
		return 0, err
	}
	return breakdown.Fitness, nil
}

// Explain computes the fitness together with its sub-scores.
func (e *WeightedEvaluator) Explain(p plan.Plan, req plan.GenerationRequest) (Breakdown, error) {
	if err := plan.Validate(p); err != nil {
		return Breakdown{}, err
	}

	b := Breakdown{
		SuccessProbability:    p.SuccessPrediction,
		TimeEfficiency:        timeEfficiency(p, req),
		ResourceOptimization:  resourceScore(p, req),
		UserPreference:        preferenceScore(p, req),
		LearningEffectiveness: learningScore(p),
		Adaptability:          adaptabilityScore(p),
	}
	total := e.weights.SuccessProbability*b.SuccessProbability +
		e.weights.TimeEfficiency*b.TimeEfficiency +
		e.weights.ResourceOptimization*b.ResourceOptimization +
		e.weights.UserPreference*b.UserPreference +
		e.weights.LearningEffectiveness*b.LearningEffectiveness +
		e.weights.Adaptability*b.Adaptability
	b.Fitness = clamp01(total)
	return b, nil
}

// timeEfficiency rewards plans whose estimated duration lands near the
// target; without any target information it degrades to the neutral 0.5.
func timeEfficiency(p plan.Plan, req plan.GenerationRequest) float64 {
	target := req.Target()
	if target <= 0 {
		return 0.5
	}
	deviation := math.Abs(float64(p.EstimatedDuration-target)) / float64(target)
	return math.Max(0, 1-deviation)
}

// resourceScore penalizes resources the request's tools cannot cover. A
// plan that requires nothing contributes 0, not an error.
func resourceScore(p plan.Plan, req plan.GenerationRequest) float64 {
	required := len(p.RequiredResources)
	if required == 0 {
		return 0
	}
	available := len(req.Context.Tools)
	missing := required - available
	if missing < 0 {
		missing = 0
	}
	return math.Max(0, 1-float64(missing)/float64(required))
}

func preferenceScore(p plan.Plan, req plan.GenerationRequest) float64 {
	if !req.HasPreferences() {
		return 0.5
	}
	var total float64
	var parts int
	if preferred := req.Preferences.PreferredDuration; preferred > 0 {
		deviation := math.Abs(float64(p.EstimatedDuration-preferred)) / float64(preferred)
		total += math.Max(0, 1-deviation)
		parts++
	}
	if want := req.Preferences.Difficulty; want != "" {
		if p.Difficulty == want {
			total += 1.0
		} else {
			total += 0.5
		}
		parts++
	}
	return total / float64(parts)
}

// learningScore treats six phases as the ideal count and three activities
// per phase as full richness.
func learningScore(p plan.Plan) float64 {
	phases := p.Structure.Phases
	phaseScore := math.Min(1, float64(len(phases))/6)
	var activityTotal float64
	for _, phase := range phases {
		activityTotal += math.Min(1, float64(len(phase.Activities))/3)
	}
	activityScore := activityTotal / float64(len(phases))
	return (phaseScore + activityScore) / 2
}

func adaptabilityScore(p plan.Plan) float64 {
	hooks := len(p.Structure.Breakpoints) + len(p.Structure.AdaptationRules)
	return math.Min(1, float64(hooks)/10)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
