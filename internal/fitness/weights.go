package fitness

import "errors"

// Weights blends the six sub-scores into one fitness value. All weights
// must be non-negative and callers keep the sum at 1.0 so fitness stays in
// [0, 1]; the evaluator does not enforce the sum.
type Weights struct {
	SuccessProbability    float64 `json:"success_probability"`
	TimeEfficiency        float64 `json:"time_efficiency"`
	ResourceOptimization  float64 `json:"resource_optimization"`
	UserPreference        float64 `json:"user_preference"`
	LearningEffectiveness float64 `json:"learning_effectiveness"`
	Adaptability          float64 `json:"adaptability"`
}

// DefaultWeights returns the documented default blend.
func DefaultWeights() Weights {
	return Weights{
		SuccessProbability:    0.25,
		TimeEfficiency:        0.20,
		ResourceOptimization:  0.15,
		UserPreference:        0.15,
		LearningEffectiveness: 0.15,
		Adaptability:          0.10,
	}
}

func (w Weights) validate() error {
	if w.SuccessProbability < 0 || w.TimeEfficiency < 0 || w.ResourceOptimization < 0 ||
		w.UserPreference < 0 || w.LearningEffectiveness < 0 || w.Adaptability < 0 {
		return errors.New("fitness weights must be >= 0")
	}
	return nil
}

// Sum returns the total weight mass, useful for callers that want to check
// the 1.0 convention before a run.
func (w Weights) Sum() float64 {
	return w.SuccessProbability + w.TimeEfficiency + w.ResourceOptimization +
		w.UserPreference + w.LearningEffectiveness + w.Adaptability
}
