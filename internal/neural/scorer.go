package neural

import (
	"fmt"
	"sync"

	"metis/internal/plan"
)

type ScorerConfig struct {
	HiddenSizes  []int
	Activation   string
	Seed         int64
	LearningRate float64
	Epochs       int
	BatchSize    int
}

type ScoreResult struct {
	Prediction  float64      `json:"prediction"`
	Confidence  float64      `json:"confidence"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Scorer wraps a feed-forward network over the shared plan feature vector.
// Scoring is read-only with respect to the plan; Train serializes against
// concurrent scores.
type Scorer struct {
	mu      sync.RWMutex
	cfg     ScorerConfig
	network *Network
}

func NewScorer(cfg ScorerConfig) (*Scorer, error) {
	if len(cfg.HiddenSizes) == 0 {
		cfg.HiddenSizes = []int{8, 4}
	}
	if cfg.Activation == "" {
		cfg.Activation = "sigmoid"
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.1
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 50
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 8
	}

	network, err := NewNetwork(NetworkConfig{
		InputSize:   FeatureCount,
		HiddenSizes: cfg.HiddenSizes,
		OutputSize:  1,
		Activation:  cfg.Activation,
		Seed:        cfg.Seed,
	})
	if err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg, network: network}, nil
}

// Predict runs the raw forward pass over an already built feature vector.
func (s *Scorer) Predict(features []float64) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.network.Forward(features)
}

// Score predicts success for the plan under the request and derives
// improvement suggestions. The prediction is the clamped scalar output and
// the confidence is the mean of the raw outputs.
func (s *Scorer) Score(p plan.Plan, req plan.GenerationRequest) (ScoreResult, error) {
	if err := plan.Validate(p); err != nil {
		return ScoreResult{}, fmt.Errorf("validate plan: %w", err)
	}

	s.mu.RLock()
	raw, err := s.network.Forward(Features(p, req))
	s.mu.RUnlock()
	if err != nil {
		return ScoreResult{}, err
	}

	prediction := clamp01(raw[0])
	total := 0.0
	for _, value := range raw {
		total += value
	}
	confidence := clamp01(total / float64(len(raw)))

	return ScoreResult{
		Prediction:  prediction,
		Confidence:  confidence,
		Suggestions: buildSuggestions(p, prediction, confidence, s.cfg.HiddenSizes),
	}, nil
}
