package neural

import (
	"fmt"
)

// TrainingSample pairs a feature vector with an observed success label.
type TrainingSample struct {
	Features []float64 `json:"features"`
	Target   float64   `json:"target"`
}

// Train runs plain SGD over the configured epochs. Batches scale the step
// size down so large batches do not overshoot. Only builtin activations have
// known derivatives, so scorers with custom activations reject training.
func (s *Scorer) Train(samples []TrainingSample) error {
	if len(samples) == 0 {
		return fmt.Errorf("training samples are required")
	}
	for i, sample := range samples {
		if len(sample.Features) != FeatureCount {
			return fmt.Errorf("sample %d: feature size mismatch: got=%d want=%d", i, len(sample.Features), FeatureCount)
		}
		if sample.Target < 0 || sample.Target > 1 {
			return fmt.Errorf("sample %d: target must be in [0, 1]", i)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for epoch := 0; epoch < s.cfg.Epochs; epoch++ {
		for start := 0; start < len(samples); start += s.cfg.BatchSize {
			end := start + s.cfg.BatchSize
			if end > len(samples) {
				end = len(samples)
			}
			step := s.cfg.LearningRate / float64(end-start)
			for _, sample := range samples[start:end] {
				if _, err := s.network.trainStep(sample.Features, []float64{sample.Target}, step); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Loss reports the mean squared error of the scorer on the samples.
func (s *Scorer) Loss(samples []TrainingSample) (float64, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("training samples are required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0.0
	for i, sample := range samples {
		out, err := s.network.Forward(sample.Features)
		if err != nil {
			return 0, fmt.Errorf("sample %d: %w", i, err)
		}
		diff := out[0] - sample.Target
		total += diff * diff
	}
	return total / float64(len(samples)), nil
}
