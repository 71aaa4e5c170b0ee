package neural

import (
	"strings"
	"testing"
)

func TestTrainReducesLoss(t *testing.T) {
	scorer, err := NewScorer(ScorerConfig{
		Seed:         11,
		LearningRate: 0.5,
		Epochs:       200,
		BatchSize:    2,
	})
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}

	samples := []TrainingSample{
		{Features: []float64{0.25, 0.25, 0.3, 0.9, 0.8, 0.25, 0.6}, Target: 0.9},
		{Features: []float64{1.0, 1.0, 0.8, 0.2, 0.3, 0.5, 0.4}, Target: 0.1},
	}

	before, err := scorer.Loss(samples)
	if err != nil {
		t.Fatalf("loss before: %v", err)
	}
	if err := scorer.Train(samples); err != nil {
		t.Fatalf("train: %v", err)
	}
	after, err := scorer.Loss(samples)
	if err != nil {
		t.Fatalf("loss after: %v", err)
	}
	if after >= before {
		t.Fatalf("loss did not improve: before=%.6f after=%.6f", before, after)
	}
}

func TestTrainRejectsCustomActivation(t *testing.T) {
	t.Cleanup(resetActivationRegistryForTests)
	MustRegisterActivation("step", func(x float64) float64 {
		if x > 0 {
			return 1
		}
		return 0
	})

	scorer, err := NewScorer(ScorerConfig{Activation: "step", Seed: 12})
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}

	samples := []TrainingSample{
		{Features: []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}, Target: 0.5},
	}
	err = scorer.Train(samples)
	if err == nil || !strings.Contains(err.Error(), "unsupported derivative") {
		t.Fatalf("expected derivative error, got %v", err)
	}
}

func TestTrainValidatesSamples(t *testing.T) {
	scorer, err := NewScorer(ScorerConfig{Seed: 13})
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}

	if err := scorer.Train(nil); err == nil {
		t.Fatalf("expected error for empty samples")
	}
	if err := scorer.Train([]TrainingSample{{Features: []float64{0.1}, Target: 0.5}}); err == nil {
		t.Fatalf("expected error for short features")
	}
	if err := scorer.Train([]TrainingSample{
		{Features: []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}, Target: 1.5},
	}); err == nil {
		t.Fatalf("expected error for out-of-range target")
	}
}
