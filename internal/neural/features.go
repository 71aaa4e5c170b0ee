package neural

import (
	"metis/internal/plan"
)

// FeatureCount is the width of the shared plan feature vector.
const FeatureCount = 7

// Features builds the normalized feature vector shared by scoring and
// training: duration, encoded difficulty, phase count, energy, focus,
// available time, and the plan's current success prediction, each in [0, 1].
func Features(p plan.Plan, req plan.GenerationRequest) []float64 {
	return []float64{
		clamp01(float64(p.EstimatedDuration) / float64(plan.MaxPlanDuration)),
		p.Difficulty.Encoded(),
		clamp01(float64(len(p.Structure.Phases)) / 10),
		clamp01(req.Context.EnergyLevel),
		clamp01(req.Context.FocusLevel),
		clamp01(float64(req.Context.AvailableTime) / float64(plan.MaxPlanDuration)),
		clamp01(p.SuccessPrediction),
	}
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
