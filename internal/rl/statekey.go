package rl

import (
	"fmt"

	"metis/internal/plan"
)

const durationBucketMinutes = 30

// StateKey buckets a plan into its learning state: duration bucket,
// difficulty, phase count, and normalized plan type. Plans landing in the
// same bucket share learned action values.
func StateKey(p plan.Plan) string {
	return fmt.Sprintf("b%d|%s|p%d|%s",
		p.EstimatedDuration/durationBucketMinutes,
		p.Difficulty,
		len(p.Structure.Phases),
		plan.NormalizeType(p.Type),
	)
}
