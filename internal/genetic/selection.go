package genetic

import (
	"fmt"
	"math"
	"math/rand"

	"metis/internal/plan"
)

type ScoredPlan struct {
	Plan    plan.Plan
	Fitness float64
}

// Selector chooses parents from ranked plans for replication. Ranked input is
// sorted by descending fitness.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []ScoredPlan, eliteCount int) (plan.Plan, error)
}

// EliteSelector picks uniformly from the top elite set.
type EliteSelector struct{}

func (EliteSelector) Name() string {
	return "elite"
}

func (EliteSelector) PickParent(rng *rand.Rand, ranked []ScoredPlan, eliteCount int) (plan.Plan, error) {
	if rng == nil {
		return plan.Plan{}, fmt.Errorf("random source is required")
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return plan.Plan{}, fmt.Errorf("invalid elite count: %d", eliteCount)
	}
	return ranked[rng.Intn(eliteCount)].Plan, nil
}

// TournamentSelector samples entrants uniformly from the whole population and
// keeps the best fitness among them. A zero Size defaults to a tenth of the
// population, never below two.
type TournamentSelector struct {
	Size int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []ScoredPlan, eliteCount int) (plan.Plan, error) {
	if rng == nil {
		return plan.Plan{}, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return plan.Plan{}, fmt.Errorf("ranked population is empty")
	}
	if eliteCount <= 0 || eliteCount > len(ranked) {
		return plan.Plan{}, fmt.Errorf("invalid elite count: %d", eliteCount)
	}

	size := s.Size
	if size <= 0 {
		size = int(math.Round(float64(len(ranked)) * 0.1))
		if size < 2 {
			size = 2
		}
	}
	if size > len(ranked) {
		size = len(ranked)
	}

	best := ranked[rng.Intn(len(ranked))]
	for i := 1; i < size; i++ {
		candidate := ranked[rng.Intn(len(ranked))]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best.Plan, nil
}
