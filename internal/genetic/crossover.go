package genetic

import (
	"math/rand"

	"metis/internal/plan"
)

// crossoverPlans recombines two parents at a single phase cut point. The cut
// index is uniform in [0, min(phase counts)), so both children keep at least
// one phase. Transitions and breakpoints that end up referencing phases past
// the new phase count are dropped.
func crossoverPlans(rng *rand.Rand, a, b plan.Plan) (plan.Plan, plan.Plan) {
	childA := a.Clone()
	childB := b.Clone()

	aPhases := childA.Structure.Phases
	bPhases := childB.Structure.Phases
	limit := len(aPhases)
	if len(bPhases) < limit {
		limit = len(bPhases)
	}
	cut := rng.Intn(limit)

	childA.Structure.Phases = append(append([]plan.Phase{}, aPhases[:cut]...), bPhases[cut:]...)
	childB.Structure.Phases = append(append([]plan.Phase{}, bPhases[:cut]...), aPhases[cut:]...)
	pruneStructureRefs(&childA.Structure)
	pruneStructureRefs(&childB.Structure)
	return childA, childB
}

func pruneStructureRefs(s *plan.PlanStructure) {
	n := len(s.Phases)

	transitions := s.Transitions[:0]
	for _, tr := range s.Transitions {
		if tr.From < 0 || tr.From >= n || tr.To < 0 || tr.To >= n {
			continue
		}
		transitions = append(transitions, tr)
	}
	s.Transitions = transitions

	breakpoints := s.Breakpoints[:0]
	for _, bp := range s.Breakpoints {
		if bp.AfterPhase < 0 || bp.AfterPhase >= n {
			continue
		}
		breakpoints = append(breakpoints, bp)
	}
	s.Breakpoints = breakpoints
}
