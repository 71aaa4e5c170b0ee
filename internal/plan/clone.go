package plan

// Clone returns a deep value copy: no slice or map is shared between the
// original and the copy, so mutating one can never leak into the other.
func (p Plan) Clone() Plan {
	out := p
	out.RequiredResources = append([]string(nil), p.RequiredResources...)
	out.Structure = p.Structure.clone()
	return out
}

func (s PlanStructure) clone() PlanStructure {
	out := s
	out.Phases = make([]Phase, len(s.Phases))
	for i, phase := range s.Phases {
		out.Phases[i] = phase
		out.Phases[i].Activities = append([]string(nil), phase.Activities...)
	}
	out.Transitions = append([]Transition(nil), s.Transitions...)
	out.Breakpoints = append([]Breakpoint(nil), s.Breakpoints...)
	out.AdaptationRules = append([]AdaptationRule(nil), s.AdaptationRules...)
	return out
}

// CloneRequest copies a request so callers can hold one without aliasing
// the tool list.
func CloneRequest(r GenerationRequest) GenerationRequest {
	out := r
	out.Context.Tools = append([]string(nil), r.Context.Tools...)
	return out
}
