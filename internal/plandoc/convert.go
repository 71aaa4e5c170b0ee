package plandoc

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"metis/internal/plan"
)

func convertPlan(m map[string]any) (plan.Plan, error) {
	var p plan.Plan
	if v, ok := asString(m["id"]); ok {
		p.ID = strings.TrimSpace(v)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	typeName, _ := asString(m["type"])
	p.Type = plan.NormalizeType(typeName)
	if v, ok := asInt(m["estimated_duration"]); ok {
		p.EstimatedDuration = v
	} else if v, ok := asInt(m["duration"]); ok {
		p.EstimatedDuration = v
	}
	difficulty, err := convertDifficulty(m["difficulty"])
	if err != nil {
		return plan.Plan{}, err
	}
	if difficulty == "" {
		difficulty = plan.DifficultyIntermediate
	}
	p.Difficulty = difficulty
	if sm, ok := m["structure"].(map[string]any); ok {
		p.Structure = convertStructure(sm)
	} else {
		p.Structure = convertStructure(m)
	}
	if v, ok := asStrings(m["required_resources"]); ok {
		p.RequiredResources = normalizeSet(v)
	} else if v, ok := asStrings(m["resources"]); ok {
		p.RequiredResources = normalizeSet(v)
	}
	return p, nil
}

func convertStructure(m map[string]any) plan.PlanStructure {
	var s plan.PlanStructure
	if raw, ok := m["phases"].([]any); ok {
		s.Phases = convertPhases(raw)
	}
	if raw, ok := m["transitions"].([]any); ok {
		s.Transitions = convertTransitions(raw)
	}
	if raw, ok := m["breakpoints"].([]any); ok {
		s.Breakpoints = convertBreakpoints(raw)
	}
	if raw, ok := m["adaptation_rules"].([]any); ok {
		s.AdaptationRules = convertAdaptationRules(raw)
	}
	return s
}

func convertPhases(raw []any) []plan.Phase {
	out := make([]plan.Phase, 0, len(raw))
	for _, item := range raw {
		pm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var phase plan.Phase
		if v, ok := asString(pm["name"]); ok {
			phase.Name = strings.TrimSpace(v)
		}
		if v, ok := asInt(pm["duration"]); ok {
			phase.Duration = v
		}
		if v, ok := asStrings(pm["activities"]); ok {
			phase.Activities = normalizeSet(v)
		}
		out = append(out, phase)
	}
	return out
}

func convertTransitions(raw []any) []plan.Transition {
	out := make([]plan.Transition, 0, len(raw))
	for _, item := range raw {
		tm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var tr plan.Transition
		if v, ok := asInt(tm["from"]); ok {
			tr.From = v
		}
		if v, ok := asInt(tm["to"]); ok {
			tr.To = v
		}
		if v, ok := asString(tm["trigger"]); ok {
			tr.Trigger = strings.TrimSpace(v)
		}
		out = append(out, tr)
	}
	return out
}

func convertBreakpoints(raw []any) []plan.Breakpoint {
	out := make([]plan.Breakpoint, 0, len(raw))
	for _, item := range raw {
		bm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var bp plan.Breakpoint
		if v, ok := asInt(bm["after_phase"]); ok {
			bp.AfterPhase = v
		}
		if v, ok := asInt(bm["duration"]); ok {
			bp.Duration = v
		}
		out = append(out, bp)
	}
	return out
}

func convertAdaptationRules(raw []any) []plan.AdaptationRule {
	out := make([]plan.AdaptationRule, 0, len(raw))
	for _, item := range raw {
		rm, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var rule plan.AdaptationRule
		if v, ok := asString(rm["trigger"]); ok {
			rule.Trigger = strings.TrimSpace(v)
		}
		if v, ok := asString(rm["action"]); ok {
			rule.Action = strings.TrimSpace(v)
		}
		if v, ok := asFloat64(rm["threshold"]); ok {
			rule.Threshold = v
		}
		out = append(out, rule)
	}
	return out
}

func convertRequest(m map[string]any) (plan.GenerationRequest, error) {
	var req plan.GenerationRequest
	applyRequestContext(&req, m)
	if cm, ok := m["context"].(map[string]any); ok {
		applyRequestContext(&req, cm)
	}
	if err := applyRequestPreferences(&req, m); err != nil {
		return plan.GenerationRequest{}, err
	}
	if pm, ok := m["preferences"].(map[string]any); ok {
		if err := applyRequestPreferences(&req, pm); err != nil {
			return plan.GenerationRequest{}, err
		}
	}
	if v, ok := asInt(m["target_duration"]); ok {
		req.TargetDuration = v
	}
	return req, nil
}

func applyRequestContext(req *plan.GenerationRequest, m map[string]any) {
	if v, ok := asInt(m["available_time"]); ok {
		req.Context.AvailableTime = v
	}
	if v, ok := asFloat64(m["energy_level"]); ok {
		req.Context.EnergyLevel = normalizeUnitScale(v)
	} else if v, ok := asFloat64(m["energy"]); ok {
		req.Context.EnergyLevel = normalizeUnitScale(v)
	}
	if v, ok := asFloat64(m["focus_level"]); ok {
		req.Context.FocusLevel = normalizeUnitScale(v)
	} else if v, ok := asFloat64(m["focus"]); ok {
		req.Context.FocusLevel = normalizeUnitScale(v)
	}
	if v, ok := asStrings(m["tools"]); ok {
		req.Context.Tools = normalizeSet(v)
	}
}

func applyRequestPreferences(req *plan.GenerationRequest, m map[string]any) error {
	if v, ok := asInt(m["preferred_duration"]); ok {
		req.Preferences.PreferredDuration = v
	}
	difficulty, err := convertDifficulty(m["difficulty"])
	if err != nil {
		return err
	}
	if difficulty != "" {
		req.Preferences.Difficulty = difficulty
	}
	return nil
}

// convertDifficulty returns the zero difficulty for absent or
// non-string values and an error for names that do not parse.
func convertDifficulty(v any) (plan.Difficulty, error) {
	s, ok := asString(v)
	if !ok || strings.TrimSpace(s) == "" {
		return "", nil
	}
	return plan.ParseDifficulty(s)
}

// normalizeUnitScale maps 0-1, 0-10, and 0-100 inputs onto [0, 1].
func normalizeUnitScale(v float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v <= 1:
		return v
	case v <= 10:
		return v / 10
	case v <= 100:
		return v / 100
	default:
		return 1
	}
}

// normalizeSet trims, deduplicates, and sorts identifier lists.
func normalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
