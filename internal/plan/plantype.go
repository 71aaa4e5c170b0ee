package plan

import "strings"

// DefaultPlanType is assumed when a plan carries no type.
const DefaultPlanType = "general"

// NormalizeType canonicalizes plan-type names and reference aliases.
// Unknown types pass through in normalized form.
func NormalizeType(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")
	if normalized == "" {
		return DefaultPlanType
	}
	if canonical, ok := canonicalPlanType(normalized); ok {
		return canonical
	}
	return normalized
}

func canonicalPlanType(alias string) (string, bool) {
	switch alias {
	case "general", "any", "default", "session":
		return "general", true
	case "learning", "study", "lesson":
		return "learning", true
	case "training", "workout", "exercise":
		return "training", true
	case "practice", "drill", "rehearsal":
		return "practice", true
	case "review", "retro", "retrospective":
		return "review", true
	case "project", "build":
		return "project", true
	default:
		return "", false
	}
}
