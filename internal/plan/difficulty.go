package plan

import (
	"fmt"
	"strings"
)

// Difficulty is an ordinal tag: beginner < intermediate < advanced < expert.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyExpert       Difficulty = "expert"
)

// Difficulties returns the ordinal scale in ascending order.
func Difficulties() []Difficulty {
	return []Difficulty{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced, DifficultyExpert}
}

// Level returns the 1-based ordinal position, 0 for unknown values.
func (d Difficulty) Level() int {
	switch d {
	case DifficultyBeginner:
		return 1
	case DifficultyIntermediate:
		return 2
	case DifficultyAdvanced:
		return 3
	case DifficultyExpert:
		return 4
	default:
		return 0
	}
}

// Encoded maps the scale onto [0.25, 1.0] for the feature vector.
func (d Difficulty) Encoded() float64 {
	return float64(d.Level()) * 0.25
}

func (d Difficulty) Valid() bool {
	return d.Level() > 0
}

// Raise shifts one ordinal step up, saturating at expert.
func (d Difficulty) Raise() Difficulty {
	scale := Difficulties()
	level := d.Level()
	if level == 0 || level >= len(scale) {
		return d
	}
	return scale[level]
}

// Lower shifts one ordinal step down, saturating at beginner.
func (d Difficulty) Lower() Difficulty {
	scale := Difficulties()
	level := d.Level()
	if level <= 1 {
		return d
	}
	return scale[level-2]
}

// ParseDifficulty canonicalizes difficulty names and common aliases.
func ParseDifficulty(name string) (Difficulty, error) {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.Trim(normalized, "-")

	switch normalized {
	case "beginner", "easy", "starter", "novice":
		return DifficultyBeginner, nil
	case "intermediate", "medium", "normal", "moderate":
		return DifficultyIntermediate, nil
	case "advanced", "hard":
		return DifficultyAdvanced, nil
	case "expert", "master", "pro":
		return DifficultyExpert, nil
	default:
		return "", fmt.Errorf("unsupported difficulty: %s", name)
	}
}
