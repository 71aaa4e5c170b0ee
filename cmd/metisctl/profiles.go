package main

import (
	"fmt"
	"sort"
	"strings"

	"metis/internal/plandoc"
)

// profilePresets are the built-in run documents a -profile flag or a
// document's profile field can seed an optimization with. Flags and config
// documents still override any field a preset sets.
var profilePresets = map[string]plandoc.RunDocument{
	"quick": {
		Profile:        "quick",
		PopulationSize: 12,
		Generations:    12,
		MutationRate:   0.3,
		CrossoverRate:  0.7,
		ElitismRate:    0.1,
	},
	"balanced": {
		Profile:        "balanced",
		PopulationSize: 20,
		Generations:    30,
		MutationRate:   0.3,
		CrossoverRate:  0.7,
		ElitismRate:    0.1,
		ScorePlans:     true,
	},
	"thorough": {
		Profile:          "thorough",
		PopulationSize:   32,
		Generations:      60,
		MutationRate:     0.25,
		CrossoverRate:    0.8,
		ElitismRate:      0.15,
		ScorePlans:       true,
		RecommendActions: true,
		RefineAttempts:   6,
	},
}

func profileDocument(name string) (plandoc.RunDocument, error) {
	normalized := strings.TrimSpace(strings.ToLower(name))
	doc, ok := profilePresets[normalized]
	if !ok {
		return plandoc.RunDocument{}, fmt.Errorf("unknown profile: %s", name)
	}
	return doc, nil
}

func profileNames() []string {
	names := make([]string, 0, len(profilePresets))
	for name := range profilePresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
