package genetic

import (
	"fmt"
	"math/rand"
	"testing"

	"metis/internal/plan"
)

func rankedFixture(size int) []ScoredPlan {
	ranked := make([]ScoredPlan, 0, size)
	for i := 0; i < size; i++ {
		ranked = append(ranked, ScoredPlan{
			Plan:    plan.Plan{ID: fmt.Sprintf("p-%d", i), EstimatedDuration: 60, SuccessPrediction: 0.5},
			Fitness: 1.0 - float64(i)/float64(size),
		})
	}
	return ranked
}

func TestEliteSelectorPicksFromTopSet(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	ranked := rankedFixture(10)
	selector := EliteSelector{}

	allowed := map[string]bool{"p-0": true, "p-1": true, "p-2": true}
	for i := 0; i < 100; i++ {
		parent, err := selector.PickParent(rng, ranked, 3)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		if !allowed[parent.ID] {
			t.Fatalf("parent outside elite set: %s", parent.ID)
		}
	}
}

func TestTournamentSelectorAppliesPressure(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	ranked := rankedFixture(20)
	selector := TournamentSelector{Size: 4}

	populationMean := 0.0
	for _, item := range ranked {
		populationMean += item.Fitness
	}
	populationMean /= float64(len(ranked))

	byID := make(map[string]bool, len(ranked))
	for _, item := range ranked {
		byID[item.Plan.ID] = true
	}

	total := 0.0
	picks := 300
	for i := 0; i < picks; i++ {
		parent, err := selector.PickParent(rng, ranked, 2)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		if !byID[parent.ID] {
			t.Fatalf("parent outside population: %s", parent.ID)
		}
		for _, item := range ranked {
			if item.Plan.ID == parent.ID {
				total += item.Fitness
			}
		}
	}
	meanPick := total / float64(picks)
	if meanPick <= populationMean {
		t.Fatalf("no selection pressure: picked mean=%.3f population mean=%.3f", meanPick, populationMean)
	}
}

func TestTournamentSelectorDefaultsSize(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	ranked := rankedFixture(30)
	selector := TournamentSelector{}

	parent, err := selector.PickParent(rng, ranked, 3)
	if err != nil {
		t.Fatalf("pick parent: %v", err)
	}
	if parent.ID == "" {
		t.Fatalf("empty parent id")
	}
}

func TestSelectorsRejectInvalidEliteCount(t *testing.T) {
	rng := rand.New(rand.NewSource(24))
	ranked := rankedFixture(5)

	selectors := []Selector{EliteSelector{}, TournamentSelector{Size: 2}}
	for _, selector := range selectors {
		if _, err := selector.PickParent(rng, ranked, 0); err == nil {
			t.Fatalf("%s: expected error for zero elite count", selector.Name())
		}
		if _, err := selector.PickParent(rng, ranked, len(ranked)+1); err == nil {
			t.Fatalf("%s: expected error for oversized elite count", selector.Name())
		}
		if _, err := selector.PickParent(nil, ranked, 2); err == nil {
			t.Fatalf("%s: expected error without random source", selector.Name())
		}
	}
}
