package main

import "testing"

func TestParseSeedList(t *testing.T) {
	seeds, err := parseSeedList("1, 2,3")
	if err != nil {
		t.Fatalf("parse seeds: %v", err)
	}
	if len(seeds) != 3 || seeds[0] != 1 || seeds[1] != 2 || seeds[2] != 3 {
		t.Fatalf("unexpected seeds: %v", seeds)
	}

	if _, err := parseSeedList("1,1"); err == nil {
		t.Fatal("expected an error for duplicate seeds")
	}
	if _, err := parseSeedList(""); err == nil {
		t.Fatal("expected an error for an empty seed list")
	}
	if _, err := parseSeedList("x"); err == nil {
		t.Fatal("expected an error for a non-numeric seed")
	}
}

func TestSanitizeOptimizeArgs(t *testing.T) {
	got := sanitizeOptimizeArgs([]string{"--pop", "10", "--run-id", "x", "--seed", "5", "--type", "learning"})
	if len(got) != 4 || got[0] != "--pop" || got[1] != "10" || got[2] != "--type" || got[3] != "learning" {
		t.Fatalf("unexpected sanitized args: %v", got)
	}

	if got := sanitizeOptimizeArgs([]string{"--run-id=x", "-seed=9"}); got != nil {
		t.Fatalf("expected nil after stripping per-run flags, got %v", got)
	}
	if got := sanitizeOptimizeArgs(nil); got != nil {
		t.Fatalf("expected nil for empty args, got %v", got)
	}
}
