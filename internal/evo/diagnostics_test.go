package evo

import (
	"math"
	"testing"

	"genelab/internal/model"
)

func TestSummarizeGeneration(t *testing.T) {
	population := []model.Genome{
		testGenome("a", 0.2, "x", "y"),
		testGenome("b", 0.6, "x", "z"),
	}
	population[0].Consciousness = 0.4
	population[1].Consciousness = 0.2

	got := summarizeGeneration(population, 3, 0.1, true)
	if got.Generation != 3 {
		t.Fatalf("expected generation 3, got %d", got.Generation)
	}
	if got.BestFitness != 0.6 || got.MinFitness != 0.2 {
		t.Fatalf("unexpected best/min: %+v", got)
	}
	if math.Abs(got.MeanFitness-0.4) > 1e-9 {
		t.Fatalf("expected mean 0.4, got %f", got.MeanFitness)
	}
	if math.Abs(got.ConvergenceRate-0.3) > 1e-9 {
		t.Fatalf("expected convergence 0.3, got %f", got.ConvergenceRate)
	}
	if math.Abs(got.DiversityIndex-0.75) > 1e-9 {
		t.Fatalf("expected diversity 3/4, got %f", got.DiversityIndex)
	}
	if got.FitnessStdDev <= 0 {
		t.Fatalf("expected positive std dev, got %f", got.FitnessStdDev)
	}
	if math.Abs(got.MeanGeneCount-2) > 1e-9 || math.Abs(got.MeanConsciousness-0.3) > 1e-9 {
		t.Fatalf("unexpected means: %+v", got)
	}
}

func TestSummarizeGenerationFirstGenerationHasNoConvergence(t *testing.T) {
	got := summarizeGeneration([]model.Genome{testGenome("a", 0.5)}, 1, 0.9, false)
	if got.ConvergenceRate != 0 || got.FitnessStdDev != 0 || got.DiversityIndex != 0 {
		t.Fatalf("unexpected diagnostics for a single empty genome: %+v", got)
	}
}
