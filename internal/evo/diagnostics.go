package evo

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"genelab/internal/model"
)

func summarizeGeneration(population []model.Genome, generation int, prevMean float64, hasPrev bool) model.GenerationDiagnostics {
	if len(population) == 0 {
		return model.GenerationDiagnostics{Generation: generation}
	}

	fitness := make([]float64, len(population))
	consciousness := make([]float64, len(population))
	coherence := make([]float64, len(population))
	geneCounts := make([]float64, len(population))
	uniqueGenes := map[string]struct{}{}
	totalGenes := 0
	best := population[0].Fitness
	worst := population[0].Fitness
	for i, genome := range population {
		fitness[i] = genome.Fitness
		consciousness[i] = genome.Consciousness
		coherence[i] = genome.QuantumCoherence
		geneCounts[i] = float64(len(genome.Genes))
		if genome.Fitness > best {
			best = genome.Fitness
		}
		if genome.Fitness < worst {
			worst = genome.Fitness
		}
		for _, gene := range genome.Genes {
			uniqueGenes[gene.ID] = struct{}{}
		}
		totalGenes += len(genome.Genes)
	}

	mean := stat.Mean(fitness, nil)
	stdDev := 0.0
	if len(fitness) > 1 {
		stdDev = stat.StdDev(fitness, nil)
	}
	diversity := 0.0
	if totalGenes > 0 {
		diversity = float64(len(uniqueGenes)) / float64(totalGenes)
	}
	convergence := 0.0
	if hasPrev {
		convergence = math.Abs(mean - prevMean)
	}

	return model.GenerationDiagnostics{
		Generation:           generation,
		BestFitness:          best,
		MeanFitness:          mean,
		MinFitness:           worst,
		FitnessStdDev:        stdDev,
		DiversityIndex:       diversity,
		ConvergenceRate:      convergence,
		MeanGeneCount:        stat.Mean(geneCounts, nil),
		MeanConsciousness:    stat.Mean(consciousness, nil),
		MeanQuantumCoherence: stat.Mean(coherence, nil),
	}
}
