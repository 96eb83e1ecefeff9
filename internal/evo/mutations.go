package evo

import (
	"math/rand"

	"genelab/internal/catalog"
	"genelab/internal/model"
)

// Operator choice thresholds on a uniform draw in [0, 1).
const (
	deleteGeneBelow = 0.3
	addGeneBelow    = 0.6
)

// DeleteGene removes a random gene, never the last one.
type DeleteGene struct{}

func (DeleteGene) Name() string {
	return "delete_gene"
}

func (DeleteGene) Apply(rng *rand.Rand, genome *model.Genome, _ catalog.GeneSource) bool {
	if len(genome.Genes) <= 1 {
		return false
	}
	idx := rng.Intn(len(genome.Genes))
	genes := make([]model.Gene, 0, len(genome.Genes)-1)
	genes = append(genes, genome.Genes[:idx]...)
	genome.Genes = append(genes, genome.Genes[idx+1:]...)
	return true
}

// AddGene appends a random gene from the source unless the genome already has it.
type AddGene struct{}

func (AddGene) Name() string {
	return "add_gene"
}

func (AddGene) Apply(rng *rand.Rand, genome *model.Genome, source catalog.GeneSource) bool {
	if source == nil || source.Len() == 0 {
		return false
	}
	gene := source.Pick(rng)
	if genome.HasGene(gene.ID) {
		return false
	}
	genome.Genes = append(genome.Genes, gene)
	return true
}

// ReplaceGene overwrites a random gene slot with a random gene from the source.
type ReplaceGene struct{}

func (ReplaceGene) Name() string {
	return "replace_gene"
}

func (ReplaceGene) Apply(rng *rand.Rand, genome *model.Genome, source catalog.GeneSource) bool {
	if source == nil || source.Len() == 0 || len(genome.Genes) == 0 {
		return false
	}
	idx := rng.Intn(len(genome.Genes))
	genome.Genes[idx] = source.Pick(rng)
	return true
}

func chooseOperator(m float64) MutationOperator {
	switch {
	case m < deleteGeneBelow:
		return DeleteGene{}
	case m < addGeneBelow:
		return AddGene{}
	default:
		return ReplaceGene{}
	}
}

// mutate runs one mutation event per genome with probability equal to the
// genome's own mutation rate and returns the events counted by operator.
func (e *Engine) mutate(population []model.Genome) (int, map[string]int) {
	events := 0
	byOperator := map[string]int{}
	for i := range population {
		genome := &population[i]
		if e.rng.Float64() >= genome.MutationRate {
			continue
		}
		events++

		operator := chooseOperator(e.rng.Float64())
		name := operator.Name()
		if !operator.Apply(e.rng, genome, e.cfg.MutationSource) {
			name = "noop(" + name + ")"
		}
		byOperator[name]++

		jitterTraits(e.rng, genome)
	}
	return events, byOperator
}

func jitterTraits(rng *rand.Rand, genome *model.Genome) {
	genome.Consciousness = clampUnit(genome.Consciousness + uniform(rng, -traitJitter, traitJitter))
	genome.QuantumCoherence = clampUnit(genome.QuantumCoherence + uniform(rng, -traitJitter, traitJitter))
	genome.MutationRate = clamp(genome.MutationRate+uniform(rng, -mutationRateDrift, mutationRateDrift), MinMutationRate, MaxMutationRate)
}
