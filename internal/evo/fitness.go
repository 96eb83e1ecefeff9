package evo

import (
	"math/rand"

	"genelab/internal/model"
)

// Evaluator scores a genome. Results are clamped to [0, 1] by the engine.
type Evaluator interface {
	Name() string
	Evaluate(rng *rand.Rand, genome model.Genome) float64
}

// ComplexityEvaluator averages the summed gene complexity (as a fraction of 100)
// with consciousness and quantum coherence, then adds ±0.05 of uniform noise.
type ComplexityEvaluator struct{}

func (ComplexityEvaluator) Name() string {
	return "complexity"
}

func (ComplexityEvaluator) Evaluate(rng *rand.Rand, genome model.Genome) float64 {
	geneEffect := 0.0
	for _, gene := range genome.Genes {
		geneEffect += gene.Complexity / 100
	}
	base := (geneEffect + genome.Consciousness + genome.QuantumCoherence) / 3
	return clampUnit(base + uniform(rng, -fitnessNoise, fitnessNoise))
}

func (e *Engine) evaluate(population []model.Genome) {
	for i := range population {
		population[i].Fitness = clampUnit(e.cfg.Evaluator.Evaluate(e.rng, population[i]))
	}
}
