package evo

import "genelab/internal/model"

// recombine pairs the selected pool as (0,1), (2,3), ... An odd tail is paired
// with the first genome of the pre-selection population.
func (e *Engine) recombine(original, selected []model.Genome) ([]model.Genome, int) {
	size := e.cfg.PopulationSize
	next := make([]model.Genome, 0, size+1)
	crossovers := 0

	for i := 0; i < len(selected); i += 2 {
		a := selected[i]
		var b model.Genome
		if i+1 < len(selected) {
			b = selected[i+1]
		} else {
			b = original[0].Clone()
		}
		childA, childB, crossed := e.crossover(a, b)
		if crossed {
			crossovers++
		}
		next = append(next, childA, childB)
	}

	for i := 0; len(next) < size; i++ {
		next = append(next, e.passThrough(selected[i%len(selected)]))
	}
	return next[:size], crossovers
}

// crossover applies single-point recombination with probability CrossoverRate,
// otherwise both parents pass through under fresh ids.
func (e *Engine) crossover(a, b model.Genome) (model.Genome, model.Genome, bool) {
	if e.rng.Float64() < e.cfg.CrossoverRate {
		limit := min(len(a.Genes), len(b.Genes))
		if limit > 0 {
			point := e.rng.Intn(limit)

			childA := a.Clone()
			childA.ID = newGenomeID(e.rng)
			childA.Age = 0
			childA.Genes = spliceGenes(a.Genes[:point], b.Genes[point:])

			childB := b.Clone()
			childB.ID = newGenomeID(e.rng)
			childB.Age = 0
			childB.Genes = spliceGenes(b.Genes[:point], a.Genes[point:])
			return childA, childB, true
		}
	}
	return e.passThrough(a), e.passThrough(b), false
}

func (e *Engine) passThrough(g model.Genome) model.Genome {
	out := g.Clone()
	out.ID = newGenomeID(e.rng)
	return out
}

func spliceGenes(head, tail []model.Gene) []model.Gene {
	out := make([]model.Gene, 0, len(head)+len(tail))
	out = append(out, head...)
	return append(out, tail...)
}
