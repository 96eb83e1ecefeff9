package evo

import (
	"fmt"
	"math/rand"

	"genelab/internal/model"
)

// Selector chooses n parent indices (with replacement) from an evaluated population.
type Selector interface {
	Name() string
	Select(rng *rand.Rand, population []model.Genome, n int) ([]int, error)
}

// RouletteSelector draws parents with probability proportional to fitness. When
// the total fitness is zero it falls back to uniform draws.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (RouletteSelector) Select(rng *rand.Rand, population []model.Genome, n int) ([]int, error) {
	if err := checkSelectArgs(rng, population, n); err != nil {
		return nil, err
	}

	total := 0.0
	lastPositive := 0
	for i, genome := range population {
		if genome.Fitness > 0 {
			total += genome.Fitness
			lastPositive = i
		}
	}
	if total <= 0 {
		return UniformSelector{}.Select(rng, population, n)
	}

	picked := make([]int, 0, n)
	for draw := 0; draw < n; draw++ {
		r := rng.Float64() * total
		chosen := lastPositive
		for i, genome := range population {
			if genome.Fitness <= 0 {
				continue
			}
			r -= genome.Fitness
			if r <= 0 {
				chosen = i
				break
			}
		}
		picked = append(picked, chosen)
	}
	return picked, nil
}

// UniformSelector draws parents uniformly at random.
type UniformSelector struct{}

func (UniformSelector) Name() string {
	return "uniform"
}

func (UniformSelector) Select(rng *rand.Rand, population []model.Genome, n int) ([]int, error) {
	if err := checkSelectArgs(rng, population, n); err != nil {
		return nil, err
	}
	picked := make([]int, n)
	for i := range picked {
		picked[i] = rng.Intn(len(population))
	}
	return picked, nil
}

func checkSelectArgs(rng *rand.Rand, population []model.Genome, n int) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if len(population) == 0 {
		return fmt.Errorf("population is empty")
	}
	if n < 0 {
		return fmt.Errorf("invalid selection count: %d", n)
	}
	return nil
}

func (e *Engine) selectParents(population []model.Genome) ([]model.Genome, error) {
	indices, err := e.cfg.Selector.Select(e.rng, population, e.cfg.PopulationSize)
	if err != nil {
		return nil, fmt.Errorf("select with %s: %w", e.cfg.Selector.Name(), err)
	}
	if len(indices) != e.cfg.PopulationSize {
		return nil, fmt.Errorf("selector %s returned %d parents, want %d", e.cfg.Selector.Name(), len(indices), e.cfg.PopulationSize)
	}
	selected := make([]model.Genome, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(population) {
			return nil, fmt.Errorf("selector %s returned out of range index %d", e.cfg.Selector.Name(), idx)
		}
		clone := population[idx].Clone()
		clone.ID = newGenomeID(e.rng)
		clone.Age = 0
		selected = append(selected, clone)
	}
	return selected, nil
}
