package evo

import (
	"errors"
	"fmt"

	"genelab/internal/catalog"
)

const DefaultGenesPerGenome = 3

// Genome scalar bounds.
const (
	MinMutationRate = 0.005
	MaxMutationRate = 0.05

	initialTraitCeiling    = 0.5
	initialMutationRateMin = 0.01
	initialMutationRateMax = 0.03

	fitnessNoise      = 0.05
	traitJitter       = 0.025
	mutationRateDrift = 0.0025
)

var (
	ErrInvalidConfig  = errors.New("invalid engine config")
	ErrEmptyCatalog   = errors.New("gene catalog is empty")
	ErrNotInitialized = errors.New("engine is not initialized")
	// ErrStop may be returned from a GenerationFunc to end a run after the
	// generation that produced the snapshot.
	ErrStop = errors.New("stop requested")
)

type Config struct {
	PopulationSize int
	Generations    int
	// MutationProbability and SelectionPressure are validated and recorded but
	// not consulted: each genome mutates at its own rate and selection is plain
	// fitness-proportional.
	MutationProbability float64
	SelectionPressure   float64
	CrossoverRate       float64
	GenesPerGenome      int
	Seed                int64

	Evaluator      Evaluator
	Selector       Selector
	MutationSource catalog.GeneSource
	Control        <-chan Command
}

func (c Config) Validate() error {
	if c.PopulationSize < 2 {
		return fmt.Errorf("%w: population size must be >= 2, got %d", ErrInvalidConfig, c.PopulationSize)
	}
	if c.Generations < 0 {
		return fmt.Errorf("%w: generations must be >= 0, got %d", ErrInvalidConfig, c.Generations)
	}
	if c.GenesPerGenome < 0 {
		return fmt.Errorf("%w: genes per genome must be >= 0, got %d", ErrInvalidConfig, c.GenesPerGenome)
	}
	rates := []struct {
		name  string
		value float64
	}{
		{"mutation probability", c.MutationProbability},
		{"selection pressure", c.SelectionPressure},
		{"crossover rate", c.CrossoverRate},
	}
	for _, rate := range rates {
		if !(rate.value >= 0 && rate.value <= 1) {
			return fmt.Errorf("%w: %s must be in [0, 1], got %g", ErrInvalidConfig, rate.name, rate.value)
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.GenesPerGenome == 0 {
		c.GenesPerGenome = DefaultGenesPerGenome
	}
	if c.Evaluator == nil {
		c.Evaluator = ComplexityEvaluator{}
	}
	if c.Selector == nil {
		c.Selector = RouletteSelector{}
	}
	if c.MutationSource == nil {
		c.MutationSource = catalog.Mutations()
	}
	return c
}
