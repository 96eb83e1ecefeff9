package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"genelab/internal/catalog"
	"genelab/internal/model"
)

type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseInitialized Phase = "initialized"
	PhaseEvaluating  Phase = "evaluating"
	PhaseSelecting   Phase = "selecting"
	PhaseRecombining Phase = "recombining"
	PhaseMutating    Phase = "mutating"
	PhaseAging       Phase = "aging"
	PhaseTerminated  Phase = "terminated"
)

// Snapshot is handed to a GenerationFunc after each completed generation. The
// population is a deep copy owned by the receiver.
type Snapshot struct {
	Generation  int
	Population  []model.Genome
	Diagnostics model.GenerationDiagnostics
}

// GenerationFunc observes completed generations. Returning ErrStop ends the run
// gracefully; any other error aborts it.
type GenerationFunc func(Snapshot) error

type Engine struct {
	cfg Config
	rng *rand.Rand

	mu          sync.RWMutex
	phase       Phase
	population  []model.Genome
	generation  int
	history     []model.GenerationDiagnostics
	stopped     bool
	catalogSize int
}

func NewEngine(cfg Config) (*Engine, error) {
	return NewEngineWithRand(cfg, rand.New(rand.NewSource(cfg.Seed)))
}

// NewEngineWithRand builds an engine drawing every random number from rng.
func NewEngineWithRand(cfg Config, rng *rand.Rand) (*Engine, error) {
	if rng == nil {
		return nil, fmt.Errorf("%w: random source is required", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:   cfg.withDefaults(),
		rng:   rng,
		phase: PhaseIdle,
	}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Initialize seeds a fresh population from cat. It may be called again once a
// previous run has terminated.
func (e *Engine) Initialize(cat catalog.Catalog) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.phase {
	case PhaseIdle, PhaseInitialized, PhaseTerminated:
	default:
		return fmt.Errorf("cannot initialize while %s", e.phase)
	}
	if cat.Len() == 0 {
		return fmt.Errorf("%w: initialize requires at least one gene", ErrEmptyCatalog)
	}

	population := make([]model.Genome, 0, e.cfg.PopulationSize)
	for i := 0; i < e.cfg.PopulationSize; i++ {
		population = append(population, model.Genome{
			ID:               newGenomeID(e.rng),
			Genes:            cat.Sample(e.rng, e.cfg.GenesPerGenome),
			Fitness:          e.rng.Float64(),
			Consciousness:    e.rng.Float64() * initialTraitCeiling,
			QuantumCoherence: e.rng.Float64() * initialTraitCeiling,
			MutationRate:     uniform(e.rng, initialMutationRateMin, initialMutationRateMax),
			Age:              0,
		})
	}

	e.population = population
	e.generation = 0
	e.history = nil
	e.stopped = false
	e.catalogSize = cat.Len()
	e.phase = PhaseInitialized
	return nil
}

// Run advances the population Generations times and returns it sorted by
// fitness, best first. Context cancellation, control commands and the callback
// are only consulted between generations.
func (e *Engine) Run(ctx context.Context, onGeneration GenerationFunc) ([]model.Genome, error) {
	e.mu.Lock()
	if e.phase == PhaseIdle {
		e.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if e.phase != PhaseInitialized {
		phase := e.phase
		e.mu.Unlock()
		return nil, fmt.Errorf("engine cannot run while %s", phase)
	}
	working := model.ClonePopulation(e.population)
	e.stopped = false
	// Claim the engine before releasing the lock so a second Run fails fast.
	e.phase = PhaseEvaluating
	e.mu.Unlock()

	if e.cfg.Generations == 0 {
		e.evaluate(working)
		e.publish(working, 0, nil)
		e.setPhase(PhaseTerminated)
		return sortByFitness(model.ClonePopulation(working)), nil
	}

	prevMean := 0.0
	for gen := 0; gen < e.cfg.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			e.setPhase(PhaseTerminated)
			return nil, err
		}
		stop, err := e.awaitControl(ctx)
		if err != nil {
			e.setPhase(PhaseTerminated)
			return nil, err
		}
		if stop {
			e.markStopped()
			break
		}

		e.setPhase(PhaseEvaluating)
		e.evaluate(working)
		diagnostics := summarizeGeneration(working, gen+1, prevMean, gen > 0)
		prevMean = diagnostics.MeanFitness

		e.setPhase(PhaseSelecting)
		selected, err := e.selectParents(working)
		if err != nil {
			e.setPhase(PhaseTerminated)
			return nil, err
		}

		e.setPhase(PhaseRecombining)
		next, crossovers := e.recombine(working, selected)

		e.setPhase(PhaseMutating)
		events, byOperator := e.mutate(next)

		e.setPhase(PhaseAging)
		for i := range next {
			next[i].Age++
		}

		diagnostics.Crossovers = crossovers
		diagnostics.MutationEvents = events
		diagnostics.MutationsByOperator = byOperator
		working = next
		e.publish(working, gen+1, &diagnostics)

		if onGeneration != nil {
			err := onGeneration(Snapshot{
				Generation:  gen + 1,
				Population:  model.ClonePopulation(working),
				Diagnostics: cloneDiagnostics(diagnostics),
			})
			if errors.Is(err, ErrStop) {
				e.markStopped()
				break
			}
			if err != nil {
				e.setPhase(PhaseTerminated)
				return nil, fmt.Errorf("generation %d callback: %w", gen+1, err)
			}
		}
	}

	e.setPhase(PhaseTerminated)
	return sortByFitness(model.ClonePopulation(working)), nil
}

// CurrentPopulation returns a deep copy of the last published population.
func (e *Engine) CurrentPopulation() []model.Genome {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return model.ClonePopulation(e.population)
}

// CurrentGeneration is the number of generations completed so far.
func (e *Engine) CurrentGeneration() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.generation
}

func (e *Engine) Phase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

// Stopped reports whether the last run ended on a stop request.
func (e *Engine) Stopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stopped
}

func (e *Engine) History() []model.GenerationDiagnostics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.GenerationDiagnostics, 0, len(e.history))
	for _, d := range e.history {
		out = append(out, cloneDiagnostics(d))
	}
	return out
}

func (e *Engine) CatalogSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.catalogSize
}

func (e *Engine) setPhase(phase Phase) {
	e.mu.Lock()
	e.phase = phase
	e.mu.Unlock()
}

func (e *Engine) markStopped() {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
}

func (e *Engine) publish(population []model.Genome, generation int, diagnostics *model.GenerationDiagnostics) {
	copied := model.ClonePopulation(population)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.population = copied
	e.generation = generation
	if diagnostics != nil {
		e.history = append(e.history, cloneDiagnostics(*diagnostics))
	}
}

func sortByFitness(population []model.Genome) []model.Genome {
	sort.SliceStable(population, func(i, j int) bool {
		return population[i].Fitness > population[j].Fitness
	})
	return population
}

func cloneDiagnostics(d model.GenerationDiagnostics) model.GenerationDiagnostics {
	if d.MutationsByOperator != nil {
		byOperator := make(map[string]int, len(d.MutationsByOperator))
		for k, v := range d.MutationsByOperator {
			byOperator[k] = v
		}
		d.MutationsByOperator = byOperator
	}
	return d
}
