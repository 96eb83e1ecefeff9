package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"genelab/internal/catalog"
	"genelab/internal/evo"
	"genelab/internal/model"
	"genelab/internal/stats"
	"genelab/internal/storage"
	"genelab/internal/telemetry"
)

var (
	ErrNotStarted   = errors.New("lab is not initialized")
	ErrRunActive    = errors.New("run already active")
	ErrRunNotActive = errors.New("run not active")
	ErrRunNotFound  = errors.New("run not found")
	ErrRunExists    = errors.New("run already exists")
)

type Config struct {
	Store   storage.Store
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Tracer  trace.Tracer
	Now     func() time.Time
}

type StopReason string

const (
	StopReasonNormal   StopReason = "normal"
	StopReasonShutdown StopReason = "shutdown"
)

type EvolutionConfig struct {
	RunID               string
	PopulationSize      int
	Generations         int
	GenesPerGenome      int
	MutationProbability float64
	SelectionPressure   float64
	CrossoverRate       float64
	Seed                int64
	// Catalog defaults to catalog.Default() when empty.
	Catalog        catalog.Catalog
	Evaluator      evo.Evaluator
	Selector       evo.Selector
	MutationSource catalog.GeneSource
	TopCount       int
	Control        chan evo.Command
	// OnGeneration observes each persisted snapshot. It runs on the engine's
	// goroutine between generations.
	OnGeneration func(evo.Snapshot)
}

type EvolutionResult struct {
	RunID                string
	Status               model.RunStatus
	CompletedGenerations int
	BestByGeneration     []float64
	MeanByGeneration     []float64
	Diagnostics          []model.GenerationDiagnostics
	Final                []model.Genome
	TopFinal             []model.TopGenomeRecord
	BestFinalFitness     float64
	Stopped              bool
	Evaluator            string
	Selector             string
	CatalogSize          int
	CreatedAtUTC         string
}

// Lab owns the store and tracks the control channel of every active run.
type Lab struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	mu             sync.RWMutex
	started        bool
	lastStopReason StopReason
	runs           map[string]chan evo.Command
}

func NewLab(cfg Config) *Lab {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Lab{
		store:          cfg.Store,
		logger:         logger,
		metrics:        cfg.Metrics,
		tracer:         tracer,
		now:            now,
		runs:           make(map[string]chan evo.Command),
		lastStopReason: StopReasonNormal,
	}
}

func (l *Lab) Init(ctx context.Context) error {
	if l.store == nil {
		return fmt.Errorf("store is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil
	}
	if err := l.store.Init(ctx); err != nil {
		return err
	}
	l.started = true
	return nil
}

func (l *Lab) Started() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.started
}

// Shutdown asks every active run to stop and refuses new runs until Init.
func (l *Lab) Shutdown() {
	_ = l.StopWithReason(StopReasonShutdown)
}

func (l *Lab) StopWithReason(reason StopReason) error {
	if reason == "" {
		reason = StopReasonNormal
	}
	if reason != StopReasonNormal && reason != StopReasonShutdown {
		return fmt.Errorf("unsupported stop reason: %s", reason)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, control := range l.runs {
		select {
		case control <- evo.CommandStop:
		default:
		}
	}
	l.started = false
	l.lastStopReason = reason
	return nil
}

func (l *Lab) LastStopReason() StopReason {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastStopReason
}

// RunEvolution runs one seeded evolution to completion, persisting a snapshot
// per generation plus the run's history, diagnostics and top genomes.
func (l *Lab) RunEvolution(ctx context.Context, cfg EvolutionConfig) (EvolutionResult, error) {
	if !l.Started() {
		return EvolutionResult{}, ErrNotStarted
	}
	if cfg.Catalog.Len() == 0 {
		cfg.Catalog = catalog.Default()
	}

	runID := cfg.RunID
	if runID == "" {
		runID = "run-" + uuid.NewString()
	}
	control := cfg.Control
	if control == nil {
		control = make(chan evo.Command, 16)
	}

	engine, err := evo.NewEngine(evo.Config{
		PopulationSize:      cfg.PopulationSize,
		Generations:         cfg.Generations,
		MutationProbability: cfg.MutationProbability,
		SelectionPressure:   cfg.SelectionPressure,
		CrossoverRate:       cfg.CrossoverRate,
		GenesPerGenome:      cfg.GenesPerGenome,
		Seed:                cfg.Seed,
		Evaluator:           cfg.Evaluator,
		Selector:            cfg.Selector,
		MutationSource:      cfg.MutationSource,
		Control:             control,
	})
	if err != nil {
		return EvolutionResult{}, err
	}
	if err := engine.Initialize(cfg.Catalog); err != nil {
		return EvolutionResult{}, err
	}
	engineCfg := engine.Config()

	if err := l.registerRunControl(runID, control); err != nil {
		return EvolutionResult{}, err
	}
	defer l.unregisterRunControl(runID)

	// A run id is never reused while its data exists.
	if _, exists, err := l.store.GetRun(ctx, runID); err != nil {
		return EvolutionResult{}, err
	} else if exists {
		return EvolutionResult{}, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}

	createdAt := l.now().UTC().Format(time.RFC3339Nano)
	record := model.RunRecord{
		VersionedRecord:     storage.CurrentVersion(),
		ID:                  runID,
		CreatedAtUTC:        createdAt,
		Status:              model.RunStatusRunning,
		Seed:                engineCfg.Seed,
		PopulationSize:      engineCfg.PopulationSize,
		Generations:         engineCfg.Generations,
		GenesPerGenome:      engineCfg.GenesPerGenome,
		CrossoverRate:       engineCfg.CrossoverRate,
		MutationProbability: engineCfg.MutationProbability,
		SelectionPressure:   engineCfg.SelectionPressure,
		CatalogSize:         cfg.Catalog.Len(),
	}
	if err := l.store.SaveRun(ctx, record); err != nil {
		return EvolutionResult{}, err
	}

	ctx, span := l.tracer.Start(ctx, "genelab.run", trace.WithAttributes(
		attribute.String("genelab.run_id", runID),
		attribute.Int("genelab.population_size", engineCfg.PopulationSize),
		attribute.Int("genelab.generations", engineCfg.Generations),
		attribute.Int64("genelab.seed", engineCfg.Seed),
	))
	defer span.End()

	logger := l.logger.With("run_id", runID)
	logger.Info("run started",
		"population_size", engineCfg.PopulationSize,
		"generations", engineCfg.Generations,
		"seed", engineCfg.Seed,
		"catalog_size", record.CatalogSize,
	)

	fail := func(err error) (EvolutionResult, error) {
		l.failRun(ctx, record, engine.CurrentGeneration(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return EvolutionResult{}, err
	}

	final, err := engine.Run(ctx, func(s evo.Snapshot) error {
		snapshot := model.PopulationSnapshot{
			VersionedRecord: storage.CurrentVersion(),
			RunID:           runID,
			Generation:      s.Generation,
			Genomes:         s.Population,
		}
		if err := l.store.SaveSnapshot(ctx, snapshot); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		l.metrics.ObserveGeneration(runID, len(s.Population), s.Diagnostics)
		span.AddEvent("generation", trace.WithAttributes(
			attribute.Int("genelab.generation", s.Generation),
			attribute.Float64("genelab.best_fitness", s.Diagnostics.BestFitness),
			attribute.Float64("genelab.mean_fitness", s.Diagnostics.MeanFitness),
		))
		logger.Debug("generation completed",
			"generation", s.Generation,
			"best_fitness", s.Diagnostics.BestFitness,
			"mean_fitness", s.Diagnostics.MeanFitness,
			"diversity_index", s.Diagnostics.DiversityIndex,
			"mutation_events", s.Diagnostics.MutationEvents,
		)
		if cfg.OnGeneration != nil {
			cfg.OnGeneration(s)
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}

	history := engine.History()
	best := make([]float64, 0, len(history))
	mean := make([]float64, 0, len(history))
	for _, d := range history {
		best = append(best, d.BestFitness)
		mean = append(mean, d.MeanFitness)
	}
	top := stats.TopGenomes(final, cfg.TopCount)
	bestFinal := 0.0
	if len(final) > 0 {
		bestFinal = final[0].Fitness
	}

	if engineCfg.Generations == 0 {
		// No generation ran; keep the evaluated initial population retrievable.
		if err := l.store.SaveSnapshot(ctx, model.PopulationSnapshot{
			VersionedRecord: storage.CurrentVersion(),
			RunID:           runID,
			Generation:      0,
			Genomes:         final,
		}); err != nil {
			return fail(fmt.Errorf("save snapshot: %w", err))
		}
	}
	if err := l.store.SaveFitnessHistory(ctx, runID, best); err != nil {
		return fail(fmt.Errorf("save fitness history: %w", err))
	}
	if err := l.store.SaveGenerationDiagnostics(ctx, runID, history); err != nil {
		return fail(fmt.Errorf("save diagnostics: %w", err))
	}
	if err := l.store.SaveTopGenomes(ctx, runID, top); err != nil {
		return fail(fmt.Errorf("save top genomes: %w", err))
	}

	status := model.RunStatusCompleted
	if engine.Stopped() {
		status = model.RunStatusStopped
	}
	record.Status = status
	record.CompletedGenerations = engine.CurrentGeneration()
	record.FinalBestFitness = bestFinal
	if err := l.store.SaveRun(ctx, record); err != nil {
		return fail(fmt.Errorf("save run: %w", err))
	}
	l.metrics.ObserveRunFinished(status)
	span.SetAttributes(
		attribute.String("genelab.status", string(status)),
		attribute.Float64("genelab.best_fitness", bestFinal),
	)
	logger.Info("run finished",
		"status", status,
		"completed_generations", record.CompletedGenerations,
		"best_fitness", bestFinal,
	)

	return EvolutionResult{
		RunID:                runID,
		Status:               status,
		CompletedGenerations: record.CompletedGenerations,
		BestByGeneration:     best,
		MeanByGeneration:     mean,
		Diagnostics:          history,
		Final:                final,
		TopFinal:             top,
		BestFinalFitness:     bestFinal,
		Stopped:              engine.Stopped(),
		Evaluator:            engineCfg.Evaluator.Name(),
		Selector:             engineCfg.Selector.Name(),
		CatalogSize:          record.CatalogSize,
		CreatedAtUTC:         createdAt,
	}, nil
}

// failRun records the failure even when ctx has been cancelled.
func (l *Lab) failRun(ctx context.Context, record model.RunRecord, completed int, cause error) {
	record.Status = model.RunStatusFailed
	record.CompletedGenerations = completed
	record.Error = cause.Error()
	if err := l.store.SaveRun(context.WithoutCancel(ctx), record); err != nil {
		l.logger.Error("record failed run", "run_id", record.ID, "error", err)
	}
	l.metrics.ObserveRunFinished(model.RunStatusFailed)
	l.logger.Error("run failed", "run_id", record.ID, "completed_generations", completed, "error", cause)
}

func (l *Lab) PauseRun(runID string) error {
	return l.sendRunCommand(runID, evo.CommandPause)
}

func (l *Lab) ContinueRun(runID string) error {
	return l.sendRunCommand(runID, evo.CommandContinue)
}

func (l *Lab) StopRun(runID string) error {
	return l.sendRunCommand(runID, evo.CommandStop)
}

// ActiveRuns lists the ids of runs currently in progress.
func (l *Lab) ActiveRuns() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.runs))
	for id := range l.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *Lab) registerRunControl(runID string, control chan evo.Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.started {
		return ErrNotStarted
	}
	if _, exists := l.runs[runID]; exists {
		return fmt.Errorf("%w: %s", ErrRunActive, runID)
	}
	l.runs[runID] = control
	return nil
}

func (l *Lab) unregisterRunControl(runID string) {
	l.mu.Lock()
	delete(l.runs, runID)
	l.mu.Unlock()
}

func (l *Lab) sendRunCommand(runID string, cmd evo.Command) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	l.mu.RLock()
	control, ok := l.runs[runID]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotActive, runID)
	}
	select {
	case control <- cmd:
		return nil
	default:
		return fmt.Errorf("run control channel is full: %s", runID)
	}
}
