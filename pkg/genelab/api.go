package genelab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/conc/pool"

	"genelab/internal/catalog"
	"genelab/internal/evo"
	"genelab/internal/model"
	"genelab/internal/platform"
	"genelab/internal/stats"
	"genelab/internal/storage"
	"genelab/internal/telemetry"
)

const (
	defaultBenchmarksDir = "benchmarks"
	defaultExportsDir    = "exports"
	defaultDBPath        = "genelab.db"

	defaultPopulation          = 20
	defaultGenerations         = 50
	defaultCrossoverRate       = 0.7
	defaultMutationProbability = 0.1
	defaultSelectionPressure   = 0.5
	defaultTopCount            = 5
	defaultBenchmarkWorkers    = 4
)

type Options struct {
	StoreKind     string
	DBPath        string
	BenchmarksDir string
	ExportsDir    string
	Logger        *slog.Logger
	// Registerer receives the run metrics. Nil leaves metrics unregistered.
	Registerer prometheus.Registerer
}

type Client struct {
	store   storage.Store
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu  sync.Mutex
	lab *platform.Lab

	benchmarksDir string
	exportsDir    string
}

// RunRequest is used as given: zero rates and sizes are real settings, and
// out-of-range values are rejected with evo.ErrInvalidConfig. Start from
// DefaultRunRequest for the CLI defaults.
type RunRequest struct {
	RunID               string  `json:"run_id,omitempty"`
	Population          int     `json:"population"`
	Generations         int     `json:"generations"`
	GenesPerGenome      int     `json:"genes_per_genome"`
	CrossoverRate       float64 `json:"crossover_rate"`
	MutationProbability float64 `json:"mutation_probability"`
	SelectionPressure   float64 `json:"selection_pressure"`
	Seed                int64   `json:"seed"`
	Selection           string  `json:"selection"`
	TopCount            int     `json:"top_count"`

	OnGeneration func(generation int, diagnostics model.GenerationDiagnostics) `json:"-"`
}

type RunSummary struct {
	RunID                string
	Status               model.RunStatus
	ArtifactsDir         string
	CompletedGenerations int
	BestByGeneration     []float64
	MeanByGeneration     []float64
	FinalBestFitness     float64
	Top                  []model.TopGenomeRecord
}

type BenchmarkRequest struct {
	Seeds          []int64
	Workers        int
	MinImprovement float64
	Run            RunRequest
}

type BenchmarkSummary struct {
	BenchmarkID  string
	Directory    string
	Summary      stats.BenchmarkSummary
	ArtifactDirs []string
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID                string
	CreatedAtUTC         string
	Status               model.RunStatus
	Seed                 int64
	Population           int
	Generations          int
	CompletedGenerations int
	FinalBestFitness     float64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type DiagnosticsRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type TopGenomesRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

type SnapshotRequest struct {
	RunID  string
	Latest bool
	// Generation selects a stored generation; negative picks the last one.
	Generation int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	benchmarksDir := opts.BenchmarksDir
	if benchmarksDir == "" {
		benchmarksDir = defaultBenchmarksDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	metrics, err := telemetry.NewMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:         store,
		logger:        logger,
		metrics:       metrics,
		benchmarksDir: benchmarksDir,
		exportsDir:    exportsDir,
	}, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.lab != nil {
		c.lab.Shutdown()
	}
	c.mu.Unlock()
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensureLab(ctx)
	return err
}

// Catalog lists the built-in seed genes.
func (c *Client) Catalog() []model.Gene {
	return catalog.Default().Genes()
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	req = withRunDefaults(req)
	if req.RunID == "" {
		req.RunID = fmt.Sprintf("run-%d-%d", req.Seed, time.Now().UTC().UnixNano())
	} else if _, exists, err := stats.ReadRunConfig(c.benchmarksDir, req.RunID); err != nil {
		return RunSummary{}, err
	} else if exists {
		// A memory store cannot see runs from earlier processes; their artifacts can.
		return RunSummary{}, fmt.Errorf("%w: %s", platform.ErrRunExists, req.RunID)
	}
	lab, err := c.ensureLab(ctx)
	if err != nil {
		return RunSummary{}, err
	}
	result, err := c.runEvolution(ctx, lab, req)
	if err != nil {
		return RunSummary{}, err
	}
	runDir, err := c.writeArtifacts(req, result)
	if err != nil {
		return RunSummary{}, err
	}
	return summarizeRun(result, runDir), nil
}

// Benchmark runs req.Run once per seed, concurrently, and writes a summary
// under the benchmarks directory.
func (c *Client) Benchmark(ctx context.Context, req BenchmarkRequest) (BenchmarkSummary, error) {
	if len(req.Seeds) == 0 {
		return BenchmarkSummary{}, errors.New("benchmark requires at least one seed")
	}
	if req.Run.RunID != "" {
		return BenchmarkSummary{}, errors.New("benchmark assigns run ids; leave run id empty")
	}
	seen := make(map[int64]struct{}, len(req.Seeds))
	for _, seed := range req.Seeds {
		if _, dup := seen[seed]; dup {
			return BenchmarkSummary{}, fmt.Errorf("duplicate benchmark seed: %d", seed)
		}
		seen[seed] = struct{}{}
	}
	if req.Workers <= 0 {
		req.Workers = defaultBenchmarkWorkers
	}
	base := withRunDefaults(req.Run)
	lab, err := c.ensureLab(ctx)
	if err != nil {
		return BenchmarkSummary{}, err
	}

	now := time.Now().UTC()
	benchmarkID := fmt.Sprintf("benchmark-%d", now.UnixNano())
	requests := make([]RunRequest, len(req.Seeds))
	results := make([]platform.EvolutionResult, len(req.Seeds))
	errs := make([]error, len(req.Seeds))

	p := pool.New().WithMaxGoroutines(req.Workers)
	for i, seed := range req.Seeds {
		run := base
		run.Seed = seed
		run.RunID = fmt.Sprintf("%s-seed-%d", benchmarkID, seed)
		requests[i] = run
		p.Go(func() {
			results[i], errs[i] = c.runEvolution(ctx, lab, run)
		})
	}
	p.Wait()
	if err := errors.Join(errs...); err != nil {
		return BenchmarkSummary{}, err
	}

	summary := stats.BenchmarkSummary{
		BenchmarkID:    benchmarkID,
		PopulationSize: base.Population,
		Generations:    base.Generations,
		CreatedAtUTC:   now.Format(time.RFC3339Nano),
		MinImprovement: req.MinImprovement,
		Results:        make([]stats.BenchmarkSeedResult, 0, len(results)),
	}
	dirs := make([]string, 0, len(results))
	// Artifacts and the run index are written sequentially.
	for i, result := range results {
		runDir, err := c.writeArtifacts(requests[i], result)
		if err != nil {
			return BenchmarkSummary{}, err
		}
		dirs = append(dirs, filepath.Clean(runDir))
		initial := 0.0
		if len(result.BestByGeneration) > 0 {
			initial = result.BestByGeneration[0]
		}
		summary.Results = append(summary.Results, stats.BenchmarkSeedResult{
			Seed:        requests[i].Seed,
			RunID:       result.RunID,
			InitialBest: initial,
			FinalBest:   result.BestFinalFitness,
			Improvement: result.BestFinalFitness - initial,
		})
	}
	summary.Summarize()

	benchDir := filepath.Join(c.benchmarksDir, benchmarkID)
	if err := stats.WriteBenchmarkSummary(benchDir, summary); err != nil {
		return BenchmarkSummary{}, err
	}
	c.logger.Info("benchmark finished",
		"benchmark_id", benchmarkID,
		"seeds", len(req.Seeds),
		"final_best_mean", summary.FinalBestMean,
		"passed", summary.Passed,
	)
	return BenchmarkSummary{
		BenchmarkID:  benchmarkID,
		Directory:    filepath.Clean(benchDir),
		Summary:      summary,
		ArtifactDirs: dirs,
	}, nil
}

// Runs lists indexed runs, newest first.
func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:                e.RunID,
			CreatedAtUTC:         e.CreatedAtUTC,
			Status:               e.Status,
			Seed:                 e.Seed,
			Population:           e.PopulationSize,
			Generations:          e.Generations,
			CompletedGenerations: e.CompletedGenerations,
			FinalBestFitness:     e.FinalBestFitness,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID, err := c.resolveRunID(req.RunID, req.Latest, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	exportedDir, err := stats.ExportRunArtifacts(c.benchmarksDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// FitnessHistory reads the best-fitness series from the store, falling back to
// the run's artifacts when the store does not hold it.
func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]float64, error) {
	if err := checkQuery(req.RunID, req.Latest, req.Limit); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "fitness history")
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureLab(ctx); err != nil {
		return nil, err
	}

	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, ok, err = stats.ReadFitnessSeries(c.benchmarksDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]float64(nil), history...), nil
}

func (c *Client) Diagnostics(ctx context.Context, req DiagnosticsRequest) ([]model.GenerationDiagnostics, error) {
	if err := checkQuery(req.RunID, req.Latest, req.Limit); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "diagnostics")
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureLab(ctx); err != nil {
		return nil, err
	}

	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		diagnostics, ok, err = stats.ReadGenerationDiagnostics(c.benchmarksDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(diagnostics) > req.Limit {
		diagnostics = diagnostics[:req.Limit]
	}
	out := make([]model.GenerationDiagnostics, len(diagnostics))
	copy(out, diagnostics)
	return out, nil
}

func (c *Client) TopGenomes(ctx context.Context, req TopGenomesRequest) ([]model.TopGenomeRecord, error) {
	if err := checkQuery(req.RunID, req.Latest, req.Limit); err != nil {
		return nil, err
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "top genomes")
	if err != nil {
		return nil, err
	}
	if _, err := c.ensureLab(ctx); err != nil {
		return nil, err
	}

	top, ok, err := c.store.GetTopGenomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		top, ok, err = stats.ReadTopGenomes(c.benchmarksDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("top genomes not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(top) > req.Limit {
		top = top[:req.Limit]
	}
	out := make([]model.TopGenomeRecord, len(top))
	copy(out, top)
	return out, nil
}

// Snapshot loads a stored population. Snapshots live only in the store, so a
// memory-backed client sees the runs it executed itself.
func (c *Client) Snapshot(ctx context.Context, req SnapshotRequest) (model.PopulationSnapshot, error) {
	if req.RunID != "" && req.Latest {
		return model.PopulationSnapshot{}, errors.New("use either run id or latest")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest, "snapshot")
	if err != nil {
		return model.PopulationSnapshot{}, err
	}
	lab, err := c.ensureLab(ctx)
	if err != nil {
		return model.PopulationSnapshot{}, err
	}

	generation := req.Generation
	if generation < 0 {
		generations, err := lab.SnapshotGenerations(ctx, runID)
		if err != nil {
			return model.PopulationSnapshot{}, err
		}
		if len(generations) == 0 {
			return model.PopulationSnapshot{}, fmt.Errorf("no snapshots stored for run id: %s", runID)
		}
		generation = generations[len(generations)-1]
	}
	return lab.Snapshot(ctx, runID, generation)
}

func (c *Client) Pause(ctx context.Context, runID string) error {
	lab, err := c.ensureLab(ctx)
	if err != nil {
		return err
	}
	return lab.PauseRun(runID)
}

func (c *Client) Continue(ctx context.Context, runID string) error {
	lab, err := c.ensureLab(ctx)
	if err != nil {
		return err
	}
	return lab.ContinueRun(runID)
}

func (c *Client) Stop(ctx context.Context, runID string) error {
	lab, err := c.ensureLab(ctx)
	if err != nil {
		return err
	}
	return lab.StopRun(runID)
}

// ActiveRuns lists runs currently executing in this client.
func (c *Client) ActiveRuns(ctx context.Context) ([]string, error) {
	lab, err := c.ensureLab(ctx)
	if err != nil {
		return nil, err
	}
	return lab.ActiveRuns(), nil
}

func (c *Client) ensureLab(ctx context.Context) (*platform.Lab, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lab != nil {
		return c.lab, nil
	}
	lab := platform.NewLab(platform.Config{Store: c.store, Logger: c.logger, Metrics: c.metrics})
	if err := lab.Init(ctx); err != nil {
		return nil, err
	}
	c.lab = lab
	return c.lab, nil
}

func (c *Client) runEvolution(ctx context.Context, lab *platform.Lab, req RunRequest) (platform.EvolutionResult, error) {
	selector, err := selectionFromName(req.Selection)
	if err != nil {
		return platform.EvolutionResult{}, err
	}
	cfg := platform.EvolutionConfig{
		RunID:               req.RunID,
		PopulationSize:      req.Population,
		Generations:         req.Generations,
		GenesPerGenome:      req.GenesPerGenome,
		MutationProbability: req.MutationProbability,
		SelectionPressure:   req.SelectionPressure,
		CrossoverRate:       req.CrossoverRate,
		Seed:                req.Seed,
		Selector:            selector,
		TopCount:            req.TopCount,
	}
	if req.OnGeneration != nil {
		observe := req.OnGeneration
		cfg.OnGeneration = func(s evo.Snapshot) {
			observe(s.Generation, s.Diagnostics)
		}
	}
	return lab.RunEvolution(ctx, cfg)
}

func (c *Client) writeArtifacts(req RunRequest, result platform.EvolutionResult) (string, error) {
	runDir, err := stats.WriteRunArtifacts(c.benchmarksDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:               result.RunID,
			PopulationSize:      req.Population,
			Generations:         req.Generations,
			GenesPerGenome:      req.GenesPerGenome,
			CrossoverRate:       req.CrossoverRate,
			MutationProbability: req.MutationProbability,
			SelectionPressure:   req.SelectionPressure,
			Seed:                req.Seed,
			Evaluator:           result.Evaluator,
			Selector:            result.Selector,
			CatalogSize:         result.CatalogSize,
		},
		BestByGeneration:      result.BestByGeneration,
		MeanByGeneration:      result.MeanByGeneration,
		GenerationDiagnostics: result.Diagnostics,
		FinalBestFitness:      result.BestFinalFitness,
		TopGenomes:            result.TopFinal,
	})
	if err != nil {
		return "", err
	}

	if err := stats.AppendRunIndex(c.benchmarksDir, stats.RunIndexEntry{
		RunID:                result.RunID,
		Status:               result.Status,
		PopulationSize:       req.Population,
		Generations:          req.Generations,
		CompletedGenerations: result.CompletedGenerations,
		Seed:                 req.Seed,
		FinalBestFitness:     result.BestFinalFitness,
		CreatedAtUTC:         result.CreatedAtUTC,
	}); err != nil {
		return "", err
	}
	return runDir, nil
}

func (c *Client) resolveRunID(runID string, latest bool, what string) (string, error) {
	if !latest {
		if runID == "" {
			return "", fmt.Errorf("%s requires run id or latest", what)
		}
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func checkQuery(runID string, latest bool, limit int) error {
	if runID != "" && latest {
		return errors.New("use either run id or latest")
	}
	if limit < 0 {
		return errors.New("limit must be >= 0")
	}
	return nil
}

func summarizeRun(result platform.EvolutionResult, runDir string) RunSummary {
	return RunSummary{
		RunID:                result.RunID,
		Status:               result.Status,
		ArtifactsDir:         filepath.Clean(runDir),
		CompletedGenerations: result.CompletedGenerations,
		BestByGeneration:     append([]float64(nil), result.BestByGeneration...),
		MeanByGeneration:     append([]float64(nil), result.MeanByGeneration...),
		FinalBestFitness:     result.BestFinalFitness,
		Top:                  append([]model.TopGenomeRecord(nil), result.TopFinal...),
	}
}

// DefaultRunRequest returns the settings genelabctl starts from.
func DefaultRunRequest() RunRequest {
	return RunRequest{
		Population:          defaultPopulation,
		Generations:         defaultGenerations,
		GenesPerGenome:      evo.DefaultGenesPerGenome,
		CrossoverRate:       defaultCrossoverRate,
		MutationProbability: defaultMutationProbability,
		SelectionPressure:   defaultSelectionPressure,
		Seed:                1,
		Selection:           "roulette",
		TopCount:            defaultTopCount,
	}
}

// withRunDefaults fills only fields whose zero value has no meaning of its own.
func withRunDefaults(req RunRequest) RunRequest {
	if req.GenesPerGenome == 0 {
		req.GenesPerGenome = evo.DefaultGenesPerGenome
	}
	if req.Selection == "" {
		req.Selection = "roulette"
	}
	if req.TopCount <= 0 {
		req.TopCount = defaultTopCount
	}
	return req
}

func selectionFromName(name string) (evo.Selector, error) {
	switch name {
	case "roulette":
		return evo.RouletteSelector{}, nil
	case "uniform":
		return evo.UniformSelector{}, nil
	default:
		return nil, fmt.Errorf("unsupported selection strategy: %s", name)
	}
}

// SelectionStrategies lists the names accepted by RunRequest.Selection.
func SelectionStrategies() []string {
	return []string{"roulette", "uniform"}
}
