package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"genelab/internal/config"
	"genelab/internal/model"
	"genelab/internal/platform"
	"genelab/internal/server"
	"genelab/internal/storage"
	"genelab/internal/telemetry"
	"genelab/pkg/genelab"
)

const serviceName = "genelabctl"

type cli struct {
	env    config.Env
	logger *slog.Logger
	out    io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	env, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(os.Stderr, env.LogLevel, env.LogFormat)
	if err != nil {
		return err
	}
	return dispatch(ctx, cli{env: env, logger: logger, out: os.Stdout}, args)
}

func dispatch(ctx context.Context, c cli, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return c.runInit(ctx, args[1:])
	case "run":
		return c.runRun(ctx, args[1:])
	case "benchmark":
		return c.runBenchmark(ctx, args[1:])
	case "runs":
		return c.runRuns(ctx, args[1:])
	case "fitness":
		return c.runFitness(ctx, args[1:])
	case "diagnostics":
		return c.runDiagnostics(ctx, args[1:])
	case "top":
		return c.runTop(ctx, args[1:])
	case "snapshot":
		return c.runSnapshot(ctx, args[1:])
	case "export":
		return c.runExport(ctx, args[1:])
	case "catalog":
		return c.runCatalog(ctx, args[1:])
	case "serve":
		return c.runServe(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func (c cli) runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind := fs.String("store", c.env.StoreKind, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", c.env.SQLitePath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := c.newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "initialized store=%s\n", *storeKind)
	return nil
}

// runFlags registers the evolution flags shared by run and benchmark.
type runFlags struct {
	configPath          *string
	population          *int
	generations         *int
	genes               *int
	crossoverRate       *float64
	mutationProbability *float64
	selectionPressure   *float64
	seed                *int64
	selection           *string
	top                 *int
}

func registerRunFlags(fs *flag.FlagSet) runFlags {
	defaults := genelab.DefaultRunRequest()
	return runFlags{
		configPath:          fs.String("config", "", "optional run config JSON path"),
		population:          fs.Int("pop", defaults.Population, "population size (>= 2)"),
		generations:         fs.Int("gens", defaults.Generations, "generation count (>= 0)"),
		genes:               fs.Int("genes", defaults.GenesPerGenome, "genes sampled per initial genome"),
		crossoverRate:       fs.Float64("crossover-rate", defaults.CrossoverRate, "probability in [0,1] that a parent pair recombines"),
		mutationProbability: fs.Float64("mutation-probability", defaults.MutationProbability, "recorded with the run; genomes mutate at their own rate"),
		selectionPressure:   fs.Float64("selection-pressure", defaults.SelectionPressure, "recorded with the run; selection is fitness proportional"),
		seed:                fs.Int64("seed", defaults.Seed, "rng seed"),
		selection:           fs.String("selection", defaults.Selection, "parent selection strategy: "+strings.Join(genelab.SelectionStrategies(), "|")),
		top:                 fs.Int("top", defaults.TopCount, "top genomes kept per run"),
	}
}

// request layers explicitly set flags over the config file, and the config file
// over genelab.DefaultRunRequest.
func (f runFlags) request(fs *flag.FlagSet, runID string) (genelab.RunRequest, error) {
	setFlags := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) {
		setFlags[fl.Name] = true
	})

	req, err := loadOrDefaultRunRequest(*f.configPath)
	if err != nil {
		return genelab.RunRequest{}, err
	}
	overrideFromFlags(&req, setFlags, map[string]any{
		"run-id":               runID,
		"pop":                  *f.population,
		"gens":                 *f.generations,
		"genes":                *f.genes,
		"crossover-rate":       *f.crossoverRate,
		"mutation-probability": *f.mutationProbability,
		"selection-pressure":   *f.selectionPressure,
		"seed":                 *f.seed,
		"selection":            *f.selection,
		"top":                  *f.top,
	})
	return req, nil
}

func (c cli) runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	flags := registerRunFlags(fs)
	runID := fs.String("run-id", "", "explicit run id (optional)")
	storeKind := fs.String("store", c.env.StoreKind, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", c.env.SQLitePath, "sqlite database path")
	progress := fs.Bool("progress", false, "print one line per generation")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := flags.request(fs, *runID)
	if err != nil {
		return err
	}
	if *progress {
		req.OnGeneration = func(generation int, d model.GenerationDiagnostics) {
			fmt.Fprintf(c.out, "generation=%d best=%.6f mean=%.6f diversity=%.4f mutations=%d\n",
				generation, d.BestFitness, d.MeanFitness, d.DiversityIndex, d.MutationEvents)
		}
	}

	shutdown, err := c.setupTracing(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = shutdown(context.WithoutCancel(ctx))
	}()

	client, err := c.newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(c.out, map[string]any{
			"run_id":                summary.RunID,
			"status":                summary.Status,
			"artifacts_dir":         summary.ArtifactsDir,
			"completed_generations": summary.CompletedGenerations,
			"best_by_generation":    summary.BestByGeneration,
			"mean_by_generation":    summary.MeanByGeneration,
			"final_best_fitness":    summary.FinalBestFitness,
		})
	}

	fmt.Fprintf(c.out, "run_id=%s status=%s generations=%d final_best_fitness=%.6f artifacts=%s\n",
		summary.RunID,
		summary.Status,
		summary.CompletedGenerations,
		summary.FinalBestFitness,
		summary.ArtifactsDir,
	)
	return nil
}

func (c cli) runBenchmark(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("benchmark", flag.ContinueOnError)
	flags := registerRunFlags(fs)
	seedsRaw := fs.String("seeds", "", "comma separated seeds (overrides --seed and --seed-count)")
	seedCount := fs.Int("seed-count", 5, "number of consecutive seeds starting at --seed")
	workers := fs.Int("workers", 4, "concurrent runs")
	minImprovement := fs.Float64("min-improvement", 0.0, "minimum mean improvement for the benchmark to pass")
	storeKind := fs.String("store", c.env.StoreKind, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", c.env.SQLitePath, "sqlite database path")
	jsonOut := fs.Bool("json", false, "emit benchmark summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := flags.request(fs, "")
	if err != nil {
		return err
	}
	seeds, err := parseSeeds(*seedsRaw, req.Seed, *seedCount)
	if err != nil {
		return err
	}

	shutdown, err := c.setupTracing(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = shutdown(context.WithoutCancel(ctx))
	}()

	client, err := c.newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	bench, err := client.Benchmark(ctx, genelab.BenchmarkRequest{
		Seeds:          seeds,
		Workers:        *workers,
		MinImprovement: *minImprovement,
		Run:            req,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(c.out, bench.Summary)
	}

	for _, result := range bench.Summary.Results {
		fmt.Fprintf(c.out, "seed=%d run_id=%s initial_best=%.6f final_best=%.6f improvement=%.6f\n",
			result.Seed, result.RunID, result.InitialBest, result.FinalBest, result.Improvement)
	}
	fmt.Fprintf(c.out, "benchmark_id=%s final_best_mean=%.6f final_best_std=%.6f mean_improvement=%.6f passed=%t summary=%s\n",
		bench.BenchmarkID,
		bench.Summary.FinalBestMean,
		bench.Summary.FinalBestStd,
		bench.Summary.MeanImprovement,
		bench.Summary.Passed,
		bench.Directory,
	)
	return nil
}

func (c cli) runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := c.newClient(storage.KindMemory, "")
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	runs, err := client.Runs(ctx, genelab.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "no runs found")
		return nil
	}
	if *jsonOut {
		type runsItem struct {
			RunID                string  `json:"run_id"`
			CreatedAtUTC         string  `json:"created_at_utc"`
			Status               string  `json:"status"`
			Seed                 int64   `json:"seed"`
			PopulationSize       int     `json:"population_size"`
			Generations          int     `json:"generations"`
			CompletedGenerations int     `json:"completed_generations"`
			FinalBestFitness     float64 `json:"final_best_fitness"`
		}
		items := make([]runsItem, 0, len(runs))
		for _, r := range runs {
			items = append(items, runsItem{
				RunID:                r.RunID,
				CreatedAtUTC:         r.CreatedAtUTC,
				Status:               string(r.Status),
				Seed:                 r.Seed,
				PopulationSize:       r.Population,
				Generations:          r.Generations,
				CompletedGenerations: r.CompletedGenerations,
				FinalBestFitness:     r.FinalBestFitness,
			})
		}
		return writeJSON(c.out, items)
	}

	for _, r := range runs {
		fmt.Fprintf(c.out, "run_id=%s created_at=%s status=%s seed=%d pop=%d gens=%d/%d final_best_fitness=%.6f\n",
			r.RunID,
			r.CreatedAtUTC,
			r.Status,
			r.Seed,
			r.Population,
			r.CompletedGenerations,
			r.Generations,
			r.FinalBestFitness,
		)
	}
	return nil
}

type queryFlags struct {
	runID     *string
	latest    *bool
	limit     *int
	jsonOut   *bool
	storeKind *string
	dbPath    *string
}

func (c cli) registerQueryFlags(fs *flag.FlagSet, what string, defaultLimit int) queryFlags {
	return queryFlags{
		runID:     fs.String("run-id", "", "run id"),
		latest:    fs.Bool("latest", false, "show "+what+" for the most recent run from run index"),
		limit:     fs.Int("limit", defaultLimit, "max entries to print (<=0 for all)"),
		jsonOut:   fs.Bool("json", false, "emit "+what+" as JSON"),
		storeKind: fs.String("store", c.env.StoreKind, "store backend: memory|sqlite"),
		dbPath:    fs.String("db-path", c.env.SQLitePath, "sqlite database path"),
	}
}

func (q queryFlags) check(command string) error {
	if *q.runID != "" && *q.latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *q.runID == "" && !*q.latest {
		return fmt.Errorf("%s requires --run-id or --latest", command)
	}
	if *q.limit < 0 {
		*q.limit = 0
	}
	return nil
}

func (c cli) runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	q := c.registerQueryFlags(fs, "fitness history", 50)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := q.check("fitness"); err != nil {
		return err
	}

	client, err := c.newClient(*q.storeKind, *q.dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, genelab.FitnessHistoryRequest{
		RunID:  *q.runID,
		Latest: *q.latest,
		Limit:  *q.limit,
	})
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Fprintln(c.out, "no fitness history")
		return nil
	}
	if *q.jsonOut {
		return writeJSON(c.out, history)
	}

	for i, best := range history {
		fmt.Fprintf(c.out, "generation=%d best_fitness=%.6f\n", i+1, best)
	}
	return nil
}

func (c cli) runDiagnostics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diagnostics", flag.ContinueOnError)
	q := c.registerQueryFlags(fs, "generation diagnostics", 50)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := q.check("diagnostics"); err != nil {
		return err
	}

	client, err := c.newClient(*q.storeKind, *q.dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	diagnostics, err := client.Diagnostics(ctx, genelab.DiagnosticsRequest{
		RunID:  *q.runID,
		Latest: *q.latest,
		Limit:  *q.limit,
	})
	if err != nil {
		return err
	}
	if len(diagnostics) == 0 {
		fmt.Fprintln(c.out, "no diagnostics")
		return nil
	}
	if *q.jsonOut {
		return writeJSON(c.out, diagnostics)
	}

	for _, d := range diagnostics {
		fmt.Fprintf(c.out, "generation=%d best=%.6f mean=%.6f min=%.6f std=%.6f diversity=%.4f convergence=%.6f genes=%.2f consciousness=%.4f coherence=%.4f crossovers=%d mutations=%d\n",
			d.Generation,
			d.BestFitness,
			d.MeanFitness,
			d.MinFitness,
			d.FitnessStdDev,
			d.DiversityIndex,
			d.ConvergenceRate,
			d.MeanGeneCount,
			d.MeanConsciousness,
			d.MeanQuantumCoherence,
			d.Crossovers,
			d.MutationEvents,
		)
	}
	return nil
}

func (c cli) runTop(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	q := c.registerQueryFlags(fs, "top genomes", 5)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := q.check("top"); err != nil {
		return err
	}

	client, err := c.newClient(*q.storeKind, *q.dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	top, err := client.TopGenomes(ctx, genelab.TopGenomesRequest{
		RunID:  *q.runID,
		Latest: *q.latest,
		Limit:  *q.limit,
	})
	if err != nil {
		return err
	}
	if len(top) == 0 {
		fmt.Fprintln(c.out, "no top genomes")
		return nil
	}
	if *q.jsonOut {
		return writeJSON(c.out, top)
	}

	for _, item := range top {
		fmt.Fprintf(c.out, "rank=%d fitness=%.6f genome_id=%s genes=%s consciousness=%.4f coherence=%.4f mutation_rate=%.4f age=%d\n",
			item.Rank,
			item.Fitness,
			item.Genome.ID,
			geneList(item.Genome.Genes),
			item.Genome.Consciousness,
			item.Genome.QuantumCoherence,
			item.Genome.MutationRate,
			item.Genome.Age,
		)
	}
	return nil
}

func (c cli) runSnapshot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "use the most recent run from run index")
	generation := fs.Int("generation", -1, "generation to load (<0 for the last stored)")
	jsonOut := fs.Bool("json", false, "emit snapshot as JSON")
	storeKind := fs.String("store", c.env.StoreKind, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", c.env.SQLitePath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("snapshot requires --run-id or --latest")
	}

	client, err := c.newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	snapshot, err := client.Snapshot(ctx, genelab.SnapshotRequest{
		RunID:      *runID,
		Latest:     *latest,
		Generation: *generation,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(c.out, snapshot)
	}

	fmt.Fprintf(c.out, "run_id=%s generation=%d genomes=%d\n", snapshot.RunID, snapshot.Generation, len(snapshot.Genomes))
	for _, genome := range snapshot.Genomes {
		fmt.Fprintf(c.out, "genome_id=%s fitness=%.6f genes=%s age=%d\n", genome.ID, genome.Fitness, geneList(genome.Genes), genome.Age)
	}
	return nil
}

func (c cli) runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", c.env.ExportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := c.newClient(storage.KindMemory, "")
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, genelab.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func (c cli) runCatalog(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit catalog as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := c.newClient(storage.KindMemory, "")
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	genes := client.Catalog()
	if *jsonOut {
		return writeJSON(c.out, genes)
	}
	for _, gene := range genes {
		fmt.Fprintf(c.out, "id=%s name=%q functionality=%s complexity=%.0f\n", gene.ID, gene.Name, gene.Functionality, gene.Complexity)
	}
	return nil
}

func (c cli) runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", c.env.HTTPAddr, "listen address")
	storeKind := fs.String("store", c.env.StoreKind, "store backend: memory|sqlite")
	dbPath := fs.String("db-path", c.env.SQLitePath, "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	shutdown, err := c.setupTracing(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = shutdown(context.WithoutCancel(ctx))
	}()

	store, err := storage.NewStore(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := telemetry.NewMetrics(reg)
	if err != nil {
		return err
	}

	lab := platform.NewLab(platform.Config{
		Store:   store,
		Logger:  c.logger,
		Metrics: metrics,
		Tracer:  telemetry.Tracer(),
	})
	if err := lab.Init(ctx); err != nil {
		return err
	}

	srv := server.New(server.Config{Lab: lab, Logger: c.logger, Gatherer: reg})
	return srv.ListenAndServe(ctx, *addr)
}

func (c cli) newClient(storeKind, dbPath string) (*genelab.Client, error) {
	return genelab.New(genelab.Options{
		StoreKind:     storeKind,
		DBPath:        dbPath,
		BenchmarksDir: c.env.BenchmarksDir,
		ExportsDir:    c.env.ExportsDir,
		Logger:        c.logger,
	})
}

func (c cli) setupTracing(ctx context.Context) (func(context.Context) error, error) {
	shutdown, err := telemetry.SetupTracing(ctx, serviceName, c.env.OTelEndpoint, c.env.OTelEnabled)
	if err != nil {
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	return shutdown, nil
}

func parseSeeds(raw string, start int64, count int) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		if count <= 0 {
			return nil, errors.New("seed-count must be > 0")
		}
		seeds := make([]int64, 0, count)
		for i := 0; i < count; i++ {
			seeds = append(seeds, start+int64(i))
		}
		return seeds, nil
	}
	parts := strings.Split(raw, ",")
	seeds := make([]int64, 0, len(parts))
	for _, part := range parts {
		seed, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q: %w", part, err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

func geneList(genes []model.Gene) string {
	ids := make([]string, 0, len(genes))
	for _, gene := range genes {
		ids = append(ids, gene.ID)
	}
	return strings.Join(ids, ",")
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: genelabctl <init|run|benchmark|runs|fitness|diagnostics|top|snapshot|export|catalog|serve> [flags]", msg)
}
