package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"genelab/internal/config"
	"genelab/internal/evo"
	"genelab/internal/stats"
	"genelab/internal/storage"
)

func newTestCLI(t *testing.T) (cli, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	var out bytes.Buffer
	return cli{
		env: config.Env{
			StoreKind:     storage.KindMemory,
			SQLitePath:    filepath.Join(dir, "genelab.db"),
			BenchmarksDir: filepath.Join(dir, "benchmarks"),
			ExportsDir:    filepath.Join(dir, "exports"),
			LogLevel:      "info",
			LogFormat:     "text",
			HTTPAddr:      "127.0.0.1:0",
		},
		logger: slog.New(slog.DiscardHandler),
		out:    &out,
	}, &out, dir
}

func TestDispatchUsage(t *testing.T) {
	c, _, _ := newTestCLI(t)
	if err := dispatch(context.Background(), c, nil); err == nil || !strings.Contains(err.Error(), "usage: genelabctl") {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := dispatch(context.Background(), c, []string{"bogus"}); err == nil || !strings.Contains(err.Error(), "unknown command: bogus") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRunCommandCreatesArtifacts(t *testing.T) {
	ctx := context.Background()
	c, out, dir := newTestCLI(t)

	args := []string{"run", "--pop", "6", "--gens", "3", "--seed", "11", "--progress"}
	if err := dispatch(ctx, c, args); err != nil {
		t.Fatalf("run command: %v", err)
	}
	output := out.String()
	if strings.Count(output, "generation=") != 3 || !strings.Contains(output, "status=completed") {
		t.Fatalf("unexpected run output:\n%s", output)
	}

	entries, err := stats.ListRunIndex(filepath.Join(dir, "benchmarks"))
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one indexed run, got %d", len(entries))
	}
	runID := entries[0].RunID
	for _, file := range []string{"config.json", "fitness_history.json", "fitness_history.csv", "top_genomes.json", "generation_diagnostics.json", "fitness.png"} {
		path := filepath.Join(dir, "benchmarks", runID, file)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected artifact %s: %v", path, err)
		}
	}
	cfg, ok, err := stats.ReadRunConfig(filepath.Join(dir, "benchmarks"), runID)
	if err != nil || !ok {
		t.Fatalf("read run config: ok=%t err=%v", ok, err)
	}
	if cfg.PopulationSize != 6 || cfg.Generations != 3 || cfg.Seed != 11 || cfg.Selector != "roulette" {
		t.Fatalf("unexpected run config: %+v", cfg)
	}
}

func TestQueryCommandsReadLatestRun(t *testing.T) {
	ctx := context.Background()
	c, out, dir := newTestCLI(t)

	if err := dispatch(ctx, c, []string{"run", "--run-id", "cli-run", "--pop", "5", "--gens", "4", "--top", "3"}); err != nil {
		t.Fatalf("run command: %v", err)
	}

	out.Reset()
	if err := dispatch(ctx, c, []string{"runs"}); err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if !strings.Contains(out.String(), "run_id=cli-run") || !strings.Contains(out.String(), "gens=4/4") {
		t.Fatalf("unexpected runs output:\n%s", out.String())
	}

	out.Reset()
	if err := dispatch(ctx, c, []string{"fitness", "--latest", "--json"}); err != nil {
		t.Fatalf("fitness command: %v", err)
	}
	var history []float64
	if err := json.Unmarshal(out.Bytes(), &history); err != nil {
		t.Fatalf("decode fitness json: %v", err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 fitness entries, got %v", history)
	}

	out.Reset()
	if err := dispatch(ctx, c, []string{"diagnostics", "--run-id", "cli-run", "--limit", "2"}); err != nil {
		t.Fatalf("diagnostics command: %v", err)
	}
	if strings.Count(out.String(), "generation=") != 2 {
		t.Fatalf("expected two diagnostics lines:\n%s", out.String())
	}

	out.Reset()
	if err := dispatch(ctx, c, []string{"top", "--latest"}); err != nil {
		t.Fatalf("top command: %v", err)
	}
	if strings.Count(out.String(), "rank=") != 3 {
		t.Fatalf("expected three top genomes:\n%s", out.String())
	}

	out.Reset()
	if err := dispatch(ctx, c, []string{"export", "--latest"}); err != nil {
		t.Fatalf("export command: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "exports", "cli-run", "fitness_history.csv")); err != nil {
		t.Fatalf("expected exported series: %v", err)
	}

	// Snapshots live only in the store; a fresh memory store has none.
	if err := dispatch(ctx, c, []string{"snapshot", "--latest"}); err == nil {
		t.Fatal("expected snapshot lookup to fail against a fresh memory store")
	}
}

func TestQueryCommandsValidateFlags(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCLI(t)

	for _, args := range [][]string{
		{"fitness"},
		{"diagnostics", "--run-id", "x", "--latest"},
		{"top"},
		{"snapshot"},
		{"export"},
		{"runs", "--limit", "0"},
		{"benchmark", "--seed-count", "0"},
		{"benchmark", "--seeds", "1,x"},
	} {
		if err := dispatch(ctx, c, args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestRunsCommandEmpty(t *testing.T) {
	c, out, _ := newTestCLI(t)
	if err := dispatch(context.Background(), c, []string{"runs"}); err != nil {
		t.Fatalf("runs command: %v", err)
	}
	if strings.TrimSpace(out.String()) != "no runs found" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestBenchmarkCommand(t *testing.T) {
	ctx := context.Background()
	c, out, dir := newTestCLI(t)

	args := []string{"benchmark", "--seeds", "3,4", "--pop", "5", "--gens", "2", "--min-improvement", "-1", "--json"}
	if err := dispatch(ctx, c, args); err != nil {
		t.Fatalf("benchmark command: %v", err)
	}
	var summary stats.BenchmarkSummary
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("decode benchmark json: %v", err)
	}
	if len(summary.Results) != 2 || !summary.Passed {
		t.Fatalf("unexpected benchmark summary: %+v", summary)
	}
	if _, ok, err := stats.ReadBenchmarkSummary(filepath.Join(dir, "benchmarks"), summary.BenchmarkID); err != nil || !ok {
		t.Fatalf("expected stored benchmark summary: ok=%t err=%v", ok, err)
	}
}

func TestRunCommandWithConfigFile(t *testing.T) {
	ctx := context.Background()
	c, out, dir := newTestCLI(t)

	path := filepath.Join(dir, "run.json")
	payload := map[string]any{
		"run_id":         "from-config",
		"seed":           5,
		"crossover_rate": 0.9,
		"evolution": map[string]any{
			"population_size": 7,
			"max_generations": 2,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := dispatch(ctx, c, []string{"run", "--config", path, "--gens", "3", "--json"}); err != nil {
		t.Fatalf("run command: %v", err)
	}
	var summary struct {
		RunID                string `json:"run_id"`
		CompletedGenerations int    `json:"completed_generations"`
	}
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("decode run json: %v", err)
	}
	if summary.RunID != "from-config" || summary.CompletedGenerations != 3 {
		t.Fatalf("expected flag override on config file, got %+v", summary)
	}
	cfg, _, err := stats.ReadRunConfig(filepath.Join(dir, "benchmarks"), "from-config")
	if err != nil {
		t.Fatalf("read run config: %v", err)
	}
	if cfg.PopulationSize != 7 || cfg.CrossoverRate != 0.9 || cfg.Seed != 5 {
		t.Fatalf("unexpected run config: %+v", cfg)
	}
}

func TestCatalogCommand(t *testing.T) {
	c, out, _ := newTestCLI(t)
	if err := dispatch(context.Background(), c, []string{"catalog", "--json"}); err != nil {
		t.Fatalf("catalog command: %v", err)
	}
	var genes []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(out.Bytes(), &genes); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if len(genes) == 0 {
		t.Fatal("expected catalog genes")
	}
}

func TestInitCommand(t *testing.T) {
	c, out, _ := newTestCLI(t)
	if err := dispatch(context.Background(), c, []string{"init"}); err != nil {
		t.Fatalf("init command: %v", err)
	}
	if !strings.Contains(out.String(), "initialized store=memory") {
		t.Fatalf("unexpected init output: %q", out.String())
	}
}

func TestRunCommandPassesFlagValuesThrough(t *testing.T) {
	ctx := context.Background()
	c, _, dir := newTestCLI(t)

	if err := dispatch(ctx, c, []string{"run", "--run-id", "no-crossover", "--pop", "4", "--gens", "2", "--crossover-rate", "0"}); err != nil {
		t.Fatalf("run command: %v", err)
	}
	cfg, _, err := stats.ReadRunConfig(filepath.Join(dir, "benchmarks"), "no-crossover")
	if err != nil {
		t.Fatalf("read run config: %v", err)
	}
	if cfg.CrossoverRate != 0 {
		t.Fatalf("expected crossover rate 0 to be kept, got %f", cfg.CrossoverRate)
	}

	for _, args := range [][]string{
		{"run", "--gens", "-1"},
		{"run", "--pop", "1"},
		{"run", "--pop", "0"},
		{"run", "--mutation-probability", "2"},
	} {
		if err := dispatch(ctx, c, args); !errors.Is(err, evo.ErrInvalidConfig) {
			t.Fatalf("expected invalid config for %v, got %v", args, err)
		}
	}
}
