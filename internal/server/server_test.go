package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"genelab/internal/model"
	"genelab/internal/platform"
	"genelab/internal/storage"
	"genelab/internal/telemetry"
)

func newTestServer(t *testing.T) (*Server, *platform.Lab) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	lab := platform.NewLab(platform.Config{Store: storage.NewMemoryStore(), Metrics: metrics})
	if err := lab.Init(context.Background()); err != nil {
		t.Fatalf("init lab: %v", err)
	}
	s := New(Config{Lab: lab, Gatherer: reg})
	t.Cleanup(func() {
		lab.Shutdown()
		s.Wait()
	})
	return s, lab
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), target); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	s, lab := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	lab.Shutdown()
	rec = doRequest(t, s, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after shutdown, got %d", rec.Code)
	}
}

func TestStartRunAndQuery(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/runs", map[string]any{
		"run_id":         "http-run",
		"population":     6,
		"generations":    3,
		"crossover_rate": 0.8,
		"seed":           4,
		"top_count":      2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		RunID            string                  `json:"run_id"`
		Status           model.RunStatus         `json:"status"`
		BestByGeneration []float64               `json:"best_by_generation"`
		TopGenomes       []model.TopGenomeRecord `json:"top_genomes"`
	}
	decode(t, rec, &created)
	if created.RunID != "http-run" || created.Status != model.RunStatusCompleted || len(created.BestByGeneration) != 3 || len(created.TopGenomes) != 2 {
		t.Fatalf("unexpected create response: %+v", created)
	}

	rec = doRequest(t, s, http.MethodGet, "/runs/http-run", nil)
	var run model.RunRecord
	decode(t, rec, &run)
	if rec.Code != http.StatusOK || run.CompletedGenerations != 3 {
		t.Fatalf("unexpected run lookup: %d %+v", rec.Code, run)
	}

	rec = doRequest(t, s, http.MethodGet, "/runs/http-run/fitness", nil)
	var fitness struct {
		Best []float64 `json:"best_by_generation"`
	}
	decode(t, rec, &fitness)
	if len(fitness.Best) != 3 || fitness.Best[2] != created.BestByGeneration[2] {
		t.Fatalf("unexpected fitness response: %+v", fitness)
	}

	rec = doRequest(t, s, http.MethodGet, "/runs/http-run/diagnostics", nil)
	var diagnostics struct {
		Diagnostics []model.GenerationDiagnostics `json:"diagnostics"`
	}
	decode(t, rec, &diagnostics)
	if len(diagnostics.Diagnostics) != 3 {
		t.Fatalf("unexpected diagnostics response: %s", rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/runs/http-run/top", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"rank":1`) {
		t.Fatalf("unexpected top response: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/runs/http-run/snapshots", nil)
	var listed struct {
		Generations []int `json:"generations"`
	}
	decode(t, rec, &listed)
	if len(listed.Generations) != 3 {
		t.Fatalf("unexpected snapshot generations: %v", listed.Generations)
	}

	rec = doRequest(t, s, http.MethodGet, "/runs/http-run/snapshots/latest", nil)
	var snapshot model.PopulationSnapshot
	decode(t, rec, &snapshot)
	if snapshot.Generation != 3 || len(snapshot.Genomes) != 6 {
		t.Fatalf("unexpected latest snapshot: generation=%d genomes=%d", snapshot.Generation, len(snapshot.Genomes))
	}
	rec = doRequest(t, s, http.MethodGet, "/runs/http-run/snapshots/2", nil)
	decode(t, rec, &snapshot)
	if snapshot.Generation != 2 {
		t.Fatalf("expected generation 2 snapshot, got %d", snapshot.Generation)
	}

	rec = doRequest(t, s, http.MethodGet, "/runs?limit=5", nil)
	var runs struct {
		Runs []model.RunRecord `json:"runs"`
	}
	decode(t, rec, &runs)
	if len(runs.Runs) != 1 || runs.Runs[0].ID != "http-run" {
		t.Fatalf("unexpected runs list: %+v", runs)
	}
}

func TestStartRunValidation(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []map[string]any{
		{"generations": 3},
		{"population": 1, "generations": 3},
		{"population": 4, "generations": 3, "crossover_rate": 2},
		{"population": 4, "generations": 3, "selection": "tournament"},
	}
	for _, body := range cases {
		rec := doRequest(t, s, http.MethodPost, "/runs", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %v, got %d: %s", body, rec.Code, rec.Body.String())
		}
	}
}

func TestNotFoundAndBadInput(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{"/runs/missing", "/runs/missing/fitness", "/runs/missing/diagnostics", "/runs/missing/top", "/runs/missing/snapshots/1", "/runs/missing/snapshots/latest"} {
		rec := doRequest(t, s, http.MethodGet, path, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for %s, got %d", path, rec.Code)
		}
	}
	if rec := doRequest(t, s, http.MethodGet, "/runs/missing/snapshots/abc", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad generation, got %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/runs?limit=-1", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/runs/missing/pause", nil); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for pausing an inactive run, got %d", rec.Code)
	}
}

func TestAsyncRunPauseStop(t *testing.T) {
	s, lab := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/runs", map[string]any{
		"run_id":      "async-run",
		"population":  4,
		"generations": 200,
		"async":       true,
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	// The run may finish before the pause lands; only a paused run is held.
	paused := false
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		rec = doRequest(t, s, http.MethodPost, "/runs/async-run/pause", nil)
		if rec.Code == http.StatusAccepted {
			paused = true
			break
		}
		if _, err := lab.GetRun(context.Background(), "async-run"); err == nil && len(lab.ActiveRuns()) == 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if paused {
		_ = doRequest(t, s, http.MethodPost, "/runs/async-run/stop", nil)
	}
	s.Wait()

	run, err := lab.GetRun(context.Background(), "async-run")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	// A pause that lands during the final generation is never consumed.
	if paused && run.Status != model.RunStatusStopped && run.Status != model.RunStatusCompleted {
		t.Fatalf("expected stopped run after pause and stop, got %s", run.Status)
	}
	if !paused && run.Status != model.RunStatusCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}

	if rec := doRequest(t, s, http.MethodDelete, "/runs/async-run", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on delete, got %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/runs/async-run", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := doRequest(t, s, http.MethodPost, "/runs", map[string]any{"population": 4, "generations": 2}); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	rec := doRequest(t, s, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	for _, want := range []string{"genelab_generations_total 2", `genelab_runs_total{status="completed"} 1`} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("expected %q in metrics output:\n%s", want, rec.Body.String())
		}
	}
}

func TestStartRunRejectsReusedRunID(t *testing.T) {
	s, _ := newTestServer(t)

	body := map[string]any{"run_id": "once", "population": 4, "generations": 3}
	if rec := doRequest(t, s, http.MethodPost, "/runs", body); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec := doRequest(t, s, http.MethodPost, "/runs", map[string]any{"run_id": "once", "population": 6, "generations": 1})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a reused run id, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/runs/once", nil)
	var run model.RunRecord
	decode(t, rec, &run)
	if run.PopulationSize != 4 || run.CompletedGenerations != 3 {
		t.Fatalf("original run should be untouched: %+v", run)
	}
}
