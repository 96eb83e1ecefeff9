package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"genelab/internal/evo"
	"genelab/internal/platform"
)

type Config struct {
	Lab    *platform.Lab
	Logger *slog.Logger
	// Gatherer backs GET /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
}

// Server exposes a Lab over HTTP. Runs started asynchronously outlive the
// request that created them; Wait blocks until they have all returned.
type Server struct {
	lab      *platform.Lab
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	router   *gin.Engine

	wg sync.WaitGroup
}

type runBody struct {
	RunID               string  `json:"run_id"`
	Population          int     `json:"population" binding:"required,min=2"`
	Generations         int     `json:"generations" binding:"min=0"`
	GenesPerGenome      int     `json:"genes_per_genome" binding:"min=0"`
	CrossoverRate       float64 `json:"crossover_rate"`
	MutationProbability float64 `json:"mutation_probability"`
	SelectionPressure   float64 `json:"selection_pressure"`
	Seed                int64   `json:"seed"`
	Selection           string  `json:"selection"`
	TopCount            int     `json:"top_count"`
	Async               bool    `json:"async"`
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{lab: cfg.Lab, logger: logger, gatherer: gatherer}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Wait blocks until every asynchronous run has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// ListenAndServe serves until ctx is cancelled, then stops the lab's runs and
// drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("http server listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.lab.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Wait()
	s.logger.Info("http server stopped", "addr", addr)
	return err
}

func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		if !s.lab.Started() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "genelab", "active_runs": len(s.lab.ActiveRuns())})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	r.GET("/runs", s.listRuns)
	r.POST("/runs", s.startRun)
	r.GET("/runs/:id", s.getRun)
	r.GET("/runs/:id/fitness", s.getFitness)
	r.GET("/runs/:id/diagnostics", s.getDiagnostics)
	r.GET("/runs/:id/top", s.getTop)
	r.GET("/runs/:id/snapshots", s.listSnapshots)
	r.GET("/runs/:id/snapshots/:generation", s.getSnapshot)
	r.POST("/runs/:id/pause", s.control(s.lab.PauseRun, "paused"))
	r.POST("/runs/:id/continue", s.control(s.lab.ContinueRun, "continued"))
	r.POST("/runs/:id/stop", s.control(s.lab.StopRun, "stopping"))
	r.DELETE("/runs/:id", s.deleteRun)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) listRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}
	runs, err := s.lab.ListRuns(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "active": s.lab.ActiveRuns()})
}

func (s *Server) startRun(c *gin.Context) {
	var body runBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	selector, err := selectorFromName(body.Selection)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.RunID == "" {
		body.RunID = "run-" + uuid.NewString()
	}
	cfg := platform.EvolutionConfig{
		RunID:               body.RunID,
		PopulationSize:      body.Population,
		Generations:         body.Generations,
		GenesPerGenome:      body.GenesPerGenome,
		MutationProbability: body.MutationProbability,
		SelectionPressure:   body.SelectionPressure,
		CrossoverRate:       body.CrossoverRate,
		Seed:                body.Seed,
		Selector:            selector,
		TopCount:            body.TopCount,
	}
	if err := (evo.Config{
		PopulationSize:      cfg.PopulationSize,
		Generations:         cfg.Generations,
		GenesPerGenome:      cfg.GenesPerGenome,
		MutationProbability: cfg.MutationProbability,
		SelectionPressure:   cfg.SelectionPressure,
		CrossoverRate:       cfg.CrossoverRate,
	}).Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if body.Async {
		ctx := context.WithoutCancel(c.Request.Context())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if _, err := s.lab.RunEvolution(ctx, cfg); err != nil {
				s.logger.Error("async run failed", "run_id", cfg.RunID, "error", err)
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"run_id": cfg.RunID, "status": "accepted"})
		return
	}

	result, err := s.lab.RunEvolution(c.Request.Context(), cfg)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"run_id":                result.RunID,
		"status":                result.Status,
		"completed_generations": result.CompletedGenerations,
		"best_by_generation":    result.BestByGeneration,
		"mean_by_generation":    result.MeanByGeneration,
		"final_best_fitness":    result.BestFinalFitness,
		"top_genomes":           result.TopFinal,
	})
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.lab.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) getFitness(c *gin.Context) {
	history, err := s.lab.FitnessHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "best_by_generation": history})
}

func (s *Server) getDiagnostics(c *gin.Context) {
	diagnostics, err := s.lab.Diagnostics(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "diagnostics": diagnostics})
}

func (s *Server) getTop(c *gin.Context) {
	top, err := s.lab.TopGenomes(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "top_genomes": top})
}

func (s *Server) listSnapshots(c *gin.Context) {
	generations, err := s.lab.SnapshotGenerations(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("id"), "generations": generations})
}

// getSnapshot accepts a generation number or "latest".
func (s *Server) getSnapshot(c *gin.Context) {
	ctx := c.Request.Context()
	runID := c.Param("id")
	raw := c.Param("generation")

	var generation int
	if raw == "latest" {
		generations, err := s.lab.SnapshotGenerations(ctx, runID)
		if err != nil {
			s.fail(c, err)
			return
		}
		if len(generations) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no snapshots stored for run " + runID})
			return
		}
		generation = generations[len(generations)-1]
	} else {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "generation must be a non-negative integer or latest"})
			return
		}
		generation = parsed
	}

	snapshot, err := s.lab.Snapshot(ctx, runID, generation)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) control(send func(string) error, status string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := send(c.Param("id")); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"run_id": c.Param("id"), "status": status})
	}
}

func (s *Server) deleteRun(c *gin.Context) {
	if err := s.lab.DeleteRun(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, platform.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, platform.ErrRunActive), errors.Is(err, platform.ErrRunNotActive), errors.Is(err, platform.ErrRunExists):
		return http.StatusConflict
	case errors.Is(err, platform.ErrNotStarted):
		return http.StatusServiceUnavailable
	case errors.Is(err, evo.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func selectorFromName(name string) (evo.Selector, error) {
	switch name {
	case "", "roulette":
		return evo.RouletteSelector{}, nil
	case "uniform":
		return evo.UniformSelector{}, nil
	default:
		return nil, errors.New("unsupported selection strategy: " + name)
	}
}
