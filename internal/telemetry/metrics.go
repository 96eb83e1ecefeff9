package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"genelab/internal/model"
)

const namespace = "genelab"

// Metrics holds the run collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	generations    prometheus.Counter
	genomesCreated prometheus.Counter
	mutations      *prometheus.CounterVec
	runs           *prometheus.CounterVec
	bestFitness    *prometheus.GaugeVec
	meanFitness    *prometheus.GaugeVec
}

// NewMetrics builds the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Completed generations across all runs.",
		}),
		genomesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "genomes_created_total",
			Help:      "Genomes produced by recombination.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutation_events_total",
			Help:      "Mutation events by operator.",
		}, []string{"operator"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by final status.",
		}, []string{"status"}),
		bestFitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_fitness",
			Help:      "Best fitness of the latest generation.",
		}, []string{"run_id"}),
		meanFitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mean_fitness",
			Help:      "Mean fitness of the latest generation.",
		}, []string{"run_id"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, collector := range []prometheus.Collector{m.generations, m.genomesCreated, m.mutations, m.runs, m.bestFitness, m.meanFitness} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveGeneration(runID string, populationSize int, diagnostics model.GenerationDiagnostics) {
	if m == nil {
		return
	}
	m.generations.Inc()
	m.genomesCreated.Add(float64(populationSize))
	for operator, count := range diagnostics.MutationsByOperator {
		m.mutations.WithLabelValues(operator).Add(float64(count))
	}
	m.bestFitness.WithLabelValues(runID).Set(diagnostics.BestFitness)
	m.meanFitness.WithLabelValues(runID).Set(diagnostics.MeanFitness)
}

func (m *Metrics) ObserveRunFinished(status model.RunStatus) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
}

// ForgetRun drops the per-run gauges once a run is deleted.
func (m *Metrics) ForgetRun(runID string) {
	if m == nil {
		return
	}
	m.bestFitness.DeleteLabelValues(runID)
	m.meanFitness.DeleteLabelValues(runID)
}
