package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Gene is an immutable trait definition. Complexity is in [0, 100].
type Gene struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Functionality string  `json:"functionality"`
	Complexity    float64 `json:"complexity"`
}

// Genome is one simulated individual.
type Genome struct {
	ID               string  `json:"id"`
	Genes            []Gene  `json:"genes"`
	Fitness          float64 `json:"fitness"`
	Consciousness    float64 `json:"consciousness"`
	QuantumCoherence float64 `json:"quantum_coherence"`
	MutationRate     float64 `json:"mutation_rate"`
	Age              int     `json:"age"`
}

// Clone returns a deep copy of the genome.
func (g Genome) Clone() Genome {
	out := g
	out.Genes = append([]Gene(nil), g.Genes...)
	return out
}

// HasGene reports whether the genome already carries a gene with the given id.
func (g Genome) HasGene(id string) bool {
	for _, gene := range g.Genes {
		if gene.ID == id {
			return true
		}
	}
	return false
}

// ClonePopulation deep-copies every genome in population.
func ClonePopulation(population []Genome) []Genome {
	out := make([]Genome, len(population))
	for i := range population {
		out[i] = population[i].Clone()
	}
	return out
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusStopped   RunStatus = "stopped"
	RunStatusFailed    RunStatus = "failed"
)

type RunRecord struct {
	VersionedRecord
	ID                   string    `json:"id"`
	CreatedAtUTC         string    `json:"created_at_utc"`
	Status               RunStatus `json:"status"`
	Seed                 int64     `json:"seed"`
	PopulationSize       int       `json:"population_size"`
	Generations          int       `json:"generations"`
	CompletedGenerations int       `json:"completed_generations"`
	GenesPerGenome       int       `json:"genes_per_genome"`
	CrossoverRate        float64   `json:"crossover_rate"`
	MutationProbability  float64   `json:"mutation_probability"`
	SelectionPressure    float64   `json:"selection_pressure"`
	CatalogSize          int       `json:"catalog_size"`
	FinalBestFitness     float64   `json:"final_best_fitness"`
	Error                string    `json:"error,omitempty"`
}

// PopulationSnapshot is the population as it stood after a completed generation.
type PopulationSnapshot struct {
	VersionedRecord
	RunID      string   `json:"run_id"`
	Generation int      `json:"generation"`
	Genomes    []Genome `json:"genomes"`
}

type GenerationDiagnostics struct {
	Generation           int            `json:"generation"`
	BestFitness          float64        `json:"best_fitness"`
	MeanFitness          float64        `json:"mean_fitness"`
	MinFitness           float64        `json:"min_fitness"`
	FitnessStdDev        float64        `json:"fitness_std_dev"`
	DiversityIndex       float64        `json:"diversity_index"`
	ConvergenceRate      float64        `json:"convergence_rate"`
	MeanGeneCount        float64        `json:"mean_gene_count"`
	MeanConsciousness    float64        `json:"mean_consciousness"`
	MeanQuantumCoherence float64        `json:"mean_quantum_coherence"`
	Crossovers           int            `json:"crossovers"`
	MutationEvents       int            `json:"mutation_events"`
	MutationsByOperator  map[string]int `json:"mutations_by_operator,omitempty"`
}

type TopGenomeRecord struct {
	Rank    int     `json:"rank"`
	Fitness float64 `json:"fitness"`
	Genome  Genome  `json:"genome"`
}
