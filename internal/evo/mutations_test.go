package evo

import (
	"math/rand"
	"testing"

	"genelab/internal/catalog"
	"genelab/internal/model"
)

func TestChooseOperatorThresholds(t *testing.T) {
	cases := []struct {
		draw float64
		want string
	}{
		{0, "delete_gene"},
		{0.29, "delete_gene"},
		{0.3, "add_gene"},
		{0.59, "add_gene"},
		{0.6, "replace_gene"},
		{0.99, "replace_gene"},
	}
	for _, tc := range cases {
		if got := chooseOperator(tc.draw).Name(); got != tc.want {
			t.Fatalf("draw %.2f: expected %s, got %s", tc.draw, tc.want, got)
		}
	}
}

func TestDeleteGeneKeepsLastGene(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	genome := testGenome("g", 0.5, "a", "b")
	if !(DeleteGene{}).Apply(rng, &genome, nil) {
		t.Fatal("expected delete with two genes")
	}
	if len(genome.Genes) != 1 {
		t.Fatalf("expected one gene left, got %d", len(genome.Genes))
	}
	if (DeleteGene{}).Apply(rng, &genome, nil) {
		t.Fatal("expected delete to refuse the last gene")
	}
	if len(genome.Genes) != 1 {
		t.Fatalf("expected last gene kept, got %d", len(genome.Genes))
	}
}

func TestDeleteGeneDoesNotAliasOriginalSlice(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	original := testGenome("g", 0.5, "a", "b", "c")
	genome := original
	(DeleteGene{}).Apply(rng, &genome, nil)
	if !sameIDs(geneIDs(original), []string{"a", "b", "c"}) {
		t.Fatalf("delete changed the shared gene slice: %v", geneIDs(original))
	}
}

func TestAddGeneNeverDuplicates(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	source := catalog.Mutations()
	genome := testGenome("g", 0.5, "neural_processor")
	for i := 0; i < 200; i++ {
		(AddGene{}).Apply(rng, &genome, source)
	}
	seen := map[string]struct{}{}
	for _, gene := range genome.Genes {
		if _, dup := seen[gene.ID]; dup {
			t.Fatalf("duplicate gene id after add: %s", gene.ID)
		}
		seen[gene.ID] = struct{}{}
	}
	if len(genome.Genes) != 1+source.Len() {
		t.Fatalf("expected every mutation gene added once, got %d genes", len(genome.Genes))
	}
	if (AddGene{}).Apply(rng, &genome, source) {
		t.Fatal("expected add to report no change once every gene is present")
	}
}

func TestReplaceGeneUsesSource(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	source := catalog.MustNew([]model.Gene{{ID: "replacement", Complexity: 10}})
	genome := testGenome("g", 0.5, "a", "b", "c")
	if !(ReplaceGene{}).Apply(rng, &genome, source) {
		t.Fatal("expected replace to apply")
	}
	if len(genome.Genes) != 3 || !genome.HasGene("replacement") {
		t.Fatalf("expected one slot replaced, got %v", geneIDs(genome))
	}
	empty := model.Genome{}
	if (ReplaceGene{}).Apply(rng, &empty, source) {
		t.Fatal("expected replace to skip a genome without genes")
	}
}

func TestMutateRespectsBoundsAndCountsEvents(t *testing.T) {
	engine, err := NewEngine(Config{PopulationSize: 6, Seed: 13})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	population := make([]model.Genome, 6)
	for i := range population {
		population[i] = testGenome("g", 0.5, "a", "b")
		population[i].Consciousness = 1
		population[i].QuantumCoherence = 0
		population[i].MutationRate = 1
	}

	events, byOperator := engine.mutate(population)
	if events != len(population) {
		t.Fatalf("expected every genome to mutate at rate 1, got %d events", events)
	}
	total := 0
	for _, count := range byOperator {
		total += count
	}
	if total != events {
		t.Fatalf("operator counts %v do not add up to %d events", byOperator, events)
	}
	assertBounds(t, population)
	for _, genome := range population {
		if len(genome.Genes) == 0 {
			t.Fatal("mutation removed every gene")
		}
	}
}

func TestMutateSkipsGenomesAtZeroRate(t *testing.T) {
	engine, err := NewEngine(Config{PopulationSize: 2, Seed: 13})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	population := []model.Genome{testGenome("a", 0.5, "x"), testGenome("b", 0.5, "y")}
	population[0].MutationRate = 0
	population[1].MutationRate = 0

	events, byOperator := engine.mutate(population)
	if events != 0 || len(byOperator) != 0 {
		t.Fatalf("expected no mutation events, got %d %v", events, byOperator)
	}
	if population[0].MutationRate != 0 {
		t.Fatal("traits jittered without a mutation event")
	}
}
