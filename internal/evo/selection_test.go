package evo

import (
	"math/rand"
	"testing"

	"genelab/internal/model"
)

func testGenome(id string, fitness float64, geneIDs ...string) model.Genome {
	genes := make([]model.Gene, 0, len(geneIDs))
	for _, geneID := range geneIDs {
		genes = append(genes, model.Gene{ID: geneID, Name: geneID, Complexity: 50})
	}
	return model.Genome{
		ID:           id,
		Genes:        genes,
		Fitness:      fitness,
		MutationRate: 0.02,
	}
}

func TestRouletteSelectorFavoursFitterGenomes(t *testing.T) {
	population := []model.Genome{
		testGenome("strong", 0.9),
		testGenome("weak", 0.1),
		testGenome("dead", 0),
	}
	picked, err := RouletteSelector{}.Select(rand.New(rand.NewSource(1)), population, 2000)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(picked) != 2000 {
		t.Fatalf("expected 2000 picks, got %d", len(picked))
	}
	counts := make([]int, len(population))
	for _, idx := range picked {
		counts[idx]++
	}
	if counts[2] != 0 {
		t.Fatalf("zero-fitness genome should never be drawn, got %d picks", counts[2])
	}
	if counts[0] <= counts[1]*4 {
		t.Fatalf("expected strong genome to dominate, counts=%v", counts)
	}
}

func TestRouletteSelectorFallsBackToUniformOnZeroFitness(t *testing.T) {
	population := []model.Genome{
		testGenome("a", 0),
		testGenome("b", 0),
		testGenome("c", 0),
	}
	picked, err := RouletteSelector{}.Select(rand.New(rand.NewSource(2)), population, 300)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	seen := map[int]int{}
	for _, idx := range picked {
		seen[idx]++
	}
	if len(seen) != 3 {
		t.Fatalf("expected uniform fallback to reach every genome, got %v", seen)
	}
}

func TestSelectorsRejectBadArguments(t *testing.T) {
	population := []model.Genome{testGenome("a", 1)}
	rng := rand.New(rand.NewSource(1))
	for _, selector := range []Selector{RouletteSelector{}, UniformSelector{}} {
		if _, err := selector.Select(nil, population, 1); err == nil {
			t.Fatalf("%s: expected error for nil rng", selector.Name())
		}
		if _, err := selector.Select(rng, nil, 1); err == nil {
			t.Fatalf("%s: expected error for empty population", selector.Name())
		}
		if _, err := selector.Select(rng, population, -1); err == nil {
			t.Fatalf("%s: expected error for negative count", selector.Name())
		}
	}
}

type fixedSelector struct {
	indices []int
}

func (fixedSelector) Name() string { return "fixed" }

func (s fixedSelector) Select(_ *rand.Rand, _ []model.Genome, _ int) ([]int, error) {
	return append([]int(nil), s.indices...), nil
}

func TestSelectParentsClonesWithFreshIdentity(t *testing.T) {
	engine, err := NewEngine(Config{PopulationSize: 3, Selector: fixedSelector{indices: []int{0, 0, 1}}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	population := []model.Genome{
		testGenome("a", 0.7, "g1", "g2"),
		testGenome("b", 0.3, "g3"),
	}
	population[0].Age = 4

	selected, err := engine.selectParents(population)
	if err != nil {
		t.Fatalf("select parents: %v", err)
	}
	if len(selected) != 3 {
		t.Fatalf("expected 3 parents, got %d", len(selected))
	}
	if selected[0].ID == "a" || selected[0].ID == selected[1].ID {
		t.Fatalf("expected fresh ids for every parent, got %q and %q", selected[0].ID, selected[1].ID)
	}
	if selected[0].Age != 0 {
		t.Fatalf("expected parent age reset, got %d", selected[0].Age)
	}
	selected[0].Genes[0].ID = "changed"
	if population[0].Genes[0].ID != "g1" {
		t.Fatal("selected parent shares gene storage with the population")
	}
	if selected[2].Genes[0].ID != "g3" {
		t.Fatalf("expected third parent cloned from b, got %+v", selected[2])
	}
}

func TestSelectParentsRejectsMisbehavingSelector(t *testing.T) {
	population := []model.Genome{testGenome("a", 0.5), testGenome("b", 0.5)}

	short, err := NewEngine(Config{PopulationSize: 2, Selector: fixedSelector{indices: []int{0}}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := short.selectParents(population); err == nil {
		t.Fatal("expected error for short selection")
	}

	outOfRange, err := NewEngine(Config{PopulationSize: 2, Selector: fixedSelector{indices: []int{0, 5}}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := outOfRange.selectParents(population); err == nil {
		t.Fatal("expected error for out of range index")
	}
}
