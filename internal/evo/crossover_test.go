package evo

import (
	"testing"

	"genelab/internal/model"
)

func geneIDs(genome model.Genome) []string {
	out := make([]string, 0, len(genome.Genes))
	for _, gene := range genome.Genes {
		out = append(out, gene.ID)
	}
	return out
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRecombineWithoutCrossoverKeepsSelectedGenes(t *testing.T) {
	engine, err := NewEngine(Config{PopulationSize: 4, CrossoverRate: 0, Seed: 3})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	selected := []model.Genome{
		testGenome("s0", 0.1, "a", "b"),
		testGenome("s1", 0.2, "c"),
		testGenome("s2", 0.3, "d", "e", "f"),
		testGenome("s3", 0.4, "g"),
	}
	next, crossovers := engine.recombine(selected, selected)
	if crossovers != 0 {
		t.Fatalf("expected no crossovers, got %d", crossovers)
	}
	if len(next) != 4 {
		t.Fatalf("expected 4 children, got %d", len(next))
	}
	for i := range next {
		if !sameIDs(geneIDs(next[i]), geneIDs(selected[i])) {
			t.Fatalf("child %d genes %v differ from parent %v", i, geneIDs(next[i]), geneIDs(selected[i]))
		}
		if next[i].ID == selected[i].ID {
			t.Fatalf("child %d kept parent id", i)
		}
	}
}

func TestCrossoverSplicesAtSharedPoint(t *testing.T) {
	engine, err := NewEngine(Config{PopulationSize: 2, CrossoverRate: 1, Seed: 7})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	a := testGenome("a", 0.5, "a0", "a1", "a2", "a3")
	b := testGenome("b", 0.5, "b0", "b1", "b2")

	for i := 0; i < 50; i++ {
		childA, childB, crossed := engine.crossover(a, b)
		if !crossed {
			t.Fatal("expected crossover at rate 1")
		}
		if len(childA.Genes) != len(b.Genes) || len(childB.Genes) != len(a.Genes) {
			t.Fatalf("unexpected child lengths %d/%d", len(childA.Genes), len(childB.Genes))
		}
		point := 0
		for point < len(childA.Genes) && childA.Genes[point].ID == a.Genes[point].ID {
			point++
		}
		if !sameIDs(geneIDs(childA), append(geneIDs(a)[:point:point], geneIDs(b)[point:]...)) {
			t.Fatalf("child a %v is not a single-point splice", geneIDs(childA))
		}
		if !sameIDs(geneIDs(childB), append(geneIDs(b)[:point:point], geneIDs(a)[point:]...)) {
			t.Fatalf("child b %v does not mirror child a at point %d", geneIDs(childB), point)
		}
		if point >= 3 {
			t.Fatalf("crossover point %d outside shorter parent", point)
		}
	}
	if len(a.Genes) != 4 || a.Genes[0].ID != "a0" {
		t.Fatal("crossover modified its parent")
	}
}

func TestRecombineOddTailPairsWithFirstOriginal(t *testing.T) {
	engine, err := NewEngine(Config{PopulationSize: 3, CrossoverRate: 1, Seed: 9})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	original := []model.Genome{
		testGenome("o0", 0.9, "o0a", "o0b", "o0c"),
		testGenome("o1", 0.1, "o1a", "o1b", "o1c"),
		testGenome("o2", 0.1, "o2a", "o2b", "o2c"),
	}
	selected := []model.Genome{
		testGenome("s0", 0.5, "s0a", "s0b", "s0c"),
		testGenome("s1", 0.5, "s1a", "s1b", "s1c"),
		testGenome("s2", 0.5, "s2a", "s2b", "s2c"),
	}

	next, crossovers := engine.recombine(original, selected)
	if len(next) != 3 {
		t.Fatalf("expected 3 children, got %d", len(next))
	}
	if crossovers != 2 {
		t.Fatalf("expected 2 crossovers, got %d", crossovers)
	}
	tail := next[2]
	for pos, gene := range tail.Genes {
		if gene.ID != selected[2].Genes[pos].ID && gene.ID != original[0].Genes[pos].ID {
			t.Fatalf("odd tail gene %q at %d came from neither s2 nor o0", gene.ID, pos)
		}
	}
	if original[0].Genes[0].ID != "o0a" {
		t.Fatal("recombine modified the original population")
	}
}
