package catalog

import (
	"fmt"
	"math/rand"
	"strings"

	"genelab/internal/model"
)

const (
	MinComplexity = 0.0
	MaxComplexity = 100.0
)

// GeneSource supplies single random genes. Catalog satisfies it.
type GeneSource interface {
	Len() int
	Pick(rng *rand.Rand) model.Gene
}

// Catalog is an immutable set of candidate genes. The zero value is an empty catalog.
type Catalog struct {
	genes []model.Gene
	index map[string]int
}

func New(genes []model.Gene) (Catalog, error) {
	copied := make([]model.Gene, 0, len(genes))
	index := make(map[string]int, len(genes))
	for i, gene := range genes {
		if strings.TrimSpace(gene.ID) == "" {
			return Catalog{}, fmt.Errorf("gene id is required at index %d", i)
		}
		if _, exists := index[gene.ID]; exists {
			return Catalog{}, fmt.Errorf("duplicate gene id: %s", gene.ID)
		}
		if !(gene.Complexity >= MinComplexity && gene.Complexity <= MaxComplexity) {
			return Catalog{}, fmt.Errorf("gene %s complexity must be in [0, 100], got %g", gene.ID, gene.Complexity)
		}
		index[gene.ID] = len(copied)
		copied = append(copied, gene)
	}
	return Catalog{genes: copied, index: index}, nil
}

// MustNew is New for package-level catalogs known to be valid.
func MustNew(genes []model.Gene) Catalog {
	c, err := New(genes)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Catalog) Len() int {
	return len(c.genes)
}

func (c Catalog) Genes() []model.Gene {
	return append([]model.Gene(nil), c.genes...)
}

func (c Catalog) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

func (c Catalog) Get(id string) (model.Gene, bool) {
	i, ok := c.index[id]
	if !ok {
		return model.Gene{}, false
	}
	return c.genes[i], true
}

// Sample draws n genes without replacement by shuffling a copy and slicing it.
// When the catalog holds fewer than n genes all of them are returned.
func (c Catalog) Sample(rng *rand.Rand, n int) []model.Gene {
	if n <= 0 || len(c.genes) == 0 {
		return []model.Gene{}
	}
	shuffled := c.Genes()
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}

// Pick returns one uniformly chosen gene. It panics on an empty catalog; callers
// check Len first.
func (c Catalog) Pick(rng *rand.Rand) model.Gene {
	return c.genes[rng.Intn(len(c.genes))]
}
