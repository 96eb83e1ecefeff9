package evo

import (
	"math/rand"

	"genelab/internal/catalog"
	"genelab/internal/model"
)

// MutationOperator edits a genome's gene list in place. Apply reports whether the
// genome changed.
type MutationOperator interface {
	Name() string
	Apply(rng *rand.Rand, genome *model.Genome, source catalog.GeneSource) bool
}
