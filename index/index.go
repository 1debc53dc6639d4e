// Package index implements the Descriptor Index (spec.md component C1):
// a static kd-tree over normalised corpus feature vectors supporting
// k-nearest-neighbour queries against a live AnalysisTarget.
package index

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/josiah-wolf-oberholtzer/archon/corpus"
	"github.com/josiah-wolf-oberholtzer/archon/errs"
)

// Match is one query result: the matched corpus Partition and its
// Euclidean distance from the query vector, rounded to 6 decimal places.
type Match struct {
	Partition corpus.Partition
	Distance  float64
}

// Index is a built, queryable kd-tree over the corpus's FeatureVectors.
type Index struct {
	partitions []corpus.Partition
	points     [][]float64
	ranges     corpus.RangeSet
	cfg        corpus.FeatureConfig
	tree       *tree
	dim        int
}

// New builds the index from a loaded corpus: it asserts every Partition's
// FeatureVector shares the same dimension (invariant I1/property P4) and
// builds a static kd-tree over the scaled vectors (invariant I1: entry
// ordering matches point ordering, since both are built in corpus order).
func New(c *corpus.Corpus, cfg corpus.FeatureConfig) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("building descriptor index: %w: %v", errs.ErrConfig, err)
	}
	if len(c.Partitions) == 0 {
		return nil, fmt.Errorf("building descriptor index: empty corpus: %w", errs.ErrConfig)
	}

	dim := cfg.Dimension()
	points := make([][]float64, len(c.Partitions))
	for i, p := range c.Partitions {
		vec, err := corpus.PartitionVector(p, c.Ranges, cfg)
		if err != nil {
			return nil, fmt.Errorf("building descriptor index: %w", err)
		}
		if len(vec) != dim {
			return nil, fmt.Errorf(
				"building descriptor index: partition %q produced a %d-dimensional vector, want %d: %w",
				p.Digest, len(vec), dim, errs.ErrInvariant)
		}
		points[i] = []float64(vec)
	}

	return &Index{
		partitions: c.Partitions,
		points:     points,
		ranges:     c.Ranges,
		cfg:        cfg,
		tree:       newTree(points),
		dim:        dim,
	}, nil
}

// Dimension returns the FeatureVector length this index was built with.
func (idx *Index) Dimension() int {
	return idx.dim
}

// Query returns the k nearest corpus entries to target by Euclidean
// distance, ascending, with ties broken by corpus insertion order. k is
// clamped to [1, len(partitions)].
func (idx *Index) Query(target corpus.AnalysisTarget, k int) ([]Match, error) {
	vec, err := corpus.TargetVector(target, idx.ranges, idx.cfg)
	if err != nil {
		return nil, fmt.Errorf("querying descriptor index: %w", err)
	}
	if len(vec) != idx.dim {
		return nil, fmt.Errorf(
			"querying descriptor index: target produced a %d-dimensional vector, want %d: %w",
			len(vec), idx.dim, errs.ErrInvariant)
	}

	if k < 1 {
		k = 1
	}
	if k > len(idx.partitions) {
		k = len(idx.partitions)
	}

	candidates := idx.tree.kNearest([]float64(vec), k)

	matches := make([]Match, len(candidates))
	for i, c := range candidates {
		d := floats.Distance([]float64(vec), idx.points[c.leafIndex], 2)
		matches[i] = Match{
			Partition: idx.partitions[c.leafIndex],
			Distance:  round6(d),
		}
	}
	return matches, nil
}

func round6(v float64) float64 {
	const scale = 1e6
	return math.Round(v*scale) / scale
}
