package index

import "sort"

// node is one kd-tree node. leafIndex is the position of the point in the
// original, insertion-ordered point slice; it survives the recursive
// median-split partitioning so ties can be broken by insertion order.
type node struct {
	point     []float64
	leafIndex int
	axis      int
	left      *node
	right     *node
}

// tree is a static (build-once) kd-tree over Euclidean points.
type tree struct {
	root *node
	dim  int
}

func newTree(points [][]float64) *tree {
	if len(points) == 0 {
		return &tree{}
	}
	dim := len(points[0])

	items := make([]indexed, len(points))
	for i, p := range points {
		items[i] = indexed{point: p, leafIndex: i}
	}

	return &tree{root: build(items, 0, dim), dim: dim}
}

type indexed struct {
	point     []float64
	leafIndex int
}

func build(items []indexed, depth, dim int) *node {
	if len(items) == 0 {
		return nil
	}
	axis := depth % dim

	sort.Slice(items, func(i, j int) bool {
		if items[i].point[axis] != items[j].point[axis] {
			return items[i].point[axis] < items[j].point[axis]
		}
		// Stable fallback so equal-valued points keep a deterministic split.
		return items[i].leafIndex < items[j].leafIndex
	})

	mid := len(items) / 2
	n := &node{
		point:     items[mid].point,
		leafIndex: items[mid].leafIndex,
		axis:      axis,
	}
	n.left = build(items[:mid], depth+1, dim)
	n.right = build(items[mid+1:], depth+1, dim)
	return n
}

// candidate is a search result: the index of a point and its squared
// distance from the query.
type candidate struct {
	leafIndex int
	sqDist    float64
}

// kNearest walks the tree collecting the k nearest points to q by squared
// Euclidean distance. Ties in distance are broken by ascending leafIndex
// (insertion order), matching spec.md 4.1's stable-tie requirement.
func (t *tree) kNearest(q []float64, k int) []candidate {
	if t.root == nil || k <= 0 {
		return nil
	}

	var best []candidate
	var visit func(n *node)
	visit = func(n *node) {
		if n == nil {
			return
		}

		d := sqDistance(q, n.point)
		best = insertSorted(best, candidate{leafIndex: n.leafIndex, sqDist: d}, k)

		diff := q[n.axis] - n.point[n.axis]
		near, far := n.left, n.right
		if diff > 0 {
			near, far = n.right, n.left
		}

		visit(near)

		// Only descend into the far branch if it could still contain a
		// point closer than our current worst kept candidate.
		if len(best) < k || diff*diff <= best[len(best)-1].sqDist {
			visit(far)
		}
	}
	visit(t.root)

	return best
}

// insertSorted keeps `best` sorted ascending by sqDist (ties broken by
// leafIndex) and capped at k entries.
func insertSorted(best []candidate, c candidate, k int) []candidate {
	i := sort.Search(len(best), func(i int) bool {
		if best[i].sqDist != c.sqDist {
			return best[i].sqDist > c.sqDist
		}
		return best[i].leafIndex > c.leafIndex
	})
	best = append(best, candidate{})
	copy(best[i+1:], best[i:])
	best[i] = c
	if len(best) > k {
		best = best[:k]
	}
	return best
}

func sqDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
