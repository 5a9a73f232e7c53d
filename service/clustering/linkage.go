package clustering

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrTooFewAssets = errors.New("clustering needs at least two assets")

// Merge joins clusters A and B. Leaves are 0..n-1, the cluster created by merge i is n+i.
type Merge struct {
	A, B   int
	Height float64
	Size   int
}

// Linkage is the merge history of an agglomerative clustering over N leaves
type Linkage struct {
	N      int
	Merges []Merge
}

// CorrelationDistance maps a correlation matrix to the metric sqrt(0.5 * (1 - rho))
func CorrelationDistance(corr *mat.SymDense) *mat.SymDense {
	n := corr.SymmetricDim()
	dist := mat.NewSymDense(n, nil)
	for i := range n {
		for j := range i {
			dist.SetSym(i, j, math.Sqrt(math.Max(0, 0.5*(1-corr.At(i, j)))))
		}
	}
	return dist
}

// Ward builds the ward linkage with the Lance-Williams update on the distance matrix.
// Ties are resolved in favour of the lowest (i, j) pair.
func Ward(dist *mat.SymDense) (*Linkage, error) {
	n := dist.SymmetricDim()
	if n < 2 {
		return nil, ErrTooFewAssets
	}

	// working copy indexed by slot, slot i holds cluster id[i]
	d := make([][]float64, n)
	for i := range n {
		d[i] = make([]float64, n)
		for j := range n {
			d[i][j] = dist.At(i, j)
		}
	}
	id := make([]int, n)
	size := make([]int, n)
	active := make([]bool, n)
	for i := range n {
		id[i], size[i], active[i] = i, 1, true
	}

	link := &Linkage{N: n, Merges: make([]Merge, 0, n-1)}
	for step := range n - 1 {
		bi, bj, best := -1, -1, math.Inf(1)
		for i := range n {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && d[i][j] < best {
					bi, bj, best = i, j, d[i][j]
				}
			}
		}

		a, b := id[bi], id[bj]
		if a > b {
			a, b = b, a
		}
		merged := size[bi] + size[bj]
		link.Merges = append(link.Merges, Merge{A: a, B: b, Height: best, Size: merged})

		for k := range n {
			if !active[k] || k == bi || k == bj {
				continue
			}
			nk := float64(size[k])
			ni, nj := float64(size[bi]), float64(size[bj])
			v := ((ni+nk)*d[k][bi]*d[k][bi] + (nj+nk)*d[k][bj]*d[k][bj] - nk*best*best) / (ni + nj + nk)
			d[k][bi] = math.Sqrt(math.Max(0, v))
			d[bi][k] = d[k][bi]
		}

		id[bi], size[bi] = n+step, merged
		active[bj] = false
	}

	return link, nil
}

// Children returns the two clusters merged to form node, or false for a leaf
func (l *Linkage) Children(node int) (int, int, bool) {
	if node < l.N {
		return 0, 0, false
	}
	m := l.Merges[node-l.N]
	return m.A, m.B, true
}

func (l *Linkage) Root() int {
	return 2*l.N - 2
}

// Height of a node, zero for leaves
func (l *Linkage) Height(node int) float64 {
	if node < l.N {
		return 0
	}
	return l.Merges[node-l.N].Height
}

// Leaves lists the leaves under node, left subtree first
func (l *Linkage) Leaves(node int) []int {
	a, b, ok := l.Children(node)
	if !ok {
		return []int{node}
	}
	return append(l.Leaves(a), l.Leaves(b)...)
}

// Cut labels each leaf with its cluster when the tree is cut into k clusters.
// Labels are 0 based and numbered in order of the first leaf of each cluster.
func (l *Linkage) Cut(k int) []int {
	k = max(1, min(k, l.N))

	parent := make([]int, 2*l.N-1)
	for i := range parent {
		parent[i] = i
	}
	for i, m := range l.Merges[:l.N-k] {
		parent[m.A], parent[m.B] = l.N+i, l.N+i
	}

	find := func(x int) int {
		for parent[x] != x {
			x = parent[x]
		}
		return x
	}

	labels := make([]int, l.N)
	seen := make(map[int]int, k)
	for leaf := range l.N {
		root := find(leaf)
		label, ok := seen[root]
		if !ok {
			label = len(seen)
			seen[root] = label
		}
		labels[leaf] = label
	}
	return labels
}
