package clustering

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// NaturalOrder is the left to right leaf order of the linkage as built
func NaturalOrder(l *Linkage) []int {
	return l.Leaves(l.Root())
}

type orderCell struct {
	cost float64
	m, k int // last leaf of the left part, first leaf of the right part
}

// OptimalLeafOrder flips subtrees so the sum of distances between adjacent leaves is minimal
// (Bar-Joseph, Gifford, Jaakkola 2001). The tree itself is unchanged.
func OptimalLeafOrder(l *Linkage, dist *mat.SymDense) []int {
	n := l.N
	if n < 3 {
		return NaturalOrder(l)
	}

	// best[node][u][w]: cheapest order of node's leaves starting at u and ending at w
	best := make(map[int][][]orderCell, n-1)
	leaves := make(map[int][]int, 2*n-1)
	for leaf := range n {
		leaves[leaf] = []int{leaf}
	}

	cost := func(node, u, w int) float64 {
		if node < n {
			if u == node && w == node {
				return 0
			}
			return math.Inf(1)
		}
		return best[node][u][w].cost
	}

	for i, mg := range l.Merges {
		node := n + i
		left, right := leaves[mg.A], leaves[mg.B]
		leaves[node] = append(slices.Clone(left), right...)

		table := make([][]orderCell, n)
		for u := range table {
			table[u] = make([]orderCell, n)
			for w := range table[u] {
				table[u][w] = orderCell{cost: math.Inf(1), m: -1, k: -1}
			}
		}

		for _, u := range left {
			for _, w := range right {
				cell := orderCell{cost: math.Inf(1), m: -1, k: -1}
				for _, m := range left {
					cu := cost(mg.A, u, m)
					if math.IsInf(cu, 1) {
						continue
					}
					for _, k := range right {
						cw := cost(mg.B, k, w)
						if math.IsInf(cw, 1) {
							continue
						}
						if c := cu + dist.At(m, k) + cw; c < cell.cost {
							cell = orderCell{cost: c, m: m, k: k}
						}
					}
				}
				table[u][w] = cell
				table[w][u] = orderCell{cost: cell.cost, m: -1, k: -1}
			}
		}
		best[node] = table
	}

	root := l.Root()
	bu, bw, bc := -1, -1, math.Inf(1)
	for _, u := range leaves[mergeLeft(l, root)] {
		for _, w := range leaves[mergeRight(l, root)] {
			if c := best[root][u][w].cost; c < bc {
				bu, bw, bc = u, w, c
			}
		}
	}

	var build func(node, u, w int) []int
	build = func(node, u, w int) []int {
		if node < n {
			return []int{node}
		}
		cell := best[node][u][w]
		if cell.m < 0 {
			// stored as the mirror of (w, u)
			order := build(node, w, u)
			slices.Reverse(order)
			return order
		}
		a, b, _ := l.Children(node)
		return append(build(a, u, cell.m), build(b, cell.k, w)...)
	}

	return build(root, bu, bw)
}

func mergeLeft(l *Linkage, node int) int {
	a, _, _ := l.Children(node)
	return a
}

func mergeRight(l *Linkage, node int) int {
	_, b, _ := l.Children(node)
	return b
}

// AdjacentDistance sums the distance between neighbouring leaves of an order
func AdjacentDistance(order []int, dist *mat.SymDense) float64 {
	total := 0.0
	for i := 1; i < len(order); i++ {
		total += dist.At(order[i-1], order[i])
	}
	return total
}
