package clustering

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// WithinDispersion is W_k: the sum over clusters of the mean pairwise distance inside the cluster.
// Singleton clusters contribute nothing.
func WithinDispersion(labels []int, dist *mat.SymDense) float64 {
	members := make(map[int][]int)
	for leaf, label := range labels {
		members[label] = append(members[label], leaf)
	}

	total := 0.0
	for _, leaves := range members {
		if len(leaves) < 2 {
			continue
		}
		sum, pairs := 0.0, 0
		for i := range leaves {
			for j := i + 1; j < len(leaves); j++ {
				sum += dist.At(leaves[i], leaves[j])
				pairs++
			}
		}
		total += sum / float64(pairs)
	}
	return total
}

// TwoDiffGap picks the number of clusters with the two difference gap statistic.
// Candidates run from 1 to min(maxK, sqrt(n)); the k whose second difference
// W(k-1) + W(k+1) - 2 W(k) is largest wins.
func TwoDiffGap(l *Linkage, dist *mat.SymDense, maxK int) int {
	limit := int(math.Min(float64(maxK), math.Sqrt(float64(l.N))))
	if limit < 1 {
		limit = 1
	}

	w := make([]float64, limit)
	for k := 1; k <= limit; k++ {
		w[k-1] = WithinDispersion(l.Cut(k), dist)
	}

	if limit < 3 {
		return limit
	}

	bestK, bestGap := 2, math.Inf(-1)
	for k := 2; k < limit; k++ {
		gap := w[k-2] + w[k] - 2*w[k-1]
		if gap > bestGap {
			bestK, bestGap = k, gap
		}
	}
	return bestK
}
