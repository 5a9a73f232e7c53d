package core

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	ex "urs/data/extensions"
	m "urs/data/models"
)

// Median of the defined values, the mean of the two middle values for even counts. NaN when nothing is defined.
func Median(values []float64) float64 {
	defined := ex.Defined(values)
	n := len(defined)
	if n == 0 {
		return math.NaN()
	}

	slices.Sort(defined)
	if n%2 == 1 {
		return defined[n/2]
	}
	return (defined[n/2-1] + defined[n/2]) / 2
}

// StdDev is the sample standard deviation of the defined values, NaN below two observations
func StdDev(values []float64) float64 {
	defined := ex.Defined(values)
	if len(defined) < 2 {
		return math.NaN()
	}
	return stat.StdDev(defined, nil)
}

// PairwiseCorrelation is the pearson correlation over the dates where both series are defined.
// Fewer than two shared observations, or a flat series over the overlap, gives NaN.
func PairwiseCorrelation(x, y []float64) float64 {
	xs := make([]float64, 0, len(x))
	ys := make([]float64, 0, len(y))
	for i := range x {
		if math.IsNaN(x[i]) || math.IsNaN(y[i]) {
			continue
		}
		xs = append(xs, x[i])
		ys = append(ys, y[i])
	}

	if len(xs) < 2 {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}

// CorrelationMatrix builds the symmetric pairwise pearson matrix over the table's columns, in column order
func CorrelationMatrix(rt m.ReturnTable) *mat.SymDense {
	n := len(rt.Columns)
	if n == 0 {
		return nil
	}

	corrMatrix := mat.NewSymDense(n, nil)
	for i := range n {
		for j := range i + 1 {
			corrMatrix.SetSym(i, j, PairwiseCorrelation(rt.Columns[i], rt.Columns[j]))
		}
	}
	return corrMatrix
}

// HasUndefined reports whether any entry of the matrix is NaN
func HasUndefined(corrMatrix *mat.SymDense) bool {
	if corrMatrix == nil {
		return false
	}
	n := corrMatrix.SymmetricDim()
	for i := range n {
		for j := range i + 1 {
			if math.IsNaN(corrMatrix.At(i, j)) {
				return true
			}
		}
	}
	return false
}
