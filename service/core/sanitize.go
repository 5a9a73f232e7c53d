package core

import (
	"math"

	"gonum.org/v1/gonum/mat"

	m "urs/data/models"
)

type SanitizeOptions struct {
	// UntilStable repeats the correlation check until no undefined entry is left.
	// The default is a single pass.
	UntilStable bool
}

type SanitizeReport struct {
	ZeroVariance   []string
	NaNCorrelation []string
	Passes         int
}

// DropZeroVariance removes every column whose standard deviation is not strictly positive.
// Columns with fewer than two defined returns have an undefined deviation and go too.
func DropZeroVariance(rt m.ReturnTable) (m.ReturnTable, []string) {
	var dropped []string
	for i, s := range rt.Symbols {
		if sd := StdDev(rt.Columns[i]); math.IsNaN(sd) || sd <= 0 {
			dropped = append(dropped, s)
		}
	}
	return rt.Without(dropped), dropped
}

// NaNCorrelationColumns lists the symbols whose row of the matrix holds at least one NaN
func NaNCorrelationColumns(corrMatrix *mat.SymDense, symbols []string) []string {
	if corrMatrix == nil {
		return nil
	}

	var res []string
	n := corrMatrix.SymmetricDim()
	for i := range n {
		for j := range n {
			if math.IsNaN(corrMatrix.At(i, j)) {
				res = append(res, symbols[i])
				break
			}
		}
	}
	return res
}

// DropNaNCorrelation drops, in one pass, every column involved in an undefined correlation
func DropNaNCorrelation(rt m.ReturnTable) (m.ReturnTable, []string) {
	dropped := NaNCorrelationColumns(CorrelationMatrix(rt), rt.Symbols)
	if len(dropped) == 0 {
		return rt, nil
	}
	return rt.Without(dropped), dropped
}

// Sanitize removes the degenerate columns and returns the cleaned table with its correlation matrix.
// The input table is not modified.
func Sanitize(rt m.ReturnTable, opts SanitizeOptions) (m.ReturnTable, *mat.SymDense, SanitizeReport) {
	res, zeroVariance := DropZeroVariance(rt)
	report := SanitizeReport{ZeroVariance: zeroVariance}

	for {
		var dropped []string
		res, dropped = DropNaNCorrelation(res)
		report.Passes++
		report.NaNCorrelation = append(report.NaNCorrelation, dropped...)

		if !opts.UntilStable || len(dropped) == 0 {
			break
		}
	}

	return res, CorrelationMatrix(res), report
}
