package core

import (
	"cmp"
	"math"
	"slices"

	m "urs/data/models"
)

// RankMedianReturns orders the symbols by median return, highest first. Ties keep column order
// and symbols without a defined median sort last.
func RankMedianReturns(rt m.ReturnTable) []m.RankedReturn {
	ranking := make([]m.RankedReturn, len(rt.Symbols))
	for i, s := range rt.Symbols {
		ranking[i] = m.RankedReturn{
			Symbol:       s,
			MedianReturn: Median(rt.Columns[i]),
		}
	}

	slices.SortStableFunc(ranking, func(a, b m.RankedReturn) int {
		aNaN, bNaN := math.IsNaN(a.MedianReturn), math.IsNaN(b.MedianReturn)
		switch {
		case aNaN && bNaN:
			return 0
		case aNaN:
			return 1
		case bNaN:
			return -1
		}
		return cmp.Compare(b.MedianReturn, a.MedianReturn)
	})

	return ranking
}

// HighPerformers keeps the entries whose median is strictly above threshold, preserving order
func HighPerformers(ranking []m.RankedReturn, threshold float64) []m.RankedReturn {
	res := make([]m.RankedReturn, 0)
	for _, r := range ranking {
		if r.MedianReturn > threshold {
			res = append(res, r)
		}
	}
	return res
}
