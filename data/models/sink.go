package models

import "time"

// ReturnSeries is a single column of a ReturnTable with its dates
type ReturnSeries struct {
	Symbol  string
	Dates   []time.Time
	Returns []float64
}

// Series extracts one column as a standalone series
func (rt ReturnTable) Series(symbol string) (ReturnSeries, bool) {
	col, ok := rt.Column(symbol)
	if !ok {
		return ReturnSeries{}, false
	}
	return ReturnSeries{
		Symbol:  symbol,
		Dates:   rt.Dates,
		Returns: col,
	}, true
}

type ClusterSettings struct {
	Codependence string
	Linkage      string
	K            int // 0 picks the number of clusters from the data
	MaxK         int
	LeafOrder    bool
	Dendrogram   bool
	Output       string
}

type ClusterSummary struct {
	K        int
	Symbols  []string // leaf order
	Clusters []int    // cluster label per entry of Symbols, 1 based
}
