package models

import (
	"slices"
	"time"

	"github.com/guregu/null/v6"
)

// PricePoint is one adjusted close observation, an invalid AdjustedClose is a missing price
type PricePoint struct {
	Date          time.Time
	AdjustedClose null.Float
}

type PriceSeries struct {
	Symbol string
	Points []PricePoint
}

// PriceTable is a date by symbol grid of adjusted closes. Dates are ascending and every column has one cell per date.
type PriceTable struct {
	Dates   []time.Time
	Symbols []string
	Columns [][]null.Float
}

// NewPriceTable aligns the series on the union of their dates. Symbols without a series get an all missing column.
func NewPriceTable(symbols []string, series map[string][]PricePoint) PriceTable {
	seen := make(map[time.Time]struct{})
	for _, s := range symbols {
		for _, p := range series[s] {
			seen[p.Date] = struct{}{}
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })

	index := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		index[d] = i
	}

	columns := make([][]null.Float, len(symbols))
	for c, s := range symbols {
		col := make([]null.Float, len(dates))
		for _, p := range series[s] {
			col[index[p.Date]] = p.AdjustedClose
		}
		columns[c] = col
	}

	return PriceTable{
		Dates:   dates,
		Symbols: slices.Clone(symbols),
		Columns: columns,
	}
}

func (pt PriceTable) Rows() int {
	return len(pt.Dates)
}

func (pt PriceTable) Column(symbol string) ([]null.Float, bool) {
	i := slices.Index(pt.Symbols, symbol)
	if i < 0 {
		return nil, false
	}
	return pt.Columns[i], true
}

// ValidCount is the number of non missing prices in column i
func (pt PriceTable) ValidCount(i int) int {
	n := 0
	for _, v := range pt.Columns[i] {
		if v.Valid {
			n++
		}
	}
	return n
}
