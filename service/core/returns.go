package core

import (
	"errors"
	"math"
	"slices"

	"github.com/guregu/null/v6"

	m "urs/data/models"
)

var (
	ErrNotEnoughRows = errors.New("at least two price rows are required to compute returns")
	ErrNoColumns     = errors.New("price table has no columns")
)

// DropEmptyColumns removes the symbols without a single price. The input is not modified.
func DropEmptyColumns(pt m.PriceTable) (m.PriceTable, []string) {
	res := m.PriceTable{
		Dates:   slices.Clone(pt.Dates),
		Symbols: make([]string, 0, len(pt.Symbols)),
		Columns: make([][]null.Float, 0, len(pt.Columns)),
	}

	var dropped []string
	for i, s := range pt.Symbols {
		if pt.ValidCount(i) == 0 {
			dropped = append(dropped, s)
			continue
		}
		res.Symbols = append(res.Symbols, s)
		res.Columns = append(res.Columns, slices.Clone(pt.Columns[i]))
	}

	return res, dropped
}

// PercentChange computes (p[t] - p[t-1]) / p[t-1] per column and drops the first row.
// A missing price on either side, or a zero previous price, leaves the return undefined (NaN).
func PercentChange(pt m.PriceTable) (m.ReturnTable, error) {
	if len(pt.Symbols) == 0 {
		return m.ReturnTable{}, ErrNoColumns
	}
	if pt.Rows() < 2 {
		return m.ReturnTable{}, ErrNotEnoughRows
	}

	rows := pt.Rows() - 1
	res := m.ReturnTable{
		Dates:   slices.Clone(pt.Dates[1:]),
		Symbols: slices.Clone(pt.Symbols),
		Columns: make([][]float64, len(pt.Columns)),
	}

	for c, prices := range pt.Columns {
		col := make([]float64, rows)
		for t := 1; t < len(prices); t++ {
			col[t-1] = simpleReturn(prices[t-1], prices[t])
		}
		res.Columns[c] = col
	}

	return res, nil
}

func simpleReturn(previous, current null.Float) float64 {
	if !previous.Valid || !current.Valid || previous.Float64 == 0 {
		return math.NaN()
	}
	return (current.Float64 - previous.Float64) / previous.Float64
}
