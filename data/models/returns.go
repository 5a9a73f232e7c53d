package models

import (
	"slices"
	"time"
)

// ReturnTable holds simple period returns, NaN marks an undefined return.
type ReturnTable struct {
	Dates   []time.Time
	Symbols []string
	Columns [][]float64
}

type RankedReturn struct {
	Symbol       string
	MedianReturn float64
}

func (rt ReturnTable) Rows() int {
	return len(rt.Dates)
}

func (rt ReturnTable) Column(symbol string) ([]float64, bool) {
	i := slices.Index(rt.Symbols, symbol)
	if i < 0 {
		return nil, false
	}
	return rt.Columns[i], true
}

// Without returns a copy of the table minus the named columns. Column order is kept.
func (rt ReturnTable) Without(symbols []string) ReturnTable {
	res := ReturnTable{
		Dates:   slices.Clone(rt.Dates),
		Symbols: make([]string, 0, len(rt.Symbols)),
		Columns: make([][]float64, 0, len(rt.Columns)),
	}
	for i, s := range rt.Symbols {
		if slices.Contains(symbols, s) {
			continue
		}
		res.Symbols = append(res.Symbols, s)
		res.Columns = append(res.Columns, slices.Clone(rt.Columns[i]))
	}
	return res
}
