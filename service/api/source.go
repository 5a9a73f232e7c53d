package api

import (
	"context"
	"errors"
	"slices"
	"time"

	ex "urs/data/extensions"
	m "urs/data/models"
)

var ErrNoPriceData = errors.New("no price data returned")

// HistorySource downloads adjusted close history. Symbols the source does not know come back
// with an empty series, transport failures are returned as errors.
type HistorySource interface {
	Name() string
	FetchHistory(ctx context.Context, symbols []string, start, end time.Time) (map[string][]m.PricePoint, error)
}

// InRange keeps the points with start <= date < end, sorted ascending
func InRange(points []m.PricePoint, start, end time.Time) []m.PricePoint {
	res := ex.FilterMultiple(points, func(p m.PricePoint) bool {
		return !p.Date.Before(start) && p.Date.Before(end)
	})
	slices.SortFunc(res, func(a, b m.PricePoint) int { return a.Date.Compare(b.Date) })
	return res
}
