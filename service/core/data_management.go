package core

import (
	"fmt"
	"time"

	ex "urs/data/extensions"
	m "urs/data/models"
)

// the cache keeps the full history so any date range can be served from it
var fullHistoryStart = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// SyncSymbolPrices returns the adjusted closes for the configured range. Without a store every symbol is
// downloaded. With one, symbols refreshed within StoreMaxAge come from the store and the rest are
// downloaded, saved and then read back.
func (sc *ServiceContext) SyncSymbolPrices(symbols []string) (map[string][]m.PricePoint, error) {
	cfg := sc.Config
	if sc.Store == nil {
		return sc.Source.FetchHistory(sc.Context, symbols, cfg.Start.Time, cfg.End.Time)
	}

	stale, err := sc.staleSymbols(symbols)
	if err != nil {
		return nil, err
	}

	if len(stale) > 0 {
		sc.Log.Info().Int("symbols", len(stale)).Str("source", sc.Source.Name()).Msg("refreshing price cache")

		refreshed := time.Now().UTC()
		downloaded, err := sc.Source.FetchHistory(sc.Context, stale, fullHistoryStart, refreshed.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}

		for _, symbol := range stale {
			series := m.PriceSeries{Symbol: symbol, Points: downloaded[symbol]}
			ra, err := sc.Store.SavePrices(sc.Context, sc.Source.Name(), series, refreshed)
			if err != nil {
				return nil, fmt.Errorf("error saving prices for %s: %w", symbol, err)
			}
			sc.Log.Debug().Str("symbol", symbol).Int("downloaded", len(series.Points)).Int64("saved", ra).Msg("cached prices")
		}
	}

	res := make(map[string][]m.PricePoint, len(symbols))
	for _, symbol := range symbols {
		points, err := sc.Store.GetPrices(sc.Context, symbol, sc.Source.Name(), cfg.Start.Time, cfg.End.Time)
		if err != nil {
			return nil, fmt.Errorf("error reading cached prices for %s: %w", symbol, err)
		}
		res[symbol] = points
	}

	return res, nil
}

func (sc *ServiceContext) staleSymbols(symbols []string) ([]string, error) {
	cutoff := time.Now().Add(-sc.Config.StoreMaxAge)

	var stale []string
	for _, symbol := range symbols {
		md, err := sc.Store.GetMetadata(sc.Context, symbol, sc.Source.Name())
		if err != nil {
			return nil, fmt.Errorf("error determining if meta data exists for %s: %w", symbol, err)
		}

		if md != nil && md.LastRefreshed.After(cutoff) {
			sc.Log.Debug().Str("symbol", symbol).Str("last_refreshed", ex.FmtLong(md.LastRefreshed)).Msg("serving from cache")
			continue
		}
		stale = append(stale, symbol)
	}
	return stale, nil
}

// LoadPriceTable aligns the downloaded series and drops the symbols that came back without any price
func LoadPriceTable(symbols []string, series map[string][]m.PricePoint) (m.PriceTable, []string) {
	return DropEmptyColumns(m.NewPriceTable(symbols, series))
}
