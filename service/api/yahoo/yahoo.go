package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/multi"

	ex "urs/data/extensions"
	m "urs/data/models"
	"urs/service/api"
)

const SourceName = "yahoo"

// Downloader fetches daily bars for a batch of symbols between start and end. Per symbol failures
// are reported in the second map, a failure of the whole batch as the error.
type Downloader func(symbols []string, start, end time.Time) (map[string][]models.Bar, map[string]error, error)

// exchangeZones maps a yahoo symbol suffix to the exchange the symbol trades on. Bars are stamped
// in UTC, the trading day is the calendar date at the exchange.
var exchangeZones = map[string]string{
	".AX": "Australia/Sydney",
	".MI": "Europe/Rome",
	".L":  "Europe/London",
	".PA": "Europe/Paris",
	".DE": "Europe/Berlin",
	".AS": "Europe/Amsterdam",
	".SW": "Europe/Zurich",
	".TO": "America/Toronto",
	".HK": "Asia/Hong_Kong",
	".T":  "Asia/Tokyo",
}

const defaultExchangeZone = "America/New_York"

type Client struct {
	download Downloader
	log      zerolog.Logger
}

func NewClient(log zerolog.Logger) *Client {
	return NewClientWithDownloader(Download, log)
}

func NewClientWithDownloader(download Downloader, log zerolog.Logger) *Client {
	return &Client{
		download: download,
		log:      log.With().Str("client", SourceName).Logger(),
	}
}

// Download pulls daily bars through the yahoo chart api. The window is padded by a day on both
// sides since yahoo cuts it in UTC, a start before the unix epoch asks for the full history.
func Download(symbols []string, start, end time.Time) (map[string][]models.Bar, map[string]error, error) {
	params := models.DefaultDownloadParams()
	params.Symbols = symbols
	params.Interval = "1d"
	if start.Unix() <= 0 {
		params.Period = "max"
	} else {
		from, to := start.AddDate(0, 0, -1), end.AddDate(0, 0, 1)
		params.Period = ""
		params.Start = &from
		params.End = &to
	}

	result, err := multi.Download(symbols, &params)
	if err != nil {
		return nil, nil, err
	}
	return result.Data, result.Errors, nil
}

func (c *Client) Name() string {
	return SourceName
}

// FetchHistory returns adjusted closes for start <= date < end. A symbol yahoo cannot serve
// gets an empty series, the call only fails when nothing at all came back.
func (c *Client) FetchHistory(ctx context.Context, symbols []string, start, end time.Time) (map[string][]m.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, failures, err := c.download(symbols, start, end)
	if err != nil {
		return nil, fmt.Errorf("error downloading from yahoo: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string][]m.PricePoint, len(symbols))
	received := 0
	for _, symbol := range symbols {
		if err, ok := failures[symbol]; ok && err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to download symbol")
		}

		points := api.InRange(toPricePoints(symbol, data[symbol]), start, end)
		if len(points) == 0 {
			c.log.Warn().Str("symbol", symbol).Msg("no data for symbol in range")
		} else {
			received++
		}
		out[symbol] = points
	}

	if received == 0 && len(symbols) > 0 {
		return nil, fmt.Errorf("%w: none of the %d symbols returned prices", api.ErrNoPriceData, len(symbols))
	}
	return out, nil
}

// exchangeLocation picks the exchange time zone from the symbol suffix, US listings have none
func exchangeLocation(symbol string) *time.Location {
	name := defaultExchangeZone
	if i := strings.LastIndex(symbol, "."); i > 0 {
		if zone, ok := exchangeZones[strings.ToUpper(symbol[i:])]; ok {
			name = zone
		}
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// toPricePoints dates each bar by its trading day at the exchange. It prefers the adjusted close
// and falls back to the close when yahoo leaves it empty.
func toPricePoints(symbol string, bars []models.Bar) []m.PricePoint {
	loc := exchangeLocation(symbol)
	points := make([]m.PricePoint, 0, len(bars))
	for _, bar := range bars {
		price := bar.AdjClose
		if price == 0 {
			price = bar.Close
		}
		points = append(points, m.PricePoint{
			Date:          ex.TruncateDay(bar.Date.In(loc)),
			AdjustedClose: null.NewFloat(price, price > 0),
		})
	}
	return points
}

var _ api.HistorySource = (*Client)(nil)
