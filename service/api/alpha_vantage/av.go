package alpha_vantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	ex "urs/data/extensions"
	m "urs/data/models"
	"urs/service/api"
)

// public
const (
	HostDefault = "www.alphavantage.co"
	SourceName  = "alphavantage"
)

// private
const (
	defaultDataType = "json"

	// api request elements
	query      = "query"
	symbol     = "symbol"
	function   = "function"
	outputSize = "outputsize"
)

var (
	ErrSymbolNotFound = errors.New("alpha vantage does not know the symbol")
	ErrThrottled      = errors.New("alpha vantage refused the request")

	timeSeriesDateFormats = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
	}
)

type AlphaVantageClient struct {
	*api.Client
	workers int
	log     zerolog.Logger
}

func GetClient(apiKey string, timeout time.Duration, requestsPerMinute, workers int, log zerolog.Logger) *AlphaVantageClient {
	return NewClient(api.ClientFactory(HostDefault, apiKey, timeout, requestsPerMinute), workers, log)
}

func NewClient(client *api.Client, workers int, log zerolog.Logger) *AlphaVantageClient {
	if workers < 1 {
		workers = 1
	}
	return &AlphaVantageClient{
		Client:  client,
		workers: workers,
		log:     log.With().Str("client", SourceName).Logger(),
	}
}

func (avc *AlphaVantageClient) Name() string {
	return SourceName
}

// FetchHistory downloads the daily adjusted series for every symbol on a bounded worker pool.
// Unknown symbols yield an empty series, any other failure cancels the remaining downloads.
func (avc *AlphaVantageClient) FetchHistory(ctx context.Context, symbols []string, start, end time.Time) (map[string][]m.PricePoint, error) {
	nWorkers := min(len(symbols), avc.workers)
	results := make([][]m.PricePoint, len(symbols))

	jobsChannel := make(chan int, len(symbols))
	for i := range symbols {
		jobsChannel <- i
	}
	close(jobsChannel)

	g, gctx := errgroup.WithContext(ctx)
	for range nWorkers {
		g.Go(func() error {
			for i := range jobsChannel {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}

				res, err := avc.GetAdjustedTimeSeries(gctx, TimeSeriesDailyAdjusted, symbols[i])
				if errors.Is(err, ErrSymbolNotFound) {
					avc.log.Warn().Err(err).Str("symbol", symbols[i]).Msg("no data for symbol")
					continue
				}
				if err != nil {
					return fmt.Errorf("error downloading %s: %w", symbols[i], err)
				}

				results[i] = api.InRange(res.TimeSeries, start, end)
				avc.log.Debug().Str("symbol", symbols[i]).Int("points", len(results[i])).Msg("downloaded")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]m.PricePoint, len(symbols))
	for i, s := range symbols {
		out[s] = results[i]
	}
	return out, nil
}

// https://www.alphavantage.co/documentation/#dailyadj
func (avc *AlphaVantageClient) GetAdjustedTimeSeries(ctx context.Context, ts TimeSeries, ticker string) (*m.TimeSeriesResult, error) {
	params := map[string]string{
		function: ts.Function(),
		symbol:   ticker,
	}
	if size := ts.OutputSize(); size != "" {
		params[outputSize] = size
	}
	endpoint := avc.buildRequestPath(params)

	response, err := avc.Client.Connection.Request(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	raw, err := parseRawJson(response.Body)
	if err != nil {
		return nil, err
	}

	if err := checkResponseError(raw, ticker); err != nil {
		return nil, err
	}

	metaData, timeZone, err := parseMetaData(raw)
	if err != nil {
		return nil, err
	}

	timeSeriesData, err := parseTimeSeriesDataResult(raw, ts.TimeSeriesKey(), timeZone)
	if err != nil {
		return nil, err
	}

	return &m.TimeSeriesResult{
		Metadata:   metaData,
		TimeSeries: timeSeriesData,
	}, nil
}

func (avc *AlphaVantageClient) buildRequestPath(params map[string]string) *url.URL {
	endpoint := &url.URL{}
	endpoint.Path = query

	query := endpoint.Query()
	query.Set("apikey", avc.Client.ApiKey)
	query.Set("datatype", defaultDataType)

	for key, value := range params {
		query.Set(key, value)
	}

	endpoint.RawQuery = query.Encode()

	return endpoint
}

func parseRawJson(reader io.Reader) (raw map[string]json.RawMessage, err error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}

	return
}

// checkResponseError maps the error envelopes alpha vantage returns with a 200 status
func checkResponseError(raw map[string]json.RawMessage, ticker string) error {
	if msg, ok := raw["Error Message"]; ok {
		return fmt.Errorf("%w: %s (%s)", ErrSymbolNotFound, ticker, unquote(msg))
	}
	if _, ok := raw["Meta Data"]; ok {
		return nil
	}
	for _, key := range []string{"Note", "Information"} {
		if msg, ok := raw[key]; ok {
			return fmt.Errorf("%w: %s", ErrThrottled, unquote(msg))
		}
	}
	return fmt.Errorf("response for %s has no meta data", ticker)
}

func unquote(msg json.RawMessage) string {
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return string(msg)
	}
	return s
}

func parseMetaData(raw map[string]json.RawMessage) (*m.TimeSeriesMetadata, *time.Location, error) {
	var metadataElements map[string]string
	if err := json.Unmarshal(raw["Meta Data"], &metadataElements); err != nil {
		return nil, nil, fmt.Errorf("error unmarshaling meta data: %w", err)
	}

	metaDataKeys := slices.Collect(maps.Keys(metadataElements))

	sf := func(s string) bool { return strings.HasSuffix(s, ". Symbol") }
	symbolKey, err := ex.FilterSingle(metaDataKeys, sf)
	if err != nil {
		return nil, nil, fmt.Errorf("error extracting symbol for meta data")
	}

	tzf := func(s string) bool { return strings.HasSuffix(s, ". Time Zone") }
	timeZoneKey, err := ex.FilterSingle(metaDataKeys, tzf)
	if err != nil {
		return nil, nil, fmt.Errorf("error extracting time zone for meta data")
	}

	timeZone, err := getTimeZone(metadataElements[timeZoneKey])
	if err != nil {
		return nil, nil, fmt.Errorf("error converting time zone key %s, to time.Location: %w", metadataElements[timeZoneKey], err)
	}

	lrf := func(s string) bool { return strings.HasSuffix(s, ". Last Refreshed") }
	lastRefreshedKey, err := ex.FilterSingle(metaDataKeys, lrf)
	if err != nil {
		return nil, nil, fmt.Errorf("error extracting last refreshed date")
	}

	lastRefreshed, err := parseDate(metadataElements[lastRefreshedKey], timeZone)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing last refreshed date: %w", err)
	}

	res := m.TimeSeriesMetadata{
		Information:   optionalElement(metadataElements, ". Information"),
		Symbol:        metadataElements[symbolKey],
		LastRefreshed: lastRefreshed,
		OutputSize:    optionalElement(metadataElements, ". Output Size"),
		TimeZone:      metadataElements[timeZoneKey],
	}

	return &res, timeZone, nil
}

func optionalElement(elements map[string]string, suffix string) null.String {
	f := func(s string) bool { return strings.HasSuffix(s, suffix) }
	key, err := ex.FilterSingle(slices.Collect(maps.Keys(elements)), f)
	if err != nil {
		return null.NewString("", false)
	}
	return null.NewString(elements[key], true)
}

// parseTimeSeriesDataResult returns the adjusted closes keyed by calendar day, ascending
func parseTimeSeriesDataResult(raw map[string]json.RawMessage, key string, location *time.Location) ([]m.PricePoint, error) {
	var timeSeriesElements map[string]map[string]string
	if err := json.Unmarshal(raw[key], &timeSeriesElements); err != nil {
		return nil, fmt.Errorf("error unmarshaling time series: %w", err)
	}
	if len(timeSeriesElements) == 0 {
		return nil, fmt.Errorf("%w: time series %q is empty", api.ErrNoPriceData, key)
	}

	var firstValue map[string]string
	for _, v := range timeSeriesElements {
		firstValue = v
		break
	}

	acf := func(s string) bool { return strings.HasSuffix(s, ". adjusted close") }
	adjustedCloseKey, err := ex.FilterSingle(slices.Collect(maps.Keys(firstValue)), acf)
	if err != nil {
		return nil, fmt.Errorf("error extracting adjusted close key for time series")
	}

	timeSeries := make([]m.PricePoint, 0, len(timeSeriesElements))
	for timeSeriesKey, timeSeriesValue := range timeSeriesElements {
		timestamp, err := parseDate(timeSeriesKey, location)
		if err != nil {
			return nil, fmt.Errorf("error converting TIMESTAMP from string to time.Time: %w", err)
		}

		timeSeries = append(timeSeries, m.PricePoint{
			Date:          ex.TruncateDay(timestamp),
			AdjustedClose: parseFloat(timeSeriesValue[adjustedCloseKey]),
		})
	}

	slices.SortFunc(timeSeries, func(a, b m.PricePoint) int { return a.Date.Compare(b.Date) })
	return timeSeries, nil
}

func getTimeZone(location string) (*time.Location, error) {
	var loc string
	switch strings.ToUpper(location) {
	case "US/EASTERN":
		loc = "America/New_York"
	case "UTC", "":
		return time.UTC, nil
	default:
		loc = location
	}

	res, err := time.LoadLocation(loc)
	if err != nil {
		return nil, fmt.Errorf("error parsing time zone %s in time.LoadLocation", loc)
	}

	return res, nil
}

func parseDate(dateString string, location *time.Location) (time.Time, error) {
	for _, format := range timeSeriesDateFormats {
		t, err := time.ParseInLocation(format, dateString, location)
		if err != nil {
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("error converting date %s to time.Time", dateString)
}

// parseFloat maps blanks and unparseable values to a missing price
func parseFloat(val string) null.Float {
	if val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return null.NewFloat(f, true)
		}
	}
	return null.NewFloat(0, false)
}

var _ api.HistorySource = (*AlphaVantageClient)(nil)
