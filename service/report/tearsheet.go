package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	ex "urs/data/extensions"
	m "urs/data/models"
)

//go:embed templates/*.html.tmpl
var templateFiles embed.FS

var tearSheetTemplate = template.Must(template.New("tearsheet.html.tmpl").Funcs(template.FuncMap{
	"pct":  formatPercent,
	"date": ex.FmtShort,
}).ParseFS(templateFiles, "templates/tearsheet.html.tmpl"))

const (
	chartWidth  = 900.0
	chartHeight = 300.0
)

type MetricRow struct {
	Name      string
	Asset     string
	Benchmark string
}

type Chart struct {
	Width, Height   float64
	AssetPoints     string
	BenchmarkPoints string
	BaselineY       float64
}

type TearSheet struct {
	Asset      string
	Benchmark  string
	Start, End time.Time
	Generated  time.Time
	Days       int

	AssetMetrics     Metrics
	BenchmarkMetrics Metrics
	Comparison       Comparison

	Rows    []MetricRow
	Monthly []MonthlyReturn
	Chart   Chart
}

// BuildTearSheet aligns the two series and computes everything the report shows
func BuildTearSheet(asset, benchmark m.ReturnSeries) (*TearSheet, error) {
	aligned, err := Align(asset, benchmark)
	if err != nil {
		return nil, err
	}

	start, end := aligned.Dates[0], aligned.Dates[len(aligned.Dates)-1]
	ts := &TearSheet{
		Asset:            asset.Symbol,
		Benchmark:        benchmark.Symbol,
		Start:            start,
		End:              end,
		Generated:        time.Now().UTC(),
		Days:             len(aligned.Dates),
		AssetMetrics:     ComputeMetrics(aligned.Asset, start, end),
		BenchmarkMetrics: ComputeMetrics(aligned.Benchmark, start, end),
		Comparison:       Compare(aligned.Asset, aligned.Benchmark),
		Monthly:          MonthlyReturns(aligned.Dates, aligned.Asset),
	}
	ts.Rows = ts.metricRows()
	ts.Chart = equityChart(EquityCurve(aligned.Asset), EquityCurve(aligned.Benchmark))

	return ts, nil
}

func (ts *TearSheet) metricRows() []MetricRow {
	a, b := ts.AssetMetrics, ts.BenchmarkMetrics
	return []MetricRow{
		{"Cumulative Return", formatPercent(a.CumulativeReturn), formatPercent(b.CumulativeReturn)},
		{"CAGR", formatPercent(a.CAGR), formatPercent(b.CAGR)},
		{"Volatility (ann.)", formatPercent(a.Volatility), formatPercent(b.Volatility)},
		{"Sharpe", formatNumber(a.Sharpe), formatNumber(b.Sharpe)},
		{"Sortino", formatNumber(a.Sortino), formatNumber(b.Sortino)},
		{"Max Drawdown", formatPercent(a.MaxDrawdown), formatPercent(b.MaxDrawdown)},
		{"Calmar", formatNumber(a.Calmar), formatNumber(b.Calmar)},
		{"Skew", formatNumber(a.Skew), formatNumber(b.Skew)},
		{"Kurtosis", formatNumber(a.Kurtosis), formatNumber(b.Kurtosis)},
		{"Daily Value-at-Risk", formatPercent(a.DailyVaR), formatPercent(b.DailyVaR)},
		{"Best Day", formatPercent(a.BestDay), formatPercent(b.BestDay)},
		{"Worst Day", formatPercent(a.WorstDay), formatPercent(b.WorstDay)},
		{"Win Days", formatPercent(a.WinRate), formatPercent(b.WinRate)},
		{"Beta", formatNumber(ts.Comparison.Beta), "-"},
		{"Alpha (ann.)", formatPercent(ts.Comparison.Alpha), "-"},
		{"Correlation", formatNumber(ts.Comparison.Correlation), "-"},
	}
}

func (ts *TearSheet) Render(w io.Writer) error {
	return tearSheetTemplate.Execute(w, ts)
}

// equityChart scales both curves into one polyline each, sharing the y axis
func equityChart(asset, benchmark []float64) Chart {
	lo, hi := 1.0, 1.0
	for _, curve := range [][]float64{asset, benchmark} {
		for _, v := range curve {
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	if hi == lo {
		hi = lo + 1
	}

	y := func(v float64) float64 { return chartHeight * (1 - (v-lo)/(hi-lo)) }
	points := func(curve []float64) string {
		var b strings.Builder
		step := chartWidth / float64(max(len(curve), 1))
		fmt.Fprintf(&b, "0,%.1f", y(1))
		for i, v := range curve {
			fmt.Fprintf(&b, " %.1f,%.1f", step*float64(i+1), y(v))
		}
		return b.String()
	}

	return Chart{
		Width:           chartWidth,
		Height:          chartHeight,
		AssetPoints:     points(asset),
		BenchmarkPoints: points(benchmark),
		BaselineY:       y(1),
	}
}

func formatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return strconv.FormatFloat(v*100, 'f', 2, 64) + "%"
}

func formatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

type Reporter struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Reporter {
	return &Reporter{log: log.With().Str("component", "report").Logger()}
}

// TearSheet renders the report for asset against benchmark into output
func (r *Reporter) TearSheet(asset, benchmark m.ReturnSeries, output string) error {
	ts, err := BuildTearSheet(asset, benchmark)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := ts.Render(&buf); err != nil {
		return fmt.Errorf("error rendering tear sheet: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("error creating output directory for %s: %w", output, err)
	}
	if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", output, err)
	}

	r.log.Debug().Str("asset", ts.Asset).Str("benchmark", ts.Benchmark).Int("days", ts.Days).Msg("tear sheet written")
	return nil
}
