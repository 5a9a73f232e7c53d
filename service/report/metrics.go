package report

import (
	"errors"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"

	m "urs/data/models"
)

const TradingDaysPerYear = 252

var ErrNotEnoughOverlap = errors.New("asset and benchmark share fewer than two defined returns")

type Metrics struct {
	CumulativeReturn float64
	CAGR             float64
	Volatility       float64 // annualized
	Sharpe           float64
	Sortino          float64
	MaxDrawdown      float64
	Calmar           float64
	Skew             float64
	Kurtosis         float64 // excess
	DailyVaR         float64 // historical, 95%
	BestDay          float64
	WorstDay         float64
	WinRate          float64
}

// Comparison holds the metrics that only make sense against the benchmark
type Comparison struct {
	Beta        float64
	Alpha       float64 // annualized
	Correlation float64
}

// Aligned keeps the dates on which both series have a defined return
type Aligned struct {
	Dates     []time.Time
	Asset     []float64
	Benchmark []float64
}

func Align(asset, benchmark m.ReturnSeries) (Aligned, error) {
	index := make(map[time.Time]float64, len(benchmark.Dates))
	for i, d := range benchmark.Dates {
		if !math.IsNaN(benchmark.Returns[i]) {
			index[d] = benchmark.Returns[i]
		}
	}

	var res Aligned
	for i, d := range asset.Dates {
		b, ok := index[d]
		if !ok || math.IsNaN(asset.Returns[i]) {
			continue
		}
		res.Dates = append(res.Dates, d)
		res.Asset = append(res.Asset, asset.Returns[i])
		res.Benchmark = append(res.Benchmark, b)
	}

	if len(res.Dates) < 2 {
		return Aligned{}, ErrNotEnoughOverlap
	}
	return res, nil
}

// ComputeMetrics summarises daily simple returns observed between start and end, risk free rate zero
func ComputeMetrics(returns []float64, start, end time.Time) Metrics {
	var res Metrics
	n := len(returns)
	if n == 0 {
		return res
	}

	equity := EquityCurve(returns)
	res.CumulativeReturn = equity[n-1] - 1

	years := end.Sub(start).Hours() / 24 / 365
	if years > 0 {
		res.CAGR = math.Pow(equity[n-1], 1/years) - 1
	}

	mean, std := stat.MeanStdDev(returns, nil)
	res.Volatility = std * math.Sqrt(TradingDaysPerYear)
	res.Sharpe = ratio(mean, std) * math.Sqrt(TradingDaysPerYear)
	res.Sortino = ratio(mean, downsideDeviation(returns)) * math.Sqrt(TradingDaysPerYear)

	res.MaxDrawdown = MaxDrawdown(equity)
	res.Calmar = ratio(res.CAGR, math.Abs(res.MaxDrawdown))

	res.Skew = stat.Skew(returns, nil)
	res.Kurtosis = stat.ExKurtosis(returns, nil)

	sorted := slices.Clone(returns)
	slices.Sort(sorted)
	res.DailyVaR = stat.Quantile(0.05, stat.Empirical, sorted, nil)
	res.WorstDay = sorted[0]
	res.BestDay = sorted[n-1]

	wins, nonZero := 0, 0
	for _, r := range returns {
		if r != 0 {
			nonZero++
		}
		if r > 0 {
			wins++
		}
	}
	res.WinRate = ratio(float64(wins), float64(nonZero))

	return res
}

func Compare(asset, benchmark []float64) Comparison {
	variance := stat.Variance(benchmark, nil)
	beta := ratio(stat.Covariance(asset, benchmark, nil), variance)
	return Comparison{
		Beta:        beta,
		Alpha:       (stat.Mean(asset, nil) - beta*stat.Mean(benchmark, nil)) * TradingDaysPerYear,
		Correlation: stat.Correlation(asset, benchmark, nil),
	}
}

// EquityCurve compounds the returns starting from 1
func EquityCurve(returns []float64) []float64 {
	res := make([]float64, len(returns))
	value := 1.0
	for i, r := range returns {
		value *= 1 + r
		res[i] = value
	}
	return res
}

// MaxDrawdown is the deepest fall from a running peak, as a non positive fraction.
// The curve is assumed to start at 1.
func MaxDrawdown(equity []float64) float64 {
	peak, worst := 1.0, 0.0
	for _, v := range equity {
		peak = math.Max(peak, v)
		worst = math.Min(worst, v/peak-1)
	}
	return worst
}

func downsideDeviation(returns []float64) float64 {
	sum := 0.0
	for _, r := range returns {
		if r < 0 {
			sum += r * r
		}
	}
	return math.Sqrt(sum / float64(len(returns)))
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

type MonthlyReturn struct {
	Year   int
	Months [12]float64 // NaN where the month has no observation
	Total  float64
}

// MonthlyReturns compounds daily returns by calendar month, one row per year ascending
func MonthlyReturns(dates []time.Time, returns []float64) []MonthlyReturn {
	var res []MonthlyReturn
	for i, d := range dates {
		if len(res) == 0 || res[len(res)-1].Year != d.Year() {
			row := MonthlyReturn{Year: d.Year(), Total: 1}
			for mo := range row.Months {
				row.Months[mo] = math.NaN()
			}
			res = append(res, row)
		}

		row := &res[len(res)-1]
		mo := int(d.Month()) - 1
		if math.IsNaN(row.Months[mo]) {
			row.Months[mo] = 0
		}
		row.Months[mo] = (1+row.Months[mo])*(1+returns[i]) - 1
		row.Total *= 1 + returns[i]
	}

	for i := range res {
		res[i].Total--
	}
	return res
}
