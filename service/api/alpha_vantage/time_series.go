package alpha_vantage

// TimeSeries specifies the adjusted frequency to query for price data.
type TimeSeries uint8

const (
	TimeSeriesDailyAdjusted TimeSeries = iota
)

func (t TimeSeries) Function() string {
	switch t {
	case TimeSeriesDailyAdjusted:
		return "TIME_SERIES_DAILY_ADJUSTED"
	default:
		return ""
	}
}

// TimeSeriesKey is the top level json key holding the observations
func (t TimeSeries) TimeSeriesKey() string {
	switch t {
	case TimeSeriesDailyAdjusted:
		return "Time Series (Daily)"
	default:
		return ""
	}
}

// OutputSize asks for the full daily history rather than the last 100 points
func (t TimeSeries) OutputSize() string {
	if t == TimeSeriesDailyAdjusted {
		return "full"
	}
	return ""
}
