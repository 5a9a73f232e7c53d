package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v6"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	m "urs/data/models"
	"urs/service/exporter"
)

const (
	CodependencePearson = "pearson"
	LinkageWard         = "ward"
)

var ErrNoPriceData = errors.New("no symbol returned any price data")

type PipelineResult struct {
	RunId          string
	Prices         m.PriceTable
	DroppedEmpty   []string
	Returns        m.ReturnTable
	Ranking        []m.RankedReturn
	HighPerformers []m.RankedReturn
	Sanitized      m.ReturnTable
	Correlation    *mat.SymDense
	Sanitize       SanitizeReport
	Clusters       *m.ClusterSummary
	ReportPath     string
}

// RunPipeline downloads the prices, ranks the median returns, sanitizes the return table and hands it to the
// optional clustering and reporting capabilities. The high performer filter sees the returns before sanitizing.
func (sc *ServiceContext) RunPipeline(caps Capabilities) (*PipelineResult, error) {
	start := time.Now()
	cfg := sc.Config
	res := &PipelineResult{RunId: uuid.NewString()}
	log := sc.Log.With().Str("run_id", res.RunId).Logger()

	if err := sc.insertRun(res.RunId); err != nil {
		return nil, err
	}

	log.Info().Int("symbols", len(cfg.Symbols)).Str("source", sc.Source.Name()).
		Str("start", cfg.Start.Format(time.DateOnly)).Str("end", cfg.End.Format(time.DateOnly)).
		Msg("downloading price data")
	series, err := sc.SyncSymbolPrices(cfg.Symbols)
	if err != nil {
		return nil, sc.markRunAsFailure(res.RunId, fmt.Errorf("error downloading prices: %w", err))
	}

	res.Prices, res.DroppedEmpty = LoadPriceTable(cfg.Symbols, series)
	for _, s := range res.DroppedEmpty {
		log.Warn().Str("symbol", s).Msg("dropping symbol without price data")
	}
	if len(res.Prices.Symbols) == 0 {
		return nil, sc.markRunAsFailure(res.RunId, ErrNoPriceData)
	}

	log.Info().Int("rows", res.Prices.Rows()).Int("symbols", len(res.Prices.Symbols)).Dur("elapsed", time.Since(start)).Msg("computing returns")
	res.Returns, err = PercentChange(res.Prices)
	if err != nil {
		return nil, sc.markRunAsFailure(res.RunId, err)
	}

	res.Ranking = RankMedianReturns(res.Returns)
	logRanking(log.Info(), "median returns", res.Ranking)
	if err := exporter.WriteRanking(cfg.RankingPath(), res.Ranking); err != nil {
		return nil, sc.markRunAsFailure(res.RunId, fmt.Errorf("error writing ranking: %w", err))
	}
	log.Info().Str("path", cfg.RankingPath()).Msg("saved median returns")

	res.HighPerformers = HighPerformers(res.Ranking, cfg.HighPerformerThreshold)
	logRanking(log.Info().Float64("threshold", cfg.HighPerformerThreshold), "high performing assets", res.HighPerformers)

	res.Sanitized, res.Correlation, res.Sanitize = Sanitize(res.Returns, SanitizeOptions{UntilStable: cfg.SanitizeUntilStable})
	for _, s := range res.Sanitize.ZeroVariance {
		log.Warn().Str("symbol", s).Msg("removing column with zero variance")
	}
	if len(res.Sanitize.NaNCorrelation) > 0 {
		log.Warn().Strs("symbols", res.Sanitize.NaNCorrelation).Msg("removing columns with NaN correlation")
	}
	log.Info().Int("symbols", len(res.Sanitized.Symbols)).Int("passes", res.Sanitize.Passes).Dur("elapsed", time.Since(start)).Msg("sanitized returns")

	if path := cfg.WorkbookPath(); path != "" {
		wb := exporter.Workbook{
			Ranking:        res.Ranking,
			HighPerformers: res.HighPerformers,
			Symbols:        res.Sanitized.Symbols,
			Correlation:    res.Correlation,
		}
		if err := exporter.WriteWorkbook(path, wb); err != nil {
			return nil, sc.markRunAsFailure(res.RunId, fmt.Errorf("error writing workbook: %w", err))
		}
		log.Info().Str("path", path).Msg("saved workbook")
	}

	if err := sc.runSink(caps, res); err != nil {
		return nil, sc.markRunAsFailure(res.RunId, err)
	}

	if err := sc.markRunAsSuccess(res.RunId, res.Ranking); err != nil {
		return nil, err
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("run completed")
	return res, nil
}

// runSink hands the sanitized table to each available capability. Missing capabilities and inputs they
// cannot work with are skipped with a warning, failures of an available capability are returned.
func (sc *ServiceContext) runSink(caps Capabilities, res *PipelineResult) error {
	cfg := sc.Config

	if clusterer, ok := caps.Clustering.Get(); !ok {
		sc.Log.Warn().Err(caps.Clustering.Err()).Msg("skipping cluster dendrogram")
	} else if len(res.Sanitized.Symbols) < 2 {
		sc.Log.Warn().Int("symbols", len(res.Sanitized.Symbols)).Msg("skipping cluster dendrogram, at least two assets are required")
	} else {
		sc.Log.Info().Msg("plotting cluster dendrogram")
		settings := m.ClusterSettings{
			Codependence: CodependencePearson,
			Linkage:      LinkageWard,
			K:            0,
			MaxK:         cfg.MaxClusters,
			LeafOrder:    true,
			Dendrogram:   true,
			Output:       cfg.DendrogramPath(),
		}
		summary, err := clusterer.PlotClusters(res.Sanitized, settings)
		if err != nil {
			return fmt.Errorf("error plotting clusters: %w", err)
		}
		res.Clusters = summary
		sc.Log.Info().Int("clusters", summary.K).Str("path", settings.Output).Msg("clustered assets")
	}

	reporter, ok := caps.Reporting.Get()
	if !ok {
		sc.Log.Warn().Err(caps.Reporting.Err()).Msg("skipping tear sheet report")
		return nil
	}

	asset, okAsset := res.Sanitized.Series(cfg.SampleSymbol)
	benchmark, okBenchmark := res.Sanitized.Series(cfg.BenchmarkSymbol)
	if !okAsset || !okBenchmark {
		sc.Log.Warn().Str("sample", cfg.SampleSymbol).Bool("sample_present", okAsset).
			Str("benchmark", cfg.BenchmarkSymbol).Bool("benchmark_present", okBenchmark).
			Msg("skipping tear sheet report, symbol not in sanitized returns")
		return nil
	}

	path := cfg.ReportPath()
	sc.Log.Info().Str("sample", cfg.SampleSymbol).Str("benchmark", cfg.BenchmarkSymbol).Msg("generating tear sheet report")
	if err := reporter.TearSheet(asset, benchmark, path); err != nil {
		return fmt.Errorf("error writing report: %w", err)
	}
	res.ReportPath = path
	sc.Log.Info().Str("path", path).Msg("saved report")
	return nil
}

func (sc *ServiceContext) insertRun(runId string) error {
	if sc.Store == nil {
		return nil
	}

	cfg := sc.Config
	run := &m.RunHistory{
		Id:          runId,
		Source:      sc.Source.Name(),
		StartDate:   cfg.Start.Time,
		EndDate:     cfg.End.Time,
		SymbolCount: len(cfg.Symbols),
		Status:      m.RunStatusRunning,
		StartedAt:   time.Now().UTC(),
		FinishedAt:  null.NewTime(time.Time{}, false),
	}
	if err := sc.Store.InsertRun(sc.Context, run); err != nil {
		return fmt.Errorf("error inserting run %s to run history: %w", runId, err)
	}
	return nil
}

// markRunAsFailure records the failure and hands the original error back. The run row is updated
// even when the failure is the run's context being cancelled.
func (sc *ServiceContext) markRunAsFailure(runId string, cause error) error {
	if sc.Store == nil {
		return cause
	}
	if err := sc.Store.MarkRunFailure(context.WithoutCancel(sc.Context), runId, cause.Error()); err != nil {
		return errors.Join(cause, fmt.Errorf("error updating run %s as failure: %w", runId, err))
	}
	return cause
}

func (sc *ServiceContext) markRunAsSuccess(runId string, ranking []m.RankedReturn) error {
	if sc.Store == nil {
		return nil
	}
	ctx := context.WithoutCancel(sc.Context)
	if err := sc.Store.SaveMedianReturns(ctx, runId, ranking); err != nil {
		return sc.markRunAsFailure(runId, fmt.Errorf("error saving median returns: %w", err))
	}
	if err := sc.Store.MarkRunSuccess(ctx, runId); err != nil {
		return fmt.Errorf("error updating run %s as success: %w", runId, err)
	}
	return nil
}

func logRanking(e *zerolog.Event, msg string, ranking []m.RankedReturn) {
	d := zerolog.Dict()
	for _, r := range ranking {
		d = d.Float64(r.Symbol, r.MedianReturn)
	}
	e.Int("count", len(ranking)).Dict("median_return", d).Msg(msg)
}
