package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "urs/data/models"
	r "urs/data/repos"
	"urs/service/api"
	"urs/service/config"
)

type fakeSource struct {
	mu     sync.Mutex
	series map[string][]m.PricePoint
	err    error
	calls  [][]string
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchHistory(ctx context.Context, symbols []string, start, end time.Time) (map[string][]m.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, symbols)
	if f.err != nil {
		return nil, f.err
	}

	res := make(map[string][]m.PricePoint, len(symbols))
	for _, s := range symbols {
		res[s] = api.InRange(f.series[s], start, end)
	}
	return res, nil
}

type fakeClusterer struct {
	got      m.ReturnTable
	settings m.ClusterSettings
}

func (f *fakeClusterer) PlotClusters(rt m.ReturnTable, settings m.ClusterSettings) (*m.ClusterSummary, error) {
	f.got, f.settings = rt, settings
	return &m.ClusterSummary{K: 1, Symbols: rt.Symbols, Clusters: make([]int, len(rt.Symbols))}, nil
}

type fakeReporter struct {
	asset, benchmark m.ReturnSeries
	output           string
	err              error
}

func (f *fakeReporter) TearSheet(asset, benchmark m.ReturnSeries, output string) error {
	f.asset, f.benchmark, f.output = asset, benchmark, output
	return f.err
}

func testSource() *fakeSource {
	return &fakeSource{series: map[string][]m.PricePoint{
		"AAPL":  pricePoints(100, 110, 99, 108.9, 119.79),
		"^GSPC": pricePoints(50, 55, 60.5, 54.45, 59.895),
		"FLAT":  pricePoints(100, 100, 100, 100, 100),
	}}
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Symbols:                []string{"AAPL", "^GSPC", "FLAT", "GONE"},
		Start:                  config.Date{Time: day(1)},
		End:                    config.Date{Time: day(10)},
		StoreMaxAge:            24 * time.Hour,
		HighPerformerThreshold: -0.5,
		SampleSymbol:           "AAPL",
		BenchmarkSymbol:        "^GSPC",
		MaxClusters:            10,
		OutputDir:              t.TempDir(),
		RankingFile:            "median_returns.csv",
		DendrogramFile:         "clusters.svg",
		WorkbookFile:           "uncorrelated_returns.xlsx",
	}
}

func testContext(t *testing.T, cfg *config.Config, source api.HistorySource, withStore bool) *ServiceContext {
	sc := &ServiceContext{
		Context: context.Background(),
		Config:  cfg,
		Source:  source,
		Log:     zerolog.Nop(),
	}
	if withStore {
		store, err := r.Open(context.Background(), r.BackendMemory)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		sc.Store = store
	}
	return sc
}

func TestRunPipeline_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	sc := testContext(t, cfg, testSource(), true)
	clusterer, reporter := &fakeClusterer{}, &fakeReporter{}

	res, err := sc.RunPipeline(Capabilities{
		Clustering: Available[Clusterer](clusterer),
		Reporting:  Available[Reporter](reporter),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"GONE"}, res.DroppedEmpty)
	assert.Equal(t, 4, res.Returns.Rows())
	assert.Equal(t, []string{"AAPL", "^GSPC", "FLAT"}, res.Returns.Symbols)

	// the filter runs on unsanitized returns and still sees FLAT
	require.Len(t, res.HighPerformers, 3)
	assert.Contains(t, []string{res.HighPerformers[0].Symbol, res.HighPerformers[1].Symbol, res.HighPerformers[2].Symbol}, "FLAT")
	assert.Equal(t, []string{"FLAT"}, res.Sanitize.ZeroVariance)
	assert.Equal(t, []string{"AAPL", "^GSPC"}, res.Sanitized.Symbols)
	assert.False(t, HasUndefined(res.Correlation))

	raw, err := os.ReadFile(cfg.RankingPath())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "symbol,median_return", lines[0])
	for i, r := range res.Ranking {
		assert.True(t, strings.HasPrefix(lines[i+1], r.Symbol+","), lines[i+1])
	}
	assert.FileExists(t, cfg.WorkbookPath())

	assert.Equal(t, []string{"AAPL", "^GSPC"}, clusterer.got.Symbols)
	assert.Equal(t, CodependencePearson, clusterer.settings.Codependence)
	assert.Equal(t, LinkageWard, clusterer.settings.Linkage)
	assert.Equal(t, 0, clusterer.settings.K)
	assert.Equal(t, 10, clusterer.settings.MaxK)
	assert.True(t, clusterer.settings.LeafOrder)
	assert.True(t, clusterer.settings.Dendrogram)
	assert.Equal(t, cfg.DendrogramPath(), clusterer.settings.Output)

	assert.Equal(t, "AAPL", reporter.asset.Symbol)
	assert.Equal(t, "^GSPC", reporter.benchmark.Symbol)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "aapl-report.html"), reporter.output)
	assert.Equal(t, reporter.output, res.ReportPath)

	run, err := sc.Store.GetRun(sc.Context, res.RunId)
	require.NoError(t, err)
	assert.Equal(t, m.RunStatusSuccess, run.Status)
	assert.Equal(t, 4, run.SymbolCount)
	assert.True(t, run.FinishedAt.Valid)

	stored, err := sc.Store.GetMedianReturns(sc.Context, res.RunId)
	require.NoError(t, err)
	assert.Len(t, stored, 3)
}

func TestRunPipeline_SkipsUnavailableCapabilities(t *testing.T) {
	cfg := testConfig(t)
	cfg.WorkbookFile = ""
	sc := testContext(t, cfg, testSource(), false)

	res, err := sc.RunPipeline(Capabilities{
		Clustering: Unavailable[Clusterer]("clustering disabled"),
		Reporting:  Unavailable[Reporter]("reporting disabled"),
	})
	require.NoError(t, err)

	assert.Nil(t, res.Clusters)
	assert.Empty(t, res.ReportPath)
	assert.FileExists(t, cfg.RankingPath())
	assert.NoFileExists(t, filepath.Join(cfg.OutputDir, "uncorrelated_returns.xlsx"))
}

func TestRunPipeline_SkipsReportWhenSampleIsSanitizedAway(t *testing.T) {
	cfg := testConfig(t)
	cfg.SampleSymbol = "FLAT"
	sc := testContext(t, cfg, testSource(), false)
	reporter := &fakeReporter{}

	res, err := sc.RunPipeline(Capabilities{
		Clustering: Unavailable[Clusterer]("clustering disabled"),
		Reporting:  Available[Reporter](reporter),
	})
	require.NoError(t, err)
	assert.Empty(t, res.ReportPath)
	assert.Empty(t, reporter.output)
}

func TestRunPipeline_ReporterFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	sc := testContext(t, cfg, testSource(), false)
	boom := errors.New("disk full")

	_, err := sc.RunPipeline(Capabilities{
		Clustering: Unavailable[Clusterer]("clustering disabled"),
		Reporting:  Available[Reporter](&fakeReporter{err: boom}),
	})
	assert.ErrorIs(t, err, boom)
}

func TestRunPipeline_DownloadFailureIsFatal(t *testing.T) {
	boom := errors.New("connection refused")
	source := testSource()
	source.err = boom
	sc := testContext(t, testConfig(t), source, true)

	_, err := sc.RunPipeline(Capabilities{})
	assert.ErrorIs(t, err, boom)
}

func TestRunPipeline_NoDataAtAllIsFatal(t *testing.T) {
	sc := testContext(t, testConfig(t), &fakeSource{}, false)

	_, err := sc.RunPipeline(Capabilities{})
	assert.ErrorIs(t, err, ErrNoPriceData)
}

func TestRunPipeline_RankingWriteFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)

	// the output directory is a regular file, nothing can be created under it
	blocker := filepath.Join(cfg.OutputDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	cfg.OutputDir = blocker

	sc := testContext(t, cfg, testSource(), false)
	_, err := sc.RunPipeline(Capabilities{})
	assert.Error(t, err)
}

// interruptedSource cancels the run while the download is in flight
type interruptedSource struct {
	cancel context.CancelFunc
}

func (s *interruptedSource) Name() string { return "interrupted" }

func (s *interruptedSource) FetchHistory(ctx context.Context, symbols []string, start, end time.Time) (map[string][]m.PricePoint, error) {
	s.cancel()
	return nil, ctx.Err()
}

// runRecorder remembers the ids of inserted runs
type runRecorder struct {
	r.Store
	ids []string
}

func (rr *runRecorder) InsertRun(ctx context.Context, run *m.RunHistory) error {
	rr.ids = append(rr.ids, run.Id)
	return rr.Store.InsertRun(ctx, run)
}

func TestRunPipeline_CancelledRunIsMarkedFailed(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sc := testContext(t, cfg, &interruptedSource{cancel: cancel}, true)
	sc.Context = ctx
	recorder := &runRecorder{Store: sc.Store}
	sc.Store = recorder

	_, err := sc.RunPipeline(Capabilities{
		Clustering: Unavailable[Clusterer]("clustering disabled"),
		Reporting:  Unavailable[Reporter]("reporting disabled"),
	})
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, recorder.ids, 1)
	run, err := sc.Store.GetRun(context.Background(), recorder.ids[0])
	require.NoError(t, err)
	assert.Equal(t, m.RunStatusFailure, run.Status)
	assert.Contains(t, run.ErrorMessage.String, "context canceled")
	assert.True(t, run.FinishedAt.Valid)
}

func TestSyncSymbolPrices_ServesFreshSymbolsFromStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Symbols = []string{"AAPL", "^GSPC"}
	cfg.Start = config.Date{Time: day(2)}
	source := testSource()
	sc := testContext(t, cfg, source, true)

	first, err := sc.SyncSymbolPrices(cfg.Symbols)
	require.NoError(t, err)
	require.Len(t, source.calls, 1)
	assert.Len(t, first["AAPL"], 4)
	assert.Equal(t, day(2), first["AAPL"][0].Date)

	// a second sync inside the max age reads the cache only
	second, err := sc.SyncSymbolPrices(cfg.Symbols)
	require.NoError(t, err)
	assert.Len(t, source.calls, 1)
	assert.Equal(t, first["AAPL"], second["AAPL"])

	// the cache holds the full history, widening the range needs no download
	cfg.Start = config.Date{Time: day(1)}
	wider, err := sc.SyncSymbolPrices(cfg.Symbols)
	require.NoError(t, err)
	assert.Len(t, source.calls, 1)
	assert.Len(t, wider["AAPL"], 5)

	cfg.StoreMaxAge = 0
	_, err = sc.SyncSymbolPrices(cfg.Symbols)
	require.NoError(t, err)
	assert.Len(t, source.calls, 2)
}

func TestSyncSymbolPrices_WithoutStoreDownloadsRange(t *testing.T) {
	cfg := testConfig(t)
	cfg.End = config.Date{Time: day(4)}
	source := testSource()
	sc := testContext(t, cfg, source, false)

	res, err := sc.SyncSymbolPrices([]string{"AAPL"})
	require.NoError(t, err)
	assert.Len(t, res["AAPL"], 3)
	assert.Len(t, source.calls, 1)
}
