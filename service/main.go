package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	r "urs/data/repos"
	"urs/service/api"
	av "urs/service/api/alpha_vantage"
	"urs/service/api/yahoo"
	"urs/service/clustering"
	"urs/service/config"
	c "urs/service/core"
	"urs/service/logger"
	"urs/service/report"
)

func main() {
	// initialize context and signal handler, listen for interrupt and term signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()

	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// load in environment variables from .env file, then URS_ settings
	cfg, loadedEnv, err := config.Load()
	if err != nil {
		log := logger.New(logger.Config{Level: "info", Pretty: true})
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	if !loadedEnv {
		log.Debug().Msg(".env not loaded")
	}

	sc := c.ServiceContext{
		Context: ctx,
		Config:  cfg,
		Source:  getSource(cfg, log),
		Log:     logger.Component(log, "pipeline"),
	}

	// the store is optional, without it every run downloads and nothing is recorded
	if cfg.Store != "" {
		store, err := r.Open(ctx, cfg.Store)
		if err != nil {
			log.Error().Err(err).Msg("failed to open store")
			return err
		}
		defer store.Close()
		sc.Store = store
	}

	res, err := sc.RunPipeline(capabilities(cfg, log))
	if err != nil {
		log.Error().Err(err).Msg("run failed")
		return err
	}

	log.Info().Str("run_id", res.RunId).Int("ranked", len(res.Ranking)).Int("high_performers", len(res.HighPerformers)).
		Int("sanitized", len(res.Sanitized.Symbols)).Msg("done")
	return nil
}

func getSource(cfg *config.Config, log zerolog.Logger) api.HistorySource {
	switch cfg.Source {
	case config.SourceAlphaVantage:
		return av.GetClient(cfg.AlphaVantageAPIKey, cfg.RequestTimeout, cfg.RequestsPerMinute, cfg.Workers, logger.Component(log, "source"))
	default:
		return yahoo.NewClient(logger.Component(log, "source"))
	}
}

func capabilities(cfg *config.Config, log zerolog.Logger) c.Capabilities {
	caps := c.Capabilities{
		Clustering: c.Unavailable[c.Clusterer]("clustering disabled by URS_CLUSTERING_ENABLED"),
		Reporting:  c.Unavailable[c.Reporter]("reporting disabled by URS_REPORTING_ENABLED"),
	}
	if cfg.ClusteringEnabled {
		caps.Clustering = c.Available[c.Clusterer](clustering.New(log))
	}
	if cfg.ReportingEnabled {
		caps.Reporting = c.Available[c.Reporter](report.New(log))
	}
	return caps
}
