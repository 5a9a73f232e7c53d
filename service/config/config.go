package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	ex "urs/data/extensions"
)

const (
	Prefix = "URS"

	SourceYahoo        = "yahoo"
	SourceAlphaVantage = "alphavantage"
)

// Date is a calendar day read from a YYYY-MM-DD environment value
type Date struct {
	time.Time
}

func (d *Date) Decode(value string) error {
	t, err := ex.ParseShort(value)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

type Config struct {
	Symbols []string `envconfig:"SYMBOLS" default:"BLK,PFF,DELL,LMT,BA,RTX,GD,NOC,LHX,HII,FCT.MI,ASB.AX,BOLL,BAESY,CACI,ACN,RAND,J,STRL,GAI,LDOS,MCK,HUM,HON,BAH,SAIC,GE,MSFT,PANW,NVDA,AAPL,GLD,^GSPC"`
	Start   Date     `envconfig:"START" default:"2016-01-01"`
	End     Date     `envconfig:"END" default:"2025-04-23"`

	// data retrieval
	Source             string        `envconfig:"SOURCE" default:"yahoo"`
	AlphaVantageAPIKey string        `envconfig:"ALPHAVANTAGE_API_KEY"`
	RequestsPerMinute  int           `envconfig:"REQUESTS_PER_MINUTE" default:"5"`
	Workers            int           `envconfig:"WORKERS" default:"4"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	// price cache and run history, empty disables the store
	Store       string        `envconfig:"STORE"`
	StoreMaxAge time.Duration `envconfig:"STORE_MAX_AGE" default:"24h"`

	HighPerformerThreshold float64 `envconfig:"HIGH_PERFORMER_THRESHOLD" default:"0.05"`
	SanitizeUntilStable    bool    `envconfig:"SANITIZE_UNTIL_STABLE" default:"false"`

	SampleSymbol    string `envconfig:"SAMPLE_SYMBOL" default:"AAPL"`
	BenchmarkSymbol string `envconfig:"BENCHMARK_SYMBOL" default:"^GSPC"`

	ClusteringEnabled bool `envconfig:"CLUSTERING_ENABLED" default:"true"`
	ReportingEnabled  bool `envconfig:"REPORTING_ENABLED" default:"true"`
	MaxClusters       int  `envconfig:"MAX_CLUSTERS" default:"10"`

	OutputDir      string `envconfig:"OUTPUT_DIR" default:"."`
	RankingFile    string `envconfig:"RANKING_FILE" default:"median_returns.csv"`
	ReportFile     string `envconfig:"REPORT_FILE"`
	DendrogramFile string `envconfig:"DENDROGRAM_FILE" default:"clusters.svg"`
	WorkbookFile   string `envconfig:"WORKBOOK_FILE" default:"uncorrelated_returns.xlsx"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"true"`
}

// Load reads an optional .env file then the URS_ prefixed environment.
// A missing .env is not an error, the returned bool reports whether one was read.
func Load(envFiles ...string) (*Config, bool, error) {
	loaded := godotenv.Load(envFiles...) == nil

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, loaded, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, loaded, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, loaded, nil
}

func (c *Config) normalize() {
	symbols := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	c.Symbols = symbols
	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
}

func (c *Config) Validate() error {
	var errs []error

	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("at least one symbol is required"))
	}
	if !c.End.After(c.Start.Time) {
		errs = append(errs, fmt.Errorf("end date %s must be after start date %s", ex.FmtShort(c.End.Time), ex.FmtShort(c.Start.Time)))
	}

	switch c.Source {
	case SourceYahoo:
	case SourceAlphaVantage:
		if c.AlphaVantageAPIKey == "" {
			errs = append(errs, errors.New("ALPHAVANTAGE_API_KEY is required for the alphavantage source"))
		}
		if c.RequestsPerMinute <= 0 {
			errs = append(errs, errors.New("requests per minute must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown data source %q", c.Source))
	}

	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.MaxClusters < 1 {
		errs = append(errs, errors.New("max clusters must be at least 1"))
	}
	if c.RankingFile == "" {
		errs = append(errs, errors.New("ranking file is required"))
	}

	return errors.Join(errs...)
}

func (c *Config) RankingPath() string {
	return filepath.Join(c.OutputDir, c.RankingFile)
}

// ReportPath defaults to <sample>-report.html, lower cased with index carets removed
func (c *Config) ReportPath() string {
	name := c.ReportFile
	if name == "" {
		name = strings.ToLower(strings.TrimPrefix(c.SampleSymbol, "^")) + "-report.html"
	}
	return filepath.Join(c.OutputDir, name)
}

func (c *Config) DendrogramPath() string {
	if c.DendrogramFile == "" {
		return ""
	}
	return filepath.Join(c.OutputDir, c.DendrogramFile)
}

func (c *Config) WorkbookPath() string {
	if c.WorkbookFile == "" {
		return ""
	}
	return filepath.Join(c.OutputDir, c.WorkbookFile)
}
