package dataset

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crash-insights-go/internal/logger"
	"crash-insights-go/internal/types"
)

// Kind tells the parsers what a file holds.
type Kind string

const (
	KindPredictions Kind = "predictions"
	KindCrashes     Kind = "crashes"
	KindWeekly      Kind = "weekly"
)

// Request names one dataset of one city.
type Request struct {
	Kind       Kind
	City       string
	URL        string
	SpeedField string
}

// FetchError is a network or parse failure while loading a dataset.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type Options struct {
	DataDir         string
	Timeout         time.Duration
	MaxElapsed      time.Duration
	InitialInterval time.Duration
	Log             *logger.Logger
}

// Source loads datasets from http(s) URLs, local files under the data dir,
// or postgres:// tables.
type Source struct {
	dataDir         string
	client          *http.Client
	maxElapsed      time.Duration
	initialInterval time.Duration
	log             *logger.Logger
}

func NewSource(opts Options) *Source {
	if opts.Timeout <= 0 {
		opts.Timeout = 12 * time.Second
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 12 * time.Second
	}
	if opts.Log == nil {
		opts.Log = logger.New()
	}
	return &Source{
		dataDir:         opts.DataDir,
		client:          &http.Client{Timeout: opts.Timeout},
		maxElapsed:      opts.MaxElapsed,
		initialInterval: opts.InitialInterval,
		log:             opts.Log.Component("dataset"),
	}
}

// FetchRecords loads prediction or crash records.
func (s *Source) FetchRecords(ctx context.Context, req Request) ([]types.Record, error) {
	log := s.log.WithField("city", req.City).WithField("kind", req.Kind).WithField("url", req.URL)
	if isPostgres(req.URL) {
		recs, err := s.queryPostgres(ctx, req)
		if err != nil {
			log.WithField("error", err.Error()).Error("postgres load failed")
			return nil, &FetchError{URL: redact(req.URL), Err: err}
		}
		return recs, nil
	}

	raw, err := s.read(ctx, req.URL)
	if err != nil {
		log.WithField("error", err.Error()).Error("read failed")
		return nil, &FetchError{URL: req.URL, Err: err}
	}

	var recs []types.Record
	switch req.Kind {
	case KindPredictions:
		recs, err = ParsePredictions(raw, req.City)
	case KindCrashes:
		recs, err = ParseCrashes(raw, req.City)
	default:
		err = fmt.Errorf("records of kind %q are not supported", req.Kind)
	}
	if err != nil {
		log.WithField("error", err.Error()).Error("parse failed")
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	log.WithField("records", len(recs)).Info("dataset loaded")
	return recs, nil
}

// FetchSeries loads a bar-chart series from CSV or XLSX.
func (s *Source) FetchSeries(ctx context.Context, req Request) ([]types.BarEntry, error) {
	log := s.log.WithField("city", req.City).WithField("kind", req.Kind).WithField("url", req.URL)
	raw, err := s.read(ctx, req.URL)
	if err != nil {
		log.WithField("error", err.Error()).Error("read failed")
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	var entries []types.BarEntry
	if strings.EqualFold(filepath.Ext(stripQuery(req.URL)), ".xlsx") {
		entries, err = ParseSeriesXLSX(raw, req.City)
	} else {
		entries, err = ParseSeriesCSV(raw, req.City)
	}
	if err != nil {
		log.WithField("error", err.Error()).Error("parse failed")
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	log.WithField("bars", len(entries)).Info("series loaded")
	return entries, nil
}

func (s *Source) read(ctx context.Context, url string) ([]byte, error) {
	lower := strings.ToLower(url)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s.get(ctx, url)
	}
	path := url
	if !filepath.IsAbs(path) && s.dataDir != "" {
		path = filepath.Join(s.dataDir, path)
	}
	return os.ReadFile(path)
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}
