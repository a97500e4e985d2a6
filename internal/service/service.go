package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-recap/internal/fetcher"
	"market-recap/internal/market"
	"market-recap/internal/pipeline"
	"market-recap/internal/quality"
	"market-recap/internal/report"
	"market-recap/internal/returns"
)

// Stage names of the recap pipeline.
const (
	StagePrices  = "prices"
	StageNews    = "news"
	StageReturns = "returns"
	StageQuality = "quality"
	StageReport  = "report"
)

// FetchObserver is told the outcome of every per-ticker fetch.
type FetchObserver interface {
	ObserveFetch(source string, status fetcher.Status)
}

// Options configure one pipeline assembly.
type Options struct {
	Tickers     []string
	Lookback    time.Duration
	Thresholds  quality.Thresholds
	PriceSource string
	NewsSource  string
}

// Service wires the price, news, return, quality and report stages together.
type Service struct {
	opts     Options
	prices   fetcher.PriceSource
	news     fetcher.NewsSource
	renderer report.Renderer
	base     zerolog.Logger
	logger   zerolog.Logger

	observer      pipeline.Observer
	fetchObserver FetchObserver
	now           func() time.Time
}

// New constructs the recap service. A nil news source disables headlines.
func New(opts Options, prices fetcher.PriceSource, news fetcher.NewsSource, renderer report.Renderer, logger zerolog.Logger) *Service {
	if news == nil {
		news = fetcher.DisabledNews{}
	}
	if opts.PriceSource == "" {
		opts.PriceSource = "prices"
	}
	if opts.NewsSource == "" {
		opts.NewsSource = "news"
	}
	return &Service{
		opts:     opts,
		prices:   prices,
		news:     news,
		renderer: renderer,
		base:     logger,
		logger:   logger.With().Str("component", "service").Logger(),
		now:      time.Now,
	}
}

// WithObserver registers a stage observer used by every run.
func (s *Service) WithObserver(o pipeline.Observer) *Service {
	s.observer = o
	return s
}

// WithFetchObserver registers an observer for per-ticker fetch outcomes.
func (s *Service) WithFetchObserver(o FetchObserver) *Service {
	s.fetchObserver = o
	return s
}

// Stages declares the pipeline. Prices comes first so an empty universe
// aborts the run before anything else is attempted.
func (s *Service) Stages() []pipeline.Stage {
	return []pipeline.Stage{
		{Name: StagePrices, Compute: s.fetchPrices},
		{Name: StageNews, Compute: s.fetchNews},
		{Name: StageReturns, DependsOn: []string{StagePrices}, Compute: s.computeReturns},
		{Name: StageQuality, DependsOn: []string{StagePrices, StageReturns}, Compute: s.evaluateQuality},
		{Name: StageReport, DependsOn: []string{StagePrices, StageReturns, StageNews, StageQuality}, Compute: s.renderReport},
	}
}

// Plan resolves the declared stages.
func (s *Service) Plan() (*pipeline.Plan, error) {
	plan, err := pipeline.Resolve(s.Stages())
	if err != nil {
		return nil, fmt.Errorf("resolve pipeline: %w", err)
	}
	return plan, nil
}

// Run executes the pipeline once. The result is returned even when the
// error is a *pipeline.NoDataError.
func (s *Service) Run(ctx context.Context) (*pipeline.Result, error) {
	plan, err := s.Plan()
	if err != nil {
		return nil, err
	}

	exec := pipeline.NewExecutor(plan, s.base)
	if s.observer != nil {
		exec.WithObserver(s.observer)
	}

	s.logger.Info().Int("tickers", len(s.opts.Tickers)).Strs("order", plan.Order()).Msg("pipeline run started")
	return exec.Run(ctx)
}

func (s *Service) fetchPrices(ctx context.Context, _ pipeline.Inputs) (any, error) {
	records := make([]market.InstrumentRecord, 0, len(s.opts.Tickers)*2)
	var ok, empty, failed int

	for _, ticker := range s.opts.Tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := s.prices.FetchPrices(ctx, ticker, s.opts.Lookback)
		s.observeFetch(s.opts.PriceSource, res.Status)

		switch res.Status {
		case fetcher.StatusOK:
			ok++
			records = append(records, res.Items...)
		case fetcher.StatusNoData:
			empty++
			s.logger.Warn().Err(res.Err).Str("ticker", ticker).Msg("no price data")
		default:
			failed++
			s.logger.Warn().Err(res.Err).Str("ticker", ticker).Msg("price fetch failed")
		}
	}

	s.logger.Info().
		Int("ok", ok).
		Int("no_data", empty).
		Int("transient", failed).
		Int("records", len(records)).
		Msg("prices fetched")
	return market.NewPriceSeries(records), nil
}

func (s *Service) fetchNews(ctx context.Context, _ pipeline.Inputs) (any, error) {
	items := make(market.Headlines, 0, len(s.opts.Tickers))

	for _, ticker := range s.opts.Tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := s.news.FetchNews(ctx, ticker)
		s.observeFetch(s.opts.NewsSource, res.Status)

		if res.Status == fetcher.StatusTransient {
			s.logger.Debug().Err(res.Err).Str("ticker", ticker).Msg("news fetch failed")
			continue
		}
		items = append(items, res.Items...)
	}

	s.logger.Info().Int("items", len(items)).Msg("news fetched")
	return items, nil
}

func (s *Service) computeReturns(_ context.Context, in pipeline.Inputs) (any, error) {
	series, err := pipeline.Get[market.PriceSeries](in, StagePrices)
	if err != nil {
		return nil, err
	}

	rs, err := returns.Calculate(series)
	if err != nil {
		// Tickers with a zero close are cut short; the rest stay usable.
		for _, e := range unwrapJoined(err) {
			var invalid *returns.InvalidPriceError
			if errors.As(e, &invalid) {
				s.logger.Warn().Str("ticker", invalid.Ticker).Time("date", invalid.Date).Msg("return derivation abandoned")
				continue
			}
			return nil, err
		}
	}
	return rs, nil
}

func (s *Service) evaluateQuality(_ context.Context, in pipeline.Inputs) (any, error) {
	series, err := pipeline.Get[market.PriceSeries](in, StagePrices)
	if err != nil {
		return nil, err
	}
	rs, err := pipeline.Get[market.Returns](in, StageReturns)
	if err != nil {
		return nil, err
	}

	evaluator := quality.NewEvaluator(s.opts.Thresholds, len(s.opts.Tickers), s.base)
	return evaluator.Evaluate(series, rs), nil
}

func (s *Service) renderReport(ctx context.Context, in pipeline.Inputs) (any, error) {
	series, err := pipeline.Get[market.PriceSeries](in, StagePrices)
	if err != nil {
		return nil, err
	}
	rs, err := pipeline.Get[market.Returns](in, StageReturns)
	if err != nil {
		return nil, err
	}
	news, err := pipeline.Get[market.Headlines](in, StageNews)
	if err != nil {
		return nil, err
	}
	rep, err := pipeline.Get[quality.Report](in, StageQuality)
	if err != nil {
		return nil, err
	}

	return s.renderer.Render(ctx, report.Bundle{
		Prices:      series,
		Returns:     rs,
		News:        news,
		Quality:     rep,
		Stages:      in.Metadata(),
		GeneratedAt: s.now(),
	})
}

func (s *Service) observeFetch(source string, status fetcher.Status) {
	if s.fetchObserver != nil {
		s.fetchObserver.ObserveFetch(source, status)
	}
}

func unwrapJoined(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
