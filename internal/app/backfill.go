package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"market-recap/internal/fetcher"
	"market-recap/internal/market"
	"market-recap/internal/storage"
)

// Backfill loads the full lookback window for every ticker into price_records.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	if opts.Lookback <= 0 {
		return errors.New("backfill lookback must be greater than zero")
	}

	var store storage.RunStore
	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing is written to the database")
	} else {
		s, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if s == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		if closeStore != nil {
			defer closeStore()
		}
		store = s
	}

	prices, _, err := a.priceSource("", 0)
	if err != nil {
		return err
	}

	return a.backfill(ctx, prices, store, a.Config.ResolveTickers(opts.Tickers), opts)
}

func (a *App) backfill(ctx context.Context, prices fetcher.PriceSource, store storage.RunStore, tickers []string, opts BackfillOptions) error {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	runID := uuid.New()

	var (
		mu      sync.Mutex
		records = make([]market.InstrumentRecord, 0)
		failed  atomic.Int32
		empty   atomic.Int32
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, ticker := range tickers {
		ticker := ticker
		g.Go(func() error {
			res := prices.FetchPrices(gctx, ticker, opts.Lookback)
			switch res.Status {
			case fetcher.StatusOK:
				mu.Lock()
				records = append(records, res.Items...)
				mu.Unlock()
			case fetcher.StatusNoData:
				empty.Add(1)
				a.Logger.Warn().Err(res.Err).Str("ticker", ticker).Msg("backfill found no data")
			default:
				failed.Add(1)
				a.Logger.Error().Err(res.Err).Str("ticker", ticker).Msg("backfill fetch failed")
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	series := market.NewPriceSeries(records)
	if store != nil {
		if err := store.UpsertPrices(ctx, runID, series.Records()); err != nil {
			return err
		}
	}

	a.Logger.Info().
		Int("tickers", len(tickers)).
		Int("records", series.Len()).
		Int32("no_data", empty.Load()).
		Int32("failed", failed.Load()).
		Bool("dry_run", store == nil).
		Msg("backfill complete")
	if failed.Load() > 0 {
		return errors.New("some tickers failed to backfill; check the logs")
	}
	return nil
}
