package fetcher

import (
	"context"
	"time"

	"market-recap/internal/market"
)

// Status classifies a fetch outcome so callers can tell an empty answer apart
// from a failure worth retrying on the next run.
type Status int

const (
	StatusOK Status = iota
	StatusNoData
	StatusTransient
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoData:
		return "no_data"
	case StatusTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Result carries the items of one fetch together with its status. Err is set
// for transient failures and may explain a NoData outcome.
type Result[T any] struct {
	Items  []T
	Status Status
	Err    error
}

func ok[T any](items []T) Result[T] {
	if len(items) == 0 {
		return Result[T]{Status: StatusNoData}
	}
	return Result[T]{Items: items, Status: StatusOK}
}

func noData[T any](err error) Result[T] {
	return Result[T]{Status: StatusNoData, Err: err}
}

func transient[T any](err error) Result[T] {
	return Result[T]{Status: StatusTransient, Err: err}
}

// PriceSource retrieves daily bars for one ticker over the lookback window.
type PriceSource interface {
	FetchPrices(ctx context.Context, ticker string, lookback time.Duration) Result[market.InstrumentRecord]
}

// NewsSource retrieves recent headlines for one ticker.
type NewsSource interface {
	FetchNews(ctx context.Context, ticker string) Result[market.NewsItem]
}

// DisabledNews answers every request with NoData.
type DisabledNews struct{}

func (DisabledNews) FetchNews(context.Context, string) Result[market.NewsItem] {
	return Result[market.NewsItem]{Status: StatusNoData}
}

var _ NewsSource = DisabledNews{}
