package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"market-recap/internal/market"
)

// YahooOptions parameterise the Yahoo Finance chart fetcher.
type YahooOptions struct {
	BaseURL   string
	KeepLast  int
	Timeout   time.Duration
	RateLimit float64
	Retry     RetryOptions
	UserAgent string
}

// Yahoo fetches daily bars from the Yahoo Finance chart API.
type Yahoo struct {
	opts    YahooOptions
	baseURL string
	client  *client
	logger  zerolog.Logger
	now     func() time.Time
}

// NewYahoo constructs a Yahoo price source.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	log := logger.With().Str("component", "yahoo_fetcher").Logger()
	return &Yahoo{
		opts:    opts,
		baseURL: baseURL,
		client:  newClient("yahoo", opts.Timeout, opts.RateLimit, opts.Retry, opts.UserAgent, log),
		logger:  log,
		now:     time.Now,
	}
}

// FetchPrices returns the most recent sessions in [now-lookback, now]. Bars
// without a close are dropped; missing open/high/low/volume stay null.
func (y *Yahoo) FetchPrices(ctx context.Context, ticker string, lookback time.Duration) Result[market.InstrumentRecord] {
	end := y.now()
	start := end.Add(-lookback)

	q := url.Values{}
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	q.Set("interval", "1d")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(ticker), q.Encode())

	body, err := y.client.get(ctx, endpoint)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && !retryable(se) {
			return noData[market.InstrumentRecord](err)
		}
		return transient[market.InstrumentRecord](err)
	}

	records, err := decodeChart(ticker, body)
	if errors.Is(err, errChartRejected) {
		return noData[market.InstrumentRecord](err)
	}
	if err != nil {
		return transient[market.InstrumentRecord](err)
	}
	if n := y.opts.KeepLast; n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	return ok(records)
}

var errChartRejected = errors.New("yahoo rejected symbol")

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []json.Number `json:"open"`
					High   []json.Number `json:"high"`
					Low    []json.Number `json:"low"`
					Close  []json.Number `json:"close"`
					Volume []json.Number `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// decodeChart turns a chart payload into records ordered by date. Nulls decode
// to empty json.Number values.
func decodeChart(ticker string, payload []byte) ([]market.InstrumentRecord, error) {
	var chart chartResponse
	if err := json.Unmarshal(payload, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if e := chart.Chart.Error; e != nil {
		return nil, fmt.Errorf("%w: %s: %s", errChartRejected, e.Code, e.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	records := make([]market.InstrumentRecord, 0, len(result.Timestamp))

	for i, ts := range result.Timestamp {
		closeVal, valid := numberAt(quote.Close, i)
		if !valid {
			continue
		}
		rec := market.InstrumentRecord{
			Ticker: ticker,
			Date:   sessionDate(ts),
			Close:  closeVal,
		}
		if v, ok := numberAt(quote.Open, i); ok {
			rec.Open = decimal.NewNullDecimal(v)
		}
		if v, ok := numberAt(quote.High, i); ok {
			rec.High = decimal.NewNullDecimal(v)
		}
		if v, ok := numberAt(quote.Low, i); ok {
			rec.Low = decimal.NewNullDecimal(v)
		}
		if v, ok := numberAt(quote.Volume, i); ok {
			vol := v.IntPart()
			rec.Volume = &vol
		}
		records = append(records, rec)
	}
	return records, nil
}

func numberAt(values []json.Number, i int) (decimal.Decimal, bool) {
	if i >= len(values) || values[i] == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(values[i].String())
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func sessionDate(ts int64) time.Time {
	t := time.Unix(ts, 0).UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var _ PriceSource = (*Yahoo)(nil)

