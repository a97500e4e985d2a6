package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"market-recap/internal/market"
)

// CSVPrices serves bars from a file with the header
// ticker,date,open,high,low,close,volume. Empty cells other than ticker, date
// and close are read as null. The lookback window is anchored on the newest
// date in the file so fixtures stay usable over time.
type CSVPrices struct {
	byTicker map[string][]market.InstrumentRecord
	latest   time.Time
	keepLast int
}

// LoadCSVPrices reads the whole file up front.
func LoadCSVPrices(path string, keepLast int) (*CSVPrices, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, err := ReadCSVPrices(f, keepLast)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, nil
}

// ReadCSVPrices parses bars from r.
func ReadCSVPrices(r io.Reader, keepLast int) (*CSVPrices, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range []string{"ticker", "date", "close"} {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	src := &CSVPrices{byTicker: make(map[string][]market.InstrumentRecord), keepLast: keepLast}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := parseCSVRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		src.byTicker[rec.Ticker] = append(src.byTicker[rec.Ticker], rec)
		if rec.Date.After(src.latest) {
			src.latest = rec.Date
		}
	}
	for ticker, recs := range src.byTicker {
		src.byTicker[ticker] = market.NewPriceSeries(recs).Records()
	}
	return src, nil
}

func parseCSVRow(row []string, index map[string]int) (market.InstrumentRecord, error) {
	cell := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rec market.InstrumentRecord
	rec.Ticker = cell("ticker")
	if rec.Ticker == "" {
		return rec, errors.New("empty ticker")
	}
	date, err := time.Parse("2006-01-02", cell("date"))
	if err != nil {
		return rec, fmt.Errorf("parse date: %w", err)
	}
	rec.Date = date
	if rec.Close, err = decimal.NewFromString(cell("close")); err != nil {
		return rec, fmt.Errorf("parse close: %w", err)
	}

	for name, dst := range map[string]*decimal.NullDecimal{"open": &rec.Open, "high": &rec.High, "low": &rec.Low} {
		raw := cell(name)
		if raw == "" {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return rec, fmt.Errorf("parse %s: %w", name, err)
		}
		*dst = decimal.NewNullDecimal(v)
	}
	if raw := cell("volume"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return rec, fmt.Errorf("parse volume: %w", err)
		}
		rec.Volume = &v
	}
	return rec, nil
}

// FetchPrices returns the ticker's bars within lookback of the newest file date.
func (c *CSVPrices) FetchPrices(ctx context.Context, ticker string, lookback time.Duration) Result[market.InstrumentRecord] {
	if err := ctx.Err(); err != nil {
		return transient[market.InstrumentRecord](err)
	}
	all := c.byTicker[ticker]
	from := c.latest.Add(-lookback)
	out := make([]market.InstrumentRecord, 0, len(all))
	for _, r := range all {
		if !r.Date.Before(from) {
			out = append(out, r)
		}
	}
	if c.keepLast > 0 && len(out) > c.keepLast {
		out = out[len(out)-c.keepLast:]
	}
	return ok(out)
}

var _ PriceSource = (*CSVPrices)(nil)
