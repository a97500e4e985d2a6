package market

import (
	"sort"
	"time"
)

// PriceSeries holds instrument records grouped by ticker and ordered by date.
// It is immutable: the constructor copies its input and Records returns a copy.
type PriceSeries struct {
	records []InstrumentRecord
}

// NewPriceSeries copies records and stable-sorts them by (ticker, date).
// Duplicate (ticker, date) pairs are kept; detecting them is the quality gate's job.
func NewPriceSeries(records []InstrumentRecord) PriceSeries {
	cp := make([]InstrumentRecord, len(records))
	copy(cp, records)
	sort.SliceStable(cp, func(i, j int) bool {
		if cp[i].Ticker != cp[j].Ticker {
			return cp[i].Ticker < cp[j].Ticker
		}
		return cp[i].Date.Before(cp[j].Date)
	})
	return PriceSeries{records: cp}
}

// Len reports the number of records.
func (s PriceSeries) Len() int { return len(s.records) }

// Records returns a copy of the records in (ticker, date) order.
func (s PriceSeries) Records() []InstrumentRecord {
	out := make([]InstrumentRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Tickers lists distinct tickers in series order.
func (s PriceSeries) Tickers() []string {
	out := make([]string, 0)
	for i, rec := range s.records {
		if i > 0 && s.records[i-1].Ticker == rec.Ticker {
			continue
		}
		out = append(out, rec.Ticker)
	}
	return out
}

// Groups calls fn once per ticker with that ticker's records in date order.
// The slice passed to fn must not be retained or modified.
func (s PriceSeries) Groups(fn func(ticker string, records []InstrumentRecord)) {
	start := 0
	for i := 1; i <= len(s.records); i++ {
		if i == len(s.records) || s.records[i].Ticker != s.records[start].Ticker {
			fn(s.records[start].Ticker, s.records[start:i])
			start = i
		}
	}
}

// DateRange reports the earliest and latest dates in the series.
func (s PriceSeries) DateRange() (first, last time.Time, ok bool) {
	for _, rec := range s.records {
		if rec.Date.IsZero() {
			continue
		}
		if !ok || rec.Date.Before(first) {
			first = rec.Date
		}
		if !ok || rec.Date.After(last) {
			last = rec.Date
		}
		ok = true
	}
	return first, last, ok
}
