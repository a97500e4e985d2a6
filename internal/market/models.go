package market

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentRecord is one daily bar for a ticker as produced by a price source.
type InstrumentRecord struct {
	Ticker string
	Date   time.Time
	Open   decimal.NullDecimal
	High   decimal.NullDecimal
	Low    decimal.NullDecimal
	Close  decimal.Decimal
	Volume *int64
}

// MissingFields counts fields the source left unset.
func (r InstrumentRecord) MissingFields() int {
	missing := 0
	if r.Ticker == "" {
		missing++
	}
	if r.Date.IsZero() {
		missing++
	}
	for _, v := range []decimal.NullDecimal{r.Open, r.High, r.Low} {
		if !v.Valid {
			missing++
		}
	}
	if r.Volume == nil {
		missing++
	}
	return missing
}

// ReturnRecord is the derived day-over-day move for a ticker.
type ReturnRecord struct {
	Ticker      string
	Date        time.Time
	Close       decimal.Decimal
	PrevClose   decimal.Decimal
	DailyReturn decimal.Decimal
	ReturnPct   decimal.Decimal
}

// MissingFields counts unset identifying fields.
func (r ReturnRecord) MissingFields() int {
	missing := 0
	if r.Ticker == "" {
		missing++
	}
	if r.Date.IsZero() {
		missing++
	}
	return missing
}

// Returns is the output of the return calculator. Ordering is only guaranteed
// to keep each ticker's records together.
type Returns []ReturnRecord

// Len reports the number of return records.
func (r Returns) Len() int { return len(r) }

// Tickers lists the distinct tickers present, in first-seen order.
func (r Returns) Tickers() []string {
	seen := make(map[string]struct{}, len(r))
	out := make([]string, 0)
	for _, rec := range r {
		if _, ok := seen[rec.Ticker]; ok {
			continue
		}
		seen[rec.Ticker] = struct{}{}
		out = append(out, rec.Ticker)
	}
	return out
}

// SortedByReturn returns a copy ordered by ReturnPct descending, ticker ascending on ties.
func (r Returns) SortedByReturn() Returns {
	out := make(Returns, len(r))
	copy(out, r)
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].ReturnPct.Cmp(out[j].ReturnPct); c != 0 {
			return c > 0
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

// NewsItem is a headline attached to a ticker.
type NewsItem struct {
	Ticker        string
	Title         string
	Publisher     string
	PublishedDate string
	Link          string
}

// Headlines is the output of the news stage. An empty set is valid.
type Headlines []NewsItem

// Len reports the number of headlines.
func (h Headlines) Len() int { return len(h) }

// FirstPerTicker keeps the first headline of every ticker, ordered by ticker.
func (h Headlines) FirstPerTicker() Headlines {
	first := make(map[string]NewsItem)
	for _, item := range h {
		if _, ok := first[item.Ticker]; !ok {
			first[item.Ticker] = item
		}
	}
	tickers := make([]string, 0, len(first))
	for t := range first {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	out := make(Headlines, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, first[t])
	}
	return out
}
