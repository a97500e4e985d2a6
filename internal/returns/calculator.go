package returns

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"market-recap/internal/market"
)

var hundred = decimal.NewFromInt(100)

// InvalidPriceError is raised when a return would divide by a zero close.
type InvalidPriceError struct {
	Ticker string
	Date   time.Time
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid previous close 0 for %s on %s", e.Ticker, e.Date.Format("2006-01-02"))
}

// Calculate derives day-over-day returns from a series sorted by (ticker, date).
// Each ticker's first record has no predecessor and is dropped. When a previous
// close is zero the rest of that ticker is abandoned with an *InvalidPriceError;
// other tickers are unaffected. The returned error joins every such failure.
func Calculate(series market.PriceSeries) (market.Returns, error) {
	out := make(market.Returns, 0, series.Len())
	var errs []error

	series.Groups(func(ticker string, records []market.InstrumentRecord) {
		for i := 1; i < len(records); i++ {
			prev := records[i-1].Close
			cur := records[i]
			if prev.IsZero() {
				errs = append(errs, &InvalidPriceError{Ticker: ticker, Date: cur.Date})
				return
			}

			daily := cur.Close.Sub(prev)
			out = append(out, market.ReturnRecord{
				Ticker:      ticker,
				Date:        cur.Date,
				Close:       cur.Close,
				PrevClose:   prev,
				DailyReturn: daily,
				ReturnPct:   daily.Div(prev).Mul(hundred),
			})
		}
	})

	return out, errors.Join(errs...)
}

// Summary aggregates a return set for reporting.
type Summary struct {
	Count      int
	AveragePct decimal.Decimal
	Gainers    int
	Losers     int
}

// Summarize computes the average return and gainer/loser counts.
func Summarize(rs market.Returns) Summary {
	s := Summary{Count: len(rs)}
	if len(rs) == 0 {
		return s
	}
	total := decimal.Zero
	for _, r := range rs {
		total = total.Add(r.ReturnPct)
		switch r.ReturnPct.Sign() {
		case 1:
			s.Gainers++
		case -1:
			s.Losers++
		}
	}
	s.AveragePct = total.Div(decimal.NewFromInt(int64(len(rs))))
	return s
}

// Top returns up to n records with the highest return.
func Top(rs market.Returns, n int) market.Returns {
	sorted := rs.SortedByReturn()
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
