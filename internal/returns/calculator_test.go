package returns

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-recap/internal/market"
)

var day0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func rec(ticker string, day int, close string) market.InstrumentRecord {
	return market.InstrumentRecord{
		Ticker: ticker,
		Date:   day0.AddDate(0, 0, day),
		Close:  decimal.RequireFromString(close),
	}
}

func TestCalculateSingleStep(t *testing.T) {
	series := market.NewPriceSeries([]market.InstrumentRecord{rec("X", 0, "100"), rec("X", 1, "110")})

	out, err := Calculate(series)
	require.NoError(t, err)
	require.Len(t, out, 1)

	r := out[0]
	assert.Equal(t, "X", r.Ticker)
	assert.True(t, r.Date.Equal(day0.AddDate(0, 0, 1)))
	assert.True(t, r.Close.Equal(decimal.NewFromInt(110)))
	assert.True(t, r.PrevClose.Equal(decimal.NewFromInt(100)))
	assert.True(t, r.DailyReturn.Equal(decimal.NewFromInt(10)))
	assert.True(t, r.ReturnPct.Equal(decimal.NewFromInt(10)), "got %s", r.ReturnPct)
}

func TestCalculateDropsLeadingRecordPerTicker(t *testing.T) {
	records := []market.InstrumentRecord{
		rec("BBB", 2, "51.5"), rec("AAA", 0, "10"), rec("AAA", 1, "10.5"),
		rec("BBB", 0, "50"), rec("CCC", 0, "7"), rec("AAA", 2, "9.75"), rec("BBB", 1, "49"),
	}
	series := market.NewPriceSeries(records)

	out, err := Calculate(series)
	require.NoError(t, err)
	assert.Equal(t, series.Len()-len(series.Tickers()), len(out))
	assert.ElementsMatch(t, []string{"AAA", "BBB"}, out.Tickers())

	tol := decimal.RequireFromString("1e-9")
	for _, r := range out {
		assert.True(t, r.DailyReturn.Equal(r.Close.Sub(r.PrevClose)))
		want := r.DailyReturn.Div(r.PrevClose).Mul(decimal.NewFromInt(100))
		assert.True(t, r.ReturnPct.Sub(want).Abs().LessThanOrEqual(tol))
	}
}

func TestCalculatePrevCloseMatchesPrecedingDate(t *testing.T) {
	series := market.NewPriceSeries([]market.InstrumentRecord{
		rec("X", 3, "13"), rec("X", 1, "11"), rec("X", 0, "10"), rec("X", 2, "12"),
	})
	out, err := Calculate(series)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, r := range out {
		assert.True(t, r.PrevClose.Equal(decimal.NewFromInt(int64(10+i))))
		assert.True(t, r.Date.Equal(day0.AddDate(0, 0, i+1)))
	}
}

func TestCalculateZeroPrevCloseStopsOnlyThatTicker(t *testing.T) {
	series := market.NewPriceSeries([]market.InstrumentRecord{
		rec("BAD", 0, "5"), rec("BAD", 1, "0"), rec("BAD", 2, "3"), rec("BAD", 3, "4"),
		rec("GOOD", 0, "20"), rec("GOOD", 1, "21"),
	})

	out, err := Calculate(series)

	var invalid *InvalidPriceError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "BAD", invalid.Ticker)
	assert.True(t, invalid.Date.Equal(day0.AddDate(0, 0, 2)))

	require.Len(t, out, 2)
	assert.Equal(t, "BAD", out[0].Ticker)
	assert.True(t, out[0].ReturnPct.Equal(decimal.NewFromInt(-100)))
	assert.Equal(t, "GOOD", out[1].Ticker)
}

func TestCalculateEmptySeries(t *testing.T) {
	out, err := Calculate(market.NewPriceSeries(nil))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSummarizeAndTop(t *testing.T) {
	rs := market.Returns{
		{Ticker: "A", ReturnPct: decimal.NewFromInt(2)},
		{Ticker: "B", ReturnPct: decimal.NewFromInt(-4)},
		{Ticker: "C", ReturnPct: decimal.NewFromInt(5)},
		{Ticker: "D", ReturnPct: decimal.Zero},
	}

	s := Summarize(rs)
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 2, s.Gainers)
	assert.Equal(t, 1, s.Losers)
	assert.True(t, s.AveragePct.Equal(decimal.RequireFromString("0.75")))

	top := Top(rs, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "C", top[0].Ticker)
	assert.Equal(t, "A", top[1].Ticker)
	assert.Equal(t, "A", rs[0].Ticker)
}
