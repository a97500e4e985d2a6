package quality

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-recap/internal/market"
)

var day0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func vol(v int64) *int64 { return &v }

func fullRecord(ticker string, day int, close string) market.InstrumentRecord {
	c := decimal.RequireFromString(close)
	return market.InstrumentRecord{
		Ticker: ticker,
		Date:   day0.AddDate(0, 0, day),
		Open:   decimal.NewNullDecimal(c),
		High:   decimal.NewNullDecimal(c),
		Low:    decimal.NewNullDecimal(c),
		Close:  c,
		Volume: vol(1000),
	}
}

func ret(ticker string, day int, pct string) market.ReturnRecord {
	return market.ReturnRecord{
		Ticker:    ticker,
		Date:      day0.AddDate(0, 0, day),
		ReturnPct: decimal.RequireFromString(pct),
	}
}

func evaluator(expected int) *Evaluator {
	return NewEvaluator(DefaultThresholds(), expected, zerolog.Nop())
}

func TestEvaluateAllChecksPass(t *testing.T) {
	series := market.NewPriceSeries([]market.InstrumentRecord{
		fullRecord("AAA", 0, "10"), fullRecord("AAA", 1, "11"),
		fullRecord("BBB", 0, "20"), fullRecord("BBB", 1, "19"),
	})
	rs := market.Returns{ret("AAA", 1, "10"), ret("BBB", 1, "-5")}

	report := evaluator(2).Evaluate(series, rs)

	assert.Len(t, report.ChecksPassed, 3)
	assert.Empty(t, report.ChecksFailed)
	assert.Equal(t, []string{"No missing values detected", "No extreme return outliers detected"}, report.Advisories)
	assert.Empty(t, report.Warnings)
	assert.Equal(t, 1.0, report.Score())
	assert.True(t, report.Passed())
	assert.Equal(t, 1.0, report.Metrics[MetricDataCompleteness])
	assert.Equal(t, 0.0, report.Metrics[MetricDuplicateRecords])
}

func TestEvaluateZeroCloseFailsPriceBounds(t *testing.T) {
	clean := []market.InstrumentRecord{fullRecord("AAA", 0, "10"), fullRecord("AAA", 1, "11")}
	before := evaluator(1).Evaluate(market.NewPriceSeries(clean), nil)

	dirty := append(append([]market.InstrumentRecord{}, clean...), fullRecord("AAA", 2, "0"))
	after := evaluator(1).Evaluate(market.NewPriceSeries(dirty), nil)

	assert.Equal(t, len(before.ChecksFailed)+1, len(after.ChecksFailed))
	assert.Contains(t, after.ChecksFailed, "Found 1 prices outside valid range")
	assert.Equal(t, 1.0, after.Metrics[MetricPriceViolations])

	var found bool
	for _, w := range after.Warnings {
		if w.Check == CheckPriceBounds && w.Ticker == "AAA" && w.Date.Equal(day0.AddDate(0, 0, 2)) {
			found = true
		}
	}
	assert.True(t, found, "zero close should be listed in warnings")
	assert.InDelta(t, 2.0/3.0, after.Score(), 1e-9)
}

func TestEvaluateAdvisoryChecksNeverFail(t *testing.T) {
	records := []market.InstrumentRecord{
		{Ticker: "AAA", Date: day0, Close: decimal.NewFromInt(10)},
		{Ticker: "AAA", Date: day0.AddDate(0, 0, 1), Close: decimal.NewFromInt(30)},
	}
	rs := market.Returns{ret("AAA", 1, "200"), ret("AAA", 2, "-75"), {Ticker: "", ReturnPct: decimal.NewFromInt(60)}}

	report := evaluator(1).Evaluate(market.NewPriceSeries(records), rs)

	assert.Empty(t, report.ChecksFailed)
	assert.Equal(t, 1.0, report.Score())
	assert.Empty(t, report.Advisories)
	assert.Equal(t, 3.0, report.Metrics[MetricOutliers])
	// four nullable fields per price record, ticker and date on the anonymous return
	assert.Equal(t, 10.0, report.Metrics[MetricMissingValues])

	checks := map[string]int{}
	for _, w := range report.Warnings {
		checks[w.Check]++
	}
	assert.Equal(t, 1, checks[CheckMissingValues])
	assert.Equal(t, 4, checks[CheckOutliers])
}

func TestEvaluateCountsDuplicates(t *testing.T) {
	series := market.NewPriceSeries([]market.InstrumentRecord{
		fullRecord("AAA", 0, "10"), fullRecord("AAA", 0, "10.5"), fullRecord("AAA", 0, "10.2"),
		fullRecord("AAA", 1, "11"),
		fullRecord("BBB", 0, "5"), fullRecord("BBB", 0, "5"),
	})

	report := evaluator(2).Evaluate(series, nil)

	assert.Equal(t, 5.0, report.Metrics[MetricDuplicateRecords])
	assert.Contains(t, report.ChecksFailed, "Found 5 duplicate records")
	assert.False(t, report.Passed())
}

func TestEvaluateCompleteness(t *testing.T) {
	series := market.NewPriceSeries([]market.InstrumentRecord{
		fullRecord("AAA", 0, "10"), fullRecord("BBB", 0, "10"), fullRecord("CCC", 0, "10"),
	})

	cases := []struct {
		name     string
		expected int
		ratio    float64
		pass     bool
	}{
		{name: "exact", expected: 3, ratio: 1, pass: true},
		{name: "below threshold", expected: 4, ratio: 0.75, pass: false},
		{name: "nothing expected", expected: 0, ratio: 1, pass: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := evaluator(tc.expected).Evaluate(series, nil)
			assert.InDelta(t, tc.ratio, report.Metrics[MetricDataCompleteness], 1e-9)
			if tc.pass {
				assert.Contains(t, report.ChecksPassed[0], "Data completeness")
			} else {
				require.NotEmpty(t, report.ChecksFailed)
				assert.Equal(t, "Data completeness: 75.0% (< 80.0%)", report.ChecksFailed[0])
			}
		})
	}
}

func TestEvaluateEmptyInput(t *testing.T) {
	report := evaluator(5).Evaluate(market.NewPriceSeries(nil), nil)

	assert.Equal(t, 0.0, report.Metrics[MetricDataCompleteness])
	assert.Len(t, report.ChecksFailed, 1)
	assert.Len(t, report.ChecksPassed, 2)
	assert.GreaterOrEqual(t, report.Score(), 0.0)
	assert.LessOrEqual(t, report.Score(), 1.0)
}

func TestScore(t *testing.T) {
	assert.Equal(t, 0.0, Score(0, 0))
	assert.Equal(t, 1.0, Score(3, 0))
	assert.Equal(t, 0.0, Score(0, 3))
	assert.InDelta(t, 1.0/3.0, Score(1, 2), 1e-9)
}
