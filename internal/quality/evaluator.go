package quality

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"market-recap/internal/market"
)

// Thresholds parameterise the checks. Values are copied into the evaluator.
type Thresholds struct {
	MinCompleteness float64
	MinPrice        decimal.Decimal
	MaxPrice        decimal.Decimal
	MaxReturnPct    decimal.Decimal
}

// DefaultThresholds mirrors the shipped configuration defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinCompleteness: 0.8,
		MinPrice:        decimal.RequireFromString("0.01"),
		MaxPrice:        decimal.NewFromInt(1_000_000),
		MaxReturnPct:    decimal.NewFromInt(50),
	}
}

// Evaluator runs the deterministic data quality checks.
type Evaluator struct {
	thresholds Thresholds
	expected   int
	logger     zerolog.Logger
}

// NewEvaluator builds an evaluator expecting data for expectedTickers instruments.
func NewEvaluator(thresholds Thresholds, expectedTickers int, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
		expected:   expectedTickers,
		logger:     logger.With().Str("component", "quality").Logger(),
	}
}

// Evaluate runs all five checks. It never fails; deficiencies are reported as data.
func (e *Evaluator) Evaluate(series market.PriceSeries, rs market.Returns) Report {
	report := Report{
		ChecksPassed: make([]string, 0, 3),
		ChecksFailed: make([]string, 0, 3),
		Advisories:   make([]string, 0, 2),
		Warnings:     make([]Warning, 0),
		Metrics:      make(map[string]float64),
	}
	records := series.Records()

	e.checkCompleteness(&report, series)
	e.checkPriceBounds(&report, records)
	e.checkMissingValues(&report, records, rs)
	e.checkOutliers(&report, rs)
	e.checkDuplicates(&report, records)

	score := Score(len(report.ChecksPassed), len(report.ChecksFailed))
	report.Metrics[MetricQualityScore] = score

	e.logger.Info().
		Int("passed", len(report.ChecksPassed)).
		Int("failed", len(report.ChecksFailed)).
		Int("warnings", len(report.Warnings)).
		Float64("quality_score", score).
		Msg("quality checks complete")

	return report
}

func (e *Evaluator) checkCompleteness(report *Report, series market.PriceSeries) {
	actual := len(series.Tickers())
	ratio := 1.0
	if e.expected > 0 {
		ratio = float64(actual) / float64(e.expected)
	}
	report.Metrics[MetricDataCompleteness] = ratio

	threshold := e.thresholds.MinCompleteness
	if ratio >= threshold {
		report.ChecksPassed = append(report.ChecksPassed,
			fmt.Sprintf("Data completeness: %.1f%% (>= %.1f%%)", ratio*100, threshold*100))
		return
	}
	report.ChecksFailed = append(report.ChecksFailed,
		fmt.Sprintf("Data completeness: %.1f%% (< %.1f%%)", ratio*100, threshold*100))
}

func (e *Evaluator) checkPriceBounds(report *Report, records []market.InstrumentRecord) {
	lo, hi := e.thresholds.MinPrice, e.thresholds.MaxPrice
	violations := 0
	for _, r := range records {
		if r.Close.LessThan(lo) || r.Close.GreaterThan(hi) {
			violations++
			report.Warnings = append(report.Warnings, Warning{
				Check:   CheckPriceBounds,
				Ticker:  r.Ticker,
				Date:    r.Date,
				Message: fmt.Sprintf("close %s outside [%s, %s] on %s", r.Close, lo, hi, formatDate(r.Date)),
			})
		}
	}
	report.Metrics[MetricPriceViolations] = float64(violations)

	if violations == 0 {
		report.ChecksPassed = append(report.ChecksPassed, "All prices within valid range")
		return
	}
	report.ChecksFailed = append(report.ChecksFailed,
		fmt.Sprintf("Found %d prices outside valid range", violations))
}

func (e *Evaluator) checkMissingValues(report *Report, records []market.InstrumentRecord, rs market.Returns) {
	missingPrices := 0
	for _, r := range records {
		missingPrices += r.MissingFields()
	}
	missingReturns := 0
	for _, r := range rs {
		missingReturns += r.MissingFields()
	}
	report.Metrics[MetricMissingValues] = float64(missingPrices + missingReturns)

	if missingPrices == 0 && missingReturns == 0 {
		report.Advisories = append(report.Advisories, "No missing values detected")
		return
	}
	report.Warnings = append(report.Warnings, Warning{
		Check:   CheckMissingValues,
		Message: fmt.Sprintf("Missing values: %d in prices, %d in returns", missingPrices, missingReturns),
	})
}

func (e *Evaluator) checkOutliers(report *Report, rs market.Returns) {
	limit := e.thresholds.MaxReturnPct
	outliers := make([]market.ReturnRecord, 0)
	for _, r := range rs {
		if r.ReturnPct.Abs().GreaterThan(limit) {
			outliers = append(outliers, r)
		}
	}
	report.Metrics[MetricOutliers] = float64(len(outliers))

	if len(outliers) == 0 {
		report.Advisories = append(report.Advisories, "No extreme return outliers detected")
		return
	}
	report.Warnings = append(report.Warnings, Warning{
		Check:   CheckOutliers,
		Message: fmt.Sprintf("Found %d extreme returns (>%s%%)", len(outliers), limit.StringFixed(1)),
	})
	for _, r := range outliers {
		report.Warnings = append(report.Warnings, Warning{
			Check:   CheckOutliers,
			Ticker:  r.Ticker,
			Date:    r.Date,
			Message: r.ReturnPct.StringFixed(2) + "%",
		})
	}
}

type recordKey struct {
	ticker string
	date   int64
}

func (e *Evaluator) checkDuplicates(report *Report, records []market.InstrumentRecord) {
	counts := make(map[recordKey]int, len(records))
	for _, r := range records {
		counts[recordKey{ticker: r.Ticker, date: r.Date.UnixNano()}]++
	}
	duplicates := 0
	for _, n := range counts {
		if n > 1 {
			duplicates += n
		}
	}
	report.Metrics[MetricDuplicateRecords] = float64(duplicates)

	if duplicates == 0 {
		report.ChecksPassed = append(report.ChecksPassed, "No duplicate records found")
		return
	}
	report.ChecksFailed = append(report.ChecksFailed, fmt.Sprintf("Found %d duplicate records", duplicates))
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown date"
	}
	return t.Format("2006-01-02")
}
