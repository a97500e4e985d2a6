package quality

import (
	"fmt"
	"time"
)

// Metric keys recorded in Report.Metrics.
const (
	MetricQualityScore     = "quality_score"
	MetricDataCompleteness = "data_completeness"
	MetricPriceViolations  = "price_violations"
	MetricMissingValues    = "missing_values"
	MetricOutliers         = "outliers"
	MetricDuplicateRecords = "duplicate_records"
)

// Check names.
const (
	CheckCompleteness  = "completeness"
	CheckPriceBounds   = "price_bounds"
	CheckMissingValues = "missing_values"
	CheckOutliers      = "outliers"
	CheckDuplicates    = "duplicates"
)

// Warning is a non-blocking finding attached to a check.
type Warning struct {
	Check   string
	Ticker  string
	Date    time.Time
	Message string
}

func (w Warning) String() string {
	if w.Ticker == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.Ticker, w.Message)
}

// Report is the advisory outcome of a quality evaluation.
//
// ChecksPassed and ChecksFailed only ever hold gate checks (completeness, price
// bounds, duplicates) and are the sole inputs of the score. Missing-value and
// outlier checks are advisory: a clean result lands in Advisories, a dirty one
// in Warnings.
type Report struct {
	ChecksPassed []string
	ChecksFailed []string
	Advisories   []string
	Warnings     []Warning
	Metrics      map[string]float64
}

// Score returns the quality score in [0, 1].
func (r Report) Score() float64 {
	return r.Metrics[MetricQualityScore]
}

// Passed reports whether no gate check failed.
func (r Report) Passed() bool {
	return len(r.ChecksFailed) == 0
}

// Score is passed/(passed+failed), or 0 when nothing was counted.
func Score(passed, failed int) float64 {
	total := passed + failed
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total)
}
