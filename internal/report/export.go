package report

import (
	"encoding/csv"
	"math"
	"os"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"market-recap/internal/market"
	"market-recap/internal/returns"
)

var (
	gainColor = drawing.ColorFromHex("2ca02c")
	lossColor = drawing.ColorFromHex("d62728")
)

func writeReturnsCSV(path string, rs market.Returns) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"ticker", "date", "close", "prev_close", "daily_return", "return_pct"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range rs {
		record := []string{
			r.Ticker,
			r.Date.Format("2006-01-02"),
			r.Close.String(),
			r.PrevClose.String(),
			r.DailyReturn.String(),
			r.ReturnPct.StringFixed(4),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeTopChart renders the best n returns as a bar chart, green for gains and
// red for losses.
func writeTopChart(path string, rs market.Returns, n int) error {
	top := returns.Top(rs, n)

	bars := make([]chart.Value, 0, len(top))
	lo, hi := 0.0, 0.0
	for _, r := range top {
		v := r.ReturnPct.InexactFloat64()
		color := gainColor
		if v < 0 {
			color = lossColor
		}
		bars = append(bars, chart.Value{
			Label: r.Ticker,
			Value: v,
			Style: chart.Style{FillColor: color, StrokeColor: color, StrokeWidth: 1},
		})
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	// go-chart rejects ranges whose minimum is exactly zero.
	pad := math.Max((hi-lo)*0.1, 0.5)
	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f%%")
	}

	graph := chart.BarChart{
		Title:        "Top Performers of the Day",
		Width:        1024,
		Height:       512,
		BarWidth:     80,
		UseBaseValue: true,
		BaseValue:    0,
		YAxis: chart.YAxis{
			Name:           "Return (%)",
			ValueFormatter: pctFormatter,
			Range:          &chart.ContinuousRange{Min: lo - pad, Max: hi + pad},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}
