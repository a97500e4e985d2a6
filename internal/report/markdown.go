package report

import (
	"fmt"
	"strings"
	"time"

	"market-recap/internal/pipeline"
	"market-recap/internal/returns"
)

func buildMarkdown(b Bundle, topN int, chartFile string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Daily Market Recap - %s\n\n", b.GeneratedAt.Format("January 02, 2006"))

	summary := returns.Summarize(b.Returns)
	score := b.Quality.Score()
	sb.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&sb, "- Total Assets Tracked: %d\n", summary.Count)
	fmt.Fprintf(&sb, "- Average Return: %s%%\n", summary.AveragePct.StringFixed(2))
	fmt.Fprintf(&sb, "- Gainers: %d | Losers: %d\n", summary.Gainers, summary.Losers)
	fmt.Fprintf(&sb, "- Data Quality Score: %.1f%%\n", score*100)
	if first, last, ok := b.Prices.DateRange(); ok {
		fmt.Fprintf(&sb, "- Price Window: %s to %s (%d records)\n",
			first.Format("2006-01-02"), last.Format("2006-01-02"), b.Prices.Len())
	}
	sb.WriteString("\n")

	top := returns.Top(b.Returns, topN)
	fmt.Fprintf(&sb, "## Top %d Performers\n\n", topN)
	if len(top) == 0 {
		sb.WriteString("_No returns available._\n\n")
	} else {
		if chartFile != "" {
			fmt.Fprintf(&sb, "![Top %d performers](%s)\n\n", topN, chartFile)
		}
		sb.WriteString("| Rank | Ticker | Return % |\n|---:|---|---:|\n")
		for i, r := range top {
			fmt.Fprintf(&sb, "| %d | %s | %s%% |\n", i+1, cell(r.Ticker), r.ReturnPct.StringFixed(2))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Daily Prices & Returns (All Assets)\n\n")
	sb.WriteString("| Ticker | Close Price | Daily Return | Return % |\n|---|---:|---:|---:|\n")
	for _, r := range b.Returns.SortedByReturn() {
		fmt.Fprintf(&sb, "| %s | $%s | $%s | %s%% |\n",
			cell(r.Ticker), r.Close.StringFixed(2), r.DailyReturn.StringFixed(2), r.ReturnPct.StringFixed(2))
	}
	sb.WriteString("\n")

	sb.WriteString("## Key News of the Day\n\n")
	headlines := b.News.FirstPerTicker()
	if len(headlines) == 0 {
		sb.WriteString("_No news available._\n")
	}
	for i, n := range headlines {
		fmt.Fprintf(&sb, "%d. **[%s] %s**  \n   _%s - %s_", i+1, n.Ticker, inline(n.Title), inline(n.Publisher), inline(n.PublishedDate))
		if n.Link != "" {
			fmt.Fprintf(&sb, " [Read more](%s)", n.Link)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	writeQuality(&sb, b)
	writeStages(&sb, b.Stages)

	return sb.String()
}

func writeQuality(sb *strings.Builder, b Bundle) {
	q := b.Quality
	sb.WriteString("## Data Quality Report\n\n")
	fmt.Fprintf(sb, "**Quality Score: %.1f%%**\n\n", q.Score()*100)

	fmt.Fprintf(sb, "### Checks Passed (%d)\n\n", len(q.ChecksPassed))
	for _, c := range q.ChecksPassed {
		fmt.Fprintf(sb, "- ✓ %s\n", c)
	}
	sb.WriteString("\n")

	if len(q.ChecksFailed) > 0 {
		fmt.Fprintf(sb, "### Checks Failed (%d)\n\n", len(q.ChecksFailed))
		for _, c := range q.ChecksFailed {
			fmt.Fprintf(sb, "- ✗ %s\n", c)
		}
		sb.WriteString("\n")
	}

	if len(q.Advisories) > 0 {
		sb.WriteString("### Advisories\n\n")
		for _, a := range q.Advisories {
			fmt.Fprintf(sb, "- %s\n", a)
		}
		sb.WriteString("\n")
	}

	if len(q.Warnings) > 0 {
		fmt.Fprintf(sb, "### Warnings (%d)\n\n", len(q.Warnings))
		for _, w := range q.Warnings {
			fmt.Fprintf(sb, "- %s\n", inline(w.String()))
		}
		sb.WriteString("\n")
	}
}

func writeStages(sb *strings.Builder, stages []pipeline.StageMetadata) {
	if len(stages) == 0 {
		return
	}
	sb.WriteString("## Pipeline Stages\n\n")
	sb.WriteString("| Stage | Status | Records | Duration | Note |\n|---|---|---:|---:|---|\n")
	for _, s := range stages {
		count := "-"
		if s.Count >= 0 {
			count = fmt.Sprintf("%d", s.Count)
		}
		note := ""
		switch {
		case s.SkippedBecause != "":
			note = "skipped: " + s.SkippedBecause + " failed"
		case s.Err != nil:
			note = s.Err.Error()
		}
		fmt.Fprintf(sb, "| %s | %s | %s | %s | %s |\n",
			cell(s.Name), s.Status, count, s.Duration.Round(time.Millisecond), cell(note))
	}
	sb.WriteString("\n")
}

// cell escapes text for a markdown table cell.
func cell(s string) string {
	return strings.ReplaceAll(inline(s), "|", `\|`)
}

func inline(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
