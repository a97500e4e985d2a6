package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"market-recap/internal/storage"
)

// Show prints recently archived runs.
func (a *App) Show(ctx context.Context, w io.Writer, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show runs")
	}
	if closeStore != nil {
		defer closeStore()
	}

	return showRuns(ctx, store, w, opts)
}

func showRuns(ctx context.Context, store storage.RunStore, w io.Writer, opts ShowOptions) error {
	runs, err := store.ListRecentRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs found")
		return nil
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Started (UTC)\tRun\tStatus\tTickers\tPrices\tReturns\tNews\tQuality\tFailed Checks\tError")

	for _, run := range runs {
		errMsg := ""
		if run.Error != nil {
			errMsg = sanitizeInline(*run.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
			run.StartedAt.UTC().Format(time.RFC3339),
			run.ID.String()[:8],
			run.Status,
			run.Tickers,
			run.PriceRecords,
			run.ReturnRecords,
			run.NewsItems,
			formatScore(run.QualityScore),
			orDash(strings.Join(run.ChecksFailed, ",")),
			errMsg,
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	if !opts.Stages {
		return nil
	}

	for _, run := range runs {
		stages, err := store.ListStageRuns(ctx, run.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\nRun %s\n", run.ID)
		writer = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Stage\tStatus\tRecords\tDuration\tError")
		for _, st := range stages {
			records := "-"
			if st.Records != nil {
				records = strconv.Itoa(*st.Records)
			}
			errMsg := ""
			if st.Error != nil {
				errMsg = sanitizeInline(*st.Error)
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
				st.Name, st.Status, records, (time.Duration(st.DurationMS) * time.Millisecond).String(), errMsg)
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *score*100)
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
