package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"market-recap/internal/app"
)

var (
	backfillTickers  []string
	backfillLookback time.Duration
	backfillDryRun   bool
	backfillWorkers  int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Load historical daily bars into price_records",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillLookback <= 0 {
			return fmt.Errorf("--lookback must be greater than zero")
		}
		if backfillWorkers <= 0 {
			return fmt.Errorf("--workers must be greater than zero")
		}

		opts := app.BackfillOptions{
			Tickers:  backfillTickers,
			Lookback: backfillLookback,
			DryRun:   backfillDryRun,
			Workers:  backfillWorkers,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringSliceVar(&backfillTickers, "tickers", nil, "Comma separated tickers overriding universe.tickers")
	backfillCmd.Flags().DurationVar(&backfillLookback, "lookback", 365*24*time.Hour, "How far back to load")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Fetch without writing to storage")
	backfillCmd.Flags().IntVar(&backfillWorkers, "workers", 2, "Number of concurrent fetches")
}
