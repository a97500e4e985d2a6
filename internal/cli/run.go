package cli

import (
	"github.com/spf13/cobra"

	"market-recap/internal/app"
)

var (
	runTickers   []string
	runPricesCSV string
	runOutputDir string
	runNoNews    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the recap pipeline once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), runOptions())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the recap pipeline on the configured schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context(), runOptions())
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the resolved stage order",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Plan(cmd.OutOrStdout())
	},
}

func runOptions() app.RunOptions {
	return app.RunOptions{
		Tickers:   runTickers,
		PricesCSV: runPricesCSV,
		OutputDir: runOutputDir,
		NoNews:    runNoNews,
	}
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, serveCmd} {
		cmd.Flags().StringSliceVar(&runTickers, "tickers", nil, "Comma separated tickers overriding universe.tickers")
		cmd.Flags().StringVar(&runPricesCSV, "prices-csv", "", "Read prices from a CSV file instead of Yahoo Finance")
		cmd.Flags().StringVar(&runOutputDir, "output-dir", "", "Override report.output_dir")
		cmd.Flags().BoolVar(&runNoNews, "no-news", false, "Skip the news stage")
	}
}
