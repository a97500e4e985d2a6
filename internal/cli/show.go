package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"market-recap/internal/app"
)

var (
	showLimit  int
	showStages bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recently archived runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:  showLimit,
			Stages: showStages,
		}

		return getApp().Show(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of runs to display")
	showCmd.Flags().BoolVar(&showStages, "stages", false, "Also print per-stage metadata")
}
