package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateScore  float64
	simulateFailed []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic run summary through the alert channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateScore < 0 || simulateScore > 1 {
			return errors.New("--score must be within [0, 1]")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateScore, simulateFailed)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateScore, "score", 0.5, "Quality score of the simulated run")
	simulateCmd.Flags().StringSliceVar(&simulateFailed, "failed-stages", nil, "Stages reported as failed")
}
