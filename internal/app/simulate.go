package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"market-recap/internal/alerting"
)

// SimulateAlert pushes a synthetic run summary through the configured notifier.
func (a *App) SimulateAlert(ctx context.Context, score float64, failedStages []string) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	status := "ok"
	if len(failedStages) > 0 {
		status = "partial"
	}
	reasons := a.alertPolicy().Reasons(status, &score, failedStages)
	if len(reasons) == 0 {
		return fmt.Errorf("score %.2f with no failed stages would not trigger an alert", score)
	}

	return notifier.Notify(ctx, alerting.Notification{
		RunID:         uuid.NewString(),
		FinishedAt:    a.now(),
		Outcome:       status,
		Reasons:       reasons,
		QualityScore:  &score,
		FailedStages:  failedStages,
		Tickers:       len(a.Config.Universe.Tickers),
		AdditionalMsg: "(simulated)",
	})
}
