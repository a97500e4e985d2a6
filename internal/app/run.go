package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"market-recap/internal/alerting"
	"market-recap/internal/market"
	"market-recap/internal/metrics"
	"market-recap/internal/pipeline"
	"market-recap/internal/quality"
	"market-recap/internal/report"
	"market-recap/internal/service"
	"market-recap/internal/storage"
)

// Run executes the pipeline once and archives, exports and alerts on the outcome.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	recorder := a.newRecorder()
	svc, err := a.newService(opts, recorder)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	var runStore storage.RunStore
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; run archiving disabled")
	} else {
		runStore = store
	}

	_, err = a.execute(ctx, svc, runStore, recorder)
	return err
}

// execute performs one run. Only resolve failures and *pipeline.NoDataError are
// returned; archive, metrics and alert failures are logged.
func (a *App) execute(ctx context.Context, svc *service.Service, runStore storage.RunStore, recorder *metrics.Recorder) (storage.RunRecord, error) {
	id := uuid.New()
	started := a.now().UTC()

	res, runErr := svc.Run(ctx)
	if res == nil {
		return storage.RunRecord{}, runErr
	}
	finished := a.now().UTC()

	record := summarize(id, started, finished, res, runErr)
	log := a.Logger.With().Str("run_id", id.String()).Logger()

	if recorder != nil {
		recorder.ObserveRun(record.Status, finished)
		if rep, err := pipeline.Get[quality.Report](res, service.StageQuality); err == nil {
			recorder.ObserveQuality(rep)
		}
		if path := a.Config.Metrics.TextfilePath; path != "" {
			if err := recorder.WriteTextfile(path); err != nil {
				log.Error().Err(err).Msg("failed to write metrics textfile")
			}
		}
	}

	if runStore != nil {
		if err := runStore.InsertRun(ctx, record, stageRuns(id, res)); err != nil {
			log.Error().Err(err).Msg("failed to archive run")
		}
		if series, err := pipeline.Get[market.PriceSeries](res, service.StagePrices); err == nil {
			if err := runStore.UpsertPrices(ctx, id, series.Records()); err != nil {
				log.Error().Err(err).Msg("failed to persist prices")
			}
		}
	}

	a.notify(ctx, record, res)

	ev := log.Info()
	if record.Status != storage.RunStatusOK {
		ev = log.Warn()
	}
	ev.Str("status", record.Status).
		Int("price_records", record.PriceRecords).
		Int("return_records", record.ReturnRecords).
		Int("news_items", record.NewsItems).
		Strs("checks_failed", record.ChecksFailed).
		Dur("elapsed", finished.Sub(started)).
		Msg("pipeline run finished")

	return record, runErr
}

func (a *App) notify(ctx context.Context, record storage.RunRecord, res *pipeline.Result) {
	if !a.Config.Alerting.Enabled {
		return
	}
	notifier := a.newNotifier()
	if notifier == nil {
		return
	}

	failed := make([]string, 0)
	for _, m := range res.Failed() {
		failed = append(failed, m.Name)
	}
	reasons := a.alertPolicy().Reasons(record.Status, record.QualityScore, failed)
	if len(reasons) == 0 {
		return
	}

	note := alerting.Notification{
		RunID:         record.ID.String(),
		FinishedAt:    record.FinishedAt,
		Outcome:       record.Status,
		Reasons:       reasons,
		QualityScore:  record.QualityScore,
		ChecksFailed:  record.ChecksFailed,
		FailedStages:  failed,
		Tickers:       record.Tickers,
		ReturnRecords: record.ReturnRecords,
	}
	if record.ReportPath != nil {
		note.ReportPath = *record.ReportPath
	}
	if err := notifier.Notify(ctx, note); err != nil {
		a.Logger.Error().Err(err).Str("run_id", note.RunID).Msg("failed to dispatch run summary")
	}
}

func summarize(id uuid.UUID, started, finished time.Time, res *pipeline.Result, runErr error) storage.RunRecord {
	record := storage.RunRecord{
		ID:           id,
		StartedAt:    started,
		FinishedAt:   finished,
		Status:       runStatus(res, runErr),
		ChecksFailed: []string{},
	}

	if series, err := pipeline.Get[market.PriceSeries](res, service.StagePrices); err == nil {
		record.Tickers = len(series.Tickers())
		record.PriceRecords = series.Len()
	}
	if rs, err := pipeline.Get[market.Returns](res, service.StageReturns); err == nil {
		record.ReturnRecords = rs.Len()
	}
	if news, err := pipeline.Get[market.Headlines](res, service.StageNews); err == nil {
		record.NewsItems = news.Len()
	}
	if rep, err := pipeline.Get[quality.Report](res, service.StageQuality); err == nil {
		score := rep.Score()
		record.QualityScore = &score
		record.ChecksFailed = append(record.ChecksFailed, rep.ChecksFailed...)
	}
	if art, err := pipeline.Get[report.Artifact](res, service.StageReport); err == nil && art.Path != "" {
		path := art.Path
		record.ReportPath = &path
	}

	if msg := runError(res, runErr); msg != "" {
		record.Error = &msg
	}
	return record
}

func runStatus(res *pipeline.Result, runErr error) string {
	var noData *pipeline.NoDataError
	switch {
	case errors.As(runErr, &noData):
		return storage.RunStatusNoData
	case res.OK():
		return storage.RunStatusOK
	}
	if m, ok := res.Stage(service.StagePrices); ok && m.Status == pipeline.StatusFailed {
		return storage.RunStatusFailed
	}
	return storage.RunStatusPartial
}

func runError(res *pipeline.Result, runErr error) string {
	if runErr != nil {
		return runErr.Error()
	}
	failed := res.Failed()
	if len(failed) == 0 {
		return ""
	}
	return fmt.Sprintf("%s: %v", failed[0].Name, failed[0].Err)
}

func stageRuns(id uuid.UUID, res *pipeline.Result) []storage.StageRun {
	metas := res.Stages()
	out := make([]storage.StageRun, 0, len(metas))
	for i, m := range metas {
		st := storage.StageRun{
			RunID:      id,
			Position:   i,
			Name:       m.Name,
			Status:     string(m.Status),
			DurationMS: m.Duration.Milliseconds(),
		}
		if !m.Started.IsZero() {
			started := m.Started.UTC()
			st.StartedAt = &started
		}
		if m.Count >= 0 {
			n := m.Count
			st.Records = &n
		}
		switch {
		case m.Err != nil:
			msg := m.Err.Error()
			st.Error = &msg
		case m.SkippedBecause != "":
			msg := "dependency failed: " + m.SkippedBecause
			st.Error = &msg
		}
		out = append(out, st)
	}
	return out
}
