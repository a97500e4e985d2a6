package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-recap/internal/config"
	"market-recap/internal/fetcher"
	"market-recap/internal/market"
	"market-recap/internal/metrics"
	"market-recap/internal/pipeline"
	"market-recap/internal/service"
	"market-recap/internal/storage"
)

type memoryStore struct {
	mu     sync.Mutex
	runs   []storage.RunRecord
	stages map[uuid.UUID][]storage.StageRun
	prices []market.InstrumentRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{stages: make(map[uuid.UUID][]storage.StageRun)}
}

func (m *memoryStore) InsertRun(_ context.Context, run storage.RunRecord, stages []storage.StageRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	m.stages[run.ID] = stages
	return nil
}

func (m *memoryStore) UpsertPrices(_ context.Context, _ uuid.UUID, records []market.InstrumentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices = append(m.prices, records...)
	return nil
}

func (m *memoryStore) ListRecentRuns(_ context.Context, limit int) ([]storage.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.runs) {
		limit = len(m.runs)
	}
	return m.runs[:limit], nil
}

func (m *memoryStore) ListStageRuns(_ context.Context, runID uuid.UUID) ([]storage.StageRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stages[runID], nil
}

type staticPrices map[string][]string

func (s staticPrices) FetchPrices(_ context.Context, ticker string, _ time.Duration) fetcher.Result[market.InstrumentRecord] {
	closes, ok := s[ticker]
	if !ok {
		return fetcher.Result[market.InstrumentRecord]{Status: fetcher.StatusNoData}
	}
	items := make([]market.InstrumentRecord, 0, len(closes))
	for i, c := range closes {
		px := decimal.RequireFromString(c)
		v := int64(1000)
		items = append(items, market.InstrumentRecord{
			Ticker: ticker,
			Date:   time.Date(2024, 3, 5+i, 0, 0, 0, 0, time.UTC),
			Open:   decimal.NewNullDecimal(px),
			High:   decimal.NewNullDecimal(px),
			Low:    decimal.NewNullDecimal(px),
			Close:  px,
			Volume: &v,
		})
	}
	return fetcher.Result[market.InstrumentRecord]{Items: items, Status: fetcher.StatusOK}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Universe: config.UniverseConfig{Tickers: []string{"AAPL", "MSFT"}},
		Prices:   config.PricesConfig{Lookback: 7 * 24 * time.Hour, KeepLast: 2},
		Quality: config.QualityConfig{
			MinCompleteness: 0.8,
			MinPrice:        0.01,
			MaxPrice:        1_000_000,
			MaxReturnPct:    50,
		},
		Report:  config.ReportConfig{OutputDir: filepath.Join(dir, "outputs"), TopN: 5},
		Metrics: config.MetricsConfig{Namespace: "recap", TextfilePath: filepath.Join(dir, "metrics", "recap.prom")},
		Alerting: config.AlertingConfig{
			MinQualityScore: 0.8,
			OnStageFailure:  true,
		},
	}
}

func newTestApp(cfg *config.Config) *App {
	a := NewApp(cfg, zerolog.Nop())
	a.now = func() time.Time { return time.Date(2024, 3, 6, 22, 30, 0, 0, time.UTC) }
	return a
}

func newTestService(a *App, prices fetcher.PriceSource) *service.Service {
	return service.New(service.Options{
		Tickers:    a.Config.Universe.Tickers,
		Lookback:   a.Config.Prices.Lookback,
		Thresholds: a.Config.Thresholds(),
	}, prices, nil, a.newRenderer(""), zerolog.Nop())
}

func TestExecuteArchivesAndExportsRun(t *testing.T) {
	a := newTestApp(testConfig(t))
	store := newMemoryStore()
	recorder := metrics.New("recap")
	svc := newTestService(a, staticPrices{"AAPL": {"100", "110"}, "MSFT": {"200", "190"}})

	record, err := a.execute(context.Background(), svc, store, recorder)
	require.NoError(t, err)

	assert.Equal(t, storage.RunStatusOK, record.Status)
	assert.Equal(t, 2, record.Tickers)
	assert.Equal(t, 4, record.PriceRecords)
	assert.Equal(t, 2, record.ReturnRecords)
	require.NotNil(t, record.QualityScore)
	assert.Equal(t, 1.0, *record.QualityScore)
	require.NotNil(t, record.ReportPath)
	assert.FileExists(t, *record.ReportPath)
	assert.Nil(t, record.Error)

	require.Len(t, store.runs, 1)
	stages := store.stages[record.ID]
	require.Len(t, stages, 5)
	assert.Equal(t, service.StagePrices, stages[0].Name)
	assert.Equal(t, service.StageReport, stages[4].Name)
	assert.Len(t, store.prices, 4)

	raw, err := os.ReadFile(a.Config.Metrics.TextfilePath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `recap_runs_total{outcome="ok"} 1`)
}

func TestExecuteNoData(t *testing.T) {
	a := newTestApp(testConfig(t))
	store := newMemoryStore()
	svc := newTestService(a, staticPrices{})

	record, err := a.execute(context.Background(), svc, store, nil)

	var noData *pipeline.NoDataError
	require.ErrorAs(t, err, &noData)
	assert.Equal(t, storage.RunStatusNoData, record.Status)
	require.NotNil(t, record.Error)
	assert.Nil(t, record.QualityScore)

	require.Len(t, store.runs, 1)
	stages := store.stages[record.ID]
	require.Len(t, stages, 5)
	assert.Equal(t, string(pipeline.StatusCompleted), stages[0].Status)
	for _, st := range stages[1:] {
		assert.Equal(t, string(pipeline.StatusSkipped), st.Status)
	}
}

func TestExecuteSendsAlertOnLowQuality(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		sent = append(sent, body["text"])
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Alerting.Enabled = true
	cfg.Alerting.Telegram = config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "chat", APIBase: srv.URL}
	a := newTestApp(cfg)

	// A zero close fails the price bounds gate: score 2/3.
	svc := newTestService(a, staticPrices{"AAPL": {"100", "0"}, "MSFT": {"200", "190"}})
	record, err := a.execute(context.Background(), svc, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Found 1 prices outside valid range"}, record.ChecksFailed)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "quality score 66.7% below 80.0%")
}

func TestRunStatusAndStageRuns(t *testing.T) {
	stages := []pipeline.Stage{
		{Name: "prices", Compute: func(context.Context, pipeline.Inputs) (any, error) {
			return market.NewPriceSeries([]market.InstrumentRecord{{Ticker: "AAPL"}}), nil
		}},
		{Name: "news", Compute: func(context.Context, pipeline.Inputs) (any, error) {
			return nil, errors.New("feed down")
		}},
		{Name: "report", DependsOn: []string{"news"}, Compute: func(context.Context, pipeline.Inputs) (any, error) {
			return nil, nil
		}},
	}
	plan, err := pipeline.Resolve(stages)
	require.NoError(t, err)
	res, err := pipeline.NewExecutor(plan, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, storage.RunStatusPartial, runStatus(res, nil))
	assert.Equal(t, "news: stage \"news\" failed: feed down", runError(res, nil))

	id := uuid.New()
	runs := stageRuns(id, res)
	require.Len(t, runs, 3)
	assert.Equal(t, 0, runs[0].Position)
	require.NotNil(t, runs[0].Records)
	assert.Equal(t, 1, *runs[0].Records)
	assert.NotNil(t, runs[0].StartedAt)
	require.NotNil(t, runs[1].Error)
	assert.Nil(t, runs[1].Records)
	require.NotNil(t, runs[2].Error)
	assert.Equal(t, "dependency failed: news", *runs[2].Error)
	assert.Nil(t, runs[2].StartedAt)
}

func TestShowRuns(t *testing.T) {
	store := newMemoryStore()
	score := 0.5
	msg := "report: disk\nfull"
	id := uuid.MustParse("0b8f6c4e-1111-4222-8333-944455556666")
	records := 104
	require.NoError(t, store.InsertRun(context.Background(), storage.RunRecord{
		ID:           id,
		StartedAt:    time.Date(2024, 3, 6, 22, 30, 0, 0, time.UTC),
		Status:       storage.RunStatusPartial,
		Tickers:      52,
		PriceRecords: 104,
		QualityScore: &score,
		ChecksFailed: []string{"price_bounds"},
		Error:        &msg,
	}, []storage.StageRun{{RunID: id, Name: "prices", Status: "completed", DurationMS: 1500, Records: &records}}))

	var buf bytes.Buffer
	require.NoError(t, showRuns(context.Background(), store, &buf, ShowOptions{Limit: 10, Stages: true}))

	out := buf.String()
	assert.Contains(t, out, "2024-03-06T22:30:00Z")
	assert.Contains(t, out, "0b8f6c4e")
	assert.Contains(t, out, "50.0%")
	assert.Contains(t, out, "price_bounds")
	assert.Contains(t, out, "report: disk full")
	assert.Contains(t, out, "1.5s")
}

func TestShowRunsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, showRuns(context.Background(), newMemoryStore(), &buf, ShowOptions{Limit: 5}))
	assert.Equal(t, "no runs found\n", buf.String())
}

func TestPlanPrintsOrder(t *testing.T) {
	a := newTestApp(testConfig(t))
	var buf bytes.Buffer
	require.NoError(t, a.Plan(&buf))

	out := buf.String()
	assert.Contains(t, out, "1  prices")
	assert.Contains(t, out, "prices, returns, news, quality")
}

func TestBackfillUpsertsAllTickers(t *testing.T) {
	a := newTestApp(testConfig(t))
	store := newMemoryStore()
	prices := staticPrices{"AAPL": {"1", "2", "3"}, "MSFT": {"4", "5"}}

	err := a.backfill(context.Background(), prices, store, []string{"AAPL", "MSFT", "NOPE"}, BackfillOptions{Lookback: time.Hour, Workers: 2})
	require.NoError(t, err)
	assert.Len(t, store.prices, 5)
	assert.Equal(t, "AAPL", store.prices[0].Ticker)
}

func TestBackfillDryRunWritesNothing(t *testing.T) {
	a := newTestApp(testConfig(t))
	prices := staticPrices{"AAPL": {"1", "2"}}
	require.NoError(t, a.backfill(context.Background(), prices, nil, []string{"AAPL"}, BackfillOptions{Lookback: time.Hour}))
}

func TestAcquireLockWithoutLocker(t *testing.T) {
	unlock, proceed, err := acquireLock(context.Background(), nil, 42)
	require.NoError(t, err)
	assert.True(t, proceed)
	assert.Nil(t, unlock)
}

func TestPriceSourceFromCSV(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte("ticker,date,close\nAAPL,2024-03-05,100\n"), 0o600))
	cfg.Prices.CSVPath = path

	src, name, err := newTestApp(cfg).priceSource("", -1)
	require.NoError(t, err)
	assert.Equal(t, "csv", name)
	assert.IsType(t, &fetcher.CSVPrices{}, src)

	_, _, err = newTestApp(cfg).priceSource(filepath.Join(t.TempDir(), "missing.csv"), -1)
	assert.Error(t, err)
}
