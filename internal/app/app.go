package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-recap/internal/alerting"
	"market-recap/internal/config"
	"market-recap/internal/fetcher"
	"market-recap/internal/metrics"
	"market-recap/internal/report"
	"market-recap/internal/service"
	"market-recap/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	base zerolog.Logger
	now  func() time.Time
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		base:   logger,
		now:    time.Now,
	}
}

// RunOptions override configuration for a single run.
type RunOptions struct {
	Tickers   []string
	PricesCSV string
	OutputDir string
	NoNews    bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Stages bool
}

// BackfillOptions configure the price backfill job.
type BackfillOptions struct {
	Tickers  []string
	Lookback time.Duration
	DryRun   bool
	Workers  int
}

// priceSource picks the CSV file when one is configured, Yahoo otherwise.
// keepLast < 0 uses the configured trim.
func (a *App) priceSource(csvPath string, keepLast int) (fetcher.PriceSource, string, error) {
	if keepLast < 0 {
		keepLast = a.Config.Prices.KeepLast
	}
	if csvPath == "" {
		csvPath = a.Config.Prices.CSVPath
	}
	if csvPath != "" {
		src, err := fetcher.LoadCSVPrices(csvPath, keepLast)
		if err != nil {
			return nil, "", err
		}
		return src, "csv", nil
	}

	cfg := a.Config.Prices
	return fetcher.NewYahoo(fetcher.YahooOptions{
		BaseURL:   cfg.BaseURL,
		KeepLast:  keepLast,
		Timeout:   cfg.RequestTimeout,
		RateLimit: cfg.RateLimit,
		Retry: fetcher.RetryOptions{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     cfg.MaxRetryDelay,
		},
		UserAgent: cfg.UserAgent,
	}, a.base), "yahoo", nil
}

func (a *App) newsSource(disabled bool) (fetcher.NewsSource, string) {
	if disabled || !a.Config.News.Enabled {
		return fetcher.DisabledNews{}, "disabled"
	}
	cfg := a.Config.News
	return fetcher.NewGoogleNews(fetcher.NewsOptions{
		BaseURL:   cfg.BaseURL,
		MaxItems:  cfg.MaxItems,
		Timeout:   cfg.RequestTimeout,
		RateLimit: cfg.RateLimit,
		Retry: fetcher.RetryOptions{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.RetryDelay,
		},
		UserAgent: cfg.UserAgent,
	}, a.base), "google_news"
}

func (a *App) newRenderer(outputDir string) report.Renderer {
	cfg := a.Config.Report
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	return report.NewMarkdown(report.Options{
		OutputDir: outputDir,
		Chart:     cfg.Chart,
		CSV:       cfg.CSV,
		TopN:      cfg.TopN,
	}, a.base)
}

func (a *App) newService(opts RunOptions, recorder *metrics.Recorder) (*service.Service, error) {
	prices, priceName, err := a.priceSource(opts.PricesCSV, -1)
	if err != nil {
		return nil, err
	}
	news, newsName := a.newsSource(opts.NoNews)

	svc := service.New(service.Options{
		Tickers:     a.Config.ResolveTickers(opts.Tickers),
		Lookback:    a.Config.Prices.Lookback,
		Thresholds:  a.Config.Thresholds(),
		PriceSource: priceName,
		NewsSource:  newsName,
	}, prices, news, a.newRenderer(opts.OutputDir), a.base)

	if recorder != nil {
		svc.WithObserver(recorder).WithFetchObserver(recorder)
	}
	return svc, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.base)
	}
	return nil
}

func (a *App) alertPolicy() alerting.Policy {
	cfg := a.Config.Alerting
	return alerting.Policy{
		MinQualityScore: cfg.MinQualityScore,
		OnStageFailure:  cfg.OnStageFailure,
		Always:          cfg.AlwaysNotify,
	}
}

func (a *App) newRecorder() *metrics.Recorder {
	return metrics.New(a.Config.Metrics.Namespace)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	if path := a.Config.Database.MigrationsPath; path != "" {
		applied, err := storage.Migrate(ctx, pool, path)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		if len(applied) > 0 {
			a.Logger.Info().Strs("migrations", applied).Msg("database migrations applied")
		}
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}
