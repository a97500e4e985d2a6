package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"market-recap/internal/logging"
	"market-recap/internal/quality"
)

const envPrefix = "MARKETRECAP"

// DefaultTickers is the shipped universe: large caps across five sectors,
// broad index ETFs and two crypto pairs.
var DefaultTickers = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "META", "NVDA", "TSLA", "NFLX", "AMD", "INTC",
	"JPM", "BAC", "GS", "MS", "WFC", "C", "BLK", "V", "MA", "AXP",
	"JNJ", "UNH", "PFE", "ABBV", "TMO", "MRK", "LLY", "ABT", "DHR", "BMY",
	"WMT", "PG", "KO", "PEP", "NKE", "COST", "HD", "MCD", "SBUX", "DIS",
	"XOM", "CVX", "COP", "SLB", "EOG",
	"SPY", "QQQ", "DIA", "IWM", "VTI",
	"BTC-USD", "ETH-USD",
}

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Universe  UniverseConfig  `mapstructure:"universe"`
	Prices    PricesConfig    `mapstructure:"prices"`
	News      NewsConfig      `mapstructure:"news"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Report    ReportConfig    `mapstructure:"report"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN disables
// run archiving.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs when serve triggers a run.
type SchedulerConfig struct {
	Schedule        string        `mapstructure:"schedule"`
	Timezone        string        `mapstructure:"timezone"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// UniverseConfig lists the instruments tracked by each run.
type UniverseConfig struct {
	Tickers []string `mapstructure:"tickers"`
}

// PricesConfig covers the Yahoo Finance chart API.
type PricesConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Lookback       time.Duration `mapstructure:"lookback"`
	KeepLast       int           `mapstructure:"keep_last"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay  time.Duration `mapstructure:"max_retry_delay"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	UserAgent      string        `mapstructure:"user_agent"`
	CSVPath        string        `mapstructure:"csv_path"`
}

// NewsConfig covers the Google News RSS feed.
type NewsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	MaxItems       int           `mapstructure:"max_items"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// QualityConfig holds the data quality thresholds.
type QualityConfig struct {
	MinCompleteness float64 `mapstructure:"min_completeness"`
	MinPrice        float64 `mapstructure:"min_price"`
	MaxPrice        float64 `mapstructure:"max_price"`
	MaxReturnPct    float64 `mapstructure:"max_return_pct"`
}

// ReportConfig controls the generated artifact.
type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Chart     bool   `mapstructure:"chart"`
	CSV       bool   `mapstructure:"csv"`
	TopN      int    `mapstructure:"top_n"`
}

// AlertingConfig defines when a run summary is pushed out.
type AlertingConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	MinQualityScore float64        `mapstructure:"min_quality_score"`
	OnStageFailure  bool           `mapstructure:"on_stage_failure"`
	AlwaysNotify    bool           `mapstructure:"always_notify"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig sets where run metrics are exposed.
type MetricsConfig struct {
	Namespace    string `mapstructure:"namespace"`
	TextfilePath string `mapstructure:"textfile_path"`
	ListenAddr   string `mapstructure:"listen_addr"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Universe.Tickers = normalizeTickers(cfg.Universe.Tickers)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDotEnv exports variables from path without overriding the real
// environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "market-recap")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("scheduler.schedule", "30 22 * * 1-5")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.run_on_start", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6d6b7472))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("universe.tickers", DefaultTickers)

	v.SetDefault("prices.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("prices.lookback", "168h")
	v.SetDefault("prices.keep_last", 2)
	v.SetDefault("prices.request_timeout", "30s")
	v.SetDefault("prices.max_retries", 3)
	v.SetDefault("prices.retry_delay", "2s")
	v.SetDefault("prices.max_retry_delay", "30s")
	v.SetDefault("prices.rate_limit", 1.0)
	v.SetDefault("prices.user_agent", "")
	v.SetDefault("prices.csv_path", "")

	v.SetDefault("news.enabled", true)
	v.SetDefault("news.base_url", "https://news.google.com/rss/search")
	v.SetDefault("news.max_items", 3)
	v.SetDefault("news.request_timeout", "10s")
	v.SetDefault("news.max_retries", 1)
	v.SetDefault("news.retry_delay", "1s")
	v.SetDefault("news.rate_limit", 3.0)
	v.SetDefault("news.user_agent", "")

	v.SetDefault("quality.min_completeness", 0.8)
	v.SetDefault("quality.min_price", 0.01)
	v.SetDefault("quality.max_price", 1_000_000.0)
	v.SetDefault("quality.max_return_pct", 50.0)

	v.SetDefault("report.output_dir", "outputs")
	v.SetDefault("report.chart", true)
	v.SetDefault("report.csv", false)
	v.SetDefault("report.top_n", 5)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_quality_score", 0.8)
	v.SetDefault("alerting.on_stage_failure", true)
	v.SetDefault("alerting.always_notify", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("metrics.namespace", "market_recap")
	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("metrics.listen_addr", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func normalizeTickers(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if len(c.Universe.Tickers) == 0 {
		return fmt.Errorf("universe.tickers must list at least one ticker")
	}
	if _, err := cron.ParseStandard(c.Scheduler.Schedule); err != nil {
		return fmt.Errorf("scheduler.schedule: %w", err)
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler.timezone: %w", err)
	}
	if c.Prices.Lookback <= 0 {
		return fmt.Errorf("prices.lookback must be greater than zero")
	}
	if c.Prices.KeepLast < 0 {
		return fmt.Errorf("prices.keep_last cannot be negative")
	}
	if c.Prices.MaxRetries < 0 || c.News.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	if c.Quality.MinCompleteness < 0 || c.Quality.MinCompleteness > 1 {
		return fmt.Errorf("quality.min_completeness must be within [0, 1]")
	}
	if c.Quality.MinPrice < 0 || c.Quality.MaxPrice <= c.Quality.MinPrice {
		return fmt.Errorf("quality.min_price must be non-negative and below quality.max_price")
	}
	if c.Quality.MaxReturnPct <= 0 {
		return fmt.Errorf("quality.max_return_pct must be greater than zero")
	}
	if c.Report.TopN <= 0 {
		return fmt.Errorf("report.top_n must be greater than zero")
	}
	if c.Alerting.MinQualityScore < 0 || c.Alerting.MinQualityScore > 1 {
		return fmt.Errorf("alerting.min_quality_score must be within [0, 1]")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// Thresholds converts the quality section into evaluator thresholds.
func (c *Config) Thresholds() quality.Thresholds {
	return quality.Thresholds{
		MinCompleteness: c.Quality.MinCompleteness,
		MinPrice:        decimal.NewFromFloat(c.Quality.MinPrice),
		MaxPrice:        decimal.NewFromFloat(c.Quality.MaxPrice),
		MaxReturnPct:    decimal.NewFromFloat(c.Quality.MaxReturnPct),
	}
}

// ResolveTickers returns either the CLI override or the configured universe.
func (c *Config) ResolveTickers(override []string) []string {
	if t := normalizeTickers(override); len(t) > 0 {
		return t
	}
	out := make([]string, len(c.Universe.Tickers))
	copy(out, c.Universe.Tickers)
	return out
}

// Location returns the scheduler time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
