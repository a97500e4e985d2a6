package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"market-recap/internal/market"
	"market-recap/internal/pipeline"
	"market-recap/internal/quality"
)

// Bundle is everything a renderer consumes. Fields are read-only.
type Bundle struct {
	Prices      market.PriceSeries
	Returns     market.Returns
	News        market.Headlines
	Quality     quality.Report
	Stages      []pipeline.StageMetadata
	GeneratedAt time.Time
}

// Artifact describes the files written for one report.
type Artifact struct {
	Path      string
	ChartPath string
	CSVPath   string
	Bytes     int64
}

// Len lets the executor record one artifact per run.
func (a Artifact) Len() int {
	if a.Path == "" {
		return 0
	}
	return 1
}

// Renderer turns a bundle into a persistent artifact.
type Renderer interface {
	Render(ctx context.Context, b Bundle) (Artifact, error)
}

// Options parameterise the markdown renderer.
type Options struct {
	OutputDir string
	Chart     bool
	CSV       bool
	TopN      int
}

// Markdown writes market_recap_YYYYMMDD.md plus optional chart and CSV files.
type Markdown struct {
	opts   Options
	logger zerolog.Logger
}

// NewMarkdown constructs a markdown renderer.
func NewMarkdown(opts Options, logger zerolog.Logger) *Markdown {
	if opts.OutputDir == "" {
		opts.OutputDir = "outputs"
	}
	if opts.TopN <= 0 {
		opts.TopN = 5
	}
	return &Markdown{
		opts:   opts,
		logger: logger.With().Str("component", "report").Logger(),
	}
}

// Render writes the report files. Empty news, a perfect score and a zero score
// are all valid inputs.
func (m *Markdown) Render(ctx context.Context, b Bundle) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	if b.GeneratedAt.IsZero() {
		b.GeneratedAt = time.Now()
	}
	if err := os.MkdirAll(m.opts.OutputDir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create output dir: %w", err)
	}

	stem := "market_recap_" + b.GeneratedAt.Format("20060102")
	var art Artifact

	if m.opts.Chart && len(b.Returns) > 0 {
		art.ChartPath = filepath.Join(m.opts.OutputDir, stem+"_top.png")
		if err := writeTopChart(art.ChartPath, b.Returns, m.opts.TopN); err != nil {
			return Artifact{}, fmt.Errorf("render chart: %w", err)
		}
	}

	if m.opts.CSV {
		art.CSVPath = filepath.Join(m.opts.OutputDir, stem+"_returns.csv")
		if err := writeReturnsCSV(art.CSVPath, b.Returns.SortedByReturn()); err != nil {
			return Artifact{}, fmt.Errorf("write csv: %w", err)
		}
	}

	art.Path = filepath.Join(m.opts.OutputDir, stem+".md")
	chartName := ""
	if art.ChartPath != "" {
		chartName = filepath.Base(art.ChartPath)
	}
	doc := buildMarkdown(b, m.opts.TopN, chartName)
	if err := os.WriteFile(art.Path, []byte(doc), 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write report: %w", err)
	}
	art.Bytes = int64(len(doc))

	m.logger.Info().
		Str("path", art.Path).
		Str("chart", art.ChartPath).
		Str("csv", art.CSVPath).
		Int64("bytes", art.Bytes).
		Msg("report generated")

	return art, nil
}

var _ Renderer = (*Markdown)(nil)
