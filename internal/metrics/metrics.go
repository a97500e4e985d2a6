package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"market-recap/internal/fetcher"
	"market-recap/internal/pipeline"
	"market-recap/internal/quality"
)

// Recorder collects per-run pipeline metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration *prometheus.GaugeVec
	stageRecords  *prometheus.GaugeVec
	stageTotal    *prometheus.CounterVec
	fetchTotal    *prometheus.CounterVec
	qualityScore  prometheus.Gauge
	qualityChecks *prometheus.GaugeVec
	qualityValues *prometheus.GaugeVec
	runsTotal     *prometheus.CounterVec
	lastRun       prometheus.Gauge
}

// New registers all collectors under namespace.
func New(namespace string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stage_duration_seconds", Help: "Wall time of the stage in the latest run",
		}, []string{"stage"}),
		stageRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stage_records", Help: "Output size of the stage in the latest run",
		}, []string{"stage"}),
		stageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stage_results_total", Help: "Stage outcomes by status",
		}, []string{"stage", "status"}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fetch_results_total", Help: "Per-ticker fetch outcomes",
		}, []string{"source", "status"}),
		qualityScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "quality_score", Help: "Quality score of the latest run",
		}),
		qualityChecks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "quality_checks", Help: "Gate checks of the latest run by result",
		}, []string{"result"}),
		qualityValues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "quality_metric", Help: "Raw quality metrics of the latest run",
		}, []string{"metric"}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total", Help: "Pipeline runs by outcome",
		}, []string{"outcome"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_timestamp_seconds", Help: "Unix time the latest run finished",
		}),
	}
	r.registry.MustRegister(
		r.stageDuration, r.stageRecords, r.stageTotal, r.fetchTotal,
		r.qualityScore, r.qualityChecks, r.qualityValues, r.runsTotal, r.lastRun,
	)
	return r
}

// StageFinished implements pipeline.Observer.
func (r *Recorder) StageFinished(meta pipeline.StageMetadata) {
	r.stageTotal.WithLabelValues(meta.Name, string(meta.Status)).Inc()
	r.stageDuration.WithLabelValues(meta.Name).Set(meta.Duration.Seconds())
	if meta.Count >= 0 {
		r.stageRecords.WithLabelValues(meta.Name).Set(float64(meta.Count))
	}
}

// ObserveFetch counts one per-ticker fetch outcome.
func (r *Recorder) ObserveFetch(source string, status fetcher.Status) {
	r.fetchTotal.WithLabelValues(source, status.String()).Inc()
}

// ObserveQuality records the quality report of a run.
func (r *Recorder) ObserveQuality(rep quality.Report) {
	r.qualityScore.Set(rep.Score())
	r.qualityChecks.WithLabelValues("passed").Set(float64(len(rep.ChecksPassed)))
	r.qualityChecks.WithLabelValues("failed").Set(float64(len(rep.ChecksFailed)))
	for name, v := range rep.Metrics {
		r.qualityValues.WithLabelValues(name).Set(v)
	}
}

// ObserveRun counts a finished run.
func (r *Recorder) ObserveRun(outcome string, finished time.Time) {
	r.runsTotal.WithLabelValues(outcome).Inc()
	r.lastRun.Set(float64(finished.Unix()))
}

// Gatherer exposes the private registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Handler serves the registry over HTTP.
func (r *Recorder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	return mux
}

// Serve starts a /metrics listener in the background.
func (r *Recorder) Serve(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: r.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

var _ pipeline.Observer = (*Recorder)(nil)
