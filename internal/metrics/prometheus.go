package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"epingest/internal/domain/model"
	"epingest/internal/support/logger"
)

// PrometheusRecorder is a Prometheus implementation of the Recorder
// interface. It owns its own registry so tests can instantiate it freely.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	keyOutcomeCounter  *prometheus.CounterVec
	rowsUploadedTotal  *prometheus.CounterVec
	batchCommitTotal   *prometheus.CounterVec
	runDurationSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new PrometheusRecorder with Go runtime and
// process collectors registered.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		keyOutcomeCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_key_outcome_total",
			Help: "Total ingestion keys by terminal outcome.",
		}, []string{"building_id", "variable", "outcome"}),
		rowsUploadedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_rows_uploaded_total",
			Help: "Total canonical readings durably written, by variable.",
		}, []string{"building_id", "variable"}),
		batchCommitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_batch_commit_total",
			Help: "Total persist-then-advance batch commits, by variable.",
		}, []string{"building_id", "variable"}),
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Wall time of whole batch runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"building_id"}),
	}

	registry.MustRegister(r.keyOutcomeCounter, r.rowsUploadedTotal, r.batchCommitTotal, r.runDurationSeconds)
	return r
}

// RecordKeyOutcome records the terminal outcome of one key's ingestion.
func (r *PrometheusRecorder) RecordKeyOutcome(ctx context.Context, outcome model.IngestOutcome) {
	r.keyOutcomeCounter.WithLabelValues(
		strconv.Itoa(outcome.Key.BuildingID),
		outcome.Key.VariableName,
		string(outcome.Kind),
	).Inc()
}

// RecordRowsUploaded records rows durably written for a key.
func (r *PrometheusRecorder) RecordRowsUploaded(ctx context.Context, key model.IngestionKey, count int) {
	r.rowsUploadedTotal.WithLabelValues(strconv.Itoa(key.BuildingID), key.VariableName).Add(float64(count))
}

// RecordBatchCommit records one persist-then-advance batch commit.
func (r *PrometheusRecorder) RecordBatchCommit(ctx context.Context, key model.IngestionKey) {
	r.batchCommitTotal.WithLabelValues(strconv.Itoa(key.BuildingID), key.VariableName).Inc()
}

// RecordRunDuration records the wall time of a whole batch run.
func (r *PrometheusRecorder) RecordRunDuration(ctx context.Context, buildingID int, d time.Duration) {
	r.runDurationSeconds.WithLabelValues(strconv.Itoa(buildingID)).Observe(d.Seconds())
}

// Handler returns an HTTP handler exposing the recorder's registry, for the
// optional scrape endpoint.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled. Scrapes of a batch
// process are only useful for long runs; short runs typically leave this
// disabled.
func (r *PrometheusRecorder) Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	logger.Infof("Metrics endpoint listening on %s.", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Warnf("Metrics endpoint terminated: %v", err)
	}
}

var _ Recorder = (*PrometheusRecorder)(nil)
