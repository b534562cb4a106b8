package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

// Metrics exposes the pipeline's application-level instruments.
type Metrics struct {
	Registry *prometheus.Registry

	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobItems      *prometheus.CounterVec
	webhookEvents *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: registry,
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tipwave_job_runs_total",
			Help: "Scheduled job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tipwave_job_duration_seconds",
			Help:    "Scheduled job run duration.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"job"}),
		jobItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tipwave_job_items_processed_total",
			Help: "Items processed per scheduled job.",
		}, []string{"job"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tipwave_webhook_events_total",
			Help: "Webhook ingestion results by provider.",
		}, []string{"provider", "result"}),
	}
	registry.MustRegister(m.jobRuns, m.jobDuration, m.jobItems, m.webhookEvents)
	return m
}

func (m *Metrics) ObserveJobRun(job string, duration time.Duration, processed int, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	m.jobItems.WithLabelValues(job).Add(float64(processed))
}

func (m *Metrics) ObserveWebhook(provider string, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, result).Inc()
}

var Module = fx.Module("metrics",
	fx.Provide(New),
)
