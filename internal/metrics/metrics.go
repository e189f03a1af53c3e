// Package metrics collects per-run counters and writes them in the
// Prometheus text format for node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Filing outcome labels.
const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Fetch target labels.
const (
	TargetIndex  = "index"
	TargetFiling = "filing"
)

// RunMetrics holds the metrics of one run on a private registry.
type RunMetrics struct {
	registry *prometheus.Registry

	filingsTotal   *prometheus.CounterVec
	fetchAttempts  *prometheus.CounterVec
	fetchRetries   *prometheus.CounterVec
	ledgerEntries  prometheus.Gauge
	filingDuration prometheus.Histogram
}

// New creates run metrics labelled with cik.
func New(cik string) *RunMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"cik": cik}

	filingsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "nportp",
			Name:        "filings_total",
			Help:        "Candidate filings by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	fetchAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "nportp",
			Name:        "fetch_attempts_total",
			Help:        "HTTP fetch attempts by target.",
			ConstLabels: constLabels,
		},
		[]string{"target"},
	)
	fetchRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "nportp",
			Name:        "fetch_retries_total",
			Help:        "HTTP fetch attempts after the first, by target.",
			ConstLabels: constLabels,
		},
		[]string{"target"},
	)
	ledgerEntries := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "nportp",
			Name:        "ledger_entries",
			Help:        "Filings recorded as processed in the progress ledger.",
			ConstLabels: constLabels,
		},
	)
	filingDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "nportp",
			Name:        "filing_duration_seconds",
			Help:        "Fetch, extract and persist duration per filing.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(filingsTotal, fetchAttempts, fetchRetries, ledgerEntries, filingDuration)

	return &RunMetrics{
		registry:       registry,
		filingsTotal:   filingsTotal,
		fetchAttempts:  fetchAttempts,
		fetchRetries:   fetchRetries,
		ledgerEntries:  ledgerEntries,
		filingDuration: filingDuration,
	}
}

// Filing records one filing outcome. Skipped filings carry no duration.
func (m *RunMetrics) Filing(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.filingsTotal.WithLabelValues(status).Inc()
	if status != StatusSkipped {
		m.filingDuration.Observe(d.Seconds())
	}
}

// Fetch records the attempts spent on one fetch.
func (m *RunMetrics) Fetch(target string, attempts int) {
	if m == nil || attempts <= 0 {
		return
	}
	m.fetchAttempts.WithLabelValues(target).Add(float64(attempts))
	if attempts > 1 {
		m.fetchRetries.WithLabelValues(target).Add(float64(attempts - 1))
	}
}

// LedgerEntries sets the ledger size.
func (m *RunMetrics) LedgerEntries(n int) {
	if m == nil {
		return
	}
	m.ledgerEntries.Set(float64(n))
}

// Gatherer exposes the registry.
func (m *RunMetrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes all metrics to path atomically.
func (m *RunMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
