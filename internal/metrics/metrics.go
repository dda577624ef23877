// Package metrics holds the Prometheus metrics for session archiving and chat correlation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orderbridge"

// Save outcomes.
const (
	SaveCommitted  = "committed"
	SaveFailed     = "failed"
	SaveRolledBack = "rolled_back"
	SaveSuperseded = "superseded"
)

// Metrics is the metric set shared by the archive store and the correlation index.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SavesTotal    *prometheus.CounterVec
	SaveDuration  prometheus.Histogram
	SavesInFlight prometheus.Gauge
	ExtractsTotal *prometheus.CounterVec
	DeletesTotal  *prometheus.CounterVec
	ChatsEvicted  prometheus.Counter
	ChatsTracked  prometheus.Gauge
}

// New registers the metric set with reg.
//
// Metrics:
//   - orderbridge_archive_saves_total{outcome} - background save outcomes
//   - orderbridge_archive_save_duration_seconds - upload + metadata duration
//   - orderbridge_archive_saves_in_flight - background saves not yet finished
//   - orderbridge_archive_extracts_total{result} - extract results (found, not_found, error)
//   - orderbridge_archive_deletes_total{result} - delete results (ok, blob_leaked, error)
//   - orderbridge_correlation_chats_evicted_total - chats dropped by the LRU cap
//   - orderbridge_correlation_chats_tracked - chats holding a live generation
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SavesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "archive",
				Name:      "saves_total",
				Help:      "Total number of background session saves by outcome",
			},
			[]string{"outcome"},
		),
		SaveDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "archive",
				Name:      "save_duration_seconds",
				Help:      "Duration of background session saves in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
		),
		SavesInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "archive",
				Name:      "saves_in_flight",
				Help:      "Number of background session saves not yet finished",
			},
		),
		ExtractsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "archive",
				Name:      "extracts_total",
				Help:      "Total number of session extracts by result",
			},
			[]string{"result"},
		),
		DeletesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "archive",
				Name:      "deletes_total",
				Help:      "Total number of session deletes by result",
			},
			[]string{"result"},
		),
		ChatsEvicted: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "correlation",
				Name:      "chats_evicted_total",
				Help:      "Total number of chats evicted from the correlation index",
			},
		),
		ChatsTracked: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "correlation",
				Name:      "chats_tracked",
				Help:      "Number of chats holding a live correlation generation",
			},
		),
	}
}

// SaveStarted marks a background save as in flight.
func (m *Metrics) SaveStarted() {
	if m == nil {
		return
	}
	m.SavesInFlight.Inc()
}

// SaveFinished records the outcome and duration of a background save.
func (m *Metrics) SaveFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SavesInFlight.Dec()
	m.SavesTotal.WithLabelValues(outcome).Inc()
	m.SaveDuration.Observe(d.Seconds())
}

// RecordExtract records an extract result.
func (m *Metrics) RecordExtract(result string) {
	if m == nil {
		return
	}
	m.ExtractsTotal.WithLabelValues(result).Inc()
}

// RecordDelete records a delete result.
func (m *Metrics) RecordDelete(result string) {
	if m == nil {
		return
	}
	m.DeletesTotal.WithLabelValues(result).Inc()
}

// RecordEviction records a chat dropped from the correlation index.
func (m *Metrics) RecordEviction() {
	if m == nil {
		return
	}
	m.ChatsEvicted.Inc()
}

// SetChatsTracked updates the tracked chats gauge.
func (m *Metrics) SetChatsTracked(n int) {
	if m == nil {
		return
	}
	m.ChatsTracked.Set(float64(n))
}
